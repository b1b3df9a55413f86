package runtime

import (
    "errors"
    "fmt"
    "net"
    "strconv"
    "strings"
)

// ErrUnsupported is returned by runtime operations the running version does
// not implement. Callers treat it as an expected, typed outcome.
var ErrUnsupported = errors.New("runtime: operation not supported by this runtime version")

// Scheme is the protocol prefix of fully-qualified member addresses.
const Scheme = "clstr"

// Address identifies a cluster node. The fully-qualified string form is
// "clstr://<system>@<host>:<port>"; HostPort returns the bare "<host>:<port>"
// form used by gossip transports.
type Address struct {
    System string
    Host   string
    Port   int
}

func (a Address) String() string {
    return fmt.Sprintf("%s://%s@%s", Scheme, a.System, a.HostPort())
}

func (a Address) HostPort() string {
    return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

func (a Address) IsZero() bool { return a.Host == "" && a.Port == 0 }

// MarshalText encodes the address in its fully-qualified string form so it
// survives JSON round-trips in replicated state snapshots.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(b []byte) error {
    parsed, err := ParseAddress(string(b))
    if err != nil {
        return err
    }
    *a = parsed
    return nil
}

// ParseAddress parses a fully-qualified address ("clstr://system@host:port")
// or a bare "host:port". The bare form yields an Address with an empty System,
// which callers fill in from their own system name.
func ParseAddress(s string) (Address, error) {
    hp := s
    var system string
    if rest, ok := strings.CutPrefix(s, Scheme+"://"); ok {
        sys, tail, found := strings.Cut(rest, "@")
        if !found || sys == "" {
            return Address{}, fmt.Errorf("runtime: malformed address %q", s)
        }
        system = sys
        hp = tail
    } else if strings.Contains(s, "://") {
        return Address{}, fmt.Errorf("runtime: malformed address %q", s)
    }
    host, portStr, err := net.SplitHostPort(hp)
    if err != nil || host == "" {
        return Address{}, fmt.Errorf("runtime: malformed address %q", s)
    }
    port, err := strconv.Atoi(portStr)
    if err != nil || port < 0 || port > 65535 {
        return Address{}, fmt.Errorf("runtime: invalid port in address %q", s)
    }
    return Address{System: system, Host: host, Port: port}, nil
}

// MemberStatus is the membership lifecycle state of a node.
type MemberStatus int

const (
    StatusJoining MemberStatus = iota
    StatusWeaklyUp
    StatusUp
    StatusLeaving
    StatusExiting
    StatusDown
    StatusRemoved
)

var statusNames = map[MemberStatus]string{
    StatusJoining:  "joining",
    StatusWeaklyUp: "weakly-up",
    StatusUp:       "up",
    StatusLeaving:  "leaving",
    StatusExiting:  "exiting",
    StatusDown:     "down",
    StatusRemoved:  "removed",
}

func (s MemberStatus) String() string {
    if n, ok := statusNames[s]; ok {
        return n
    }
    return fmt.Sprintf("status(%d)", int(s))
}

func (s MemberStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *MemberStatus) UnmarshalText(b []byte) error {
    for k, v := range statusNames {
        if v == string(b) {
            *s = k
            return nil
        }
    }
    return fmt.Errorf("runtime: unknown member status %q", string(b))
}

// Member is one node as observed by the cluster runtime.
type Member struct {
    Address    Address      `json:"address"`
    UID        uint64       `json:"uid"`
    Status     MemberStatus `json:"status"`
    Roles      []string     `json:"roles,omitempty"`
    DataCenter string       `json:"dataCenter"`
    // StartedAt orders members by age (unix nanoseconds of node start,
    // gossiped in node metadata). Smaller means older.
    StartedAt int64 `json:"startedAt"`
}

// OlderThan reports whether m precedes o in the cluster's age ordering.
// Equal start times fall back to the full address string so the order is
// total and stable across repeated snapshots.
func (m Member) OlderThan(o Member) bool {
    if m.StartedAt != o.StartedAt {
        return m.StartedAt < o.StartedAt
    }
    return m.Address.String() < o.Address.String()
}

// UnreachableEntry records which members currently observe Subject as
// unreachable. Observers may repeat; consumers deduplicate.
type UnreachableEntry struct {
    Subject   Address
    Observers []Address
}

// Snapshot is a single consistent read of the runtime's view. Members appear
// in the runtime's own iteration order; Leader is nil when no leader is
// currently known.
type Snapshot struct {
    Self        Address
    Members     []Member
    Unreachable []UnreachableEntry
    Leader      *Address
}

// Runtime is the narrow surface of the cluster engine the management layer
// consumes. Join/Leave/Down submit the command and return once it has been
// accepted for execution; they never wait for convergence.
type Runtime interface {
    Snapshot() Snapshot
    Join(addr Address) error
    Leave(addr Address) error
    Down(addr Address) error
}

// FullShutdownPreparer is an optional capability a Runtime may provide.
// Management code probes for it with a type assertion; absence is an
// expected outcome on runtimes that predate the capability.
type FullShutdownPreparer interface {
    PrepareFullShutdown() error
}
