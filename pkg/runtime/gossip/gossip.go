package gossip

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "math/rand"
    "net"
    "sort"
    "sync"
    "time"

    "github.com/hashicorp/memberlist"

    cns "github.com/clusterkit/go-clustermgmt/pkg/consensus"
    "github.com/clusterkit/go-clustermgmt/pkg/internal/logutil"
    "github.com/clusterkit/go-clustermgmt/pkg/runtime"
)

// StatusStore reads the replicated administrative status overrides (the
// raft FSM state). Optional; without it a node falls back to local-only
// overrides.
type StatusStore interface {
    Overrides() map[string]runtime.MemberStatus
    PreparingShutdown() bool
}

// Options configure the memberlist-backed cluster runtime.
type Options struct {
    // NodeID is the unique node identifier (memberlist node name and, when
    // consensus is wired, the raft server ID).
    NodeID string

    // SystemName is the system component of member addresses.
    SystemName string

    // Bind is the gossip bind address in host:port form.
    Bind string

    // Advertise is the advertised host:port peers use to reach this node.
    // If empty, memberlist derives it from Bind.
    Advertise string

    // DataCenter names this node's data-center partition.
    DataCenter string

    // Roles carried by this node.
    Roles []string

    // Logger is optional. If nil, log.Default() is used.
    Logger *log.Logger

    // Consensus provides leadership and the replicated write path for
    // administrative status changes. Optional.
    Consensus cns.Consensus

    // Status reads the replicated overrides applied through Consensus.
    Status StatusStore

    // Tuning parameters (optional). Zero means memberlist defaults.
    ProbeInterval time.Duration
    ProbeTimeout  time.Duration
    SuspicionMult int
}

// nodeMeta is gossiped in each node's metadata blob.
type nodeMeta struct {
    System     string   `json:"sys"`
    DataCenter string   `json:"dc"`
    Roles      []string `json:"roles,omitempty"`
    UID        uint64   `json:"uid"`
    StartedAt  int64    `json:"startedAt"`
}

type memberRec struct {
    name   string
    member runtime.Member
}

// Node implements runtime.Runtime on top of HashiCorp memberlist for
// liveness and an optional consensus engine for leadership and replicated
// administrative state.
type Node struct {
    opts Options
    self runtime.Address

    mu          sync.RWMutex
    ml          *memberlist.Memberlist
    members     map[string]memberRec // keyed by full address string
    unreachable map[string]map[string]runtime.Address
    localOv     map[string]runtime.MemberStatus
    leaving     bool
    closed      bool
}

// New constructs a gossip-backed runtime. Call Start to launch it.
func New(opts Options) (*Node, error) {
    if opts.NodeID == "" {
        return nil, fmt.Errorf("gossip: empty NodeID")
    }
    if opts.SystemName == "" {
        return nil, fmt.Errorf("gossip: empty SystemName")
    }
    if opts.Bind == "" {
        return nil, fmt.Errorf("gossip: empty Bind address")
    }
    if opts.Logger == nil {
        opts.Logger = log.Default()
    }
    return &Node{
        opts:        opts,
        members:     make(map[string]memberRec),
        unreachable: make(map[string]map[string]runtime.Address),
        localOv:     make(map[string]runtime.MemberStatus),
    }, nil
}

// Start launches the underlying memberlist instance and the override watch
// loop. The node shuts down when ctx is canceled.
func (n *Node) Start(ctx context.Context) error {
    n.mu.Lock()
    if n.ml != nil {
        n.mu.Unlock()
        return nil
    }
    n.mu.Unlock()

    cfg := memberlist.DefaultLANConfig()
    cfg.Name = n.opts.NodeID
    host, port, err := splitHostPort(n.opts.Bind)
    if err != nil {
        return fmt.Errorf("gossip: invalid bind address %q: %w", n.opts.Bind, err)
    }
    cfg.BindAddr = host
    cfg.BindPort = port
    if n.opts.Advertise != "" {
        ahost, aport, err := splitHostPort(n.opts.Advertise)
        if err != nil {
            return fmt.Errorf("gossip: invalid advertise address %q: %w", n.opts.Advertise, err)
        }
        cfg.AdvertiseAddr = ahost
        cfg.AdvertisePort = aport
    }
    if n.opts.ProbeInterval > 0 {
        cfg.ProbeInterval = n.opts.ProbeInterval
    }
    if n.opts.ProbeTimeout > 0 {
        cfg.ProbeTimeout = n.opts.ProbeTimeout
    }
    if n.opts.SuspicionMult > 0 {
        cfg.SuspicionMult = n.opts.SuspicionMult
    }

    meta := nodeMeta{
        System:     n.opts.SystemName,
        DataCenter: n.opts.DataCenter,
        Roles:      n.opts.Roles,
        UID:        rand.Uint64(),
        StartedAt:  time.Now().UnixNano(),
    }
    metaBytes, _ := json.Marshal(meta)
    cfg.Delegate = &nodeDelegate{meta: metaBytes}
    cfg.Events = &eventDelegate{node: n}

    // Create fires NotifyJoin for the local node synchronously, and the
    // event delegate takes n.mu, so the lock must not be held here.
    ml, err := memberlist.Create(cfg)
    if err != nil {
        return err
    }
    local := ml.LocalNode()

    n.mu.Lock()
    n.ml = ml
    n.self = runtime.Address{System: n.opts.SystemName, Host: local.Addr.String(), Port: int(local.Port)}
    n.mu.Unlock()

    go n.watchOverrides(ctx)
    go func() {
        <-ctx.Done()
        _ = n.Close()
    }()
    return nil
}

// JoinSeeds contacts the given seed nodes (host:port) to enter the cluster.
func (n *Node) JoinSeeds(seeds []string) error {
    n.mu.RLock()
    ml := n.ml
    n.mu.RUnlock()
    if ml == nil {
        return fmt.Errorf("gossip: not started")
    }
    if len(seeds) == 0 {
        return nil
    }
    _, err := ml.Join(seeds)
    return err
}

// Self returns this node's own address.
func (n *Node) Self() runtime.Address {
    n.mu.RLock()
    defer n.mu.RUnlock()
    return n.self
}

// Snapshot produces a single consistent view: liveness from the member
// table, administrative statuses merged from replicated (or local)
// overrides, leadership from consensus. Members iterate oldest-first with a
// stable address tie-break.
func (n *Node) Snapshot() runtime.Snapshot {
    ov := n.overrides()

    n.mu.RLock()
    snap := runtime.Snapshot{Self: n.self}
    for _, rec := range n.members {
        m := rec.member
        if st, ok := ov[m.Address.String()]; ok {
            m.Status = st
        }
        snap.Members = append(snap.Members, m)
    }
    for subject, observers := range n.unreachable {
        addr, err := runtime.ParseAddress(subject)
        if err != nil {
            continue
        }
        entry := runtime.UnreachableEntry{Subject: addr}
        for _, o := range observers {
            entry.Observers = append(entry.Observers, o)
        }
        snap.Unreachable = append(snap.Unreachable, entry)
    }
    n.mu.RUnlock()

    sortMembers(snap.Members)
    if leader := n.leaderAddress(); leader != nil {
        snap.Leader = leader
    }
    return snap
}

// Join asks this node to join the cluster member listening at addr.
func (n *Node) Join(addr runtime.Address) error {
    return n.JoinSeeds([]string{addr.HostPort()})
}

// Leave requests a graceful leave of the given member. Leaving self starts
// the local leave immediately; leaving a remote member replicates a Leaving
// override the target acts on once it observes it. Fire-and-forget either
// way.
func (n *Node) Leave(addr runtime.Address) error {
    if addr == n.Self() {
        go n.leaveSelf()
        return nil
    }
    return n.setStatus(addr, runtime.StatusLeaving)
}

// Down marks the given member as administratively down and, when this node
// leads a consensus group, removes the matching voter.
func (n *Node) Down(addr runtime.Address) error {
    if err := n.setStatus(addr, runtime.StatusDown); err != nil {
        return err
    }
    if rc, ok := n.opts.Consensus.(cns.Reconfigurer); ok && n.opts.Consensus.IsLeader() {
        if name := n.nameOf(addr); name != "" {
            if err := rc.RemoveServer(name, 3*time.Second); err != nil {
                logutil.Warnf(n.opts.Logger, "gossip: remove voter %s: %v", name, err)
            }
        }
    }
    return nil
}

// PrepareFullShutdown replicates the cluster-wide shutdown-preparation flag.
// Runtimes assembled without consensus predate this capability.
func (n *Node) PrepareFullShutdown() error {
    if n.opts.Consensus == nil {
        return runtime.ErrUnsupported
    }
    return n.opts.Consensus.Apply(cns.Command{Op: cns.OpPrepareShutdown}, 2*time.Second)
}

// Close leaves the cluster best-effort and shuts gossip down. Leave fires
// the event delegate synchronously, so the memberlist calls must run with
// n.mu released.
func (n *Node) Close() error {
    n.mu.Lock()
    if n.closed {
        n.mu.Unlock()
        return nil
    }
    n.closed = true
    ml := n.ml
    n.ml = nil
    n.mu.Unlock()

    if ml != nil {
        _ = ml.Leave(time.Second)
        _ = ml.Shutdown()
    }
    return nil
}

// setStatus records an administrative status for addr. With a consensus
// engine the override must replicate so every node (including the target)
// observes it; a follower refuses rather than acking a command the cluster
// would never see. Only consensus-less nodes fall back to a local override.
func (n *Node) setStatus(addr runtime.Address, status runtime.MemberStatus) error {
    full := addr.String()
    if c := n.opts.Consensus; c != nil {
        if !c.IsLeader() {
            if id, laddr, ok := c.Leader(); ok {
                return fmt.Errorf("gossip: not the consensus leader, resubmit to %s (%s)", id, laddr)
            }
            return fmt.Errorf("gossip: not the consensus leader and no leader is known")
        }
        payload, err := json.Marshal(struct {
            Addr   string               `json:"addr"`
            Status runtime.MemberStatus `json:"status"`
        }{Addr: full, Status: status})
        if err != nil {
            return err
        }
        return c.Apply(cns.Command{Op: cns.OpSetStatus, Payload: payload}, 2*time.Second)
    }
    n.mu.Lock()
    n.localOv[full] = status
    n.mu.Unlock()
    return nil
}

// overrides merges replicated and local status overrides; replicated wins.
func (n *Node) overrides() map[string]runtime.MemberStatus {
    out := make(map[string]runtime.MemberStatus)
    n.mu.RLock()
    for k, v := range n.localOv {
        out[k] = v
    }
    n.mu.RUnlock()
    if n.opts.Status != nil {
        for k, v := range n.opts.Status.Overrides() {
            out[k] = v
        }
    }
    return out
}

func (n *Node) leaderAddress() *runtime.Address {
    c := n.opts.Consensus
    if c == nil {
        return nil
    }
    id, _, ok := c.Leader()
    if !ok {
        return nil
    }
    n.mu.RLock()
    defer n.mu.RUnlock()
    for _, rec := range n.members {
        if rec.name == id {
            addr := rec.member.Address
            return &addr
        }
    }
    return nil
}

func (n *Node) nameOf(addr runtime.Address) string {
    n.mu.RLock()
    defer n.mu.RUnlock()
    if rec, ok := n.members[addr.String()]; ok {
        return rec.name
    }
    return ""
}

// watchOverrides reacts to replicated commands that target this node:
// Leaving triggers the local graceful leave, Down shuts gossip down hard.
func (n *Node) watchOverrides(ctx context.Context) {
    ticker := time.NewTicker(500 * time.Millisecond)
    defer ticker.Stop()
    warnedShutdown := false
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            ov := n.overrides()
            if n.opts.Status != nil && n.opts.Status.PreparingShutdown() && !warnedShutdown {
                warnedShutdown = true
                logutil.Infof(n.opts.Logger, "gossip: cluster is preparing for full shutdown")
            }
            st, ok := ov[n.Self().String()]
            if !ok {
                continue
            }
            switch st {
            case runtime.StatusLeaving:
                n.leaveSelf()
            case runtime.StatusDown:
                logutil.Warnf(n.opts.Logger, "gossip: this node was downed, shutting down gossip")
                _ = n.Close()
                return
            }
        }
    }
}

func (n *Node) leaveSelf() {
    n.mu.Lock()
    if n.leaving || n.ml == nil {
        n.mu.Unlock()
        return
    }
    n.leaving = true
    ml := n.ml
    n.mu.Unlock()

    logutil.Infof(n.opts.Logger, "gossip: leaving the cluster")
    _ = ml.Leave(5 * time.Second)
}

// --- memberlist delegates ---

type eventDelegate struct {
    node *Node
}

func (d *eventDelegate) NotifyJoin(mn *memberlist.Node) {
    if mn == nil {
        return
    }
    d.node.upsert(mn)
}

func (d *eventDelegate) NotifyUpdate(mn *memberlist.Node) {
    if mn == nil {
        return
    }
    d.node.upsert(mn)
}

// NotifyLeave covers both graceful leaves and failures; the node state tells
// them apart. A graceful leave converges to removal, a failure stays in the
// member table and gains an unreachable observation from this node.
func (d *eventDelegate) NotifyLeave(mn *memberlist.Node) {
    if mn == nil {
        return
    }
    n := d.node
    addr := addressOf(mn)
    full := addr.String()

    n.mu.Lock()
    defer n.mu.Unlock()
    if mn.State == memberlist.StateLeft {
        delete(n.members, full)
        delete(n.unreachable, full)
        delete(n.localOv, full)
        return
    }
    if _, ok := n.unreachable[full]; !ok {
        n.unreachable[full] = make(map[string]runtime.Address)
    }
    n.unreachable[full][n.self.String()] = n.self
}

func (n *Node) upsert(mn *memberlist.Node) {
    addr := addressOf(mn)
    m := runtime.Member{Address: addr, Status: runtime.StatusUp, DataCenter: "default"}
    var meta nodeMeta
    if len(mn.Meta) > 0 && json.Unmarshal(mn.Meta, &meta) == nil {
        if meta.System != "" {
            m.Address.System = meta.System
        }
        if meta.DataCenter != "" {
            m.DataCenter = meta.DataCenter
        }
        m.Roles = meta.Roles
        m.UID = meta.UID
        m.StartedAt = meta.StartedAt
    }
    full := m.Address.String()

    n.mu.Lock()
    defer n.mu.Unlock()
    n.members[full] = memberRec{name: mn.Name, member: m}
    delete(n.unreachable, full)
}

func addressOf(mn *memberlist.Node) runtime.Address {
    addr := runtime.Address{Host: mn.Addr.String(), Port: int(mn.Port)}
    var meta nodeMeta
    if len(mn.Meta) > 0 && json.Unmarshal(mn.Meta, &meta) == nil {
        addr.System = meta.System
    }
    return addr
}

func sortMembers(ms []runtime.Member) {
    sort.Slice(ms, func(i, j int) bool { return ms[i].OlderThan(ms[j]) })
}

func splitHostPort(s string) (string, int, error) {
    host, portStr, err := net.SplitHostPort(s)
    if err != nil {
        return "", 0, err
    }
    var p int
    if _, err := fmt.Sscanf(portStr, "%d", &p); err != nil || p < 0 || p > 65535 {
        return "", 0, fmt.Errorf("invalid port %q", portStr)
    }
    return host, p, nil
}

// nodeDelegate propagates static node metadata through gossip.
type nodeDelegate struct{ meta []byte }

func (d *nodeDelegate) NodeMeta(limit int) []byte {
    if len(d.meta) <= limit {
        return d.meta
    }
    if limit <= 0 {
        return nil
    }
    return d.meta[:limit]
}

func (d *nodeDelegate) NotifyMsg([]byte)                       {}
func (d *nodeDelegate) GetBroadcasts(int, int) [][]byte        { return nil }
func (d *nodeDelegate) LocalState(join bool) []byte            { return nil }
func (d *nodeDelegate) MergeRemoteState(buf []byte, join bool) {}

var _ runtime.Runtime = (*Node)(nil)
var _ runtime.FullShutdownPreparer = (*Node)(nil)
