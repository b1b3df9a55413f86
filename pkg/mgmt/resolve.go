package mgmt

import (
    "net/url"
    "strings"

    "github.com/clusterkit/go-clustermgmt/pkg/runtime"
)

// findMember locates a member whose fully-qualified address string or bare
// host:port form equals addr exactly. Matching is deterministic for a fixed
// snapshot: a fully-qualified match wins outright; among host:port matches a
// member in the caller's own data center is preferred, then the smallest
// full address string.
func findMember(snap runtime.Snapshot, addr string) (runtime.Member, bool) {
    selfDC := dataCenterOf(snap)
    var (
        candidate runtime.Member
        found     bool
    )
    for _, m := range snap.Members {
        if m.Address.String() == addr {
            return m, true
        }
        if m.Address.HostPort() != addr {
            continue
        }
        if !found {
            candidate, found = m, true
            continue
        }
        switch {
        case m.DataCenter == selfDC && candidate.DataCenter != selfDC:
            candidate = m
        case (m.DataCenter == selfDC) == (candidate.DataCenter == selfDC) &&
            m.Address.String() < candidate.Address.String():
            candidate = m
        }
    }
    return candidate, found
}

// decodeAddressPath reconstructs the decoded address from the escaped path
// tail the router matched. Each segment is percent-decoded individually and
// segments are rejoined with literal slashes, so an address containing
// characters the transport would re-escape round-trips exactly. Iterative on
// purpose: path length must never translate into stack depth.
func decodeAddressPath(escaped string) (string, error) {
    var b strings.Builder
    for i, seg := range strings.Split(escaped, "/") {
        if i > 0 {
            b.WriteByte('/')
        }
        decoded, err := url.PathUnescape(seg)
        if err != nil {
            return "", err
        }
        b.WriteString(decoded)
    }
    return b.String(), nil
}
