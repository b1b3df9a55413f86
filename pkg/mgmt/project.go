package mgmt

import (
    "sort"
    "strconv"

    "github.com/clusterkit/go-clustermgmt/pkg/runtime"
)

// projectMembers converts a single runtime snapshot into the external
// collection view. Members keep the snapshot's own iteration order;
// unreachable subjects and their observers are sorted for deterministic
// output. Pure read, no side effects.
func projectMembers(snap runtime.Snapshot) ClusterMembers {
    out := ClusterMembers{
        SelfNode:    snap.Self.String(),
        Members:     make([]MemberView, 0, len(snap.Members)),
        Unreachable: projectUnreachable(snap.Unreachable),
    }
    for _, m := range snap.Members {
        out.Members = append(out.Members, memberView(m))
    }
    if snap.Leader != nil {
        out.Leader = snap.Leader.String()
    }

    aged := oldestCandidates(snap)
    if len(aged) > 0 {
        out.Oldest = aged[0].Address.String()
        out.OldestPerRole = oldestPerRole(aged)
    }
    return out
}

func memberView(m runtime.Member) MemberView {
    roles := append([]string(nil), m.Roles...)
    sort.Strings(roles)
    if roles == nil {
        roles = []string{}
    }
    return MemberView{
        Node:       m.Address.String(),
        NodeUID:    strconv.FormatUint(m.UID, 10),
        Status:     m.Status.String(),
        Roles:      roles,
        DataCenter: m.DataCenter,
    }
}

// oldestCandidates filters the snapshot to Up members in the caller's own
// data center and sorts them oldest-first. An empty result means the oldest
// fields stay absent; there is no sentinel value.
func oldestCandidates(snap runtime.Snapshot) []runtime.Member {
    selfDC := dataCenterOf(snap)
    var aged []runtime.Member
    for _, m := range snap.Members {
        if m.Status == runtime.StatusUp && m.DataCenter == selfDC {
            aged = append(aged, m)
        }
    }
    sort.Slice(aged, func(i, j int) bool { return aged[i].OlderThan(aged[j]) })
    return aged
}

func dataCenterOf(snap runtime.Snapshot) string {
    for _, m := range snap.Members {
        if m.Address == snap.Self {
            return m.DataCenter
        }
    }
    return ""
}

// oldestPerRole takes the minimum of the already-sorted candidate list per
// role. Roles with no Up member in the data center are simply omitted.
func oldestPerRole(aged []runtime.Member) map[string]string {
    perRole := make(map[string]string)
    for _, m := range aged {
        for _, role := range m.Roles {
            if _, seen := perRole[role]; !seen {
                perRole[role] = m.Address.String()
            }
        }
    }
    if len(perRole) == 0 {
        return nil
    }
    return perRole
}

func projectUnreachable(entries []runtime.UnreachableEntry) []UnreachableObservation {
    out := make([]UnreachableObservation, 0, len(entries))
    for _, e := range entries {
        obs := make([]string, 0, len(e.Observers))
        seen := make(map[string]struct{}, len(e.Observers))
        for _, o := range e.Observers {
            s := o.String()
            if _, dup := seen[s]; dup {
                continue
            }
            seen[s] = struct{}{}
            obs = append(obs, s)
        }
        sort.Strings(obs)
        out = append(out, UnreachableObservation{Node: e.Subject.String(), ObservedBy: obs})
    }
    sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
    return out
}
