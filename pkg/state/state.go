package state

import "github.com/clusterkit/go-clustermgmt/pkg/runtime"

// MembersState is the replicated administrative state applied through the
// consensus log: status overrides set by management commands (Leaving, Down)
// and the cluster-wide shutdown-preparation flag.
type MembersState interface {
    ApplySetStatus(addr string, status runtime.MemberStatus) error
    ApplyRemove(addr string) error
    ApplyPrepareShutdown() error
    Snapshot() ([]byte, error)
    Restore(buf []byte) error
}
