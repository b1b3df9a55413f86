package consensus

import (
    "context"
    "time"
)

// Command is one replicated log entry. Op selects the FSM transition; the
// payload semantics belong to the FSM integration (member status overrides).
type Command struct {
    Op      string
    Payload []byte
}

// FSM operation names understood by the members state integration.
const (
    OpSetStatus       = "SetStatus"
    OpRemove          = "Remove"
    OpPrepareShutdown = "PrepareShutdown"
)

// Consensus is the minimal abstraction over a leader-based consensus engine.
// It exposes leadership, term information and a replicated write path.
type Consensus interface {
    Start(ctx context.Context) error
    Apply(cmd Command, timeout time.Duration) error
    IsLeader() bool
    Leader() (id string, addr string, ok bool)
    Term() uint64
    Stop() error
}

// LeaderInfo describes the current known leader.
type LeaderInfo struct {
    ID   string
    Addr string
    Term uint64
}

// LeaderNotifier is an optional interface a Consensus implementation may
// provide to observe leadership changes. Implementations should buffer and
// coalesce so consensus internals are never blocked.
type LeaderNotifier interface {
    LeaderCh() <-chan LeaderInfo
}

// Reconfigurer optionally allows dynamic voter reconfiguration in the
// underlying consensus engine.
type Reconfigurer interface {
    AddVoter(id, addr string, timeout time.Duration) error
    RemoveServer(id string, timeout time.Duration) error
}
