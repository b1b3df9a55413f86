package members

import (
    "encoding/json"
    "fmt"
    "sync"

    "github.com/clusterkit/go-clustermgmt/pkg/runtime"
    base "github.com/clusterkit/go-clustermgmt/pkg/state"
)

// State is the in-memory FSM for administratively-set member statuses. The
// gossip layer owns liveness; this state only carries what operators asked
// for (leave, down, prepare-for-full-shutdown) so every node converges on
// the same answer.
type State struct {
    mu        sync.RWMutex
    overrides map[string]runtime.MemberStatus
    shutdown  bool
}

func New() *State { return &State{overrides: make(map[string]runtime.MemberStatus)} }

func (s *State) ApplySetStatus(addr string, status runtime.MemberStatus) error {
    if addr == "" {
        return fmt.Errorf("state: empty member address")
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    s.overrides[addr] = status
    return nil
}

func (s *State) ApplyRemove(addr string) error {
    if addr == "" {
        return fmt.Errorf("state: empty member address")
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    delete(s.overrides, addr)
    return nil
}

func (s *State) ApplyPrepareShutdown() error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.shutdown = true
    return nil
}

// Overrides returns a copy of the current status overrides keyed by the
// member's fully-qualified address string.
func (s *State) Overrides() map[string]runtime.MemberStatus {
    s.mu.RLock()
    defer s.mu.RUnlock()
    out := make(map[string]runtime.MemberStatus, len(s.overrides))
    for k, v := range s.overrides {
        out[k] = v
    }
    return out
}

// StatusOf returns the override for addr, if any.
func (s *State) StatusOf(addr string) (runtime.MemberStatus, bool) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    st, ok := s.overrides[addr]
    return st, ok
}

// PreparingShutdown reports whether a cluster-wide shutdown preparation has
// been requested.
func (s *State) PreparingShutdown() bool {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return s.shutdown
}

type snapshotV1 struct {
    Version   int                             `json:"version"`
    Overrides map[string]runtime.MemberStatus `json:"overrides"`
    Shutdown  bool                            `json:"preparingShutdown"`
}

// Snapshot encodes the state as stable JSON (map keys marshal sorted).
func (s *State) Snapshot() ([]byte, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return json.Marshal(snapshotV1{Version: 1, Overrides: s.overrides, Shutdown: s.shutdown})
}

func (s *State) Restore(buf []byte) error {
    var snap snapshotV1
    if err := json.Unmarshal(buf, &snap); err != nil {
        return err
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    s.overrides = make(map[string]runtime.MemberStatus, len(snap.Overrides))
    for k, v := range snap.Overrides {
        if k == "" {
            continue
        }
        s.overrides[k] = v
    }
    s.shutdown = snap.Shutdown
    return nil
}

var _ base.MembersState = (*State)(nil)
