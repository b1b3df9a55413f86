package gossip

import (
    "context"
    "errors"
    "net"
    "sync"
    "testing"
    "time"

    cns "github.com/clusterkit/go-clustermgmt/pkg/consensus"
    "github.com/clusterkit/go-clustermgmt/pkg/runtime"
)

func startNode(t *testing.T, ctx context.Context, id, dc string, roles []string) *Node {
    t.Helper()
    n, err := New(Options{
        NodeID:        id,
        SystemName:    "demo",
        Bind:          "127.0.0.1:0",
        DataCenter:    dc,
        Roles:         roles,
        ProbeInterval: 100 * time.Millisecond,
        SuspicionMult: 2,
    })
    if err != nil {
        t.Fatalf("new %s: %v", id, err)
    }
    if err := n.Start(ctx); err != nil {
        t.Fatalf("start %s: %v", id, err)
    }
    t.Cleanup(func() { _ = n.Close() })
    return n
}

func awaitMembers(t *testing.T, n *Node, want int, timeout time.Duration) {
    t.Helper()
    deadline := time.Now().Add(timeout)
    for {
        got := len(n.Snapshot().Members)
        if got == want {
            return
        }
        if time.Now().After(deadline) {
            t.Fatalf("members timeout: got=%d want=%d", got, want)
        }
        time.Sleep(100 * time.Millisecond)
    }
}

func TestGossip_StartLocal(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    n := startNode(t, ctx, "t1", "east", []string{"backend"})

    self := n.Self()
    if self.System != "demo" {
        t.Fatalf("self system = %q, want demo", self.System)
    }
    if _, _, err := net.SplitHostPort(self.HostPort()); err != nil {
        t.Fatalf("self host:port %q: %v", self.HostPort(), err)
    }

    snap := n.Snapshot()
    if len(snap.Members) != 1 {
        t.Fatalf("members = %d, want 1", len(snap.Members))
    }
    m := snap.Members[0]
    if m.Address != self {
        t.Fatalf("member addr = %v, want %v", m.Address, self)
    }
    if m.Status != runtime.StatusUp {
        t.Fatalf("status = %v, want up", m.Status)
    }
    if m.DataCenter != "east" {
        t.Fatalf("dc = %q, want east", m.DataCenter)
    }
    if len(m.Roles) != 1 || m.Roles[0] != "backend" {
        t.Fatalf("roles = %v", m.Roles)
    }
    if m.StartedAt == 0 {
        t.Fatalf("startedAt not propagated")
    }
    if snap.Leader != nil {
        t.Fatalf("leader without consensus should be nil")
    }
}

func TestGossip_TwoNodeJoin(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
    defer cancel()

    n1 := startNode(t, ctx, "n1", "east", nil)
    n2 := startNode(t, ctx, "n2", "east", nil)

    if err := n2.Join(n1.Self()); err != nil {
        t.Fatalf("join: %v", err)
    }

    awaitMembers(t, n1, 2, 5*time.Second)
    awaitMembers(t, n2, 2, 5*time.Second)

    // Oldest-first iteration: n1 started before n2.
    snap := n2.Snapshot()
    if snap.Members[0].Address != n1.Self() {
        t.Fatalf("first member = %v, want %v", snap.Members[0].Address, n1.Self())
    }
}

func TestGossip_LocalOverrideWithoutConsensus(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    n := startNode(t, ctx, "t1", "east", nil)

    remote := runtime.Address{System: "demo", Host: "10.0.0.9", Port: 2552}
    if err := n.Down(remote); err != nil {
        t.Fatalf("down: %v", err)
    }

    // The override is recorded even though the member is unknown; a later
    // join of that address surfaces it as down.
    ov := n.overrides()
    if got := ov[remote.String()]; got != runtime.StatusDown {
        t.Fatalf("override = %v, want down", got)
    }
}

// Leave fires the event delegate synchronously, so Close must release the
// node mutex before calling into memberlist or graceful shutdown never
// returns.
func TestGossip_CloseUnblocksPromptly(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()

    n := startNode(t, ctx, "t1", "east", nil)

    done := make(chan error, 1)
    go func() { done <- n.Close() }()
    select {
    case err := <-done:
        if err != nil {
            t.Fatalf("close: %v", err)
        }
    case <-time.After(5 * time.Second):
        t.Fatalf("close did not return")
    }
    if err := n.Close(); err != nil {
        t.Fatalf("second close: %v", err)
    }
}

// fakeConsensus counts replicated commands and reports fixed leadership.
type fakeConsensus struct {
    leader bool

    mu      sync.Mutex
    applied []cns.Command
}

func (f *fakeConsensus) Start(context.Context) error { return nil }

func (f *fakeConsensus) Apply(cmd cns.Command, _ time.Duration) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.applied = append(f.applied, cmd)
    return nil
}

func (f *fakeConsensus) IsLeader() bool { return f.leader }

func (f *fakeConsensus) Leader() (string, string, bool) {
    return "n-leader", "127.0.0.1:9999", true
}

func (f *fakeConsensus) Term() uint64 { return 1 }
func (f *fakeConsensus) Stop() error  { return nil }

func (f *fakeConsensus) appliedCount() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return len(f.applied)
}

func startNodeWith(t *testing.T, ctx context.Context, id string, c cns.Consensus) *Node {
    t.Helper()
    n, err := New(Options{
        NodeID:        id,
        SystemName:    "demo",
        Bind:          "127.0.0.1:0",
        DataCenter:    "east",
        ProbeInterval: 100 * time.Millisecond,
        SuspicionMult: 2,
        Consensus:     c,
    })
    if err != nil {
        t.Fatalf("new %s: %v", id, err)
    }
    if err := n.Start(ctx); err != nil {
        t.Fatalf("start %s: %v", id, err)
    }
    t.Cleanup(func() { _ = n.Close() })
    return n
}

// A follower must refuse Leave/Down instead of acking a command the rest of
// the cluster would never observe.
func TestGossip_FollowerRefusesStatusCommands(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    fc := &fakeConsensus{leader: false}
    n := startNodeWith(t, ctx, "t1", fc)

    target := runtime.Address{System: "demo", Host: "10.0.0.9", Port: 2552}
    if err := n.Down(target); err == nil {
        t.Fatalf("down on a follower must fail")
    }
    if err := n.Leave(target); err == nil {
        t.Fatalf("leave on a follower must fail")
    }
    if got := fc.appliedCount(); got != 0 {
        t.Fatalf("applied = %d, want 0", got)
    }
    if _, ok := n.overrides()[target.String()]; ok {
        t.Fatalf("refused command must not leave a local override")
    }
}

func TestGossip_LeaderReplicatesStatusCommands(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    fc := &fakeConsensus{leader: true}
    n := startNodeWith(t, ctx, "t1", fc)

    target := runtime.Address{System: "demo", Host: "10.0.0.9", Port: 2552}
    if err := n.Down(target); err != nil {
        t.Fatalf("down: %v", err)
    }
    if got := fc.appliedCount(); got != 1 {
        t.Fatalf("applied = %d, want 1", got)
    }
    if fc.applied[0].Op != cns.OpSetStatus {
        t.Fatalf("op = %q, want %q", fc.applied[0].Op, cns.OpSetStatus)
    }
    if _, ok := n.overrides()[target.String()]; ok {
        t.Fatalf("replicated command must not also record a local override")
    }
}

func TestGossip_PrepareFullShutdownUnsupported(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    n := startNode(t, ctx, "t1", "east", nil)
    if err := n.PrepareFullShutdown(); !errors.Is(err, runtime.ErrUnsupported) {
        t.Fatalf("err = %v, want ErrUnsupported", err)
    }
}
