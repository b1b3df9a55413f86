package raftcons

import (
    "context"
    "encoding/json"
    "fmt"
    "os"
    "path/filepath"
    "strconv"
    "time"

    "github.com/hashicorp/raft"
    raftboltdb "github.com/hashicorp/raft-boltdb"

    c "github.com/clusterkit/go-clustermgmt/pkg/consensus"
    membersstate "github.com/clusterkit/go-clustermgmt/pkg/state/members"
)

// Node implements consensus.Consensus using HashiCorp Raft. It carries the
// replicated member-status state the management layer writes through and
// answers the leader question for cluster snapshots.
type Node struct {
    opts  Options
    r     *raft.Raft
    lch   chan c.LeaderInfo
    addr  raft.ServerAddress
    trans raft.Transport
    ms    *membersstate.State
}

func New(opts Options) (*Node, error) {
    if opts.NodeID == "" {
        return nil, fmt.Errorf("raftcons: empty NodeID")
    }
    return &Node{opts: opts, lch: make(chan c.LeaderInfo, 16), ms: membersstate.New()}, nil
}

// State exposes the replicated members state for read access by the runtime.
func (n *Node) State() *membersstate.State { return n.ms }

func (n *Node) Start(ctx context.Context) error {
    if n.r != nil {
        return nil
    }

    cfg := raft.DefaultConfig()
    cfg.LocalID = raft.ServerID(n.opts.NodeID)
    if n.opts.HeartbeatTimeout > 0 {
        cfg.HeartbeatTimeout = n.opts.HeartbeatTimeout
        if cfg.LeaderLeaseTimeout > cfg.HeartbeatTimeout {
            cfg.LeaderLeaseTimeout = cfg.HeartbeatTimeout / 2
            if cfg.LeaderLeaseTimeout == 0 {
                cfg.LeaderLeaseTimeout = cfg.HeartbeatTimeout
            }
        }
    }
    if n.opts.ElectionTimeout > 0 {
        cfg.ElectionTimeout = n.opts.ElectionTimeout
    }

    var (
        logs   raft.LogStore
        stable raft.StableStore
        snaps  raft.SnapshotStore
        addr   raft.ServerAddress
        trans  raft.Transport
    )

    // On-disk stores when DataDir is provided, in-memory otherwise.
    if n.opts.DataDir != "" {
        retained := n.opts.SnapshotsRetained
        if retained == 0 {
            retained = 2
        }
        if err := os.MkdirAll(n.opts.DataDir, 0o755); err != nil {
            return err
        }
        bstore, err := raftboltdb.NewBoltStore(filepath.Join(n.opts.DataDir, "raft.db"))
        if err != nil {
            return err
        }
        logs, stable = bstore, bstore
        snaps, err = raft.NewFileSnapshotStore(n.opts.DataDir, retained, os.Stderr)
        if err != nil {
            return err
        }
    } else {
        logs = raft.NewInmemStore()
        stable = raft.NewInmemStore()
        snaps = raft.NewInmemSnapshotStore()
    }

    if n.opts.BindAddr != "" {
        nt, err := raft.NewTCPTransport(n.opts.BindAddr, nil, 3, time.Second, os.Stderr)
        if err != nil {
            return err
        }
        trans = nt
        addr = nt.LocalAddr()
    } else {
        addr, trans = raft.NewInmemTransport(raft.ServerAddress(n.opts.NodeID))
    }

    r, err := raft.NewRaft(cfg, newStateFSM(n.ms), logs, stable, snaps, trans)
    if err != nil {
        return err
    }
    n.r = r
    n.addr = addr
    n.trans = trans

    // Forward leadership observations to LeaderCh.
    obsCh := make(chan raft.Observation, 32)
    observer := raft.NewObserver(obsCh, false, func(o *raft.Observation) bool {
        _, isLeaderObs := o.Data.(raft.LeaderObservation)
        return isLeaderObs
    })
    n.r.RegisterObserver(observer)
    go func() {
        for range obsCh {
            if id, a, ok := n.Leader(); ok {
                n.emitLeader(c.LeaderInfo{ID: id, Addr: a, Term: n.Term()})
            }
        }
    }()

    if n.opts.Bootstrap {
        boot := raft.Configuration{Servers: []raft.Server{{ID: cfg.LocalID, Address: addr}}}
        if err := n.r.BootstrapCluster(boot).Error(); err != nil {
            return err
        }
    }

    go func() {
        <-ctx.Done()
        _ = n.Stop()
    }()
    return nil
}

func (n *Node) Apply(cmd c.Command, timeout time.Duration) error {
    if n.r == nil {
        return fmt.Errorf("raftcons: not started")
    }
    if n.r.State() != raft.Leader {
        return fmt.Errorf("raftcons: not leader")
    }
    data, err := json.Marshal(cmd)
    if err != nil {
        return err
    }
    af := n.r.Apply(data, timeout)
    if err := af.Error(); err != nil {
        return err
    }
    if v := af.Response(); v != nil {
        if e, ok := v.(error); ok && e != nil {
            return e
        }
    }
    return nil
}

func (n *Node) IsLeader() bool {
    return n.r != nil && n.r.State() == raft.Leader
}

func (n *Node) Leader() (id string, addr string, ok bool) {
    if n.r == nil {
        return "", "", false
    }
    a, sid := n.r.LeaderWithID()
    if sid == "" {
        return "", "", false
    }
    return string(sid), string(a), true
}

func (n *Node) Term() uint64 {
    if n.r == nil {
        return 0
    }
    if v := n.r.Stats()["current_term"]; v != "" {
        if u, err := strconv.ParseUint(v, 10, 64); err == nil {
            return u
        }
    }
    return 0
}

func (n *Node) Stop() error {
    if n.r == nil {
        return nil
    }
    f := n.r.Shutdown()
    if err := f.Error(); err != nil {
        return err
    }
    n.r = nil
    return nil
}

// LeaderCh implements consensus.LeaderNotifier.
func (n *Node) LeaderCh() <-chan c.LeaderInfo { return n.lch }

func (n *Node) emitLeader(li c.LeaderInfo) {
    select {
    case n.lch <- li:
    default:
        // drop; leadership is last-writer-wins
    }
}

// AddVoter adds a voting server if not already present, replacing a stale
// entry under the same ID first.
func (n *Node) AddVoter(id, addr string, timeout time.Duration) error {
    if n.r == nil {
        return fmt.Errorf("raftcons: not started")
    }
    cfg := n.r.GetConfiguration()
    if err := cfg.Error(); err == nil {
        for _, srv := range cfg.Configuration().Servers {
            if string(srv.ID) == id {
                if string(srv.Address) == addr {
                    return nil
                }
                if err := n.r.RemoveServer(srv.ID, 0, timeout).Error(); err != nil {
                    return err
                }
                break
            }
        }
    }
    return n.r.AddVoter(raft.ServerID(id), raft.ServerAddress(addr), 0, timeout).Error()
}

// RemoveServer removes a server from the Raft configuration if present.
func (n *Node) RemoveServer(id string, timeout time.Duration) error {
    if n.r == nil {
        return fmt.Errorf("raftcons: not started")
    }
    return n.r.RemoveServer(raft.ServerID(id), 0, timeout).Error()
}

var (
    _ c.Consensus      = (*Node)(nil)
    _ c.LeaderNotifier = (*Node)(nil)
    _ c.Reconfigurer   = (*Node)(nil)
)
