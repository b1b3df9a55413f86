package raftcons

import (
    "encoding/json"
    "io"

    "github.com/hashicorp/raft"

    c "github.com/clusterkit/go-clustermgmt/pkg/consensus"
    "github.com/clusterkit/go-clustermgmt/pkg/runtime"
    base "github.com/clusterkit/go-clustermgmt/pkg/state"
)

// stateFSM bridges Raft Apply/Snapshot to the members state.
type stateFSM struct {
    ms base.MembersState
}

func newStateFSM(ms base.MembersState) *stateFSM { return &stateFSM{ms: ms} }

// SetStatusPayload is the payload of OpSetStatus commands.
type SetStatusPayload struct {
    Addr   string               `json:"addr"`
    Status runtime.MemberStatus `json:"status"`
}

// RemovePayload is the payload of OpRemove commands.
type RemovePayload struct {
    Addr string `json:"addr"`
}

func (f *stateFSM) Apply(l *raft.Log) interface{} {
    var cmd c.Command
    if err := json.Unmarshal(l.Data, &cmd); err != nil {
        return err
    }
    switch cmd.Op {
    case c.OpSetStatus:
        var p SetStatusPayload
        if err := json.Unmarshal(cmd.Payload, &p); err != nil {
            return err
        }
        return f.ms.ApplySetStatus(p.Addr, p.Status)
    case c.OpRemove:
        var p RemovePayload
        if err := json.Unmarshal(cmd.Payload, &p); err != nil {
            return err
        }
        return f.ms.ApplyRemove(p.Addr)
    case c.OpPrepareShutdown:
        return f.ms.ApplyPrepareShutdown()
    default:
        return nil
    }
}

func (f *stateFSM) Snapshot() (raft.FSMSnapshot, error) {
    blob, err := f.ms.Snapshot()
    if err != nil {
        return nil, err
    }
    return &snapshot{blob: blob}, nil
}

func (f *stateFSM) Restore(rc io.ReadCloser) error {
    defer rc.Close()
    data, err := io.ReadAll(rc)
    if err != nil {
        return err
    }
    return f.ms.Restore(data)
}

type snapshot struct {
    blob []byte
}

func (s *snapshot) Persist(sink raft.SnapshotSink) error {
    if _, err := sink.Write(s.blob); err != nil {
        _ = sink.Cancel()
        return err
    }
    return sink.Close()
}

func (s *snapshot) Release() {}

var _ raft.FSM = (*stateFSM)(nil)
