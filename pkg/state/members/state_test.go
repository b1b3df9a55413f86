package members

import (
    "testing"

    "github.com/clusterkit/go-clustermgmt/pkg/runtime"
)

func TestState_SetRemoveSnapshotRestore(t *testing.T) {
    s := New()

    if err := s.ApplySetStatus("clstr://demo@10.0.0.1:2552", runtime.StatusLeaving); err != nil {
        t.Fatalf("set n1: %v", err)
    }
    if err := s.ApplySetStatus("clstr://demo@10.0.0.2:2552", runtime.StatusDown); err != nil {
        t.Fatalf("set n2: %v", err)
    }
    if err := s.ApplyPrepareShutdown(); err != nil {
        t.Fatalf("prepare: %v", err)
    }

    snap, err := s.Snapshot()
    if err != nil {
        t.Fatalf("snapshot: %v", err)
    }
    if len(snap) == 0 {
        t.Fatalf("empty snapshot")
    }

    if err := s.ApplyRemove("clstr://demo@10.0.0.1:2552"); err != nil {
        t.Fatalf("remove: %v", err)
    }
    if _, ok := s.StatusOf("clstr://demo@10.0.0.1:2552"); ok {
        t.Fatalf("override should be gone after remove")
    }

    // Restore from the earlier snapshot and verify it round-trips.
    s2 := New()
    if err := s2.Restore(snap); err != nil {
        t.Fatalf("restore: %v", err)
    }
    snap2, err := s2.Snapshot()
    if err != nil {
        t.Fatalf("snapshot2: %v", err)
    }
    if string(snap2) != string(snap) {
        t.Fatalf("round-trip mismatch:\n got: %s\nwant: %s", string(snap2), string(snap))
    }
    if st, ok := s2.StatusOf("clstr://demo@10.0.0.1:2552"); !ok || st != runtime.StatusLeaving {
        t.Fatalf("restored override: %v %v", st, ok)
    }
    if !s2.PreparingShutdown() {
        t.Fatalf("shutdown flag lost in round-trip")
    }
}

func TestState_ErrorsOnEmptyAddress(t *testing.T) {
    s := New()
    if err := s.ApplySetStatus("", runtime.StatusDown); err == nil {
        t.Fatalf("expected error on empty address")
    }
    if err := s.ApplyRemove(""); err == nil {
        t.Fatalf("expected error on empty address for remove")
    }
}

func TestState_OverridesReturnsCopy(t *testing.T) {
    s := New()
    _ = s.ApplySetStatus("clstr://demo@10.0.0.1:2552", runtime.StatusDown)
    m := s.Overrides()
    m["clstr://demo@10.0.0.1:2552"] = runtime.StatusUp
    if st, _ := s.StatusOf("clstr://demo@10.0.0.1:2552"); st != runtime.StatusDown {
        t.Fatalf("Overrides must return a copy")
    }
}
