package raftcons

import "time"

// Options configure the Raft-based Consensus implementation.
type Options struct {
    NodeID string

    // Bootstrap forms a single-node cluster on Start when true.
    Bootstrap bool

    // Timeouts (optional). Zero means raft defaults.
    HeartbeatTimeout time.Duration
    ElectionTimeout  time.Duration

    // BindAddr selects a TCP transport bound to this address when non-empty
    // (e.g., "127.0.0.1:0"); otherwise an in-memory transport is used.
    BindAddr string

    // DataDir selects on-disk stores when non-empty (bolt store for
    // log/stable, file snapshot store). When empty, stores are in-memory.
    DataDir string

    // SnapshotsRetained controls how many snapshots to keep on disk.
    SnapshotsRetained int
}
