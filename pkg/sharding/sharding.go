package sharding

import (
    "context"
    "errors"
    "fmt"
)

// ShardStat is the live entity count of one shard within a region.
type ShardStat struct {
    ShardID  string
    Entities int
}

// RegionStats is the result of a statistics query against one shard region.
type RegionStats struct {
    Region string
    Shards []ShardStat
}

// StatsProvider is the narrow query surface of the sharding subsystem.
// Implementations should honor ctx cancellation, but callers must not rely
// on it; a slow provider is bounded by the caller's own deadline.
type StatsProvider interface {
    RegionStats(ctx context.Context, region string) (RegionStats, error)
}

// ErrRegionNotStarted is the normalized failure for a region name the
// subsystem does not recognize.
var ErrRegionNotStarted = errors.New("sharding: region not started")

// RegionUnknownError is the failure shape older subsystem versions return
// for an unrecognized region. Normalize folds it into ErrRegionNotStarted so
// classification logic only ever sees one taxonomy.
type RegionUnknownError struct {
    Region string
}

func (e *RegionUnknownError) Error() string {
    return fmt.Sprintf("sharding: unknown region %q", e.Region)
}

// Normalize unifies the legacy and current "region not started" failure
// shapes at the adapter boundary. Other errors pass through unchanged.
func Normalize(err error) error {
    if err == nil {
        return nil
    }
    var unknown *RegionUnknownError
    if errors.As(err, &unknown) {
        return ErrRegionNotStarted
    }
    return err
}
