// Package local hosts shard regions in-process. Entities hash onto a fixed
// number of shards with rendezvous-stable blake2b hashing so entity
// placement survives restarts with the same region configuration.
package local

import (
    "context"
    "encoding/binary"
    "fmt"
    "sort"
    "sync"

    "golang.org/x/crypto/blake2b"

    "github.com/clusterkit/go-clustermgmt/pkg/sharding"
)

// ShardForKey derives a stable shard (0..numShards-1) from an entity key.
func ShardForKey(key string, numShards uint32, seed string) uint32 {
    if numShards == 0 {
        return 0
    }
    h, _ := blake2b.New(8, nil)
    if seed != "" {
        h.Write([]byte(seed))
        h.Write([]byte{0})
    }
    h.Write([]byte(key))
    sum := h.Sum(nil)
    return uint32(binary.BigEndian.Uint64(sum) % uint64(numShards))
}

// Region is one in-process shard region. Touch records live entities; the
// registry reports their per-shard counts.
type Region struct {
    name      string
    numShards uint32
    seed      string

    mu     sync.RWMutex
    shards map[uint32]map[string]struct{}
}

// Touch marks an entity as live within the region and returns the shard it
// hashed to.
func (r *Region) Touch(entityID string) uint32 {
    shard := ShardForKey(entityID, r.numShards, r.seed)
    r.mu.Lock()
    if r.shards[shard] == nil {
        r.shards[shard] = make(map[string]struct{})
    }
    r.shards[shard][entityID] = struct{}{}
    r.mu.Unlock()
    return shard
}

// Passivate forgets an entity. Shards with no remaining entities are dropped
// from the stats report.
func (r *Region) Passivate(entityID string) {
    shard := ShardForKey(entityID, r.numShards, r.seed)
    r.mu.Lock()
    if set := r.shards[shard]; set != nil {
        delete(set, entityID)
        if len(set) == 0 {
            delete(r.shards, shard)
        }
    }
    r.mu.Unlock()
}

// Entities returns the total live entity count across all shards.
func (r *Region) Entities() int {
    r.mu.RLock()
    defer r.mu.RUnlock()
    total := 0
    for _, set := range r.shards {
        total += len(set)
    }
    return total
}

func (r *Region) stats() sharding.RegionStats {
    r.mu.RLock()
    defer r.mu.RUnlock()
    out := sharding.RegionStats{Region: r.name}
    for shard, set := range r.shards {
        out.Shards = append(out.Shards, sharding.ShardStat{
            ShardID:  fmt.Sprintf("%d", shard),
            Entities: len(set),
        })
    }
    sort.Slice(out.Shards, func(i, j int) bool { return out.Shards[i].ShardID < out.Shards[j].ShardID })
    return out
}

// Registry tracks the shard regions started on this node and answers
// statistics queries for them.
type Registry struct {
    mu      sync.RWMutex
    regions map[string]*Region
}

func NewRegistry() *Registry {
    return &Registry{regions: make(map[string]*Region)}
}

// Start registers a region and returns it. Starting an already started
// region returns the existing one; numShards and seed are fixed at first
// start.
func (g *Registry) Start(name string, numShards uint32, seed string) *Region {
    g.mu.Lock()
    defer g.mu.Unlock()
    if r, ok := g.regions[name]; ok {
        return r
    }
    r := &Region{name: name, numShards: numShards, seed: seed, shards: make(map[uint32]map[string]struct{})}
    g.regions[name] = r
    return r
}

// Stop unregisters a region. Subsequent stats queries for it fail as not
// started.
func (g *Registry) Stop(name string) {
    g.mu.Lock()
    delete(g.regions, name)
    g.mu.Unlock()
}

// RegionStats implements sharding.StatsProvider.
func (g *Registry) RegionStats(ctx context.Context, region string) (sharding.RegionStats, error) {
    if err := ctx.Err(); err != nil {
        return sharding.RegionStats{}, err
    }
    g.mu.RLock()
    r, ok := g.regions[region]
    g.mu.RUnlock()
    if !ok {
        return sharding.RegionStats{}, &sharding.RegionUnknownError{Region: region}
    }
    return r.stats(), nil
}

var _ sharding.StatsProvider = (*Registry)(nil)
