package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    ClusterMembers = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "clustermgmt",
        Name:      "members_total",
        Help:      "Current number of known cluster members",
    })

    IsLeader = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "clustermgmt",
        Name:      "is_leader",
        Help:      "1 if this node is the cluster leader, else 0",
    })

    UnreachableMembers = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "clustermgmt",
        Name:      "unreachable_members",
        Help:      "Number of members currently observed unreachable",
    })

    HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "clustermgmt",
        Subsystem: "http",
        Name:      "requests_total",
        Help:      "Total management API requests by method and status code",
    }, []string{"method", "code"})

    Commands = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "clustermgmt",
        Name:      "commands_total",
        Help:      "Total administrative commands dispatched to the runtime",
    }, []string{"op", "result"})

    ShardQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "clustermgmt",
        Name:      "shard_queries_total",
        Help:      "Total shard statistics queries by outcome",
    }, []string{"result"})
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(ClusterMembers)
        prometheus.MustRegister(IsLeader)
        prometheus.MustRegister(UnreachableMembers)
        prometheus.MustRegister(HTTPRequests)
        prometheus.MustRegister(Commands)
        prometheus.MustRegister(ShardQueries)
    })
}
