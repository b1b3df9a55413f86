package mgmt

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "net/url"

    "github.com/gorilla/mux"

    obsmetrics "github.com/clusterkit/go-clustermgmt/pkg/observability/metrics"
    "github.com/clusterkit/go-clustermgmt/pkg/observability/tracing"
    "github.com/clusterkit/go-clustermgmt/pkg/sharding"
)

// handleGetShards issues a bounded statistics query against the sharding
// subsystem. The provider call runs in its own goroutine and is raced against
// the deadline, so a provider that ignores cancellation still classifies as a
// timeout; the abandoned query may finish in the background. No retries here;
// a timed-out query is reported, not retried.
func (h *Handler) handleGetShards(w http.ResponseWriter, r *http.Request) {
    ctx, end := tracing.StartSpan(r.Context(), "mgmt.shards.stats")
    defer end()
    name, err := url.PathUnescape(mux.Vars(r)["name"])
    if err != nil {
        writeJSON(w, http.StatusBadRequest, Message{Message: fmt.Sprintf("Malformed shard region name: %v", err)})
        return
    }
    if h.stats == nil {
        obsmetrics.ShardQueries.WithLabelValues("not_started").Inc()
        writeJSON(w, http.StatusNotFound, Message{Message: notStartedMessage(name)})
        return
    }

    ctx, cancel := context.WithTimeout(ctx, h.statsTimeout)
    defer cancel()

    type result struct {
        stats sharding.RegionStats
        err   error
    }
    ch := make(chan result, 1)
    go func() {
        s, err := h.stats.RegionStats(ctx, name)
        ch <- result{stats: s, err: sharding.Normalize(err)}
    }()

    select {
    case <-ctx.Done():
        obsmetrics.ShardQueries.WithLabelValues("timeout").Inc()
        writeJSON(w, http.StatusNotFound, Message{Message: notRespondingMessage(name)})
    case res := <-ch:
        switch {
        case res.err == nil:
            obsmetrics.ShardQueries.WithLabelValues("ok").Inc()
            writeJSON(w, http.StatusOK, shardDetails(res.stats))
        case errors.Is(res.err, sharding.ErrRegionNotStarted):
            obsmetrics.ShardQueries.WithLabelValues("not_started").Inc()
            writeJSON(w, http.StatusNotFound, Message{Message: notStartedMessage(name)})
        case errors.Is(res.err, context.DeadlineExceeded):
            obsmetrics.ShardQueries.WithLabelValues("timeout").Inc()
            writeJSON(w, http.StatusNotFound, Message{Message: notRespondingMessage(name)})
        default:
            obsmetrics.ShardQueries.WithLabelValues("error").Inc()
            writeJSON(w, http.StatusInternalServerError, Message{Message: res.err.Error()})
        }
    }
}

// The two not-found diagnostics are part of the contract: callers parse the
// message, not just the status.
func notRespondingMessage(name string) string {
    return fmt.Sprintf("Shard region %s not responding, may have been terminated", name)
}

func notStartedMessage(name string) string {
    return fmt.Sprintf("Shard region %s is not started", name)
}

func shardDetails(stats sharding.RegionStats) ShardDetails {
    out := ShardDetails{Regions: make([]ShardEntry, 0, len(stats.Shards))}
    for _, s := range stats.Shards {
        out.Regions = append(out.Regions, ShardEntry{ShardID: s.ShardID, NumEntities: s.Entities})
    }
    return out
}
