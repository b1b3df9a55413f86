package mgmt

import (
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "net/http"
    "strings"
    "time"

    "github.com/gorilla/mux"

    "github.com/clusterkit/go-clustermgmt/pkg/internal/logutil"
    obsmetrics "github.com/clusterkit/go-clustermgmt/pkg/observability/metrics"
    "github.com/clusterkit/go-clustermgmt/pkg/observability/tracing"
    "github.com/clusterkit/go-clustermgmt/pkg/runtime"
    "github.com/clusterkit/go-clustermgmt/pkg/sharding"
)

// DefaultStatsTimeout bounds shard statistics queries.
const DefaultStatsTimeout = 5 * time.Second

// HandlerOptions carries the injected collaborators of the management layer.
type HandlerOptions struct {
    // Runtime is the cluster engine being administered (required).
    Runtime runtime.Runtime
    // Stats answers shard statistics queries. Optional; when nil, shard
    // endpoints report the region as not started.
    Stats sharding.StatsProvider
    // Logger defaults to log.Default().
    Logger *log.Logger
    // StatsTimeout defaults to DefaultStatsTimeout.
    StatsTimeout time.Duration
}

// Handler validates and dispatches administrative operations against the
// runtime. It holds no mutable state of its own; every request reads a fresh
// snapshot or submits a fire-and-forget command.
type Handler struct {
    rt           runtime.Runtime
    stats        sharding.StatsProvider
    logger       *log.Logger
    statsTimeout time.Duration
}

// NewHandler builds a Handler from options, applying defaults.
func NewHandler(opts HandlerOptions) (*Handler, error) {
    if opts.Runtime == nil {
        return nil, errors.New("mgmt: nil Runtime")
    }
    if opts.Logger == nil {
        opts.Logger = log.Default()
    }
    if opts.StatsTimeout <= 0 {
        opts.StatsTimeout = DefaultStatsTimeout
    }
    obsmetrics.Register()
    return &Handler{
        rt:           opts.Runtime,
        stats:        opts.Stats,
        logger:       opts.Logger,
        statsTimeout: opts.StatsTimeout,
    }, nil
}

func (h *Handler) handleGetMembers(w http.ResponseWriter, r *http.Request) {
    _, end := tracing.StartSpan(r.Context(), "mgmt.members.list")
    defer end()
    snap := h.rt.Snapshot()
    obsmetrics.ClusterMembers.Set(float64(len(snap.Members)))
    obsmetrics.UnreachableMembers.Set(float64(len(snap.Unreachable)))
    if snap.Leader != nil && *snap.Leader == snap.Self {
        obsmetrics.IsLeader.Set(1)
    } else {
        obsmetrics.IsLeader.Set(0)
    }
    writeJSON(w, http.StatusOK, projectMembers(snap))
}

func (h *Handler) handlePostMembers(w http.ResponseWriter, r *http.Request) {
    _, end := tracing.StartSpan(r.Context(), "mgmt.members.join")
    defer end()
    raw := r.FormValue("address")
    addr, err := runtime.ParseAddress(raw)
    if err != nil {
        obsmetrics.Commands.WithLabelValues("join", "rejected").Inc()
        writeJSON(w, http.StatusBadRequest, Message{Message: err.Error()})
        return
    }
    if addr.System == "" {
        addr.System = h.rt.Snapshot().Self.System
    }
    if err := h.rt.Join(addr); err != nil {
        obsmetrics.Commands.WithLabelValues("join", "failed").Inc()
        writeJSON(w, http.StatusInternalServerError, Message{Message: err.Error()})
        return
    }
    obsmetrics.Commands.WithLabelValues("join", "accepted").Inc()
    logutil.Infof(h.logger, "join requested: %s", addr)
    writeJSON(w, http.StatusOK, Message{Message: fmt.Sprintf("Joining %s", addr)})
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
    _, end := tracing.StartSpan(r.Context(), "mgmt.members.get")
    defer end()
    m, ok := h.resolveMember(w, r)
    if !ok {
        return
    }
    writeJSON(w, http.StatusOK, memberView(m))
}

func (h *Handler) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
    _, end := tracing.StartSpan(r.Context(), "mgmt.members.leave")
    defer end()
    m, ok := h.resolveMember(w, r)
    if !ok {
        return
    }
    if err := h.rt.Leave(m.Address); err != nil {
        obsmetrics.Commands.WithLabelValues("leave", "failed").Inc()
        writeJSON(w, http.StatusInternalServerError, Message{Message: err.Error()})
        return
    }
    obsmetrics.Commands.WithLabelValues("leave", "accepted").Inc()
    logutil.Infof(h.logger, "leave requested: %s", m.Address)
    writeJSON(w, http.StatusOK, Message{Message: fmt.Sprintf("Leaving %s", m.Address)})
}

func (h *Handler) handlePutMember(w http.ResponseWriter, r *http.Request) {
    _, end := tracing.StartSpan(r.Context(), "mgmt.members.operation")
    defer end()
    m, ok := h.resolveMember(w, r)
    if !ok {
        return
    }
    // Exact enumerated match; anything else is a typed rejection with zero
    // runtime calls.
    switch r.FormValue("operation") {
    case "Down":
        if err := h.rt.Down(m.Address); err != nil {
            obsmetrics.Commands.WithLabelValues("down", "failed").Inc()
            writeJSON(w, http.StatusInternalServerError, Message{Message: err.Error()})
            return
        }
        obsmetrics.Commands.WithLabelValues("down", "accepted").Inc()
        logutil.Infof(h.logger, "down requested: %s", m.Address)
        writeJSON(w, http.StatusOK, Message{Message: fmt.Sprintf("Downing %s", m.Address)})
    case "Leave":
        if err := h.rt.Leave(m.Address); err != nil {
            obsmetrics.Commands.WithLabelValues("leave", "failed").Inc()
            writeJSON(w, http.StatusInternalServerError, Message{Message: err.Error()})
            return
        }
        obsmetrics.Commands.WithLabelValues("leave", "accepted").Inc()
        logutil.Infof(h.logger, "leave requested: %s", m.Address)
        writeJSON(w, http.StatusOK, Message{Message: fmt.Sprintf("Leaving %s", m.Address)})
    default:
        writeJSON(w, http.StatusBadRequest, Message{Message: "Operation not supported"})
    }
}

func (h *Handler) handlePutCluster(w http.ResponseWriter, r *http.Request) {
    _, end := tracing.StartSpan(r.Context(), "mgmt.cluster.operation")
    defer end()
    // This one operation is matched case-insensitively.
    if !strings.EqualFold(r.FormValue("operation"), "prepare-for-full-shutdown") {
        writeJSON(w, http.StatusBadRequest, Message{Message: "Operation not supported"})
        return
    }
    preparer, ok := h.rt.(runtime.FullShutdownPreparer)
    if !ok {
        obsmetrics.Commands.WithLabelValues("prepare-full-shutdown", "unsupported").Inc()
        writeJSON(w, http.StatusBadRequest,
            Message{Message: "prepare for full shutdown is not supported by this cluster runtime"})
        return
    }
    if err := preparer.PrepareFullShutdown(); err != nil {
        if errors.Is(err, runtime.ErrUnsupported) {
            obsmetrics.Commands.WithLabelValues("prepare-full-shutdown", "unsupported").Inc()
            writeJSON(w, http.StatusBadRequest,
                Message{Message: "prepare for full shutdown is not supported by this cluster runtime"})
            return
        }
        obsmetrics.Commands.WithLabelValues("prepare-full-shutdown", "failed").Inc()
        writeJSON(w, http.StatusInternalServerError, Message{Message: err.Error()})
        return
    }
    obsmetrics.Commands.WithLabelValues("prepare-full-shutdown", "accepted").Inc()
    logutil.Infof(h.logger, "cluster-wide prepare-for-full-shutdown requested")
    writeJSON(w, http.StatusOK, Message{Message: "Preparing for full shutdown"})
}

// resolveMember decodes the {address} path tail and resolves it against a
// fresh snapshot. On failure it writes the response itself and returns
// ok=false.
func (h *Handler) resolveMember(w http.ResponseWriter, r *http.Request) (runtime.Member, bool) {
    addr, err := decodeAddressPath(mux.Vars(r)["address"])
    if err != nil {
        writeJSON(w, http.StatusBadRequest, Message{Message: fmt.Sprintf("Malformed member address: %v", err)})
        return runtime.Member{}, false
    }
    m, found := findMember(h.rt.Snapshot(), addr)
    if !found {
        // Echo the literal queried string for diagnostics.
        writeJSON(w, http.StatusNotFound, Message{Message: fmt.Sprintf("Member [%s] not found", addr)})
        return runtime.Member{}, false
    }
    return m, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}
