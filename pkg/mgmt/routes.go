package mgmt

import (
    "net/http"
    "strconv"

    "github.com/gorilla/mux"

    obsmetrics "github.com/clusterkit/go-clustermgmt/pkg/observability/metrics"
)

// Routes assembles the full read/write route set under /cluster.
func (h *Handler) Routes() *mux.Router { return h.routes(false) }

// ReadOnlyRoutes assembles only the GET subset of the same path shapes.
// Non-GET methods on matched paths fail with 405 before any snapshot is
// read, so no runtime mutation is reachable through this mount.
func (h *Handler) ReadOnlyRoutes() *mux.Router { return h.routes(true) }

func (h *Handler) routes(readOnly bool) *mux.Router {
    r := mux.NewRouter()
    // Match on the escaped path so member addresses may carry
    // percent-encoded slashes; handlers decode segments themselves.
    r.UseEncodedPath()
    r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
    r.NotFoundHandler = http.HandlerFunc(unknownResource)
    r.Use(countRequests)

    if !readOnly {
        r.HandleFunc("/cluster", h.handlePutCluster).Methods(http.MethodPut)
        r.HandleFunc("/cluster/members", h.handlePostMembers).Methods(http.MethodPost)
        r.HandleFunc("/cluster/members/{address:.*}", h.handleDeleteMember).Methods(http.MethodDelete)
        r.HandleFunc("/cluster/members/{address:.*}", h.handlePutMember).Methods(http.MethodPut)
    }
    r.HandleFunc("/cluster/members", h.handleGetMembers).Methods(http.MethodGet)
    r.HandleFunc("/cluster/shards/{name}", h.handleGetShards).Methods(http.MethodGet)
    r.HandleFunc("/cluster/members/{address:.*}", h.handleGetMember).Methods(http.MethodGet)
    return r
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
    obsmetrics.HTTPRequests.WithLabelValues(r.Method, "405").Inc()
    writeJSON(w, http.StatusMethodNotAllowed, Message{Message: "Method not allowed"})
}

func unknownResource(w http.ResponseWriter, r *http.Request) {
    obsmetrics.HTTPRequests.WithLabelValues(r.Method, "404").Inc()
    writeJSON(w, http.StatusNotFound, Message{Message: "Unknown resource"})
}

// countRequests records one counter sample per handled request.
func countRequests(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
        next.ServeHTTP(sw, r)
        obsmetrics.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(sw.code)).Inc()
    })
}

type statusWriter struct {
    http.ResponseWriter
    code int
}

func (w *statusWriter) WriteHeader(code int) {
    w.code = code
    w.ResponseWriter.WriteHeader(code)
}
