package mgmt

import (
    "context"
    "crypto/tls"
    "log"
    "net"
    "net/http"
    "sync"
    "time"

    "github.com/gorilla/mux"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/clusterkit/go-clustermgmt/pkg/internal/logutil"
)

// Server hosts one management route set (full or read-only) on its own
// listener, plus /healthz and /metrics.
type Server struct {
    bind   string
    logger *log.Logger
    tlsCfg *tls.Config

    mu  sync.Mutex // guards srv and ln; Stop races the ctx watcher in Start
    srv *http.Server
    ln  net.Listener
}

// NewServer binds to the given TCP address (e.g., ":19333").
func NewServer(bind string, logger *log.Logger) *Server {
    if logger == nil {
        logger = log.Default()
    }
    return &Server{bind: bind, logger: logger}
}

// UseTLS enables TLS for the server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// Start launches the server with the given route set. The server shuts down
// when ctx is canceled.
func (s *Server) Start(ctx context.Context, routes *mux.Router) error {
    routes.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
    routes.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    }).Methods(http.MethodGet)

    srv := &http.Server{Addr: s.bind, Handler: routes}

    ln, err := net.Listen("tcp", s.bind)
    if err != nil {
        return err
    }
    if s.tlsCfg != nil {
        ln = tls.NewListener(ln, s.tlsCfg)
    }

    s.mu.Lock()
    s.srv = srv
    s.ln = ln
    s.mu.Unlock()

    go func() {
        <-ctx.Done()
        _ = s.Stop(context.Background())
    }()
    go func() {
        if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
            logutil.Errorf(s.logger, "mgmt: server error: %v", err)
        }
    }()
    logutil.Infof(s.logger, "management API listening at %s", s.Addr())
    return nil
}

// Addr returns the effective listen address once started, else the
// configured bind address.
func (s *Server) Addr() string {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.ln != nil {
        return s.ln.Addr().String()
    }
    return s.bind
}

// Stop attempts a graceful shutdown with a short timeout. Safe to call
// concurrently and repeatedly; only the first caller shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
    s.mu.Lock()
    srv := s.srv
    s.srv = nil
    s.mu.Unlock()
    if srv == nil {
        return nil
    }
    c, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    return srv.Shutdown(c)
}
