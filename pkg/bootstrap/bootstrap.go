// Package bootstrap assembles a full cluster node from high-level
// configuration: gossip membership, raft-replicated administrative state,
// local shard regions, and the management HTTP surface.
package bootstrap

import (
    "context"
    "fmt"
    "log"
    "time"

    cns "github.com/clusterkit/go-clustermgmt/pkg/consensus"
    raftcons "github.com/clusterkit/go-clustermgmt/pkg/consensus/raft"
    "github.com/clusterkit/go-clustermgmt/pkg/discovery"
    "github.com/clusterkit/go-clustermgmt/pkg/internal/logutil"
    "github.com/clusterkit/go-clustermgmt/pkg/mgmt"
    "github.com/clusterkit/go-clustermgmt/pkg/observability/tracing"
    "github.com/clusterkit/go-clustermgmt/pkg/runtime/gossip"
    "github.com/clusterkit/go-clustermgmt/pkg/security/tlsconfig"
    local "github.com/clusterkit/go-clustermgmt/pkg/sharding/local"
)

// RegionConfig declares a shard region hosted by this node.
type RegionConfig struct {
    Name      string
    NumShards uint32
    Seed      string
}

// Config defines the inputs to assemble a node with sensible defaults.
type Config struct {
    // Identity and addresses
    NodeID     string
    SystemName string
    GossipBind string // membership bind host:port
    GossipAdv  string // optional advertise host:port
    RaftAddr   string // raft bind host:port; empty means in-memory transport
    DataCenter string
    Roles      []string

    // Management API
    MgmtAddr     string // full (read-write) management surface
    ReadOnlyAddr string // optional second listener with the read-only mount
    StatsTimeout time.Duration

    // Discovery settings
    DiscoveryKind string        // "static" (default), "dns", or "file"
    SeedsCSV      string        // used when DiscoveryKind=static
    DNSNamesCSV   string        // used when kind=dns
    DNSPort       int           // used when kind=dns (A/AAAA)
    DiscRefresh   time.Duration // cache/refresh duration for discovery
    FilePath      string        // used when kind=file
    FileEnv       string        // used when kind=file

    // Persistence and bootstrap
    DataDir   string // empty means in-memory raft stores
    Bootstrap bool   // single-node bootstrap

    // DisableConsensus assembles a gossip-only node. Leave/Down commands
    // then apply locally and shutdown preparation is unsupported.
    DisableConsensus bool

    // Shard regions to start locally.
    Regions []RegionConfig

    // TLS (optional) for the management API.
    TLSEnable     bool
    TLSCA         string
    TLSCert       string
    TLSKey        string
    TLSServerName string
    TLSSkipVerify bool
    TLSClientAuth bool

    // Trace enables stdout span export.
    Trace bool

    // Logger (optional). If nil, log.Default() is used.
    Logger *log.Logger
}

// Node is an assembled cluster node.
type Node struct {
    Gossip    *gossip.Node
    Consensus *raftcons.Node
    Registry  *local.Registry
    Handler   *mgmt.Handler
    Discovery discovery.Discovery

    server    *mgmt.Server
    roServer  *mgmt.Server
    logger    *log.Logger
    stopTrace func(context.Context) error
    cancel    context.CancelFunc
}

// Build assembles a Node from Config without starting it.
func Build(cfg Config) (*Node, error) {
    if cfg.NodeID == "" {
        return nil, fmt.Errorf("bootstrap: NodeID is required")
    }
    if cfg.SystemName == "" {
        cfg.SystemName = "clustermgmt"
    }
    if cfg.Logger == nil {
        cfg.Logger = log.Default()
    }

    var disc discovery.Discovery
    switch cfg.DiscoveryKind {
    case "dns":
        opts := discovery.DNSOptions{Names: discovery.Parse(cfg.DNSNamesCSV), Port: cfg.DNSPort}
        if cfg.DiscRefresh > 0 {
            opts.Refresh = cfg.DiscRefresh
        }
        disc = discovery.FromDNS(opts)
    case "file":
        opts := discovery.FileOptions{Path: cfg.FilePath, Env: cfg.FileEnv}
        if cfg.DiscRefresh > 0 {
            opts.Refresh = cfg.DiscRefresh
        }
        disc = discovery.FromFile(opts)
    default:
        disc = discovery.Static(discovery.Parse(cfg.SeedsCSV)...)
    }

    var consensus *raftcons.Node
    var consensusIface cns.Consensus
    var status gossip.StatusStore
    if !cfg.DisableConsensus {
        var err error
        consensus, err = raftcons.New(raftcons.Options{
            NodeID:    cfg.NodeID,
            BindAddr:  cfg.RaftAddr,
            DataDir:   cfg.DataDir,
            Bootstrap: cfg.Bootstrap,
        })
        if err != nil {
            return nil, err
        }
        consensusIface = consensus
        status = consensus.State()
    }

    g, err := gossip.New(gossip.Options{
        NodeID:     cfg.NodeID,
        SystemName: cfg.SystemName,
        Bind:       cfg.GossipBind,
        Advertise:  cfg.GossipAdv,
        DataCenter: cfg.DataCenter,
        Roles:      cfg.Roles,
        Logger:     cfg.Logger,
        Consensus:  consensusIface,
        Status:     status,
    })
    if err != nil {
        return nil, err
    }

    registry := local.NewRegistry()
    for _, rc := range cfg.Regions {
        registry.Start(rc.Name, rc.NumShards, rc.Seed)
    }

    handler, err := mgmt.NewHandler(mgmt.HandlerOptions{
        Runtime:      g,
        Stats:        registry,
        Logger:       cfg.Logger,
        StatsTimeout: cfg.StatsTimeout,
    })
    if err != nil {
        return nil, err
    }

    n := &Node{
        Gossip:    g,
        Consensus: consensus,
        Registry:  registry,
        Handler:   handler,
        Discovery: disc,
        logger:    cfg.Logger,
    }

    if cfg.MgmtAddr != "" {
        n.server = mgmt.NewServer(cfg.MgmtAddr, cfg.Logger)
    }
    if cfg.ReadOnlyAddr != "" {
        n.roServer = mgmt.NewServer(cfg.ReadOnlyAddr, cfg.Logger)
    }
    if cfg.TLSEnable {
        topts := tlsconfig.Options{
            Enable:             true,
            CAFile:             cfg.TLSCA,
            CertFile:           cfg.TLSCert,
            KeyFile:            cfg.TLSKey,
            RequireClientCert:  cfg.TLSClientAuth,
            InsecureSkipVerify: cfg.TLSSkipVerify,
            ServerName:         cfg.TLSServerName,
        }
        srvTLS, err := topts.Server()
        if err != nil {
            return nil, err
        }
        if n.server != nil {
            n.server.UseTLS(srvTLS)
        }
        if n.roServer != nil {
            n.roServer.UseTLS(srvTLS)
        }
    }

    if cfg.Trace {
        stop, err := tracing.Setup(true)
        if err != nil {
            return nil, err
        }
        n.stopTrace = stop
    }

    return n, nil
}

// Start launches consensus, gossip, joins discovered seeds, and serves the
// management surfaces. It returns once everything is listening.
func (n *Node) Start(ctx context.Context) error {
    ctx, n.cancel = context.WithCancel(ctx)

    if n.Consensus != nil {
        if err := n.Consensus.Start(ctx); err != nil {
            return err
        }
    }
    if err := n.Gossip.Start(ctx); err != nil {
        return err
    }
    if seeds := n.Discovery.Seeds(); len(seeds) > 0 {
        if err := n.Gossip.JoinSeeds(seeds); err != nil {
            logutil.Warnf(n.logger, "bootstrap: joining seeds %v: %v", seeds, err)
        }
    }
    if n.server != nil {
        if err := n.server.Start(ctx, n.Handler.Routes()); err != nil {
            return err
        }
        logutil.Infof(n.logger, "bootstrap: management API on %s", n.server.Addr())
    }
    if n.roServer != nil {
        if err := n.roServer.Start(ctx, n.Handler.ReadOnlyRoutes()); err != nil {
            return err
        }
        logutil.Infof(n.logger, "bootstrap: read-only management API on %s", n.roServer.Addr())
    }
    return nil
}

// MgmtAddr returns the effective address of the read-write management
// listener, or "" when it is not configured.
func (n *Node) MgmtAddr() string {
    if n.server == nil {
        return ""
    }
    return n.server.Addr()
}

// ReadOnlyAddr returns the effective address of the read-only listener, or
// "" when it is not configured.
func (n *Node) ReadOnlyAddr() string {
    if n.roServer == nil {
        return ""
    }
    return n.roServer.Addr()
}

// Close stops servers, gossip, consensus, and trace export.
func (n *Node) Close() error {
    if n.cancel != nil {
        n.cancel()
    }
    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    if n.server != nil {
        _ = n.server.Stop(ctx)
    }
    if n.roServer != nil {
        _ = n.roServer.Stop(ctx)
    }
    _ = n.Gossip.Close()
    if n.Consensus != nil {
        _ = n.Consensus.Stop()
    }
    if n.stopTrace != nil {
        _ = n.stopTrace(ctx)
    }
    return nil
}

// Run builds and starts a node. The caller owns the returned Node and must
// Close it.
func Run(ctx context.Context, cfg Config) (*Node, error) {
    n, err := Build(cfg)
    if err != nil {
        return nil, err
    }
    if err := n.Start(ctx); err != nil {
        n.Close()
        return nil, err
    }
    return n, nil
}
