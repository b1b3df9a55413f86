// Package cli provides the cobra commands for running a cluster node and
// administering it over the management HTTP API.
package cli

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/spf13/cobra"

    "github.com/clusterkit/go-clustermgmt/pkg/bootstrap"
    "github.com/clusterkit/go-clustermgmt/pkg/mgmt"
    tlsx "github.com/clusterkit/go-clustermgmt/pkg/security/tlsconfig"
)

// AddAll attaches all node and administration subcommands to root.
func AddAll(root *cobra.Command) {
    root.AddCommand(NewRunCmd())
    root.AddCommand(NewMembersCmd())
    root.AddCommand(NewMemberCmd())
    root.AddCommand(NewJoinCmd())
    root.AddCommand(NewLeaveCmd())
    root.AddCommand(NewDownCmd())
    root.AddCommand(NewShardsCmd())
    root.AddCommand(NewPrepareShutdownCmd())
}

// NewRunCmd returns the "run" command used to start a cluster node.
func NewRunCmd() *cobra.Command {
    var (
        id, system, gossipBind, gossipAdv, raftAddr, dc          string
        rolesCSV, joinCSV, mgmtAddr, roAddr, discoveryKind       string
        dnsNames, filePath, fileEnv, dataDir, regionsCSV         string
        dnsPort                                                  int
        discRefresh                                              time.Duration
        tlsEnable, tlsSkip, tlsClientAuth, traceEnable           bool
        doBootstrap, noConsensus                                 bool
        tlsCA, tlsCert, tlsKey, tlsServerName                    string
    )
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Run a cluster node",
        RunE: func(cmd *cobra.Command, args []string) error {
            if id == "" {
                return fmt.Errorf("missing --id")
            }
            ctx, cancel := signalContext()
            defer cancel()

            cfg := bootstrap.Config{
                NodeID:           id,
                SystemName:       system,
                GossipBind:       gossipBind,
                GossipAdv:        gossipAdv,
                RaftAddr:         raftAddr,
                DataCenter:       dc,
                Roles:            splitCSV(rolesCSV),
                MgmtAddr:         mgmtAddr,
                ReadOnlyAddr:     roAddr,
                DiscoveryKind:    discoveryKind,
                SeedsCSV:         joinCSV,
                DNSNamesCSV:      dnsNames,
                DNSPort:          dnsPort,
                DiscRefresh:      discRefresh,
                FilePath:         filePath,
                FileEnv:          fileEnv,
                DataDir:          dataDir,
                Bootstrap:        doBootstrap,
                DisableConsensus: noConsensus,
                Regions:          parseRegions(regionsCSV),
                TLSEnable:        tlsEnable,
                TLSCA:            tlsCA,
                TLSCert:          tlsCert,
                TLSKey:           tlsKey,
                TLSServerName:    tlsServerName,
                TLSSkipVerify:    tlsSkip,
                TLSClientAuth:    tlsClientAuth,
                Trace:            traceEnable,
                Logger:           log.Default(),
            }
            n, err := bootstrap.Run(ctx, cfg)
            if err != nil {
                return err
            }
            defer n.Close()

            fmt.Printf("node %s running, management API on %s. Press Ctrl+C to exit.\n", id, n.MgmtAddr())
            <-ctx.Done()
            return nil
        },
    }
    cmd.Flags().StringVar(&id, "id", "", "node id (required)")
    cmd.Flags().StringVar(&system, "system", "clustermgmt", "cluster system name used in member addresses")
    cmd.Flags().StringVar(&gossipBind, "gossip-bind", ":7946", "gossip bind addr (host:port)")
    cmd.Flags().StringVar(&gossipAdv, "gossip-adv", "", "gossip advertise addr (host:port, optional)")
    cmd.Flags().StringVar(&raftAddr, "raft-addr", "", "raft bind addr (tcp); empty uses in-memory transport")
    cmd.Flags().StringVar(&dc, "dc", "default", "data center name")
    cmd.Flags().StringVar(&rolesCSV, "roles", "", "comma-separated node roles")
    cmd.Flags().StringVar(&joinCSV, "join", "", "comma-separated seed nodes (host:port), used by discovery=static")
    cmd.Flags().StringVar(&mgmtAddr, "mgmt-addr", ":17946", "management HTTP address")
    cmd.Flags().StringVar(&roAddr, "mgmt-ro-addr", "", "optional read-only management HTTP address")
    cmd.Flags().StringVar(&discoveryKind, "discovery", "static", "discovery backend: static|dns|file")
    cmd.Flags().StringVar(&dnsNames, "dns-names", "", "comma-separated DNS names or SRV records")
    cmd.Flags().IntVar(&dnsPort, "dns-port", 2552, "port used for A/AAAA lookups")
    cmd.Flags().DurationVar(&discRefresh, "disc-refresh", 5*time.Second, "discovery refresh/cache duration")
    cmd.Flags().StringVar(&filePath, "file-path", "", "path to a file with seeds (one per line or CSV)")
    cmd.Flags().StringVar(&fileEnv, "file-env", "", "ENV var with CSV seeds; overrides file when set")
    cmd.Flags().StringVar(&dataDir, "data", "", "raft data dir (snapshots); empty keeps state in memory")
    cmd.Flags().BoolVar(&doBootstrap, "bootstrap", false, "bootstrap single-node raft (development)")
    cmd.Flags().BoolVar(&noConsensus, "no-consensus", false, "run gossip-only, without replicated administrative state")
    cmd.Flags().StringVar(&regionsCSV, "regions", "", "shard regions to host, name[:shards] comma-separated")
    cmd.Flags().BoolVar(&tlsEnable, "tls-enable", false, "enable TLS for the management API")
    cmd.Flags().StringVar(&tlsCA, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "path to node certificate (PEM)")
    cmd.Flags().StringVar(&tlsKey, "tls-key", "", "path to node private key (PEM)")
    cmd.Flags().BoolVar(&tlsClientAuth, "tls-client-auth", false, "require and verify client certificates (mTLS)")
    cmd.Flags().BoolVar(&tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    cmd.Flags().StringVar(&tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
    cmd.Flags().BoolVar(&traceEnable, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
    return cmd
}

// clientFlags are the flags shared by every command that talks to a node's
// management API.
type clientFlags struct {
    addr    string
    timeout time.Duration

    tlsEnable, tlsSkip            bool
    tlsCA, tlsCert, tlsKey, tlsSN string
}

func (f *clientFlags) register(cmd *cobra.Command) {
    cmd.Flags().StringVar(&f.addr, "addr", "127.0.0.1:17946", "management HTTP address of a node (host:port)")
    cmd.Flags().DurationVar(&f.timeout, "timeout", 3*time.Second, "request timeout")
    cmd.Flags().BoolVar(&f.tlsEnable, "tls-enable", false, "enable TLS for the management API")
    cmd.Flags().StringVar(&f.tlsCA, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(&f.tlsCert, "tls-cert", "", "path to client certificate (PEM)")
    cmd.Flags().StringVar(&f.tlsKey, "tls-key", "", "path to client private key (PEM)")
    cmd.Flags().BoolVar(&f.tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    cmd.Flags().StringVar(&f.tlsSN, "tls-server-name", "", "expected server name (for TLS validation)")
}

func (f *clientFlags) client() (*mgmt.Client, error) {
    c := mgmt.NewClient(f.timeout)
    if f.tlsEnable {
        topts := tlsx.Options{
            Enable:             true,
            CAFile:             f.tlsCA,
            CertFile:           f.tlsCert,
            KeyFile:            f.tlsKey,
            InsecureSkipVerify: f.tlsSkip,
            ServerName:         f.tlsSN,
        }
        cfg, err := topts.Client()
        if err != nil {
            return nil, fmt.Errorf("tls client config: %w", err)
        }
        c.UseTLS(cfg)
    }
    return c, nil
}

func (f *clientFlags) context() (context.Context, context.CancelFunc) {
    return context.WithTimeout(context.Background(), f.timeout)
}

// NewMembersCmd returns the "members" command printing the collection view.
func NewMembersCmd() *cobra.Command {
    var f clientFlags
    cmd := &cobra.Command{
        Use:   "members",
        Short: "Fetch the cluster membership view as JSON",
        RunE: func(cmd *cobra.Command, args []string) error {
            client, err := f.client()
            if err != nil {
                return err
            }
            ctx, cancel := f.context()
            defer cancel()
            cm, err := client.Members(ctx, f.addr)
            if err != nil {
                return fmt.Errorf("members error: %w", err)
            }
            return printJSON(cm)
        },
    }
    f.register(cmd)
    return cmd
}

// NewMemberCmd returns the "member" command printing one member's view.
func NewMemberCmd() *cobra.Command {
    var f clientFlags
    cmd := &cobra.Command{
        Use:   "member <address>",
        Short: "Fetch a single member by full address or host:port",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            client, err := f.client()
            if err != nil {
                return err
            }
            ctx, cancel := f.context()
            defer cancel()
            mv, err := client.Member(ctx, f.addr, args[0])
            if err != nil {
                return fmt.Errorf("member error: %w", err)
            }
            return printJSON(mv)
        },
    }
    f.register(cmd)
    return cmd
}

// NewJoinCmd returns the "join" command.
func NewJoinCmd() *cobra.Command {
    var f clientFlags
    cmd := &cobra.Command{
        Use:   "join <address>",
        Short: "Ask the node to join the cluster member at the given address",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            client, err := f.client()
            if err != nil {
                return err
            }
            ctx, cancel := f.context()
            defer cancel()
            msg, err := client.Join(ctx, f.addr, args[0])
            if err != nil {
                return fmt.Errorf("join error: %w", err)
            }
            fmt.Println(msg)
            return nil
        },
    }
    f.register(cmd)
    return cmd
}

// NewLeaveCmd returns the "leave" command.
func NewLeaveCmd() *cobra.Command {
    var f clientFlags
    cmd := &cobra.Command{
        Use:   "leave <address>",
        Short: "Request a graceful leave of the given member",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            client, err := f.client()
            if err != nil {
                return err
            }
            ctx, cancel := f.context()
            defer cancel()
            msg, err := client.Leave(ctx, f.addr, args[0])
            if err != nil {
                return fmt.Errorf("leave error: %w", err)
            }
            fmt.Println(msg)
            return nil
        },
    }
    f.register(cmd)
    return cmd
}

// NewDownCmd returns the "down" command.
func NewDownCmd() *cobra.Command {
    var f clientFlags
    cmd := &cobra.Command{
        Use:   "down <address>",
        Short: "Forcibly mark the given member as down",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            client, err := f.client()
            if err != nil {
                return err
            }
            ctx, cancel := f.context()
            defer cancel()
            msg, err := client.Down(ctx, f.addr, args[0])
            if err != nil {
                return fmt.Errorf("down error: %w", err)
            }
            fmt.Println(msg)
            return nil
        },
    }
    f.register(cmd)
    return cmd
}

// NewShardsCmd returns the "shards" command.
func NewShardsCmd() *cobra.Command {
    var f clientFlags
    cmd := &cobra.Command{
        Use:   "shards <region>",
        Short: "Fetch per-shard entity counts for a shard region",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            client, err := f.client()
            if err != nil {
                return err
            }
            ctx, cancel := f.context()
            defer cancel()
            det, err := client.ShardStats(ctx, f.addr, args[0])
            if err != nil {
                return fmt.Errorf("shards error: %w", err)
            }
            return printJSON(det)
        },
    }
    f.register(cmd)
    return cmd
}

// NewPrepareShutdownCmd returns the "prepare-shutdown" command.
func NewPrepareShutdownCmd() *cobra.Command {
    var f clientFlags
    cmd := &cobra.Command{
        Use:   "prepare-shutdown",
        Short: "Prepare the whole cluster for a full shutdown",
        RunE: func(cmd *cobra.Command, args []string) error {
            client, err := f.client()
            if err != nil {
                return err
            }
            ctx, cancel := f.context()
            defer cancel()
            msg, err := client.PrepareFullShutdown(ctx, f.addr)
            if err != nil {
                return fmt.Errorf("prepare-shutdown error: %w", err)
            }
            fmt.Println(msg)
            return nil
        },
    }
    f.register(cmd)
    return cmd
}

func printJSON(v any) error {
    enc := json.NewEncoder(os.Stdout)
    enc.SetIndent("", "  ")
    return enc.Encode(v)
}

func splitCSV(csv string) []string {
    if csv == "" {
        return nil
    }
    parts := strings.Split(csv, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}

// parseRegions parses "name[:shards]" entries, defaulting to 64 shards.
func parseRegions(csv string) []bootstrap.RegionConfig {
    var out []bootstrap.RegionConfig
    for _, entry := range splitCSV(csv) {
        rc := bootstrap.RegionConfig{NumShards: 64}
        if i := strings.IndexByte(entry, ':'); i >= 0 {
            rc.Name = entry[:i]
            var n uint32
            if _, err := fmt.Sscanf(entry[i+1:], "%d", &n); err == nil && n > 0 {
                rc.NumShards = n
            }
        } else {
            rc.Name = entry
        }
        if rc.Name != "" {
            out = append(out, rc)
        }
    }
    return out
}

func signalContext() (context.Context, context.CancelFunc) {
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        ch := make(chan os.Signal, 1)
        signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
        <-ch
        cancel()
    }()
    return ctx, cancel
}
