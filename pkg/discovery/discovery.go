// Package discovery provides seed-node sources for cluster bootstrap.
// Seeds are gossip endpoints in host:port form.
package discovery

import (
    "bufio"
    "context"
    "net"
    "os"
    "sort"
    "strconv"
    "strings"
    "sync"
    "time"
)

// Discovery abstracts how seed nodes are obtained.
type Discovery interface {
    Seeds() []string
}

// Parse converts a comma-separated seed list into a slice, trimming blanks.
func Parse(csv string) []string {
    if csv == "" {
        return nil
    }
    parts := strings.Split(csv, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" {
            out = append(out, p)
        }
    }
    return out
}

type staticSeeds struct {
    seeds []string
}

func (s *staticSeeds) Seeds() []string { return append([]string(nil), s.seeds...) }

// Static returns a Discovery that always yields the given seeds.
func Static(seeds ...string) Discovery {
    cleaned := make([]string, 0, len(seeds))
    for _, v := range seeds {
        v = strings.TrimSpace(v)
        if v != "" {
            cleaned = append(cleaned, v)
        }
    }
    return &staticSeeds{seeds: cleaned}
}

// FileOptions configure file or environment based discovery.
type FileOptions struct {
    // Path to a file with one seed per line; '#' starts a comment and
    // comma-separated entries per line are allowed.
    Path string
    // Env names an environment variable that overrides the file when set.
    Env string
    // Refresh bounds cache staleness. Zero means 5s.
    Refresh time.Duration
}

type fileSeeds struct {
    opts  FileOptions
    mu    sync.Mutex
    last  time.Time
    mtime time.Time
    cache []string
}

// FromFile returns a Discovery reading seeds from a file, re-reading when
// the file changes or the cache expires.
func FromFile(opts FileOptions) Discovery {
    if opts.Refresh <= 0 {
        opts.Refresh = 5 * time.Second
    }
    return &fileSeeds{opts: opts}
}

func (f *fileSeeds) Seeds() []string {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.opts.Env != "" {
        if v := strings.TrimSpace(os.Getenv(f.opts.Env)); v != "" {
            out := Parse(v)
            sort.Strings(out)
            return out
        }
    }
    if f.opts.Path == "" {
        return nil
    }
    stat, err := os.Stat(f.opts.Path)
    if err != nil {
        return append([]string(nil), f.cache...)
    }
    now := time.Now()
    if stat.ModTime().After(f.mtime) || now.Sub(f.last) >= f.opts.Refresh {
        f.cache = readSeedFile(f.opts.Path)
        f.last = now
        f.mtime = stat.ModTime()
    }
    return append([]string(nil), f.cache...)
}

func readSeedFile(path string) []string {
    fh, err := os.Open(path)
    if err != nil {
        return nil
    }
    defer fh.Close()
    set := make(map[string]struct{})
    s := bufio.NewScanner(fh)
    for s.Scan() {
        line := strings.TrimSpace(s.Text())
        if line == "" || strings.HasPrefix(line, "#") {
            continue
        }
        for _, p := range Parse(line) {
            set[p] = struct{}{}
        }
    }
    if s.Err() != nil {
        return nil
    }
    out := make([]string, 0, len(set))
    for x := range set {
        out = append(out, x)
    }
    sort.Strings(out)
    return out
}

// DNSOptions configure DNS-based discovery. Names may be SRV records
// ("_cluster._tcp.example.com"), plain hostnames resolved via A/AAAA, or
// literal host:port entries taken as-is.
type DNSOptions struct {
    Names []string

    // Port used for A/AAAA answers, which carry no port. Zero means 2552.
    Port int

    // Refresh bounds cache staleness. Zero means 5s.
    Refresh time.Duration

    // Resolver optionally overrides the resolver, mainly for tests.
    Resolver *net.Resolver
}

type dnsSeeds struct {
    opts  DNSOptions
    mu    sync.Mutex
    last  time.Time
    cache []string
}

// FromDNS returns a DNS-backed Discovery with result caching.
func FromDNS(opts DNSOptions) Discovery {
    if opts.Refresh <= 0 {
        opts.Refresh = 5 * time.Second
    }
    if opts.Port == 0 {
        opts.Port = 2552
    }
    return &dnsSeeds{opts: opts}
}

func (d *dnsSeeds) Seeds() []string {
    d.mu.Lock()
    defer d.mu.Unlock()
    if time.Since(d.last) < d.opts.Refresh && len(d.cache) > 0 {
        return append([]string(nil), d.cache...)
    }
    d.cache = d.resolveAll(context.Background())
    d.last = time.Now()
    return append([]string(nil), d.cache...)
}

func (d *dnsSeeds) resolveAll(ctx context.Context) []string {
    seen := make(map[string]struct{})
    var out []string
    add := func(hp string) {
        if _, ok := seen[hp]; !ok {
            seen[hp] = struct{}{}
            out = append(out, hp)
        }
    }
    for _, name := range d.opts.Names {
        name = strings.TrimSpace(name)
        if name == "" {
            continue
        }
        if strings.Contains(name, ":") && !strings.HasPrefix(name, "_") {
            add(name)
            continue
        }
        if strings.HasPrefix(name, "_") && strings.Contains(name, "._") {
            if recs := d.lookupSRV(ctx, name); len(recs) > 0 {
                for _, hp := range recs {
                    add(hp)
                }
                continue
            }
        }
        for _, hp := range d.lookupHost(ctx, name) {
            add(hp)
        }
    }
    sort.Strings(out)
    return out
}

func (d *dnsSeeds) resolver() *net.Resolver {
    if d.opts.Resolver != nil {
        return d.opts.Resolver
    }
    return net.DefaultResolver
}

func (d *dnsSeeds) lookupSRV(ctx context.Context, fqdn string) []string {
    parts := strings.SplitN(fqdn, ".", 3)
    if len(parts) < 3 {
        return nil
    }
    svc := strings.TrimPrefix(parts[0], "_")
    proto := strings.TrimPrefix(parts[1], "_")
    _, addrs, err := d.resolver().LookupSRV(ctx, svc, proto, parts[2])
    if err != nil {
        return nil
    }
    var out []string
    for _, a := range addrs {
        host := strings.TrimSuffix(a.Target, ".")
        out = append(out, net.JoinHostPort(host, strconv.Itoa(int(a.Port))))
    }
    return out
}

func (d *dnsSeeds) lookupHost(ctx context.Context, host string) []string {
    ips, err := d.resolver().LookupHost(ctx, host)
    if err != nil {
        return nil
    }
    out := make([]string, 0, len(ips))
    for _, ip := range ips {
        out = append(out, net.JoinHostPort(ip, strconv.Itoa(d.opts.Port)))
    }
    return out
}
