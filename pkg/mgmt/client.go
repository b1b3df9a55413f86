package mgmt

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"
)

// Client is a thin HTTP client for the management API, used by the CLI and
// by tooling. Reads retry with backoff; writes are submitted once, matching
// the fire-and-forget contract of the server side.
type Client struct {
    httpc     *http.Client
    transport *http.Transport
    isTLS     bool
}

// NewClient constructs a Client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 {
        timeout = 3 * time.Second
    }
    tr := &http.Transport{}
    return &Client{httpc: &http.Client{Timeout: timeout, Transport: tr}, transport: tr}
}

// UseTLS sets the TLS config and switches the request scheme to https.
func (c *Client) UseTLS(cfg *tls.Config) *Client {
    if c.transport != nil {
        c.transport.TLSClientConfig = cfg
    }
    c.isTLS = cfg != nil
    return c
}

func (c *Client) base(host string) string {
    scheme := "http"
    if c.isTLS {
        scheme = "https"
    }
    return fmt.Sprintf("%s://%s", scheme, host)
}

// Members fetches the collection view from the node at host.
func (c *Client) Members(ctx context.Context, host string) (ClusterMembers, error) {
    var out ClusterMembers
    err := c.getJSON(ctx, c.base(host)+"/cluster/members", &out)
    return out, err
}

// Member fetches a single member by its full address or host:port form.
func (c *Client) Member(ctx context.Context, host, member string) (MemberView, error) {
    var out MemberView
    err := c.getJSON(ctx, c.base(host)+"/cluster/members/"+escapeAddress(member), &out)
    return out, err
}

// ShardStats fetches per-shard entity counts for the named region.
func (c *Client) ShardStats(ctx context.Context, host, region string) (ShardDetails, error) {
    var out ShardDetails
    err := c.getJSON(ctx, c.base(host)+"/cluster/shards/"+url.PathEscape(region), &out)
    return out, err
}

// Join requests that the node at host join the cluster member at address.
func (c *Client) Join(ctx context.Context, host, address string) (string, error) {
    return c.submit(ctx, http.MethodPost, c.base(host)+"/cluster/members",
        url.Values{"address": {address}})
}

// Leave requests a graceful leave of the given member.
func (c *Client) Leave(ctx context.Context, host, member string) (string, error) {
    return c.submit(ctx, http.MethodDelete,
        c.base(host)+"/cluster/members/"+escapeAddress(member), nil)
}

// Down requests the given member be forcibly removed.
func (c *Client) Down(ctx context.Context, host, member string) (string, error) {
    return c.submit(ctx, http.MethodPut,
        c.base(host)+"/cluster/members/"+escapeAddress(member),
        url.Values{"operation": {"Down"}})
}

// PrepareFullShutdown requests cluster-wide shutdown preparation.
func (c *Client) PrepareFullShutdown(ctx context.Context, host string) (string, error) {
    return c.submit(ctx, http.MethodPut, c.base(host)+"/cluster",
        url.Values{"operation": {"prepare-for-full-shutdown"}})
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
    if err != nil {
        return err
    }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        resp, err := c.httpc.Do(req)
        if err != nil {
            lastErr = err
        } else {
            body, readErr := io.ReadAll(resp.Body)
            resp.Body.Close()
            if readErr != nil {
                lastErr = readErr
            } else if resp.StatusCode != http.StatusOK {
                return fmt.Errorf("mgmt: status %d: %s", resp.StatusCode, messageOf(body))
            } else {
                return json.Unmarshal(body, out)
            }
        }
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return lastErr
}

func (c *Client) submit(ctx context.Context, method, rawURL string, form url.Values) (string, error) {
    var body io.Reader
    if form != nil {
        body = strings.NewReader(form.Encode())
    }
    req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
    if err != nil {
        return "", err
    }
    if form != nil {
        req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
    }
    resp, err := c.httpc.Do(req)
    if err != nil {
        return "", err
    }
    defer resp.Body.Close()
    b, err := io.ReadAll(resp.Body)
    if err != nil {
        return "", err
    }
    if resp.StatusCode != http.StatusOK {
        return "", fmt.Errorf("mgmt: status %d: %s", resp.StatusCode, messageOf(b))
    }
    return messageOf(b), nil
}

// escapeAddress encodes every segment of a member address so literal slashes
// survive routing; the server's path decoder reverses this exactly.
func escapeAddress(addr string) string {
    parts := strings.Split(addr, "/")
    for i, p := range parts {
        parts[i] = url.PathEscape(p)
    }
    return strings.Join(parts, "/")
}

func messageOf(body []byte) string {
    var m Message
    if json.Unmarshal(body, &m) == nil && m.Message != "" {
        return m.Message
    }
    return strings.TrimSpace(string(body))
}
