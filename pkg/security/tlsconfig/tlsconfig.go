// Package tlsconfig builds tls.Config values for the management HTTP
// surface and its client from file-based certificate material.
package tlsconfig

import (
    "crypto/tls"
    "crypto/x509"
    "errors"
    "fmt"
    "os"
    "sync"
    "time"
)

// reloadTTL bounds how long a certificate loaded from disk is reused before
// the next handshake re-reads it.
const reloadTTL = 10 * time.Second

// Options defines TLS configuration inputs for the management surface.
type Options struct {
    Enable   bool
    CAFile   string
    CertFile string
    KeyFile  string

    // RequireClientCert enables mTLS on the server side. It needs CAFile.
    RequireClientCert bool

    InsecureSkipVerify bool
    ServerName         string
}

func caPool(path string) (*x509.CertPool, error) {
    ca, err := os.ReadFile(path)
    if err != nil {
        return nil, err
    }
    pool := x509.NewCertPool()
    if !pool.AppendCertsFromPEM(ca) {
        return nil, fmt.Errorf("tls: no certificates in %s", path)
    }
    return pool, nil
}

// Server returns a server tls.Config, or nil when TLS is disabled. The
// certificate is reloaded lazily on handshake so rotation does not require
// a restart.
func (o Options) Server() (*tls.Config, error) {
    if !o.Enable {
        return nil, nil
    }
    if o.CertFile == "" || o.KeyFile == "" {
        return nil, errors.New("tls: server cert/key required when TLS enabled")
    }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12}
    if o.RequireClientCert {
        if o.CAFile == "" {
            return nil, errors.New("tls: client cert verification requires a CA file")
        }
        pool, err := caPool(o.CAFile)
        if err != nil {
            return nil, err
        }
        cfg.ClientCAs = pool
        cfg.ClientAuth = tls.RequireAndVerifyClientCert
    }
    loader := certLoader{certFile: o.CertFile, keyFile: o.KeyFile}
    if _, err := loader.load(); err != nil {
        return nil, err
    }
    cfg.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
        return loader.load()
    }
    return cfg, nil
}

// Client returns a client tls.Config, or nil when TLS is disabled.
func (o Options) Client() (*tls.Config, error) {
    if !o.Enable {
        return nil, nil
    }
    cfg := &tls.Config{
        MinVersion:         tls.VersionTLS12,
        InsecureSkipVerify: o.InsecureSkipVerify, //nolint:gosec
        ServerName:         o.ServerName,
    }
    if o.CAFile != "" {
        pool, err := caPool(o.CAFile)
        if err != nil {
            return nil, err
        }
        cfg.RootCAs = pool
    }
    if o.CertFile != "" && o.KeyFile != "" {
        loader := certLoader{certFile: o.CertFile, keyFile: o.KeyFile}
        if _, err := loader.load(); err != nil {
            return nil, err
        }
        cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
            return loader.load()
        }
    }
    return cfg, nil
}

// certLoader caches a key pair read from disk and re-reads it after
// reloadTTL elapses.
type certLoader struct {
    certFile string
    keyFile  string

    mu       sync.Mutex
    cached   *tls.Certificate
    lastLoad time.Time
}

func (l *certLoader) load() (*tls.Certificate, error) {
    l.mu.Lock()
    defer l.mu.Unlock()
    if l.cached != nil && time.Since(l.lastLoad) < reloadTTL {
        return l.cached, nil
    }
    cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
    if err != nil {
        if l.cached != nil {
            // Keep serving the last good certificate on a transient
            // rotation error.
            return l.cached, nil
        }
        return nil, err
    }
    l.cached = &cert
    l.lastLoad = time.Now()
    return l.cached, nil
}
