// Package tls builds crypto/tls configurations from certificate files.
//
// Upstream endpoints are often homelab services behind a private CA, and
// some require client certificates, so the client side supports a custom CA
// and optional mutual TLS. The server side serves the dashboard API over
// TLS 1.3 and can require client certificates.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ClientConfig describes how to trust and authenticate to upstream
// endpoints. The zero value uses the system roots and no client certificate.
type ClientConfig struct {
	// CAFile adds a PEM CA bundle to the system roots.
	CAFile string
	// CertFile and KeyFile enable mutual TLS when both are set.
	CertFile string
	KeyFile  string
	// ServerName overrides SNI and certificate verification host.
	ServerName string
}

// Enabled reports whether any custom TLS setting is present.
func (c ClientConfig) Enabled() bool {
	return c.CAFile != "" || c.CertFile != "" || c.KeyFile != "" || c.ServerName != ""
}

// Validate checks that cert and key are set together and that every
// referenced file exists.
func (c ClientConfig) Validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("tls client cert and key must be set together")
	}
	return checkFiles(c.CAFile, c.CertFile, c.KeyFile)
}

// Build returns the client TLS config, or nil when c is not Enabled.
func (c ClientConfig) Build() (*tls.Config, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: c.ServerName,
	}

	if c.CAFile != "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if err := appendCA(pool, c.CAFile); err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// ServerConfig describes the dashboard's own listener.
type ServerConfig struct {
	CertFile string
	KeyFile  string
	// ClientCAFile, when set, requires and verifies client certificates.
	ClientCAFile string
}

// Enabled reports whether the server should serve TLS.
func (c ServerConfig) Enabled() bool {
	return c.CertFile != "" || c.KeyFile != ""
}

// Validate checks that cert and key are both present and readable.
func (c ServerConfig) Validate() error {
	if !c.Enabled() {
		if c.ClientCAFile != "" {
			return errors.New("tls client CA set without server cert and key")
		}
		return nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return errors.New("tls server cert and key must be set together")
	}
	return checkFiles(c.CertFile, c.KeyFile, c.ClientCAFile)
}

// Build returns the server TLS config, or nil when c is not Enabled.
// Certificates are loaded by the caller via ListenAndServeTLS.
func (c ServerConfig) Build() (*tls.Config, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS13,
	}
	if c.ClientCAFile != "" {
		pool := x509.NewCertPool()
		if err := appendCA(pool, c.ClientCAFile); err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

func appendCA(pool *x509.CertPool, caFile string) error {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return fmt.Errorf("read CA certificate: %w", err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return fmt.Errorf("no certificates found in %s", caFile)
	}
	return nil
}

// checkFiles stats every non-empty path.
func checkFiles(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("tls file %q: %w", path, err)
		}
	}
	return nil
}
