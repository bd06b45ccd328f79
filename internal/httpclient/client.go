// Package httpclient builds the HTTP client used to reach the inventory endpoint.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig holds configuration options for creating HTTP clients
type ClientConfig struct {
	// MaxIdleConns controls the maximum number of idle (keep-alive) connections across all hosts
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle (keep-alive) connections to keep per-host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is the maximum amount of time an idle (keep-alive) connection will remain idle before closing itself
	IdleConnTimeout time.Duration

	// Timeout specifies a time limit for a single request, including reading the body
	Timeout time.Duration

	DialTimeout         time.Duration
	KeepAlive           time.Duration
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout specifies the amount of time to wait for a server's response headers
	ResponseHeaderTimeout time.Duration
}

// DefaultConfig returns a ClientConfig suited to a single web-app endpoint.
// Apps Script web apps answer through a redirect and can be slow to start,
// so the overall timeout is generous while dialing stays short.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		Timeout:               30 * time.Second,
		DialTimeout:           10 * time.Second,
		KeepAlive:             30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
	}
}

// NewHTTPClient creates a new HTTP client with the provided configuration.
// If config is nil, DefaultConfig() is used. Zero durations in config keep
// their defaults.
func NewHTTPClient(config *ClientConfig) *http.Client {
	cfg := DefaultConfig()
	if config != nil {
		cfg = merge(cfg, *config)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		// Accept-Encoding is set per request and decoded by the caller.
		DisableCompression: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

func merge(base, override ClientConfig) ClientConfig {
	if override.MaxIdleConns > 0 {
		base.MaxIdleConns = override.MaxIdleConns
	}
	if override.MaxIdleConnsPerHost > 0 {
		base.MaxIdleConnsPerHost = override.MaxIdleConnsPerHost
	}
	if override.IdleConnTimeout > 0 {
		base.IdleConnTimeout = override.IdleConnTimeout
	}
	if override.Timeout > 0 {
		base.Timeout = override.Timeout
	}
	if override.DialTimeout > 0 {
		base.DialTimeout = override.DialTimeout
	}
	if override.KeepAlive > 0 {
		base.KeepAlive = override.KeepAlive
	}
	if override.TLSHandshakeTimeout > 0 {
		base.TLSHandshakeTimeout = override.TLSHandshakeTimeout
	}
	if override.ResponseHeaderTimeout > 0 {
		base.ResponseHeaderTimeout = override.ResponseHeaderTimeout
	}
	return base
}
