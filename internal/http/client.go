// Package http configures the HTTP clients used beneath the transfer core.
// The core never composes raw requests itself; it talks to an object store
// backend, which talks through a client built here.
package http

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"os"
	"strings"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"
	"golang.org/x/net/http2"

	"github.com/meridian-labs/transit/internal/constants"
)

// ProxyOptions selects how outbound connections traverse a proxy.
type ProxyOptions struct {
	// Mode is one of "", "no-proxy", "system", "basic", "ntlm".
	// Empty behaves like "no-proxy".
	Mode string
	// Host and Port locate the proxy for basic/ntlm modes.
	Host string
	Port int
	// User and Password authenticate to the proxy. Both must be set for
	// credentials to be sent.
	User     string
	Password string
	// NoProxy is a comma-separated bypass list (hosts, domains, CIDRs).
	NoProxy string
}

// NewClient builds an HTTP client tuned for large concurrent transfers.
//
// Key characteristics:
//   - Large connection pool for concurrent range requests
//   - Extended TLS handshake timeout for high-concurrency bursts
//   - Disabled compression (chunk payloads are typically incompressible)
//   - HTTP/2 where the proxy situation allows it
//
// No overall client timeout is set; per-operation deadlines come from the
// caller's context and the coordinator's wall-clock budget.
func NewClient(proxy ProxyOptions) (*nethttp.Client, error) {
	transport := &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          512,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
	}

	proxyActive := false
	switch strings.ToLower(proxy.Mode) {
	case "no-proxy", "":
		transport.Proxy = nil

	case "system":
		transport.Proxy = nethttp.ProxyFromEnvironment
		proxyActive = os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""

	case "basic":
		if proxy.Host == "" {
			return nil, fmt.Errorf("proxy mode %q requires a host", proxy.Mode)
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(proxy), proxy.NoProxy)
		proxyActive = true

	case "ntlm":
		if proxy.Host == "" {
			return nil, fmt.Errorf("proxy mode %q requires a host", proxy.Mode)
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(proxy), proxy.NoProxy)
		// NTLM negotiation happens per-connection; HTTP/2 multiplexing
		// breaks it, so stay on HTTP/1.1.
		transport.ForceAttemptHTTP2 = false
		return &nethttp.Client{
			Transport: ntlmssp.Negotiator{
				RoundTripper: transport,
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", proxy.Mode)
	}

	_ = http2.ConfigureTransport(transport)

	// Proxies often mishandle HTTP/2 multiplexing, causing mid-transfer
	// stream resets. Fall back to HTTP/1.1 whenever a proxy is in the path.
	if proxyActive {
		transport.ForceAttemptHTTP2 = false
		transport.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	return &nethttp.Client{
		Transport: transport,
	}, nil
}

// buildProxyURL constructs the proxy URL from options.
func buildProxyURL(proxy ProxyOptions) *url.URL {
	port := proxy.Port
	if port == 0 {
		port = 8080
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", proxy.Host, port),
	}

	// Only embed credentials if both user AND password are provided; an
	// empty password in the URL can cause auth failures with some proxies.
	if proxy.User != "" && proxy.Password != "" {
		proxyURL.User = url.UserPassword(proxy.User, proxy.Password)
	}

	return proxyURL
}

// proxyFuncWithBypass returns a proxy function that respects the NoProxy
// bypass list. With an empty list it behaves identically to nethttp.ProxyURL.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		return proxyFunc(req.URL)
	}
}

// RequestTimeout bounds a single chunk-sized request. Exported for backends
// that need a per-call deadline distinct from the transfer budget.
const RequestTimeout = constants.HTTPRequestTimeout
