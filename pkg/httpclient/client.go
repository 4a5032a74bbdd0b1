// Package httpclient provides a configurable HTTP client with proxy support.
package httpclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"anistream-proxy-go/pkg/config"
	"anistream-proxy-go/pkg/logging"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// Client wraps http.Client with proxy routing and connection pooling.
type Client struct {
	defaultClient *http.Client
	utlsClient    *http.Client // browser-like TLS fingerprint for the embed host
	proxyClients  map[string]*http.Client
	routes        []config.TransportRoute
	globalProxies []string
	utlsDomains   []string
	mu            sync.RWMutex
	log           *logging.Logger
}

// ipv4Dialer creates a dialer that only uses IPv4.
// Avoids stalls in environments without working IPv6 connectivity.
func ipv4Dialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 60 * time.Second,
	}
}

// ipv4DialContext forces IPv4-only connections.
func ipv4DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network == "tcp" {
		network = "tcp4"
	}
	return ipv4Dialer().DialContext(ctx, network, addr)
}

// New creates a new HTTP client with the given configuration. The embed host
// is served through a client with a browser TLS fingerprint, since its edge
// rejects default Go handshakes.
func New(cfg *config.Config, log *logging.Logger) *Client {
	c := &Client{
		proxyClients:  make(map[string]*http.Client),
		routes:        cfg.TransportRoutes,
		globalProxies: cfg.GlobalProxies,
		log:           log.WithComponent("httpclient"),
	}

	if host := hostOf(cfg.EmbedBase); host != "" {
		c.utlsDomains = append(c.utlsDomains, host)
	}

	c.defaultClient = &http.Client{
		Transport: &http.Transport{
			DialContext:           ipv4DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
		Timeout: 30 * time.Second,
	}

	c.utlsClient = &http.Client{
		Transport: newUTLSRoundTripper(),
		Timeout:   30 * time.Second,
	}

	return c
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// utlsRoundTripper implements http.RoundTripper with utls and HTTP/2 support.
type utlsRoundTripper struct {
	dialer      *net.Dialer
	h2Transport *http2.Transport
}

func newUTLSRoundTripper() *utlsRoundTripper {
	return &utlsRoundTripper{
		dialer: &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 60 * time.Second,
		},
		h2Transport: &http2.Transport{
			DisableCompression: false,
			AllowHTTP:          false,
		},
	}
}

func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return http.DefaultTransport.RoundTrip(req)
	}

	addr := req.URL.Host
	if !strings.Contains(addr, ":") {
		addr = addr + ":443"
	}

	conn, err := t.dialer.DialContext(req.Context(), "tcp4", addr)
	if err != nil {
		return nil, err
	}

	tlsConfig := &utls.Config{
		ServerName: req.URL.Hostname(),
	}

	// Chrome 120 fingerprint with ALPN h2
	utlsConn := utls.UClient(conn, tlsConfig, utls.HelloChrome_120)

	if err := utlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, err
	}

	if utlsConn.ConnectionState().NegotiatedProtocol == "h2" {
		h2Conn, err := t.h2Transport.NewClientConn(utlsConn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return h2Conn.RoundTrip(req)
	}

	return t.doHTTP1Request(utlsConn, req)
}

func (t *utlsRoundTripper) doHTTP1Request(conn net.Conn, req *http.Request) (*http.Response, error) {
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, err
	}

	resp.Body = &connCloser{resp.Body, conn}
	return resp, nil
}

type connCloser struct {
	io.ReadCloser
	conn net.Conn
}

func (c *connCloser) Close() error {
	c.ReadCloser.Close()
	return c.conn.Close()
}

// needsUTLS returns true if the URL requires browser-like TLS fingerprinting.
func (c *Client) needsUTLS(targetURL string) bool {
	lower := strings.ToLower(targetURL)
	for _, domain := range c.utlsDomains {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}

// Do executes an HTTP request, routing through proxies as configured.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	client := c.getClientForURL(req.URL.String())
	return client.Do(req)
}

// getClientForURL returns the appropriate HTTP client based on URL routing rules.
func (c *Client) getClientForURL(targetURL string) *http.Client {
	if c.needsUTLS(targetURL) {
		c.log.Debug("using utls client", "url", targetURL)
		return c.utlsClient
	}

	// Transport routes are most specific
	for _, route := range c.routes {
		if strings.Contains(targetURL, route.URLPattern) {
			c.log.Debug("matched transport route", "url", targetURL, "pattern", route.URLPattern, "proxy", route.Proxy, "direct", route.Direct)

			if route.Direct {
				if route.DisableSSL {
					return c.getInsecureClient()
				}
				return c.defaultClient
			}

			if route.Proxy != "" {
				return c.getOrCreateProxyClient(route.Proxy, route.DisableSSL)
			}
			if route.DisableSSL {
				return c.getInsecureClient()
			}
		}
	}

	if len(c.globalProxies) > 0 {
		proxyURL := c.globalProxies[0]
		c.log.Debug("using global proxy", "url", targetURL, "proxy", proxyURL)
		return c.getOrCreateProxyClient(proxyURL, false)
	}

	return c.defaultClient
}

// getOrCreateProxyClient returns a cached proxy client or creates a new one.
func (c *Client) getOrCreateProxyClient(proxyURL string, disableSSL bool) *http.Client {
	cacheKey := proxyURL
	if disableSSL {
		cacheKey += ":insecure"
	}

	c.mu.RLock()
	if client, ok := c.proxyClients[cacheKey]; ok {
		c.mu.RUnlock()
		return client
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.proxyClients[cacheKey]; ok {
		return client
	}

	client := c.createProxyClient(proxyURL, disableSSL)
	c.proxyClients[cacheKey] = client
	c.log.Debug("created proxy client", "proxy", proxyURL, "disable_ssl", disableSSL)

	return client
}

// createProxyClient creates a new HTTP client for the given proxy.
func (c *Client) createProxyClient(proxyURL string, disableSSL bool) *http.Client {
	transport := &http.Transport{
		DialContext:           ipv4DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if disableSSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if proxyURL == "" {
		return &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		}
	}

	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		c.log.Error("failed to parse proxy URL", "url", proxyURL, "error", err)
		return c.defaultClient
	}

	switch parsedURL.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(parsedURL, proxy.Direct)
		if err != nil {
			c.log.Error("failed to create SOCKS5 dialer", "error", err)
			return c.defaultClient
		}
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.Dial = dialer.Dial
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	default:
		c.log.Warn("unsupported proxy scheme", "scheme", parsedURL.Scheme)
		return c.defaultClient
	}

	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}

// getInsecureClient returns a client that skips SSL verification.
func (c *Client) getInsecureClient() *http.Client {
	return c.getOrCreateProxyClient("", true)
}
