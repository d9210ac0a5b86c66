package core

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
	"time"

	"bacman/logger"
	"bacman/models"

	"golang.org/x/time/rate"
)

type SenderConfig struct {
	Timeout           time.Duration
	SkipTLSVerify     bool
	AllowLoopback     bool
	RequestsPerSecond float64 // 0 disables pacing
	Burst             int
}

func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		Timeout: 30 * time.Second,
		Burst:   1,
	}
}

// HTTPSender sends raw requests straight to their service, never through the proxy, so
// replays are not intercepted again. Redirects are not followed and bodies are not decoded:
// the returned bytes are the response as the server sent it.
type HTTPSender struct {
	cfg       SenderConfig
	transport *http.Transport
	limiter   *rate.Limiter
}

func NewHTTPSender(cfg SenderConfig) *HTTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSenderConfig().Timeout
	}
	if cfg.SkipTLSVerify {
		logger.Warn("HTTPSender: TLS certificate verification is DISABLED for replayed requests.")
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	allowLoopback := cfg.AllowLoopback
	transport := &http.Transport{
		Proxy: nil,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if err := checkDialAddress(ctx, addr, allowLoopback); err != nil {
				return nil, err
			}
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.SkipTLSVerify},
		TLSHandshakeTimeout:   10 * time.Second,
		DisableCompression:    true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &HTTPSender{cfg: cfg, transport: transport, limiter: rate.NewLimiter(limit, burst)}
}

// checkDialAddress refuses loopback (unless allowed) and link-local destinations.
func checkDialAddress(ctx context.Context, addr string, allowLoopback bool) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			// Let the dialer report resolution failures.
			return nil
		}
		for _, a := range addrs {
			ips = append(ips, a.IP)
		}
	}
	for _, ip := range ips {
		if ip.IsLoopback() && !allowLoopback {
			return fmt.Errorf("replay to loopback address %s is disallowed (replay.allow_loopback)", ip)
		}
		if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return fmt.Errorf("replay to link-local address %s is disallowed", ip)
		}
	}
	return nil
}

// Send parses raw, retargets it at service and returns the dumped response.
func (s *HTTPSender) Send(ctx context.Context, service models.Service, raw []byte) ([]byte, error) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse replay request: %w", err)
	}
	scheme := strings.ToLower(service.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	req.URL.Scheme = scheme
	req.URL.Host = service.Host
	if service.Port != 0 {
		req.URL.Host = net.JoinHostPort(service.Host, strconv.Itoa(service.Port))
	}
	req.RequestURI = ""
	if req.Host == "" {
		req.Host = req.URL.Host
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	req = req.WithContext(ctx)

	started := time.Now()
	resp, err := s.transport.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body from %s: %w", req.URL.Host, err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	dump, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return nil, fmt.Errorf("dump response: %w", err)
	}
	logger.ProxyDebug("HTTPSender: %s %s -> %d (%d bytes, %s)", req.Method, req.URL.String(), resp.StatusCode, len(dump), time.Since(started))
	return dump, nil
}

// Close releases idle connections.
func (s *HTTPSender) Close() {
	s.transport.CloseIdleConnections()
}
