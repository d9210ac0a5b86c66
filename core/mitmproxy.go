package core

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
	"time"

	"bacman/logger"
	"bacman/models"

	"github.com/elazarl/goproxy"
)

type ProxyOptions struct {
	Port       string
	CACertPath string
	CAKeyPath  string
	// WaitForResponse submits probes once the original response is in. When false the
	// probe starts as soon as the request is seen and the original side stays unknown.
	WaitForResponse bool
	Exclusions      []models.ProbeExclusionRule
}

// proxyRequestContextData is carried from OnRequest to OnResponse through ctx.UserData.
type proxyRequestContextData struct {
	Request models.RequestRecord
}

// serviceFromRequest derives the destination of a proxied request.
func serviceFromRequest(r *http.Request) models.Service {
	scheme := strings.ToLower(r.URL.Scheme)
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	host, portText := r.URL.Hostname(), r.URL.Port()
	if host == "" {
		host = r.Host
		if h, p, err := net.SplitHostPort(r.Host); err == nil {
			host, portText = h, p
		}
	}
	port := 0
	if portText != "" {
		port, _ = strconv.Atoi(portText)
	}
	if port == 0 {
		port = 80
		if scheme == "https" {
			port = 443
		}
	}
	return models.Service{Scheme: scheme, Host: host, Port: port}
}

// snapshotRequest dumps r (restoring its body) into an immutable RequestRecord.
func snapshotRequest(r *http.Request) (models.RequestRecord, error) {
	raw, err := httputil.DumpRequest(r, true)
	if err != nil {
		return models.RequestRecord{}, fmt.Errorf("dump request: %w", err)
	}
	rec, err := ParseRawRequest(serviceFromRequest(r), raw)
	if err != nil {
		return models.RequestRecord{}, err
	}
	rec.URL = r.URL.String()
	return rec, nil
}

// NewProbeProxy builds the MITM proxy handler that feeds intercepted traffic to coord.
func NewProbeProxy(ca tls.Certificate, opts ProxyOptions, coord *Coordinator) *goproxy.ProxyHttpServer {
	filter := NewExclusionFilter(opts.Exclusions)
	tlsConfig := goproxy.TLSConfigFromCA(&ca)

	proxy := goproxy.NewProxyHttpServer()
	proxy.Logger = log.New(logger.ProxyWriter(), "goproxy: ", log.LstdFlags)

	proxy.OnRequest().HandleConnect(goproxy.FuncHttpsHandler(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		logger.ProxyDebug("HandleConnect for session %d, host %s", ctx.Session, host)
		return &goproxy.ConnectAction{Action: goproxy.ConnectMitm, TLSConfig: tlsConfig}, host
	}))

	proxy.OnRequest().DoFunc(
		func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
			if rule, excluded := filter.Excluded(r.URL); excluded {
				logger.ProxyDebug("REQ: %s %s - EXCLUDED by rule ID %s (Type: %s, Pattern: %s).", r.Method, r.URL.String(), rule.ID, rule.RuleType, rule.Pattern)
				return r, nil
			}
			if !coord.Gate().Active() {
				return r, nil
			}

			rec, err := snapshotRequest(r)
			if err != nil {
				logger.ProxyError("REQ: could not snapshot %s %s: %v", r.Method, r.URL.String(), err)
				return r, nil
			}
			logger.ProxyDebug("REQ: %s %s", rec.Method, rec.URL)

			if !opts.WaitForResponse {
				coord.Submit(models.InterceptedMessage{Origin: models.OriginProxy, IsRequest: true, Request: rec})
				return r, nil
			}
			ctx.UserData = &proxyRequestContextData{Request: rec}
			return r, nil
		})

	proxy.OnResponse().DoFunc(
		func(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
			data, ok := ctx.UserData.(*proxyRequestContextData)
			if !ok || data == nil {
				return resp
			}

			var rawResp []byte
			if resp == nil {
				logger.ProxyError("RESP: Nil response for %s %s", data.Request.Method, data.Request.URL)
			} else {
				dump, err := httputil.DumpResponse(resp, true)
				if err != nil {
					logger.ProxyError("RESP: could not dump response for %s %s: %v", data.Request.Method, data.Request.URL, err)
				} else {
					rawResp = dump
				}
			}

			coord.Submit(models.InterceptedMessage{
				Origin:      models.OriginProxy,
				IsRequest:   true,
				Request:     data.Request,
				RawResponse: rawResp,
			})
			return resp
		})

	return proxy
}

// StartMitmProxy serves the probe proxy until ctx is cancelled.
func StartMitmProxy(ctx context.Context, opts ProxyOptions, coord *Coordinator) error {
	ca, err := LoadCA(opts.CACertPath, opts.CAKeyPath)
	if err != nil {
		return fmt.Errorf("could not load CA certificate/key: %w. Please run 'proxy init-ca' or check config", err)
	}

	server := &http.Server{
		Addr:              ":" + opts.Port,
		Handler:           NewProbeProxy(ca, opts, coord),
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.ProxyInfo("MITM Proxy server starting on :%s (run %s)", opts.Port, coord.RunID())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.ProxyError("MITM Proxy: graceful shutdown failed: %v", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
