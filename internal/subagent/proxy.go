package subagent

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/elazarl/goproxy"

	"github.com/ivycove/cortex/internal/logging"
)

// EgressGate runs a local forward proxy that enforces a domain allowlist
// on the requests sent through it — adapted from the teacher's sandbox
// outbound proxy. Start returns the proxy URL; nothing in this package
// routes a Source's traffic through it, so only clients that dial that
// URL are gated.
type EgressGate struct {
	server   *goproxy.ProxyHttpServer
	listener net.Listener
	http     *http.Server
	allowed  map[string]bool
	mu       sync.RWMutex
}

// NewEgressGate builds a gate allowing only the given hostnames (exact
// match, case-insensitive). An empty allowlist denies everything.
func NewEgressGate(allowedHosts []string) *EgressGate {
	allowed := make(map[string]bool, len(allowedHosts))
	for _, h := range allowedHosts {
		allowed[strings.ToLower(h)] = true
	}
	gate := &EgressGate{server: goproxy.NewProxyHttpServer(), allowed: allowed}

	gate.server.OnRequest().DoFunc(func(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		if gate.isAllowed(req.URL.Hostname()) {
			return req, nil
		}
		logging.Logger().Warn("subagent egress denied", "host", req.URL.Hostname())
		return req, goproxy.NewResponse(req, goproxy.ContentTypeText, http.StatusForbidden, "host not allowed")
	})
	gate.server.OnRequest().HandleConnectFunc(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		hostname, _, err := net.SplitHostPort(host)
		if err != nil {
			hostname = host
		}
		if gate.isAllowed(hostname) {
			return goproxy.OkConnect, host
		}
		return goproxy.RejectConnect, host
	})
	return gate
}

func (g *EgressGate) isAllowed(host string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.allowed[strings.ToLower(host)]
}

// Allow adds a host to the allowlist at runtime.
func (g *EgressGate) Allow(host string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowed[strings.ToLower(host)] = true
}

// Start binds the gate to an ephemeral local port and serves in the
// background, returning the proxy URL clients should dial through.
func (g *EgressGate) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen for egress gate: %w", err)
	}
	g.listener = ln
	g.http = &http.Server{Handler: g.server}
	go func() {
		if err := g.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Logger().Error("egress gate server error", "error", err)
		}
	}()
	return "http://" + ln.Addr().String(), nil
}

// Stop shuts down the proxy listener.
func (g *EgressGate) Stop() error {
	if g.http == nil {
		return nil
	}
	return g.http.Close()
}
