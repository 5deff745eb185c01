package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivycove/cortex/internal/config"
	"github.com/ivycove/cortex/internal/convstore"
	"github.com/ivycove/cortex/internal/energy"
	"github.com/ivycove/cortex/internal/events"
	"github.com/ivycove/cortex/internal/gateway"
	"github.com/ivycove/cortex/internal/ingress"
	"github.com/ivycove/cortex/internal/logging"
	"github.com/ivycove/cortex/internal/loop"
	"github.com/ivycove/cortex/internal/subagent"
	"github.com/ivycove/cortex/internal/thoughts"
	"github.com/ivycove/cortex/internal/tools"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the cognitive loop and HTTP ingress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := config.ValidateStartup(cfg); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := logging.Logger()
	logger.Info("starting cognition-core",
		"provider", cfg.AIProvider, "db_path", cfg.DBPath, "port", cfg.Port)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, cfg.Duration)
		defer cancel()
	}

	store, err := convstore.Open(runCtx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer store.Close()

	regulator := energy.New(cfg.ReplenishRate)
	gw, err := buildGateway(cfg)
	if err != nil {
		return fmt.Errorf("build model gateway: %w", err)
	}

	th := thoughts.New()
	focus := &tools.Focus{}
	registry := tools.NewRegistry()

	var pub *events.Publisher
	if cfg.EventsEnabled {
		pub = events.New()
	}

	var sub *subagent.SubAgent
	if cfg.SubAgentEnabled {
		gate := subagent.NewEgressGate(nil)
		if _, err := gate.Start(); err != nil {
			logger.Warn("sub-agent egress gate failed to start, external tools disabled", "error", err)
		} else {
			sub = subagent.New(&noopExternalSource{}, gate)
			sub.Start(runCtx)
			defer sub.Stop()
		}
	}

	tools.RegisterCore(registry, store, regulator, th, focus)
	if sub != nil {
		registry.Register(&tools.ExternalSourceTool{Dispatcher: sub})
	}

	l := loop.New()
	l.Energy = regulator
	l.Store = store
	l.Thoughts = th
	l.Focus = focus
	l.Registry = registry
	l.Gateway = gw
	l.SubAgent = sub
	l.Events = pub
	if sub != nil {
		l.External = []string{"external_tool"}
	}

	srv := ingress.New(l, store, regulator, cfg.RateLimitPerMinute, cfg.MaxMessageLength)
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: srv.Handler()}

	loopErrCh := make(chan error, 1)
	go func() {
		loopErrCh <- l.Run(runCtx)
	}()

	httpErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- err
			return
		}
		httpErrCh <- nil
	}()

	var finalErr error
	select {
	case <-runCtx.Done():
	case err := <-httpErrCh:
		if err != nil {
			finalErr = err
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}

	if err := <-loopErrCh; err != nil && finalErr == nil {
		finalErr = err
	}

	logger.Info("cognition-core stopped")
	return finalErr
}

// buildGateway constructs the model gateway's tier table and a single
// provider backend shared across tiers, differentiated only by the
// concrete model id each tier carries.
func buildGateway(cfg *config.Config) (*gateway.Gateway, error) {
	var backend gateway.Backend
	var smallModel, mediumModel, largeModel string

	switch strings.ToLower(cfg.AIProvider) {
	case "anthropic", "":
		backend = gateway.NewAnthropicBackend(cfg.ProviderAPIKey, cfg.ProviderBaseURL)
		smallModel, mediumModel, largeModel = "claude-3-5-haiku-latest", "claude-sonnet-4-5", "claude-opus-4-1"
	case "openrouter":
		backend = gateway.NewOpenRouterBackend(cfg.ProviderAPIKey, cfg.ProviderBaseURL)
		smallModel, mediumModel, largeModel = "anthropic/claude-3.5-haiku", "anthropic/claude-sonnet-4.5", "anthropic/claude-opus-4.1"
	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER %q", cfg.AIProvider)
	}

	if cfg.AIModel != "" {
		smallModel, mediumModel, largeModel = cfg.AIModel, cfg.AIModel, cfg.AIModel
	}

	tiers := []gateway.Tier{
		{MinEnergy: 0, Name: "small", NominalCost: 1, ModelID: smallModel},
		{MinEnergy: 20, Name: "medium", NominalCost: 4, ModelID: mediumModel},
		{MinEnergy: 50, Name: "large", NominalCost: 8, ModelID: largeModel},
	}
	backends := map[string]gateway.Backend{"small": backend, "medium": backend, "large": backend}
	return gateway.New(tiers, backends), nil
}

// noopExternalSource is the default external-tool-source backing the
// sub-agent when no MCP tool federation is configured: every request
// completes immediately with a message explaining there is nothing wired
// up, rather than the sub-agent silently stalling forever.
type noopExternalSource struct{}

func (noopExternalSource) Handle(_ context.Context, req subagent.Request) (string, error) {
	return fmt.Sprintf("no external tool source configured for %q", req.ToolName), nil
}
