// ABOUTME: Gateway orchestrator that builds the router and serves HTTP, WebSocket, and gRPC health
// ABOUTME: Owns the lifecycle of the store, publisher, Redis client, and optional tailnet node

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/salesdesk-gateway/internal/assistant"
	"github.com/2389/salesdesk-gateway/internal/auth"
	"github.com/2389/salesdesk-gateway/internal/bot"
	"github.com/2389/salesdesk-gateway/internal/config"
	"github.com/2389/salesdesk-gateway/internal/dedupe"
	"github.com/2389/salesdesk-gateway/internal/events"
	"github.com/2389/salesdesk-gateway/internal/ratelimit"
	"github.com/2389/salesdesk-gateway/internal/roster"
	"github.com/2389/salesdesk-gateway/internal/routing"
	"github.com/2389/salesdesk-gateway/internal/stats"
	"github.com/2389/salesdesk-gateway/internal/store"
	"github.com/2389/salesdesk-gateway/internal/transport"
)

// HealthService is the gRPC health service name reported while the gateway runs.
const HealthService = "salesdesk.Routing"

// Gateway orchestrates the salesdesk server components.
type Gateway struct {
	config    *config.Config
	store     store.Store
	router    *routing.Router
	responder assistant.Responder
	verifier  *auth.JWTVerifier
	publisher events.Publisher
	redis     *redis.Client
	dedupe    *dedupe.Window
	limiter   ratelimit.Limiter
	websocket *transport.Handler

	httpServer  *http.Server
	grpcServer  *grpc.Server
	health      *health.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// Option overrides a collaborator New would otherwise build from config.
type Option func(*options)

type options struct {
	store     store.Store
	publisher events.Publisher
	responder assistant.Responder
}

// WithStore uses s instead of opening the configured database.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithPublisher uses p instead of dialing the configured broker.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithResponder uses r instead of the configured assistant provider.
func WithResponder(r assistant.Responder) Option {
	return func(o *options) { o.responder = r }
}

// initStore opens the configured SQLite database. SALESDESK_DB_PATH overrides the path.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("SALESDESK_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath, store.WithDriver(cfg.Database.Driver))
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initResponder picks the assistant backend named by assistant.provider.
func initResponder(cfg *config.Config, logger *slog.Logger) assistant.Responder {
	if cfg.Assistant.Provider == "openai" {
		o := cfg.Assistant.OpenAI
		return assistant.NewOpenAIResponder(o.APIKey, o.Model, o.BaseURL, logger.With("component", "openai"))
	}
	return assistant.NewRuleResponder()
}

// initPublisher dials the broker when events are enabled.
func initPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	if !cfg.Events.Enabled {
		return events.Nop{}, nil
	}
	p, err := events.DialAMQP(cfg.Events.URL, cfg.Events.Exchange, cfg.Events.Producer, logger.With("component", "events"))
	if err != nil {
		return nil, fmt.Errorf("connecting to event broker: %w", err)
	}
	return p, nil
}

// needsRedis reports whether any component talks to Redis.
func needsRedis(cfg *config.Config) bool {
	return cfg.Roster.Enabled || (cfg.RateLimit.Enabled && cfg.RateLimit.Backend == "redis")
}

func initLimiter(cfg *config.Config, rdb *redis.Client) ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	if cfg.RateLimit.Backend == "redis" {
		return ratelimit.NewRedisLimiter(rdb, cfg.Roster.KeyPrefix, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}
	return ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
}

// createGRPCServer creates the health-only gRPC server.
func createGRPCServer() (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	return server, hs
}

// New creates a Gateway from cfg. Collaborators not supplied through opts are
// built from configuration; anything opened here is closed again on failure.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (gw *Gateway, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	g := &Gateway{
		config: cfg,
		logger: logger.With("component", "gateway"),
	}
	defer func() {
		if err != nil {
			g.closeResources()
		}
	}()

	g.verifier, err = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	loc, err := cfg.Stats.Location()
	if err != nil {
		return nil, err
	}

	g.store = o.store
	if g.store == nil {
		if g.store, err = initStore(cfg); err != nil {
			return nil, err
		}
	}

	g.publisher = o.publisher
	if g.publisher == nil {
		if g.publisher, err = initPublisher(cfg, logger); err != nil {
			return nil, err
		}
	}

	var mirror roster.Mirror = roster.Noop{}
	if needsRedis(cfg) {
		g.redis, err = roster.NewRedisClient(cfg.Roster.Addr, cfg.Roster.Password, cfg.Roster.DB)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		if cfg.Roster.Enabled {
			mirror = roster.NewRedisMirror(g.redis, cfg.Roster.KeyPrefix)
		}
	}

	g.responder = o.responder
	if g.responder == nil {
		g.responder = initResponder(cfg, logger)
	}

	g.dedupe = dedupe.New(cfg.Routing.DedupeTTL, 100_000)

	g.router = routing.New(routing.Config{
		Store: g.store,
		Stats: stats.NewAggregator(g.store, loc),
		Bot: bot.NewAdapter(bot.Config{
			Responder:    g.responder,
			History:      g.store,
			Keywords:     cfg.Routing.EscalationKeywords,
			HistoryLimit: cfg.Assistant.HistoryLimit,
			Logger:       logger,
		}),
		Events:   g.publisher,
		Producer: cfg.Events.Producer,
		Roster:   mirror,
		Dedupe:   g.dedupe,
		Priority: routing.PriorityRules{
			Urgent: cfg.Routing.UrgentKeywords,
			High:   cfg.Routing.HighKeywords,
		},
		RebroadcastOnRepDisconnect: cfg.Routing.RebroadcastOnRepDisconnect,
		Logger:                     logger,
	})

	ws := cfg.WebSocket
	g.websocket = transport.NewHandler(transport.HandlerConfig{
		Router:   g.router,
		Users:    g.store,
		Verifier: g.verifier,
		Options: transport.Options{
			SendBuffer:      ws.SendBuffer,
			MaxMessageBytes: ws.MaxMessageBytes,
			PingInterval:    ws.PingInterval,
			PongTimeout:     ws.PongTimeout,
			WriteTimeout:    ws.WriteTimeout,
		},
		AllowedOrigins: ws.AllowedOrigins,
		Logger:         logger,
	})

	g.limiter = initLimiter(cfg, g.redis)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Server.GRPCAddr != "" || cfg.Tailscale.Enabled {
		g.grpcServer, g.health = createGRPCServer()
	}

	return g, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Router exposes the conversation router.
func (g *Gateway) Router() *routing.Router {
	return g.router
}

// setupTCPListeners creates standard TCP listeners. grpcLn is nil without a gRPC address.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if g.grpcServer != nil {
		grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}
	return grpcLn, httpLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" || g.config.Server.GRPCAddr != "" {
			g.logger.Warn("server.http_addr and server.grpc_addr are ignored when tailscale is enabled")
		}
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// startServers starts the servers in goroutines, returning their error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	if grpcLn != nil {
		g.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
		g.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		go func() {
			g.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// Run starts the servers and blocks until ctx is canceled or a server fails.
// Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	grpcLn, httpLn, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServers(grpcLn, httpLn)

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	// the run context is already canceled
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "salesdesk", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or TS_AUTHKEY.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners starts a tsnet node and listens on it.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	grpcLn, err = g.tsnetServer.Listen("tcp", ":50051")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
	}

	if tsCfg.Funnel {
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		httpLn, err = g.tsnetServer.ListenFunnel("tcp", ":443")
	} else {
		httpLn, err = g.tsnetServer.Listen("tcp", ":80")
	}
	if err != nil {
		_ = grpcLn.Close()
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return grpcLn, httpLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	g.health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeResources releases every collaborator New opened.
func (g *Gateway) closeResources() []error {
	var errs []error
	if g.dedupe != nil {
		g.dedupe.Close()
	}
	if g.publisher != nil {
		errs = appendCloseError(errs, "event publisher close", g.publisher.Close())
	}
	if g.redis != nil {
		errs = appendCloseError(errs, "redis close", g.redis.Close())
	}
	if g.store != nil {
		errs = appendCloseError(errs, "store close", g.store.Close())
	}
	return errs
}

// Shutdown gracefully stops all servers and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.grpcServer != nil {
		g.shutdownGRPCServer(ctx)
	}
	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = append(errs, g.closeResources()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
