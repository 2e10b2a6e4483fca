package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mnehpets/rpcdispatch/auth"
	"github.com/mnehpets/rpcdispatch/config"
	"github.com/mnehpets/rpcdispatch/endpoint"
	"github.com/mnehpets/rpcdispatch/jsonrpc"
	"github.com/mnehpets/rpcdispatch/metrics"
	"github.com/mnehpets/rpcdispatch/middleware"
	"github.com/mnehpets/rpcdispatch/services/admin"
	"github.com/mnehpets/rpcdispatch/services/arith"
	"github.com/mnehpets/rpcdispatch/services/session"
)

func initLogger(level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().Timestamp().Str("app", "rpcserver").Logger()
	if lvl, err := zerolog.ParseLevel(level); err == nil && level != "" {
		logger = logger.Level(lvl)
	}
	log.Logger = logger
	return logger
}

type healthParams struct{}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := initLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	ladder := make(auth.Ladder, 0, len(cfg.Levels))
	for _, lv := range cfg.Levels {
		ladder = append(ladder, jsonrpc.Level(lv))
	}

	verifier, sealer, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	controller := auth.NewController(verifier, ladder)

	users := make(map[string]session.User, len(cfg.Users))
	for name, u := range cfg.Users {
		users[name] = session.User{PasswordHash: []byte(u.PasswordHash), Level: jsonrpc.Level(u.Level)}
	}

	catalog := jsonrpc.NewCatalog()
	registry := jsonrpc.NewRegistry(catalog, cfg.Aliases)
	catalog.Register(arith.Path, arith.Module)
	catalog.Register(session.Path, session.Module(&session.Config{
		Users:    users,
		Sealer:   sealer,
		Verifier: verifier,
	}))
	catalog.Register(admin.Path, admin.Module(registry))

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(promRegistry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	dispatcher := jsonrpc.NewDispatcher(registry, controller,
		jsonrpc.WithVersion(cfg.Version),
		jsonrpc.WithDebugLevel(jsonrpc.Level(cfg.DebugLevel)),
		jsonrpc.WithLogger(logger),
		jsonrpc.WithObserver(collector),
	)

	processors := []endpoint.Processor{
		&middleware.RequestLogger{Logger: logger},
		&middleware.APIHeaders{AllowedOrigins: cfg.AllowedOrigins},
	}
	if cfg.RateLimit.Enabled {
		processors = append(processors, middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}

	mux := http.NewServeMux()
	mux.Handle("/rpc", endpoint.Handler(dispatcher.Endpoint, processors...))
	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", endpoint.HandleFunc(func(w http.ResponseWriter, r *http.Request, _ healthParams) (endpoint.Renderer, error) {
		return &endpoint.JSONRenderer{Value: map[string]any{
			"status":  "ok",
			"version": dispatcher.Version(),
			"loaded":  registry.Loaded(),
		}}, nil
	}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("auth", cfg.Auth.Mode).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newVerifier builds the token verifier for the configured mode. The sealer
// is returned only in sealed mode, where the server issues its own tokens.
func newVerifier(ctx context.Context, a config.AuthConfig) (auth.Verifier, *auth.Sealer, error) {
	switch a.Mode {
	case config.AuthSealed:
		keys, err := a.DecodeKeys()
		if err != nil {
			return nil, nil, err
		}
		sealer, err := auth.NewSealer(a.KeyID, keys)
		if err != nil {
			return nil, nil, err
		}
		return sealer, sealer, nil
	case config.AuthJWT:
		v, err := auth.NewJWTVerifier(auth.JWTConfig{
			Secret:     []byte(a.JWTSecret),
			Issuer:     a.Issuer,
			Audience:   a.Audience,
			LevelClaim: a.LevelClaim,
		})
		return v, nil, err
	case config.AuthOIDC:
		v, err := auth.DiscoverOIDC(ctx, a.Issuer, a.ClientID, a.LevelClaim)
		return v, nil, err
	case config.AuthUserInfo:
		return &auth.UserInfoVerifier{URL: a.UserInfoURL, LevelClaim: a.LevelClaim}, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown auth mode %q", a.Mode)
}
