package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/triage-ai/graphql-mcp/internal/auth"
	"github.com/triage-ai/graphql-mcp/internal/catalog"
	"github.com/triage-ai/graphql-mcp/internal/engine"
	"github.com/triage-ai/graphql-mcp/internal/graphql"
	"github.com/triage-ai/graphql-mcp/internal/metrics"
	"github.com/triage-ai/graphql-mcp/internal/pagination"
	"github.com/triage-ai/graphql-mcp/internal/registry"
	"github.com/triage-ai/graphql-mcp/internal/server"
	"github.com/triage-ai/graphql-mcp/internal/storage"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "keygen" {
		if err := keygen(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	transport := envOrDefault("GRAPHQL_MCP_TRANSPORT", "http")

	// Logger. stdout carries the protocol in stdio mode.
	logger := mustBuildLogger(envOrDefault("GRAPHQL_MCP_LOG_LEVEL", "info"), transport == "stdio")
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	port := envOrDefault("GRAPHQL_MCP_PORT", "8080")
	grpcPort := os.Getenv("GRAPHQL_MCP_GRPC_PORT")
	endpoint := os.Getenv("GRAPHQL_ENDPOINT")
	schemaPath := envOrDefault("GRAPHQL_SCHEMA_PATH", "schema.graphql")
	toolsPath := os.Getenv("GRAPHQL_MCP_TOOLS_PATH")
	exposed := splitCSV(os.Getenv("GRAPHQL_MCP_EXPOSED_TOOLS"))
	timeoutMs := envOrDefaultInt("GRAPHQL_TIMEOUT_MS", 15000)
	rateLimit := envOrDefaultFloat("GRAPHQL_RATE_LIMIT_RPS", 0)
	window := pagination.Config{
		PageSize:     envOrDefaultInt("GRAPHQL_MCP_PAGE_SIZE", pagination.DefaultPageSize),
		DefaultLimit: envOrDefaultInt("GRAPHQL_MCP_DEFAULT_LIMIT", pagination.DefaultLimit),
		MaxLimit:     envOrDefaultInt("GRAPHQL_MCP_MAX_LIMIT", pagination.DefaultMaxLimit),
	}
	depth := envOrDefaultInt("GRAPHQL_MCP_SELECTION_DEPTH", catalog.DefaultSelectionDepth)
	cursorTTL := envOrDefaultInt("GRAPHQL_MCP_CURSOR_TTL_S", int(pagination.DefaultCursorTTL/time.Second))
	tokens := splitCSV(os.Getenv("MCP_TOKENS"))
	postgresDSN := os.Getenv("POSTGRES_DSN")
	authCacheTTL := envOrDefaultInt("GRAPHQL_MCP_AUTH_CACHE_TTL_S", 30)
	authFailOpen := envOrDefault("GRAPHQL_MCP_AUTH_FAIL_OPEN", "false") == "true"
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")

	logger.Info("starting graphql mcp server",
		zap.String("version", version),
		zap.String("transport", transport),
		zap.String("endpoint", endpoint),
		zap.String("schema_path", schemaPath),
		zap.Int("page_size", window.PageSize),
		zap.Int("max_limit", window.MaxLimit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres, shared by the manifest source and the authenticator
	var db *sql.DB
	if postgresDSN != "" {
		var err error
		db, err = sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		logger.Info("postgres connected")
	}

	// Tools manifest: file first, then the tool_exposures table
	var manifest *registry.Manifest
	switch {
	case toolsPath != "":
		m, err := registry.LoadManifest(toolsPath)
		if err != nil {
			logger.Fatal("failed to load tools manifest", zap.String("path", toolsPath), zap.Error(err))
		}
		manifest = m
	case db != nil:
		m, err := registry.NewPostgresManifestSource(db, logger).Load(ctx)
		if err != nil {
			logger.Fatal("failed to load tool exposures", zap.Error(err))
		}
		manifest = m
	default:
		logger.Fatal("no tools manifest: set GRAPHQL_MCP_TOOLS_PATH or POSTGRES_DSN")
	}
	manifest, err := manifest.Filter(exposed)
	if err != nil {
		logger.Fatal("invalid exposed tool list", zap.Error(err))
	}

	// Catalog and registry
	catOpts, err := manifest.CatalogOptions(depth)
	if err != nil {
		logger.Fatal("invalid scalar mapping", zap.Error(err))
	}
	cat, err := catalog.Load(schemaPath, catOpts)
	if err != nil {
		logger.Fatal("failed to build operation catalog", zap.Error(err))
	}
	reg := registry.New(window, logger)
	if err := registry.Build(cat, manifest, reg); err != nil {
		logger.Fatal("failed to build tool registry", zap.Error(err))
	}
	logger.Info("tool registry sealed",
		zap.Int("operations", len(cat.Operations())),
		zap.Int("tools", len(reg.List())),
	)

	// Metrics, backend client and pagination
	m := metrics.New()
	client, err := graphql.NewClient(graphql.Config{
		Endpoint:  endpoint,
		AuthToken: os.Getenv("GRAPHQL_AUTH_TOKEN"),
		Timeout:   time.Duration(timeoutMs) * time.Millisecond,
		RateLimit: rateLimit,
		Observer:  m,
	}, logger)
	if err != nil {
		logger.Fatal("failed to build graphql client", zap.Error(err))
	}
	cursors := pagination.NewCursorCache(time.Duration(cursorTTL) * time.Second)
	m.RegisterCursorCacheSize(cursors.Len)
	normalizer := pagination.NewNormalizer(client, cursors, window, m, logger)

	// Storage: ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(ctx, clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Auth: static tokens, Postgres keys, or open
	var authenticator auth.Authenticator
	switch {
	case len(tokens) > 0:
		authenticator = auth.NewStaticAuthenticator(tokens)
		logger.Info("using static authenticator", zap.Int("tokens", len(tokens)))
	case db != nil:
		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       db,
			CacheTTL: time.Duration(authCacheTTL) * time.Second,
			FailOpen: authFailOpen,
			Logger:   logger,
		})
		logger.Info("using postgres authenticator", zap.Bool("fail_open", authFailOpen))
	default:
		authenticator = auth.NewStaticAuthenticator(nil)
		logger.Warn("no MCP_TOKENS or POSTGRES_DSN set, authentication disabled")
	}

	dispatcher := engine.NewDispatcher(reg, client, normalizer, writer, m, logger)
	mcpServer, err := server.NewMCPServer(dispatcher, version, logger)
	if err != nil {
		logger.Fatal("failed to build mcp server", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	if transport == "stdio" {
		g.Go(stopAfter(stop, func() error {
			logger.Info("serving mcp over stdio")
			return server.ServeStdio(gctx, mcpServer, os.Stdin, os.Stdout, logger)
		}))
	} else {
		httpServer := &http.Server{
			Addr: ":" + port,
			Handler: server.NewHTTPServer(server.HTTPConfig{
				Dispatcher: dispatcher,
				Auth:       authenticator,
				Metrics:    m.Handler(),
				MCP:        server.NewStreamableHandler(mcpServer),
				Logger:     logger,
			}).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("http server listening", zap.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	if grpcPort != "" {
		grpcServer := grpc.NewServer(
			grpc.KeepaliveParams(keepalive.ServerParameters{
				MaxConnectionIdle:     5 * time.Minute,
				MaxConnectionAge:      30 * time.Minute,
				MaxConnectionAgeGrace: 10 * time.Second,
				Time:                  30 * time.Second,
				Timeout:               5 * time.Second,
			}),
			grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
				MinTime:             10 * time.Second,
				PermitWithoutStream: true,
			}),
			grpc.MaxRecvMsgSize(4*1024*1024),
			grpc.MaxSendMsgSize(4*1024*1024),
			grpc.UnaryInterceptor(server.UnaryAuthInterceptor(authenticator, logger)),
		)
		server.NewGRPCServer(dispatcher, logger).Register(grpcServer)

		// Health service for load balancer checks
		healthServer := health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus(server.ToolServiceName, healthpb.HealthCheckResponse_SERVING)

		// Enable reflection for debugging with grpcurl
		reflection.Register(grpcServer)

		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Fatal("failed to listen", zap.String("port", grpcPort), zap.Error(err))
		}
		g.Go(func() error {
			logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			healthServer.SetServingStatus(server.ToolServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
			grpcServer.GracefulStop()
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}
	logger.Info("shutdown complete")
}

// stopAfter runs fn and then cancels the shared context, so the other
// surfaces shut down when fn returns on its own (stdin closed).
func stopAfter(stop context.CancelFunc, fn func() error) func() error {
	return func() error {
		defer stop()
		return fn()
	}
}

// keygen prints a new API key and the row values to store in api_keys.
func keygen() error {
	k, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	fmt.Printf("api_key:        %s\n", k.Key)
	fmt.Printf("api_key_prefix: %s\n", k.Prefix)
	fmt.Printf("api_key_hash:   %s\n", k.Hash)
	return nil
}

func mustBuildLogger(level string, toStderr bool) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	output := "stdout"
	if toStderr {
		output = "stderr"
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
