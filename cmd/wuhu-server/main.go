// Command wuhu-server runs the session runtime's HTTP/SSE front door (spec
// §9: a single process owning one Entry Store handle, one Live Event Hub,
// one Async Background Tool Registry, and a Session Actor per active
// session, all reachable only through internal/transport).
//
// Grounded on cmd/opencode-server/main.go: flag-based startup,
// signal.Notify(SIGINT, SIGTERM) followed by a timeout-bounded graceful
// shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wuhu-labs/wuhu/internal/bgtool"
	"github.com/wuhu-labs/wuhu/internal/config"
	"github.com/wuhu-labs/wuhu/internal/eventhub"
	"github.com/wuhu-labs/wuhu/internal/logging"
	"github.com/wuhu-labs/wuhu/internal/provider"
	"github.com/wuhu-labs/wuhu/internal/retry"
	"github.com/wuhu-labs/wuhu/internal/session"
	"github.com/wuhu-labs/wuhu/internal/storage"
	"github.com/wuhu-labs/wuhu/internal/tool"
	"github.com/wuhu-labs/wuhu/internal/transport"
	"github.com/wuhu-labs/wuhu/internal/truncate"
)

var (
	addr       = flag.String("addr", ":8080", "HTTP listen address")
	dbPath     = flag.String("db", "wuhu.db", "Path to the entries SQLite database")
	instanceID = flag.String("instance-id", "wuhu-server", "Owner id for this process's background jobs")
	version    = flag.Bool("version", false, "Print version and exit")
	logLevel   = flag.String("log-level", "info", "Minimum log level (debug, info, warn, error)")
	logPretty  = flag.Bool("log-pretty", false, "Write console logs in human-readable form instead of JSON")
	logDir     = flag.String("log-dir", "", "Directory for a timestamped log file; empty disables file logging")
)

const Version = "0.1.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("wuhu-server %s\n", Version)
		os.Exit(0)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(*logLevel)
	logCfg.Pretty = *logPretty
	if *logDir != "" {
		logCfg.LogToFile = true
		logCfg.LogDir = *logDir
	}
	logging.Init(logCfg)
	defer logging.Close()
	if path := logging.GetLogFilePath(); path != "" {
		logging.Info().Str("path", path).Msg("logging to file")
	}

	_ = godotenv.Load(".env")

	store, err := storage.Open(*dbPath)
	if err != nil {
		logging.Fatal().Err(err).Str("path", *dbPath).Msg("open entry store")
	}
	defer store.Close()

	// Concrete provider HTTP clients are an explicit external collaborator
	// (spec §1's Non-goals); this process registers the mock provider as a
	// stand-in so the runtime is runnable end to end without API keys.
	// A real deployment registers its own Provider implementations here.
	providers := provider.NewRegistry("mock/mock-model")
	providers.Register(provider.NewMockProvider("mock", []provider.ModelInfo{
		{ID: "mock-model", Name: "Mock Model", ContextWindowTokens: 200000},
	}))

	// Concrete shell/file tools are likewise an external collaborator
	// concern; the registry starts empty and a deployment registers its own
	// tool.Tool implementations (read, write, grep, bash, ...).
	tools := tool.NewRegistry()

	hub := eventhub.New()
	defer hub.Close()

	deps := session.Deps{
		Store:     store,
		Hub:       hub,
		Providers: providers,
		Tools:     tools,
		Retry:     retry.DefaultOptions(),
		Compactor: config.LoadCompactionConfig(0),
	}
	mgr := session.NewManager(deps)

	bgRegistry := bgtool.New()
	defer bgRegistry.Close()

	lookup := func(ctx context.Context, sessionID string) (bgtool.Steerer, error) {
		actor, err := mgr.EnsureStarted(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return actor, nil
	}
	router := bgtool.NewRouter(bgRegistry, *instanceID, lookup, truncate.DefaultLimits)

	routerCtx, cancelRouter := context.WithCancel(context.Background())
	defer cancelRouter()
	go func() {
		if err := router.Run(routerCtx); err != nil && routerCtx.Err() == nil {
			logging.Error().Err(err).Msg("background tool completion router stopped")
		}
	}()

	srv := transport.New(transport.Config{
		Addr:         *addr,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
	}, mgr, hub)

	go func() {
		logging.Info().Str("addr", *addr).Msg("wuhu-server listening")
		if err := srv.Start(); err != nil {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")
	cancelRouter()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("stopped")
}
