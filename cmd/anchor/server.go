package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/anchor/internal/api"
	"github.com/kalambet/anchor/internal/chat"
	"github.com/kalambet/anchor/internal/config"
	"github.com/kalambet/anchor/internal/engine"
	"github.com/kalambet/anchor/internal/identity"
	"github.com/kalambet/anchor/internal/intake"
	"github.com/kalambet/anchor/internal/question"
	"github.com/kalambet/anchor/internal/session"
	"github.com/kalambet/anchor/internal/storage"
)

var noMCP bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the anchor server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running anchor server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show anchor system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().BoolVar(&noMCP, "no-mcp", false, "do not serve MCP on stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "anchor.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseLogLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func engineConfig(cfg config.Config) engine.Config {
	return engine.Config{
		Backend:          cfg.Completion.Backend,
		Model:            cfg.Completion.Model,
		OllamaBaseURL:    cfg.Completion.OllamaBaseURL,
		GeminiAPIKey:     cfg.Completion.GeminiAPIKey,
		OpenRouterAPIKey: cfg.Completion.OpenRouterAPIKey,
	}
}

// newStateStore picks Redis when an address is configured, memory otherwise.
// The returned close func is never nil.
func newStateStore(ctx context.Context, cfg config.SessionConfig) (session.StateStore, func() error, error) {
	if cfg.RedisAddr == "" {
		return session.NewMemoryStore(cfg.TTL), func() error { return nil }, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	slog.Info("session state in redis", "addr", cfg.RedisAddr, "ttl", cfg.TTL)
	return session.NewRedisStore(rdb, cfg.TTL), rdb.Close, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "anchor version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("anchor is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("anchor is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, engineConfig(cfg))
	if err != nil {
		return fmt.Errorf("creating completion engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, cfg.Completion.Model, os.Stderr); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	state, closeState, err := newStateStore(ctx, cfg.Session)
	if err != nil {
		return err
	}
	defer closeState()

	iss, err := identity.NewIssuer(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	loader := question.NewCachedLoader(store)
	ctrl := chat.NewController(chat.Deps{
		Messages:  store,
		Snapshots: store,
		Completer: eng,
		Model:     cfg.Completion.Model,
		Timeout:   cfg.Completion.Timeout,
	})
	deps := api.Deps{
		Store:    store,
		Issuer:   iss,
		Sessions: session.NewRegistry(ctrl, loader, state),
		Loader:   loader,
		Intake:   intake.NewService(store),
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "anchor listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if !noMCP {
		// Not part of the group: Listen may stay blocked on stdin after
		// shutdown, and a closed stdin ends MCP but not the HTTP API.
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
		go func() {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("anchor is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop anchor (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to anchor (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if eng, err := engine.New(ctx, engineConfig(cfg)); err != nil {
		printStatus("Completion", "%s (error: %v)", cfg.Completion.Backend, err)
	} else if eng.IsRunning(ctx) {
		printStatus("Completion", "%s reachable", cfg.Completion.Backend)
	} else {
		printStatus("Completion", "%s not reachable", cfg.Completion.Backend)
	}
	printStatus("Model", "%s", cfg.Completion.Model)

	if cfg.Session.RedisAddr != "" {
		printStatus("Sessions", "redis at %s (ttl %s)", cfg.Session.RedisAddr, cfg.Session.TTL)
	} else {
		printStatus("Sessions", "in memory")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
