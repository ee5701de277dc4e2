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

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/api"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/config"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/janitor"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/resource"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session API on localhost (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running folio serve",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, server and session status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Release orphaned file selections and prune old ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			res, err := janitor.New(a.store, 0).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			printSuccess("Released %d orphaned selection(s), pruned %d", res.Released, res.Pruned)
			return nil
		})
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "folio.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "folio version %s\n", version)

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("getting API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("folio is already serving (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("folio is already serving on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go janitor.New(a.store, janitor.DefaultInterval).Run(ctx)

	topRouter := chi.NewRouter()
	topRouter.Mount("/", api.NewHandler(api.SessionDeps{Dashboard: a.svc, Token: apiToken}))

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: topRouter,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "folio listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{Dashboard: a.svc, Version: version})
	slog.Info("MCP server started (stdio transport)")
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
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
		printError("folio is not serving (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop folio (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to folio (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	printStatus("Backend", "%s", cfg.Backend.URL)
	if err := cfg.RequireBackend(); err != nil {
		printStatus("Backend token", "missing")
	} else {
		printStatus("Backend token", "set")
	}

	state := "stopped"
	if client, err := newAPIClient(cfg); err == nil {
		if resp, err := client.get(ctx, "/health"); err == nil {
			var health map[string]string
			if decodeJSON(resp, &health) == nil && health["status"] == "ok" {
				state = fmt.Sprintf("running on port %d", cfg.Server.Port)
			} else {
				state = "unhealthy"
			}
		}
	}
	printStatus("Server", "%s", state)

	if err := withApp(func(a *app) error {
		for _, name := range resource.Names() {
			kind, _ := resource.Lookup(name)
			entities, err := a.svc.List(kind)
			if err != nil {
				return err
			}
			if len(entities) == 0 {
				continue
			}
			unsaved := 0
			for _, e := range entities {
				if e.HasChanges() {
					unsaved++
				}
			}
			printStatus(kind.Name, "%d session(s), %d unsaved", len(entities), unsaved)
		}
		previews, err := a.store.ActivePreviews()
		if err != nil {
			return err
		}
		printStatus("Pending files", "%d", len(previews))
		return nil
	}); err != nil {
		printWarning("sessions unavailable: %v", err)
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
