// Package main is the entry point for the Oracle-MCP migration engine.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jonivernergaard/Oracle-MCP/internal/agent"
	"github.com/jonivernergaard/Oracle-MCP/internal/config"
	"github.com/jonivernergaard/Oracle-MCP/internal/httpapi"
	"github.com/jonivernergaard/Oracle-MCP/internal/library"
	"github.com/jonivernergaard/Oracle-MCP/internal/logging"
	"github.com/jonivernergaard/Oracle-MCP/internal/session"
	"github.com/jonivernergaard/Oracle-MCP/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to configuration JSON file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("oraclemcp %s (commit=%s, built=%s)\n", version, commit, date)
		os.Exit(0)
	}

	// Resolve config path: --config flag > OMCP_CONFIG env > auto-discover.
	path := *configPath
	if path == "" {
		path = os.Getenv("OMCP_CONFIG")
	}
	if path == "" {
		path = discoverConfig()
	}
	if path == "" {
		fatal("no config found. Place config.json next to the exe, use --config <path>, or set OMCP_CONFIG.")
	}

	cfg, err := config.Load(path)
	if err != nil {
		fatal(fmt.Sprintf("load config: %v", err))
	}

	log := logging.New(cfg.LogPath, cfg.Debug)
	defer log.Sync()

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		fatal(fmt.Sprintf("open database: %v", err))
	}
	defer db.Close()

	// Wire provider registry.
	registry := agent.NewRegistry()
	for name, pc := range cfg.Providers {
		if err := registry.Register(agent.ProviderSpec{
			Name:    name,
			Command: pc.Command,
			Args:    pc.Args,
			Env:     pc.Env,
		}); err != nil {
			fatal(fmt.Sprintf("register provider %s: %v", name, err))
		}
	}

	// Wire the asset library and run manager.
	lib := library.New(cfg.DatasetsDir, cfg.DocumentsDir, log)
	defer lib.Close()

	manager := session.NewManager(registry, db, cfg.OutputDir, log)

	handler := &httpapi.Handler{
		Manager:              manager,
		Library:              lib,
		Registry:             registry,
		DB:                   db,
		DefaultMaxIterations: cfg.DefaultMaxIterations,
		Log:                  log,
	}
	srv := httpapi.NewServer(handler, cfg.ListenAddr)

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down")

		if err := manager.StopActive(); err != nil {
			log.Debug("no active run to stop", zap.Error(err))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("server shutdown", zap.Error(err))
		}
	}()

	url := httpapi.FormatListenURL(cfg.ListenAddr)
	log.Info("oracle-mcp engine listening", zap.String("url", url))

	// Auto-open browser for desktop use.
	openBrowser(url)

	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		fatal(fmt.Sprintf("server error: %v", err))
	}
}

// discoverConfig looks for config.json next to the executable, then in the cwd.
func discoverConfig() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "config.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat("config.json"); err == nil {
		return "config.json"
	}
	return ""
}

// fatal prints an error and, on Windows, waits for a keypress so the user can
// read the message when the exe is launched by double-click.
func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", msg)
	if runtime.GOOS == "windows" {
		fmt.Fprintln(os.Stderr, "\nPress Enter to exit...")
		bufio.NewReader(os.Stdin).ReadBytes('\n')
	}
	os.Exit(1)
}

// openBrowser opens the URL in the default browser.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}
