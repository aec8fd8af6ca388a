// CLAUDE:SUMMARY CLI entry point for overlayrelay: relays overlay clicks to the control server, or dumps a saved page's structure.
// Command overlayrelay opens a broadcast overlay in Chrome and relays
// clicks on its labelled containers to the control server.
//
// Usage:
//
//	overlayrelay                             # built-in defaults
//	overlayrelay -config overlayrelay.yaml   # bindings and endpoint from YAML
//	overlayrelay -url https://viz.example/x  # override the overlay URL
//	overlayrelay -dump page.html             # print a saved page's structure and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/overlayrelay/relay"
	"github.com/hazyhaar/overlayrelay/relay/structure"
)

func main() {
	configPath := flag.String("config", "", "path to overlayrelay.yaml config file")
	pageURL := flag.String("url", "", "overlay URL (overrides page.url)")
	dumpPath := flag.String("dump", "", "parse a saved HTML page, print its structure tree and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	if *dumpPath != "" {
		err = runDump(logger, os.Stdout, *dumpPath, *pageURL)
	} else {
		err = run(ctx, logger, *configPath, *pageURL)
	}
	if err != nil {
		logger.Error("overlayrelay: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, pageURL string) error {
	cfg := relay.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = relay.LoadConfigFile(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if pageURL != "" {
		cfg.Page.URL = pageURL
	}

	r, err := relay.New(cfg, logger)
	if err != nil {
		return err
	}
	defer r.Close()

	if cfg.Status.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Status.Addr,
			Handler:           r.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("overlayrelay: status listening", "addr", cfg.Status.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("overlayrelay: status server", "error", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	return r.Run(ctx)
}

func runDump(logger *slog.Logger, w io.Writer, path, pageURL string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if pageURL == "" {
		pageURL = "file://" + path
	}
	snap, err := structure.Parse(f, pageURL)
	if err != nil {
		return err
	}
	for _, issue := range snap.Issues {
		logger.Warn("overlayrelay: snapshot issue", "error", issue)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap.Tree())
}
