// chart-renderd is the chart render service daemon: it accepts chart
// definitions over HTTP and returns rasterized images produced in headless
// Chromium.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourusername/chart-render-service/pkg/api"
	"github.com/yourusername/chart-render-service/pkg/config"
	"github.com/yourusername/chart-render-service/pkg/janitor"
	"github.com/yourusername/chart-render-service/pkg/render"
	"github.com/yourusername/chart-render-service/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(cfg *config.Config) error {
	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := render.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	jan, err := janitor.New(st, engine, cfg.Janitor.Schedule, cfg.Store.RetentionDays)
	if err != nil {
		return err
	}
	if err := jan.Start(); err != nil {
		return err
	}
	defer jan.Stop()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewHandler(engine, st),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Chart render service listening on %s (backend: %s)", cfg.Server.Addr, engine.Name())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARNING: HTTP shutdown did not complete cleanly: %v", err)
	}
	return nil
}
