package command

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/leafsii/redis-demo/internal/api"
	"github.com/leafsii/redis-demo/internal/log"
	"github.com/leafsii/redis-demo/internal/stream"
	"github.com/leafsii/redis-demo/pkg/kv"
)

// ServeCommand returns the serve command.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API (scenario runs, history, live events, metrics)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides RDM_HTTP_ADDR)",
			},
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "How long outstanding requests get to finish on shutdown",
				Value: 30 * time.Second,
			},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	rt, err := openRuntime(c, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger := rt.cfg, rt.logger
	if addr := c.String("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}

	logger.Infow("Starting redis-demo API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"backend", cfg.Redis.Backend,
		"version", Version,
	)

	// Background services stop with the command
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	monitor := kv.NewMonitor(rt.tpl, cfg.Health.ProbeInterval, log.KVLogFunc(logger))
	monitor.Start(ctx)
	defer monitor.Close()

	sseHandler := stream.NewSSEHandler(rt.runner, logger)
	handler := api.NewHandler(rt.runner, monitor, sseHandler, logger)
	middleware := api.NewMiddleware(logger, rt.metrics)
	router := handler.Routes(middleware, rt.metricsHandler, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)

	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// WriteTimeout stays zero so the event stream is not cut off; the JSON
	// routes carry their own timeout middleware
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Errorw("Server startup failed", "error", err)
		return err
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	case <-c.Context.Done():
		logger.Infow("Shutdown requested")
	}

	// Event streams hold their requests open; cancelling ctx ends them
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.Duration("shutdown-timeout"))
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("Graceful shutdown failed", "error", err)
		server.Close()
	}

	logger.Infow("Server stopped")
	return nil
}
