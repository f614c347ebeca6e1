// Package main runs the in-memory stub backend for local development. All
// job processing is simulated; point kbops at it with
// KBOPS_SERVER_URL=http://localhost:8686.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/kbops-go/internal/stub"
)

func main() {
	addr := flag.String("addr", ":8686", "listen address")
	step := flag.Int("step", 25, "progress percent advanced per job fetch")
	rps := flag.Float64("rate-limit", 0, "per-client requests per second (0 disables)")
	token := flag.String("token", "", "require this bearer token on every request")
	flag.Parse()

	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Warn("this is a stub backend for local testing, job processing is simulated")

	server := stub.New(stub.Config{
		ProgressStep:   *step,
		AuthToken:      *token,
		RateLimitRPS:   *rps,
		RateLimitBurst: int(*rps * 2),
	}, logger)

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: server.Handler(),
	}

	go func() {
		slog.Info("starting kbops-stub", "addr", *addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
}
