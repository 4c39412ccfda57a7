package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/admarket/moderation/pkg/app"
	"github.com/admarket/moderation/pkg/config"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	cfgPath := getenv("MODERATION_CONFIG_PATH", "")

	cfg, err := config.LoadConfigOptional(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] load config:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] init app:", err)
		os.Exit(1)
	}

	w, err := application.NewWorker(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] init worker:", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	go func() {
		if err := w.Run(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "[ERROR] worker:", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		fmt.Fprintln(os.Stderr, "[WARN] worker drain timed out")
	}

	if application.TracingShutdown != nil {
		shutCtx, c := context.WithTimeout(context.Background(), 10*time.Second)
		defer c()
		_ = application.TracingShutdown(shutCtx)
	}
}
