package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManuelReschke/ReelPass/internal/pkg/config"
	"github.com/ManuelReschke/ReelPass/internal/pkg/env"
)

func main() {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	application, err := NewApplication(cfg)
	if err != nil {
		log.Fatal(err)
	}
	application.reconciler.Start()

	go func() {
		if err := application.app.Listen(fmt.Sprintf("%s:%s", cfg.AppHost, cfg.AppPort)); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	application.Shutdown(ctx)
}
