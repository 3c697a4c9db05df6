package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"relayhub/internal/config"
	"relayhub/internal/httpapi"
	"relayhub/internal/logging"
	"relayhub/internal/relay"
)

func main() {
	log := logging.New("relayhub")

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config: %v", err)
		os.Exit(1)
	}

	server := relay.New(cfg, log)
	router := httpapi.NewRouter(server, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go server.Run(ctx)

	addr := ":" + strconv.Itoa(cfg.Port)
	log.Info("listening on %s", addr)
	httpServer := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server exited: %v", err)
		os.Exit(1)
	}
}
