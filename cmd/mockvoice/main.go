package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edenward/carevoice/internal/mockbackend"
	"github.com/edenward/carevoice/internal/observability"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	port := flag.Int("port", 8000, "listen port")
	mode := flag.String("mode", "release", "gin mode: release or debug")
	secret := flag.String("secret", "carevoice-mock", "cookie store secret")
	logFile := flag.String("log-file", "", "optional rotated log file")
	flag.Parse()

	observability.SetupLogging(*logFile, *mode == "debug")

	srv := mockbackend.NewServer()
	r := mockbackend.SetupRouter(mockbackend.RouterConfig{Mode: *mode, Secret: *secret}, srv)
	addr := fmt.Sprintf(":%d", *port)

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("mock voice backend started")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
