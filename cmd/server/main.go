package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/chatroom/internal/logger"
	"github.com/Tyrowin/chatroom/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CHATROOM_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "chatroom: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log := logger.Init(logger.LogLevel(cfg.Logging.Level), cfg.Logging.Format)
	log.Info("starting chatroom server", "config", cfg.String())

	gin.SetMode(gin.ReleaseMode)

	srv, err := server.NewServer(cfg, log)
	if err != nil {
		return err
	}
	httpServer := server.CreateServer(cfg.Port, srv.SetupRoutes())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutdown requested")

		// Websocket connections are hijacked, so the HTTP shutdown does not
		// wait for them; the server closes them itself.
		httpErr := server.ShutdownServer(httpServer, shutdownTimeout)
		hubErr := srv.Shutdown(shutdownTimeout)
		return errors.Join(httpErr, hubErr)
	})

	return g.Wait()
}
