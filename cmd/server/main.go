// Command server starts the Aganor relay: a WebSocket fan-out server for the
// voxel game that also serves the game client's static assets.
//
// Port, host, and the optional shared password may be supplied as flags or
// via the PORT, HOST, and PASSWORD environment variables; a .env file in the
// working directory is honored when present.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/agare87900/aganor/internal/server"
)

const appName = "aganor"

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cmd := &cli.Command{
		Name:  appName,
		Usage: "WebSocket relay server for the voxel game",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   3000,
				Usage:   "port to listen on",
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "host",
				Value:   "0.0.0.0",
				Usage:   "interface to listen on",
				Sources: cli.EnvVars("HOST"),
			},
			&cli.StringFlag{
				Name:    "password",
				Value:   "",
				Usage:   "shared password required to join (empty disables authentication)",
				Sources: cli.EnvVars("PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "static",
				Value:   ".",
				Usage:   "directory containing the game client assets",
				Sources: cli.EnvVars("STATIC_DIR"),
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	// Env-only settings (origins, limits) first, then the flag surface on top.
	cfg := server.NewConfigFromEnv()
	cfg.Host = cmd.String("host")
	cfg.Port = int(cmd.Int("port"))
	cfg.Password = cmd.String("password")
	cfg.StaticDir = cmd.String("static")
	server.SetConfig(cfg)

	server.StartHub()

	mux := server.SetupRoutes()
	httpServer := server.CreateServer(cfg.Addr(), mux)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigCh:
		log.Printf("Received signal %s, shutting down", sig)
	case <-ctx.Done():
	}

	if err := server.ShutdownServer(httpServer, 10*time.Second); err != nil {
		log.Printf("HTTP shutdown did not complete cleanly: %v", err)
	}
	if err := server.GetHub().Shutdown(5 * time.Second); err != nil {
		log.Printf("Hub shutdown did not complete cleanly: %v", err)
	}
	return nil
}
