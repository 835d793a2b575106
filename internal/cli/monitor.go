package cli

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/labfleet/labfleet/internal/api"
	"github.com/labfleet/labfleet/internal/userdata"
)

var monitorSandboxID string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Serve the trainee status API for a running session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMonitor()
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monitorSandboxID, "sandbox-id", os.Getenv("LABFLEET_SANDBOX_ID"), "Instructor reservation to monitor")
	RootCmd.AddCommand(monitorCmd)
}

func runMonitor() error {
	if err := requireSandboxID(monitorSandboxID); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, _, err := newClients(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := userdata.NewStore(client, monitorSandboxID)
	if err := store.Load(ctx); err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	h := api.NewHandler(client, store, cfg.MonitorAPIKey)
	h.RegisterRoutes(e)

	port := strconv.Itoa(cfg.MonitorPort)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", port).Str("reservation", monitorSandboxID).Msg("monitor API listening")
		serverErr <- e.Start(":" + port)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	case err := <-serverErr:
		return err
	}
}
