package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mcphub/internal/app"
	"mcphub/pkg/logging"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub until interrupted",
	Long: `Connects to all configured services and keeps them healthy. The
configuration file is watched; adding or removing services there takes
effect without a restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	hub, err := app.New(cfg, app.Options{})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := hub.Start(ctx, path); err != nil {
		return err
	}
	defer hub.Stop()

	renderServiceTable(os.Stdout, hub.ListServices())

	<-ctx.Done()
	logging.Info("Serve", "Shutdown signal received")
	return nil
}
