package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/bl4ck0w1/secretlynx/internal/api"
	"github.com/bl4ck0w1/secretlynx/pkg/utils"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan API server",
		Long: `Run the HTTP API. Scans started through POST /api/scan run in the
background; poll /api/scan/:id/progress and /api/scan/:id for results.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().StringP("address", "a", "", "Listen address (default from server.address)")
	_ = viper.BindPFlag("serve.address", cmd.Flags().Lookup("address"))
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr := viper.GetString("serve.address"); addr != "" {
		viper.Set("server.address", addr)
	}

	rt, err := newRuntime(true)
	if err != nil {
		return err
	}
	defer rt.Close()

	var metrics *utils.MetricsCollector
	if rt.cfg.Server.MetricsEnabled {
		metrics = rt.metrics
	}
	server := api.NewServer(rt.scanner, metrics, rt.logger, ToolVersion)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(rt.cfg.Server.Address)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-sigChan:
		logrus.Info("Received interrupt signal, shutting down gracefully...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, sc := range rt.scanner.ListActiveScans() {
		_ = rt.scanner.CancelScan(sc.ScanID)
	}
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
