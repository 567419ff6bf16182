package commands

import (
	"context"
	"fmt"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/kbase/cts-browser/internal/constants"
	"github.com/kbase/cts-browser/internal/logger"
	"github.com/kbase/cts-browser/internal/mockcts"
	"github.com/kbase/cts-browser/internal/proxy"
)

const flagPort = "port"

// shutdownTimeout bounds the graceful shutdown of the dev servers
const shutdownTimeout = 5 * time.Second

// portFlag returns the --port value when set, otherwise fallback
func portFlag(cmd *cobra.Command, fallback int) int {
	if cmd.Flags().Changed(flagPort) {
		port, _ := cmd.Flags().GetInt(flagPort)
		return port
	}
	return fallback
}

// serve runs srv on addr until ctx is done
func serve(ctx context.Context, srv *fiber.App, addr string) error {
	// Request logs are JSON lines, like any other service log
	if err := logger.Configure("", logger.FormatJSON, nil); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Listen(addr)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		pterm.Info.Println("Shutting down...")
		if err := srv.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	}
}

func newMockServerCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Serve the CTS routes from built-in sample data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			port := portFlag(cmd, c.app.Config.MockServerPort)
			srv := mockcts.NewServer(c.app.Mock)

			pterm.Info.Printf("Mock CTS listening on http://localhost:%d\n", port)
			pterm.Info.Printf("Point clients at it with %s=http://localhost:%d\n", constants.EnvAPIBase, port)
			return serve(cmd.Context(), srv, fmt.Sprintf(":%d", port))
		},
	}
	cmd.Flags().Int(flagPort, 0, envHelp("Port to listen on", constants.EnvMockServerPort))
	return cmd
}

func newProxyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Forward requests to the CTS with CORS headers for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			port := portFlag(cmd, c.app.Config.ProxyPort)
			srv, err := proxy.NewServer(proxy.Options{
				Target:  c.app.Config.APIBase,
				Timeout: c.app.Config.Timeout,
			})
			if err != nil {
				return err
			}

			pterm.Info.Printf("CTS proxy listening on http://localhost:%d\n", port)
			pterm.Info.Printf("Proxying to: %s\n", c.app.Config.APIBase)
			return serve(cmd.Context(), srv, fmt.Sprintf(":%d", port))
		},
	}
	cmd.Flags().Int(flagPort, 0, envHelp("Port to listen on", constants.EnvProxyPort))
	return cmd
}
