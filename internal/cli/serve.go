package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/procflow/procflow/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over HTTP",
	Long: `Serve exposes template validation, process instantiation, and assignment
operations as a JSON API. Error kinds map to transport statuses: missing
entities 404, lifecycle conflicts 409, invalid input 400.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()
		settings := httpapi.DefaultSettings()
		settings.Enabled = rt.cfg.Server.Enabled
		settings.Host = rt.cfg.Server.Host
		settings.Port = rt.cfg.Server.Port
		server, err := httpapi.NewServer(settings, rt.engine, httpapi.WithLogger(rt.logger))
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := server.Start(ctx); err != nil {
			return err
		}
		fmt.Printf("serving on %s\n", server.Addr())
		<-ctx.Done()
		return server.Shutdown(nil)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
