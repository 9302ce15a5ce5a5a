package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/dl-alexandre/bimview/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a viewing session over HTTP",
	Long: `Keep one session open behind a local HTTP API: open projects, expand
and check tree nodes, start and cancel load batches, follow progress on
GET /api/progress (server-sent events) and read the scene.

Prometheus metrics are served on /metrics.`,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, cfg, err := newSession(ctx)
	if err != nil {
		return out.Fail("serve", err)
	}
	defer v.Close()

	projects, err := loadProjects()
	if err != nil {
		return out.Fail("serve", err)
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.ServeAddr
	}
	out.Log("Serving %s backend on http://%s", v.Backend(), addr)

	if err := server.New(v, projects, logger).ListenAndServe(ctx, addr); err != nil {
		return out.Fail("serve", err)
	}
	return nil
}
