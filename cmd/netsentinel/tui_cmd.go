package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/netsentinel/agent/internal/config"
	"github.com/netsentinel/agent/internal/eventbus"
	"github.com/netsentinel/agent/internal/transport"
)

// newTUICommand implements spec.md §6's `tui` subcommand: start the
// collector and print every flow to stdout until SIGINT. Grounded on the
// smart-mcp-proxy pack repo's tui_cmd.go command shape; that repo's
// bubbletea dashboard is not part of this spec's scope so this prints a
// plain event stream instead of rendering a full-screen UI.
func newTUICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the collector and print every flow until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			rt, err := buildPipeline(cfg, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			ch, unsubscribe := rt.bus.Subscribe()
			defer unsubscribe()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go printEvents(ctx, ch)
			go serveHTTP(ctx, cfg.Server.Listen, rt)

			return rt.pipeline.Run(ctx)
		},
	}
}

// serveHTTP runs the /healthz, /metrics, and /ws surface from spec.md §6
// until ctx is canceled.
func serveHTTP(ctx context.Context, listen string, rt *runtime) {
	srv := transport.New(rt.bus, func() bool { return true }, rt.promReg)
	httpServer := &http.Server{Addr: listen, Handler: srv.Router()}

	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("tui: http server failed", "error", err)
	}
}

func printEvents(ctx context.Context, ch <-chan eventbus.UiEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Kind {
			case eventbus.KindFlow:
				f := ev.Flow
				fmt.Printf("flow  %s %s:%d -> %s:%d [%s]\n", f.Proto, f.SrcIP, f.SrcPort, f.DstIP, f.DstPort, f.Direction)
			case eventbus.KindAlert:
				a := ev.Alert
				fmt.Printf("alert [%s] %s: %s\n", a.Severity, a.RuleID, a.Summary)
			case eventbus.KindStatus:
				s := ev.Status
				fmt.Printf("status flows=%d alerts=%d errors=%d\n", s.FlowsProcessed, s.AlertsRaised, s.Errors)
			}
		}
	}
}
