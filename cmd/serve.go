package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pme-sh/lrpc/config"
	"github.com/pme-sh/lrpc/demo"
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/service"
	"github.com/pme-sh/lrpc/xlog"

	"github.com/spf13/cobra"
)

func init() {
	var listen, transport string
	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the demo service",
		Args:    cobra.NoArgs,
		GroupID: refGroup("node", "Node Commands"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Get()
			if err != nil {
				return err
			}
			c := *cfg
			if listen != "" {
				c.Listen = listen
			}
			if transport != "" {
				c.Transport = transport
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, &c)
		},
	}
	serveCmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address, overrides the configuration")
	serveCmd.Flags().StringVarP(&transport, "transport", "t", "", "tcp or ws, overrides the configuration")
	config.RootCommand.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	if cfg.Service != "" && fn.ServiceId(cfg.Service) != demo.ID {
		return fmt.Errorf("this build only serves %s, configured for %s", demo.ID, cfg.Service)
	}
	ep, err := fn.ParseEndpoint(cfg.AdvertisedAddr())
	if err != nil {
		return err
	}

	n, err := openNode(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer n.Close()

	svc := service.New(service.Options{
		ID:        demo.ID,
		Endpoint:  ep,
		Connector: n.connector,
		BoundTTL:  cfg.BoundTTL.Duration(),
		Rate:      cfg.RateLimit,
		Burst:     cfg.RateBurst,
	})
	defer svc.Close()
	if _, err := demo.Expose(svc); err != nil {
		return err
	}

	withdraw, err := n.Announce(ctx, svc.ID(), ep)
	if err != nil {
		return err
	}
	defer func() {
		if err := withdraw(); err != nil {
			xlog.Warn().Err(err).Msg("withdrawing announcement")
		}
	}()

	xlog.Info().
		Str("service", svc.ID().String()).
		Stringer("endpoint", ep).
		Str("transport", cfg.Transport).
		Int("functions", len(svc.Names())).
		Msg("serving")
	return svc.ListenAndServe(ctx, cfg.Listen, cfg.Transport)
}
