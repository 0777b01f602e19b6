package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/companion/internal/appconfig"
	"pkt.systems/companion/internal/mockserver"
	"pkt.systems/pslog"
)

func newMockServerCmd(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run an in-memory companion service for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(*cfgPath)
			if err != nil {
				return err
			}
			if strings.TrimSpace(addr) == "" {
				addr = cfg.Mock.Addr
			}
			logger := pslog.Ctx(cmd.Context())
			srv := mockserver.New(mockserver.Config{
				TokenTTL: time.Duration(cfg.Mock.TokenTTLMinutes) * time.Minute,
				Logger:   logger,
			})
			logger.Info("mock server starting", "addr", addr, "token_ttl_minutes", cfg.Mock.TokenTTLMinutes)
			return mockserver.ListenAndServe(cmd.Context(), addr, srv.Handler())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default mock.addr)")
	return cmd
}
