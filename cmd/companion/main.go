package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/companion/internal/appconfig"
	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole, MinLevel: pslog.WarnLevel}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	if err := appconfig.LoadDotEnv(".env"); err != nil {
		logger.Warn("dotenv load failed", "err", err)
	}

	root := newRootCmd()
	root.SetArgs(os.Args[1:])
	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("companion command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "companion",
		Short:         "Terminal chat client for the companion service",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	root.AddCommand(newLoginCmd(&cfgPath))
	root.AddCommand(newRegisterCmd(&cfgPath))
	root.AddCommand(newLogoutCmd(&cfgPath))
	root.AddCommand(newWhoamiCmd(&cfgPath))
	root.AddCommand(newChatCmd(&cfgPath))
	root.AddCommand(newStatsCmd(&cfgPath))
	root.AddCommand(newConfigCmd(&cfgPath))
	root.AddCommand(newMockServerCmd(&cfgPath))
	root.AddCommand(newVersionCmd())

	return root
}
