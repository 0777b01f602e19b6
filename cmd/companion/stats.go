package main

import (
	"io"

	"github.com/spf13/cobra"

	"pkt.systems/companion/internal/moodstats"
)

func newStatsCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the mood chart for the last 7 days",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			view := moodstats.NewView(env.client, env.sessions, nil, env.logger)
			bars, err := view.Load(cmd.Context())
			if err != nil {
				return describeAPIError("stats", err)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), moodstats.Render(bars))
			return err
		},
	}
}
