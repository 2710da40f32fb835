package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/attest/internal/client"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream workflow events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				return c.Watch(cmd.Context(), func(ev client.Event) error {
					if ctx.json {
						return writeJSON(cmd, ev.Payload)
					}

					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "%s  %s  v%d", time.Now().Format(time.TimeOnly), ev.Type, ev.Payload.Version)
					if ev.Payload.Stage != "" {
						fmt.Fprintf(out, "  stage=%s", ev.Payload.Stage)
					}
					if ev.Payload.Regulation != "" {
						fmt.Fprintf(out, "  regulation=%s", ev.Payload.Regulation)
					}
					fmt.Fprintln(out)

					if ev.Payload.State != nil {
						for _, s := range ev.Payload.State.Stages {
							fmt.Fprintf(out, "    %-10s %s\n", s.Stage, s.Status)
						}
					}
					return nil
				})
			})
		},
	}
}
