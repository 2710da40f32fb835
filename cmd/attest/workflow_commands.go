package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/attest/internal/client"
	"github.com/JaimeStill/attest/internal/orchestration"
	"github.com/JaimeStill/attest/internal/workflow"
)

type stateCall func(ctx context.Context, c *client.Client) (*orchestration.State, error)

// runState runs call and prints the resulting workflow state.
func (c *commandContext) runState(cmd *cobra.Command, call stateCall) error {
	return c.withClient(func(cl *client.Client) error {
		state, err := call(cmd.Context(), cl)
		if err != nil {
			return err
		}
		if c.json {
			return writeJSON(cmd, state)
		}
		renderState(cmd.OutOrStdout(), state)
		return nil
	})
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stage status, configuration, and document counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runState(cmd, func(rctx context.Context, c *client.Client) (*orchestration.State, error) {
				return c.State(rctx)
			})
		},
	}
}

func newConfigureCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "configure DESCRIPTION...",
		Short: "Store a draft company description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc := strings.Join(args, " ")
			return ctx.runState(cmd, func(rctx context.Context, c *client.Client) (*orchestration.State, error) {
				return c.Configure(rctx, desc)
			})
		},
	}
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [DESCRIPTION...]",
		Short: "Run ingestion with a company description or the stored draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			desc := strings.Join(args, " ")
			return ctx.runState(cmd, func(rctx context.Context, c *client.Client) (*orchestration.State, error) {
				return c.RunIngestion(rctx, desc)
			})
		},
	}
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Process every uploaded document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runState(cmd, func(rctx context.Context, c *client.Client) (*orchestration.State, error) {
				return c.RunProcessing(rctx)
			})
		},
	}
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze REGULATION",
		Short: "Analyze processed documents against a regulation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runState(cmd, func(rctx context.Context, c *client.Client) (*orchestration.State, error) {
				return c.RunAnalysis(rctx, args[0])
			})
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel STAGE",
		Short: "Fail a running stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := workflow.ParseStage(args[0])
			if err != nil {
				return err
			}
			return ctx.runState(cmd, func(rctx context.Context, c *client.Client) (*orchestration.State, error) {
				return c.Cancel(rctx, stage, reason)
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the stage")
	return cmd
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset STAGE",
		Short: "Return a stage and its downstream stages to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := workflow.ParseStage(args[0])
			if err != nil {
				return err
			}
			return ctx.runState(cmd, func(rctx context.Context, c *client.Client) (*orchestration.State, error) {
				return c.Reset(rctx, stage)
			})
		},
	}
}

func newRegulationsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "regulations",
		Short: "List supported regulations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				regs, err := c.Regulations(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.json {
					return writeJSON(cmd, regs)
				}
				for _, r := range regs {
					fmt.Fprintln(cmd.OutOrStdout(), r)
				}
				return nil
			})
		},
	}
}
