package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/attest/internal/client"
	"github.com/JaimeStill/attest/internal/documents"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload files as one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				report, err := c.Upload(cmd.Context(), args...)
				if err != nil {
					return err
				}
				if ctx.json {
					return writeJSON(cmd, report)
				}
				renderReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
}

func newDocumentsCommand(ctx *commandContext) *cobra.Command {
	var (
		status   string
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs", "ls"},
		Short:   "List registered documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter documents.Status
			if status != "" {
				s, err := documents.ParseStatus(status)
				if err != nil {
					return err
				}
				filter = s
			}

			return ctx.withClient(func(c *client.Client) error {
				result, err := c.Documents(cmd.Context(), filter, page, pageSize)
				if err != nil {
					return err
				}
				if ctx.json {
					return writeJSON(cmd, result)
				}
				renderDocuments(cmd.OutOrStdout(), result.Data)
				if result.TotalPages > 1 {
					fmt.Fprintf(cmd.OutOrStdout(), "Page %d of %d (%d documents)\n", result.Page, result.TotalPages, result.Total)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (uploading, uploaded, processing, processed, failed)")
	cmd.Flags().IntVar(&page, "page", 0, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Documents per page")

	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove ID...",
		Aliases: []string{"rm"},
		Short:   "Remove documents from the registry",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, len(args))
			for i, a := range args {
				id, err := uuid.Parse(a)
				if err != nil {
					return fmt.Errorf("invalid document id %q: %w", a, err)
				}
				ids[i] = id
			}

			return ctx.withClient(func(c *client.Client) error {
				for _, id := range ids {
					if err := c.Remove(cmd.Context(), id); err != nil {
						return fmt.Errorf("remove %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
				}
				return nil
			})
		},
	}
}
