package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"newsgraph/internal/api"
)

func newFailuresCommand(ctx *commandContext) *cobra.Command {
	failuresCmd := &cobra.Command{
		Use:   "failures",
		Short: "Inspect and retry persisted failures",
	}
	failuresCmd.AddCommand(newFailuresListCommand(ctx))
	failuresCmd.AddCommand(newFailuresRetryCommand(ctx))
	return failuresCmd
}

func newFailuresListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			failures, err := ctx.client().Failures(cmd.Context(), limit)
			if err != nil {
				return wrapAPIError(err, ctx.baseURL())
			}
			if failures == nil {
				failures = []api.Failure{}
			}
			return emit(cmd, ctx, failures, func() string {
				if len(failures) == 0 {
					return "No failures recorded"
				}
				rows := make([][]string, 0, len(failures))
				for _, f := range failures {
					rows = append(rows, []string{
						strconv.FormatInt(f.ID, 10),
						f.ItemID,
						f.Classification,
						truncate(f.ErrorMessage, 60),
						strconv.Itoa(f.RetryCount),
						f.CreatedAt,
					})
				}
				return renderTable(
					[]string{"ID", "Item", "Class", "Error", "Retries", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum failures to show")
	return cmd
}

func newFailuresRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <failure-id>",
		Short: "Re-enqueue the item behind a failure record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.TrimSpace(args[0])
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid failure id %q", raw)
			}
			resp, err := ctx.client().RetryFailure(cmd.Context(), id)
			if err != nil {
				if api.IsNotFound(err) {
					return fmt.Errorf("failure %d not found", id)
				}
				return wrapAPIError(err, ctx.baseURL())
			}
			return emit(cmd, ctx, resp, func() string {
				return fmt.Sprintf("Failure %d resubmitted as %s (status %s)", resp.FailureID, resp.Submitted.ItemID, resp.Submitted.Status)
			})
		},
	}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
