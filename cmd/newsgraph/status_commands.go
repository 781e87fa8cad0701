package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"newsgraph/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <item-id>",
		Short: "Show the lifecycle record of one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			item, err := ctx.client().Item(cmd.Context(), id)
			if err != nil {
				if api.IsNotFound(err) {
					return fmt.Errorf("item %s not found", id)
				}
				return wrapAPIError(err, ctx.baseURL())
			}
			return emit(cmd, ctx, item, func() string {
				return renderItem(item)
			})
		},
	}
}

func renderItem(item api.ItemStatus) string {
	fields := [][2]string{
		{"ID", item.ID},
		{"Kind", item.Kind},
		{"Document", item.DocumentID},
		{"Status", item.Status},
		{"Classification", item.Classification},
		{"Error", item.ErrorMessage},
		{"Request", item.RequestID},
		{"Created", item.CreatedAt},
		{"Started", item.StartedAt},
		{"Finished", item.FinishedAt},
	}
	for i, warning := range item.Warnings {
		label := ""
		if i == 0 {
			label = "Warnings"
		}
		fields = append(fields, [2]string{label, warning})
	}
	return renderFields("Item "+item.ID, fields)
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := ctx.client().ListItems(cmd.Context(), statuses...)
			if err != nil {
				return wrapAPIError(err, ctx.baseURL())
			}
			if items == nil {
				items = []api.ItemStatus{}
			}
			return emit(cmd, ctx, items, func() string {
				if len(items) == 0 {
					return "No items"
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.ID,
						item.Kind,
						item.Status,
						item.Classification,
						strconv.Itoa(len(item.Warnings)),
						item.UpdatedAt,
					})
				}
				return renderTable(
					[]string{"ID", "Kind", "Status", "Class", "Warnings", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show pipeline, phase, and service health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := ctx.client().Health(cmd.Context())
			if err != nil {
				return wrapAPIError(err, ctx.baseURL())
			}
			return emit(cmd, ctx, health, func() string {
				return renderHealth(health)
			})
		},
	}
}

func renderHealth(health api.HealthResponse) string {
	p := health.Pipeline
	var b strings.Builder
	b.WriteString(renderFields("Pipeline", [][2]string{
		{"Running", yesNo(p.Running)},
		{"Accepting", yesNo(p.Accepting)},
		{"Queue", fmt.Sprintf("%d / %d", p.QueueDepth, p.QueueCapacity)},
		{"Workers", fmt.Sprintf("%d busy of %d", p.WorkersBusy, p.WorkersTotal)},
		{"Utilization", fmt.Sprintf("%.0f%%", p.Utilization*100)},
		{"Interrupted", strconv.Itoa(p.Interrupted)},
		{"Started", p.StartedAt},
	}))
	b.WriteString("\n")

	readiness := append(append([]api.StageHealth{}, health.Stages...), health.Services...)
	rows := make([][]string, 0, len(readiness))
	for _, h := range readiness {
		rows = append(rows, []string{h.Name, yesNo(h.Ready), h.Detail})
	}
	b.WriteString(renderTable([]string{"Component", "Ready", "Detail"}, rows, nil))

	if len(p.PhaseErrors) > 0 {
		b.WriteString("\n")
		phaseRows := make([][]string, 0, len(p.PhaseErrors))
		for _, name := range api.SortedPhaseNames(p.PhaseErrors) {
			counts := p.PhaseErrors[name]
			phaseRows = append(phaseRows, []string{name, strconv.Itoa(counts.Hard), strconv.Itoa(counts.Soft)})
		}
		b.WriteString(renderTable([]string{"Phase", "Hard", "Soft"}, phaseRows,
			[]columnAlignment{alignLeft, alignRight, alignRight}))
	}

	if len(health.QueueStats) > 0 {
		b.WriteString("\n")
		names := make([]string, 0, len(health.QueueStats))
		for name := range health.QueueStats {
			names = append(names, name)
		}
		sort.Strings(names)
		statRows := make([][]string, 0, len(names))
		for _, name := range names {
			statRows = append(statRows, []string{name, strconv.Itoa(health.QueueStats[name])})
		}
		b.WriteString(renderTable([]string{"Status", "Items"}, statRows,
			[]columnAlignment{alignLeft, alignRight}))
	}

	if k := health.Knowledge; k != nil {
		b.WriteString("\n")
		b.WriteString(renderFields("Knowledge", [][2]string{
			{"Documents", strconv.Itoa(k.Documents)},
			{"Facts", strconv.Itoa(k.Facts)},
			{"Entities", strconv.Itoa(k.Entities)},
			{"Quotes", strconv.Itoa(k.Quotes)},
			{"Data", strconv.Itoa(k.Data)},
			{"Relationships", strconv.Itoa(k.Relationships)},
			{"Failures", strconv.Itoa(k.Failures)},
		}))
	}
	return b.String()
}
