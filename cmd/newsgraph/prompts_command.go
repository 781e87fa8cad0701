package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"newsgraph/internal/logging"
	"newsgraph/internal/prompts"
)

var requiredPhases = []string{
	prompts.PhaseTriage,
	prompts.PhaseLanguage,
	prompts.PhaseTranslation,
	prompts.PhaseExtraction,
	prompts.PhaseQuotes,
	prompts.PhaseRelations,
}

type promptCheck struct {
	Phase  string `json:"phase"`
	Source string `json:"source,omitempty"`
	Error  string `json:"error,omitempty"`
}

type promptReport struct {
	Path      string        `json:"path"`
	LoadError string        `json:"load_error,omitempty"`
	Phases    []promptCheck `json:"phases"`
}

func newPromptsCommand(ctx *commandContext) *cobra.Command {
	promptsCmd := &cobra.Command{
		Use:   "prompts",
		Short: "Prompt file utilities",
	}
	promptsCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load the prompt file and resolve every pipeline phase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := prompts.NewStore(cfg.Prompts.Path, logging.NewNop())
			if err != nil {
				return err
			}
			report := promptReport{Path: store.Path()}
			failed := 0
			for _, phase := range requiredPhases {
				check := promptCheck{Phase: phase}
				prompt, err := store.Resolve(phase)
				if err != nil {
					check.Error = err.Error()
					failed++
				} else {
					check.Source = prompt.Source
				}
				report.Phases = append(report.Phases, check)
			}
			if loadErr := store.LastError(); loadErr != nil {
				report.LoadError = loadErr.Error()
			}

			if err := emit(cmd, ctx, report, func() string {
				rows := make([][]string, 0, len(report.Phases))
				for _, check := range report.Phases {
					status := "ok"
					if check.Error != "" {
						status = check.Error
					}
					rows = append(rows, []string{check.Phase, check.Source, status})
				}
				out := fmt.Sprintf("Prompt file: %s\n", report.Path)
				if report.LoadError != "" {
					out += fmt.Sprintf("Load error: %s\n", report.LoadError)
				}
				return out + renderTable([]string{"Phase", "Source", "Status"}, rows, nil)
			}); err != nil {
				return err
			}
			if report.LoadError != "" {
				return fmt.Errorf("prompt file %s is invalid", report.Path)
			}
			if failed > 0 {
				return fmt.Errorf("%d phase(s) have no usable prompt", failed)
			}
			return nil
		},
	})
	return promptsCmd
}
