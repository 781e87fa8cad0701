package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// emit writes v as JSON when the command context asks for it, otherwise it
// calls render to produce human output.
func emit(cmd *cobra.Command, ctx *commandContext, v any, render func() string) error {
	if ctx.jsonOutput(cmd) {
		return writeJSON(cmd, v)
	}
	out := render()
	if out == "" {
		return nil
	}
	_, err := cmd.OutOrStdout().Write([]byte(out + "\n"))
	return err
}
