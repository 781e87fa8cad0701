// Package prompts resolves phase prompt templates by name.
//
// Built-in templates ship embedded in defaults.yaml. Operators can point
// prompts.path at a YAML file with the same layout to override or add phases;
// the file is re-read on the next Resolve after its modification time changes,
// so edits apply without restarting the daemon. Resolution failures are
// reported per invocation with services.ErrPromptMissing.
package prompts
