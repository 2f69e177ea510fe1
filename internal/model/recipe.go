// Package model holds the immutable request/response data types shared
// across the run subsystem: language recipes, test cases, job requests, and
// the per-case/per-job state machines. Types here carry no behavior that
// depends on the worker or job-engine packages, so they sit at the bottom of
// the import graph.
package model

import "fmt"

// CommandInfo is a binary invocation: an absolute path plus its arguments.
// Used for both compile and run commands in a LanguageRecipe.
type CommandInfo struct {
	Binary string   `json:"binary"`
	Args   []string `json:"args"`
}

// LanguageRecipe describes how to compile (optionally) and run a submitted
// program in one language. Binaries must already be resolved to absolute
// paths before a recipe is considered usable; ResolveBinaries does that
// resolution against PATH.
type LanguageRecipe struct {
	Key string `json:"key"`

	// Display attributes, surfaced to callers but not used for execution.
	DisplayName       string `json:"display_name"`
	Icon              string `json:"icon"`
	EditorContribution string `json:"editor_contribution"`
	DefaultProgram    string `json:"default_program"`

	// FileName is the path, relative to the worker's $HOME, that the
	// submitted program is written to before compiling/running.
	FileName string `json:"file_name"`

	// CompileCommand is nil for languages that don't need a compile step
	// (e.g. interpreted languages).
	CompileCommand *CommandInfo      `json:"compile_command,omitempty"`
	RunCommand     CommandInfo       `json:"run_command"`
	Env            map[string]string `json:"env,omitempty"`
}

// Validate checks the invariants placed on LanguageRecipe: binaries
// must be absolute paths. Callers are expected to have already resolved bare
// binary names against PATH (see ResolveBinary) before calling Validate.
func (r *LanguageRecipe) Validate() error {
	if r.FileName == "" {
		return fmt.Errorf("language %q: file_name is required", r.Key)
	}
	if r.RunCommand.Binary == "" {
		return fmt.Errorf("language %q: run_command.binary is required", r.Key)
	}
	if !isAbs(r.RunCommand.Binary) {
		return fmt.Errorf("language %q: run_command.binary %q is not an absolute path", r.Key, r.RunCommand.Binary)
	}
	if r.CompileCommand != nil {
		if !isAbs(r.CompileCommand.Binary) {
			return fmt.Errorf("language %q: compile_command.binary %q is not an absolute path", r.Key, r.CompileCommand.Binary)
		}
	}
	return nil
}

func isAbs(path string) bool {
	return len(path) > 0 && path[0] == '/'
}
