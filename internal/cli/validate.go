package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trackworks/wayside/internal/plc"
)

// ValidationResult holds the outcome of validating one program file.
type ValidationResult struct {
	File    string `json:"file"`
	Kind    string `json:"kind"` // "rules" | "flat"
	Program string `json:"program,omitempty"`
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <program-file>",
		Short: "Validate a control program without loading it",
		Long: `Validate a control program file without touching a controller.

Files ending in .cue are compiled as rule programs; anything else is parsed
as a flat text command list.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	result := validateFile(path)
	if err := formatter.Emit(result, func() string {
		if result.Valid {
			return fmt.Sprintf("%s: valid %s program %q", result.File, result.Kind, result.Program)
		}
		return fmt.Sprintf("%s: invalid: %s", result.File, result.Error)
	}); err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("validation failed")
	}
	return nil
}

func validateFile(path string) ValidationResult {
	result := ValidationResult{File: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		result.Kind = "flat"
		result.Error = err.Error()
		return result
	}

	if filepath.Ext(path) == ".cue" {
		result.Kind = "rules"
		p, err := plc.CompileRulesSource(filepath.Base(path), string(raw))
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.Valid = true
		result.Program = p.Name()
		return result
	}

	result.Kind = "flat"
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	p, err := plc.ParseFlat(name, strings.NewReader(string(raw)), nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Valid = true
	result.Program = p.Name()
	return result
}
