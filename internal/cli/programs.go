package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/trackworks/wayside/internal/plc"
)

// ProgramList holds the built-in program names.
type ProgramList struct {
	Programs []string `json:"programs"`
}

// NewProgramsCommand creates the programs command.
func NewProgramsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "programs",
		Short: "List built-in control programs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			list := ProgramList{Programs: plc.BuiltinNames()}
			return formatter.Emit(list, func() string {
				return strings.Join(list.Programs, "\n")
			})
		},
	}
}
