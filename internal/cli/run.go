package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trackworks/wayside/internal/config"
	"github.com/trackworks/wayside/internal/plc"
	"github.com/trackworks/wayside/internal/track"
	"github.com/trackworks/wayside/internal/trackmodel"
	"github.com/trackworks/wayside/internal/wayside"
)

// RunFlags holds flags specific to the run command.
type RunFlags struct {
	ConfigPath string
	Duration   time.Duration
	Demo       bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &RunFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a wayside controller against the simulated track",
		Long: `Run starts the controller for the configured line against the in-memory
track simulator, loads the configured control program, and prints every
consolidated status update until interrupted.

With --demo a train is injected at the territory edge and walked across the
line, one block per poll cycle.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runController(rootOpts, flags, cmd)
		},
	}

	cmd.Flags().StringVarP(&flags.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().DurationVar(&flags.Duration, "duration", 0, "stop after this long (0 = until interrupted)")
	cmd.Flags().BoolVar(&flags.Demo, "demo", false, "walk a simulated train across the territory")
	return cmd
}

func runController(opts *RootOptions, flags *RunFlags, cmd *cobra.Command) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return err
	}
	top := cfg.Topology()
	sim := trackmodel.NewSim()
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	c := wayside.New(top, sim, printingCTC{formatter}, wayside.Options{
		Fault:             cfg.FaultConfig(),
		PollInterval:      cfg.PollInterval.Std(),
		GuardPollInterval: cfg.GuardPollInterval.Std(),
		Logger:            slog.Default(),
	})

	if cfg.Program != "" {
		p, ok := plc.Builtin(cfg.Program, top)
		if !ok {
			return fmt.Errorf("unknown built-in program %q", cfg.Program)
		}
		c.SetMaintenanceMode(true)
		if err := c.UploadProgram(p); err != nil {
			return err
		}
		c.SetMaintenanceMode(false)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if flags.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.Duration)
		defer cancel()
	}

	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Stop()

	if flags.Demo {
		go walkTrain(ctx, sim, top, cfg.PollInterval.Std())
	}

	<-ctx.Done()
	return nil
}

// printingCTC writes each relayed batch to the command output.
type printingCTC struct {
	formatter *OutputFormatter
}

func (p printingCTC) ReceiveWaysideStatus(line string, updates []wayside.StatusUpdate) error {
	type relay struct {
		Line    string                 `json:"line"`
		Updates []wayside.StatusUpdate `json:"updates"`
	}
	return p.formatter.Emit(relay{Line: line, Updates: updates}, func() string {
		s := line + ":"
		for _, u := range updates {
			s += fmt.Sprintf(" [block %d occupied=%t aspect=%s]", u.Block, u.Occupied, u.Aspect)
		}
		return s
	})
}

// walkTrain steps a simulated train across the territory, one block per poll
// interval, entering through the lower guard block.
func walkTrain(ctx context.Context, sim *trackmodel.Sim, top *track.Topology, step time.Duration) {
	t := time.NewTicker(step)
	defer t.Stop()

	var blocks []track.BlockID
	for _, gb := range top.GuardBlocks() {
		if gb < top.First {
			blocks = append(blocks, gb)
		}
	}
	blocks = append(blocks, top.Blocks()...)
	pos := 0
	sim.SetOccupied(top.Line, blocks[0], true)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if pos+1 >= len(blocks) {
				sim.SetOccupied(top.Line, blocks[pos], false)
				return
			}
			sim.SetOccupied(top.Line, blocks[pos+1], true)
			sim.SetOccupied(top.Line, blocks[pos], false)
			pos++
		}
	}
}
