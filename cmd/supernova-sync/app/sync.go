package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/NovaUNL/Supernova-sub000/internal/app"
	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/orchestrator"
)

const telemetryShutdownTimeout = 5 * time.Second

func newSyncCmd() *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync <fast|slow|full>",
		Short: "Run one sync",
		Long: `Run one sync of the given mode and print what it did.

  fast  refreshes the class instances of the current period that have enrollments or turns
  slow  refreshes people, departments, classes and recent class instances
  full  refreshes everything, including rooms, courses and every class instance

Failures of single entities are logged and skipped; the command still exits 0.

Examples:
  # Fast run without asking upstream to refresh itself
  supernova-sync sync fast --config config.yaml --no-update

  # Slow run that also syncs rooms
  supernova-sync sync slow --config config.yaml --rooms`,
		Args: modeArgs,
		RunE: runSync,
	}

	addConfigFlags(syncCmd)
	addRunFlags(syncCmd)
	return syncCmd
}

// addRunFlags registers the flags that tweak a single run
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-update", false, "Do not ask upstream to refresh itself before polling")
	cmd.Flags().Bool("no-optimize", false, "Disable staleness skipping")
	cmd.Flags().Bool("assert-buildings", false, "Compare upstream buildings with the stored ones")
	cmd.Flags().Bool("rooms", false, "Sync buildings and rooms regardless of mode")
	cmd.Flags().Bool("departments", false, "Sync departments regardless of mode")
	cmd.Flags().Bool("courses", false, "Sync courses regardless of mode")
	cmd.Flags().Bool("force-class-info", false, "Refresh class instances even if recently updated")
}

// modeArgs requires exactly one valid mode token
func modeArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		cmd.PrintErrln(cmd.UsageString())
		return &ValidationError{Arg: fmt.Sprint(args), Err: errors.New("exactly one mode is required")}
	}
	if _, err := orchestrator.ParseMode(args[0]); err != nil {
		cmd.PrintErrln(cmd.UsageString())
		return &ValidationError{Arg: args[0], Err: err}
	}
	return nil
}

func runFlags(cmd *cobra.Command) (orchestrator.Flags, error) {
	var flags orchestrator.Flags
	for name, dst := range map[string]*bool{
		"no-update":        &flags.NoUpdate,
		"no-optimize":      &flags.NoOptimize,
		"assert-buildings": &flags.AssertBuildings,
		"rooms":            &flags.Rooms,
		"departments":      &flags.Departments,
		"courses":          &flags.Courses,
		"force-class-info": &flags.ForceClassInfo,
	} {
		v, err := cmd.Flags().GetBool(name)
		if err != nil {
			return flags, fmt.Errorf("failed to get %s flag: %w", name, err)
		}
		*dst = v
	}
	return flags, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Already checked by modeArgs
	mode, _ := orchestrator.ParseMode(args[0])
	flags, err := runFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tel, shutdownTelemetry, err := newTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	syncApp, err := app.NewSyncApp(ctx, app.WithConfig(cfg), app.WithTelemetry(tel))
	if err != nil {
		return fmt.Errorf("failed to create sync app: %w", err)
	}
	defer syncApp.Close()

	summary, err := syncApp.RunOnce(ctx, mode, flags)
	if err != nil {
		// The run status already records the failure
		slog.Error("Sync failed", "mode", mode, "error", err)
		return nil
	}

	return printSummary(cmd.OutOrStdout(), summary)
}

// printSummary writes one line per entity kind followed by the totals
func printSummary(w io.Writer, s *orchestrator.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Run %s (%s) finished in %s\n\n", s.RunID, s.Mode, s.Duration().Round(time.Millisecond))
	fmt.Fprintln(tw, "KIND\tCREATED\tUPDATED\tUNCHANGED\tDISAPPEARED\tSKIPPED\tFAILED")

	kinds := make([]model.Kind, 0, len(s.ByKind))
	for kind := range s.ByKind {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		c := s.ByKind[kind]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			kind, c.Created, c.Updated, c.Unchanged, c.Disappeared, c.Skipped, c.Failed)
	}
	t := s.Totals
	fmt.Fprintf(tw, "total\t%d\t%d\t%d\t%d\t%d\t%d\n",
		t.Created, t.Updated, t.Unchanged, t.Disappeared, t.Skipped, t.Failed)

	if s.Propagated > 0 {
		fmt.Fprintf(tw, "\n%d children marked disappeared\n", s.Propagated)
	}
	for _, step := range s.StepErrors {
		fmt.Fprintf(tw, "step failed: %s\n", step)
	}
	return tw.Flush()
}
