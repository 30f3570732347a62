package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjrosen/regcascade/internal/batch"
	"github.com/zjrosen/regcascade/internal/modality"
	"github.com/zjrosen/regcascade/internal/paths"
	"github.com/zjrosen/regcascade/internal/registration"
	"github.com/zjrosen/regcascade/internal/schedule"
)

// Command-line level defaults.
const (
	defaultStart = 32
	defaultLevel = 2
)

// registerFlags are the options of the linear and nonlinear commands.
type registerFlags struct {
	output     string
	sourceMask string
	targetMask string
	init       string
	downsample float64
	start      int
	level      int
	iter       string
	cost       string
	par        string
	transform  string
	close      bool
	verbose    int
	dryRun     bool
	json       bool
}

func newRegisterCmd(mode registration.Mode) *cobra.Command {
	f := &registerFlags{}
	cmd := &cobra.Command{
		Use:  string(mode) + " SOURCE TARGET --output XFM",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := buildRegisterJob(mode, args[0], args[1], f, cmd.Flags().Changed)
			if err != nil {
				return err
			}

			e, err := openEnv(envOptions{verbose: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer e.close()

			if f.dryRun {
				plan, err := e.service.Plan(job)
				if err != nil {
					return err
				}
				return plan.Render(cmd.OutOrStdout())
			}

			stop := reportProgress(cmd.Context(), cmd.ErrOrStderr(), e.events)
			outcome, err := e.service.Register(cmd.Context(), job)
			stop()
			return printResults(cmd.OutOrStdout(), []batch.Result{{Job: job.Name, Outcome: outcome, Err: err}}, f.json)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "output transform (.xfm)")
	fl.StringVar(&f.sourceMask, "source-mask", "", "source mask")
	fl.StringVar(&f.targetMask, "target-mask", "", "target mask")
	fl.StringVar(&f.init, "init", "", "initial transform")
	fl.Float64Var(&f.downsample, "downsample", 0, "downsample inputs to this voxel size first")
	fl.IntVar(&f.start, "start", defaultStart, "coarsest resolution level")
	fl.IntVar(&f.level, "level", defaultLevel, "finest resolution level")
	fl.StringVar(&f.cost, "cost", "", "cost function (default per mode)")
	fl.StringVar(&f.par, "par", "", "cost function parameters (default per mode)")
	fl.StringVar(&f.transform, "transform", "", "transformation (default per mode)")
	fl.IntVar(&f.verbose, "verbose", 0, "engine verbosity")
	fl.BoolVar(&f.dryRun, "dry-run", false, "print the command instead of running it")
	fl.BoolVar(&f.json, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("output")

	switch mode {
	case registration.ModeNonlinear:
		cmd.Short = "Run a nonlinear (SyN) registration"
		cmd.Long = `Run a nonlinear registration over the resolution levels from --start down
to --level. --iter lists the iterations per level, coarsest first.

Example:
  regcascade nonlinear t1.mnc ref_t1.mnc -o nl.xfm --init lin.xfm --iter 40x40x20 --level 4`
		fl.StringVar(&f.iter, "iter", "", "iterations per level, coarsest first (e.g. 20x20x20x20x20)")
	default:
		cmd.Short = "Run a linear (affine) registration"
		cmd.Long = `Run a linear registration. Three levels are used unless --start or --level
is given.

Example:
  regcascade linear t1.mnc ref_t1.mnc -o lin.xfm --source-mask brain.mnc --close`
		fl.BoolVar(&f.close, "close", false, "source and target already start close")
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newRegisterCmd(registration.ModeLinear), newRegisterCmd(registration.ModeNonlinear))
}

// buildRegisterJob turns command-line arguments into a job. Relative paths
// are made absolute so ledger records match those of job files.
func buildRegisterJob(mode registration.Mode, source, target string, f *registerFlags, changed func(string) bool) (registration.Job, error) {
	abs := func(p string) (string, error) {
		if p == "" {
			return "", nil
		}
		return filepath.Abs(p)
	}
	files := []*string{&source, &target, &f.output, &f.sourceMask, &f.targetMask, &f.init}
	for _, p := range files {
		a, err := abs(*p)
		if err != nil {
			return registration.Job{}, fmt.Errorf("resolving %s: %w", *p, err)
		}
		*p = a
	}

	job := registration.Job{
		Name:       filepath.Base(paths.TransformBase(f.output)),
		Mode:       mode,
		Source:     modality.Paths{source},
		Target:     modality.Paths{target},
		Output:     f.output,
		SourceMask: f.sourceMask,
		TargetMask: f.targetMask,
		InitXfm:    f.init,
		Downsample: f.downsample,
		Verbose:    f.verbose,
		Parameters: map[string]any{},
	}

	if mode == registration.ModeNonlinear || changed("start") || changed("level") {
		job.Start, job.Level = f.start, f.level
	}
	if mode == registration.ModeLinear && f.close {
		closeStart := true
		job.Close = &closeStart
	}

	if f.iter != "" {
		cascade := schedule.ParseCascade(f.iter, f.start, f.level)
		conf := make(map[string]any, len(cascade.Named))
		for k, v := range cascade.Named {
			conf[k] = v
		}
		job.Parameters[registration.KeyConf] = conf
	}
	if f.cost != "" {
		job.Parameters[registration.KeyCostFunction] = f.cost
	}
	if f.par != "" {
		job.Parameters[registration.KeyCostFunctionPar] = f.par
	}
	if f.transform != "" {
		job.Parameters[registration.KeyTransformation] = f.transform
	}
	return job, job.Validate()
}
