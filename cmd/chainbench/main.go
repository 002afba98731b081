package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/chainbench/internal/bench"
	"github.com/san-kum/chainbench/internal/config"
	"github.com/san-kum/chainbench/internal/param"
	"github.com/san-kum/chainbench/internal/problem"
	"github.com/san-kum/chainbench/internal/report"
	"github.com/san-kum/chainbench/internal/rollout"
	"github.com/san-kum/chainbench/internal/solver"
	"github.com/san-kum/chainbench/internal/storage"
	"github.com/san-kum/chainbench/internal/tui"
)

var (
	resultsDir string
	verbose    bool

	// run
	preset     string
	configFile string
	problemArg string
	sweepName  string
	params     []string
	runs       int
	eps        float64
	seed       int64
	patterns   []string
	warmStart  bool
	maxIter    int
	noSave     bool
	showTUI    bool

	// chart, plot and export
	axis      string
	height    int
	width     int
	plotOut   string
	exportOut string
	baseline  string
	heatmap   []string
	columns   string

	// rollout
	masses     int
	inputs     int
	controller string
	solverName string
	integrator string
	horizon    int
	dt         float64
	duration   float64
	saveStates bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "chainbench",
		Short:         "benchmark QP and OCP solvers on the chain of masses",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&resultsDir, "results", config.DefaultResultsDir, "results directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging, including solver iterations")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a benchmark sweep",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	runCmd.Flags().StringVar(&preset, "preset", "", "preset as group/name (see presets)")
	runCmd.Flags().StringVar(&configFile, "config", "", "sweep config file path (yaml)")
	runCmd.Flags().StringVar(&problemArg, "problem", config.DefaultProblem, "problem class")
	runCmd.Flags().StringVar(&sweepName, "name", "default", "sweep name used in the result file")
	runCmd.Flags().StringArrayVarP(&params, "param", "p", nil, "axis as name=v1,v2,... (repeatable)")
	runCmd.Flags().IntVar(&runs, "runs", config.DefaultRuns, "timed solves per cell")
	runCmd.Flags().Float64Var(&eps, "eps", config.DefaultEps, "solver tolerance")
	runCmd.Flags().Int64Var(&seed, "seed", config.DefaultSeed, "random seed")
	runCmd.Flags().StringSliceVarP(&patterns, "solvers", "s", nil, "solver name patterns, e.g. ipm_*")
	runCmd.Flags().BoolVar(&warmStart, "warm-start", false, "start iterative solvers from the zero-input rollout")
	runCmd.Flags().IntVar(&maxIter, "max-iter", 0, "iteration limit (0 keeps solver defaults)")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not write a result file")
	runCmd.Flags().BoolVar(&showTUI, "tui", false, "show a live progress view instead of log lines")

	solversCmd := &cobra.Command{
		Use:   "solvers",
		Short: "list solvers and instruction set variants",
		Args:  cobra.NoArgs,
		RunE:  listSolvers,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list sweep presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "summarize a result file",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeResults,
	}

	chartCmd := &cobra.Command{
		Use:   "chart [file]",
		Short: "terminal chart of solve time against one axis",
		Args:  cobra.ExactArgs(1),
		RunE:  chartResults,
	}
	chartCmd.Flags().StringVar(&axis, "axis", "M", "parameter on the x axis")
	chartCmd.Flags().IntVar(&height, "height", 15, "chart height")
	chartCmd.Flags().IntVar(&width, "width", 80, "chart width")

	plotCmd := &cobra.Command{
		Use:   "plot [file]",
		Short: "save runtime and speed-up figures",
		Args:  cobra.ExactArgs(1),
		RunE:  plotResults,
	}
	plotCmd.Flags().StringVar(&axis, "axis", "M", "parameter on the x axis")
	plotCmd.Flags().StringVarP(&plotOut, "out", "o", "runtime.png", "runtime figure path (.png, .svg, .pdf)")
	plotCmd.Flags().StringVar(&baseline, "baseline", "", "also plot speed-up over this solver")
	plotCmd.Flags().StringSliceVar(&heatmap, "heatmap", nil, "also draw a speed-up heat map for two solvers as reference,compared")
	plotCmd.Flags().StringVar(&columns, "cols", "Ns", "heat map column parameter (rows use --axis)")

	exportCmd := &cobra.Command{
		Use:   "export [file]",
		Short: "export a result file to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportResults,
	}
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list result files",
		Args:  cobra.NoArgs,
		RunE:  listResults,
	}

	rolloutCmd := &cobra.Command{
		Use:   "rollout",
		Short: "simulate the chain in closed loop",
		Args:  cobra.NoArgs,
		RunE:  runRollout,
	}
	rolloutCmd.Flags().StringVar(&configFile, "config", "", "rollout config file path (yaml)")
	rolloutCmd.Flags().IntVar(&masses, "masses", config.DefaultMasses, "number of masses")
	rolloutCmd.Flags().IntVar(&inputs, "inputs", 0, "actuated masses (0 for M-1)")
	rolloutCmd.Flags().StringVar(&controller, "controller", "lqr", "controller: "+strings.Join(rollout.Controllers, ", "))
	rolloutCmd.Flags().StringVar(&solverName, "solver", "riccati", "solver used by mpc")
	rolloutCmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator")
	rolloutCmd.Flags().IntVar(&horizon, "horizon", config.DefaultHorizon, "mpc horizon")
	rolloutCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "integration step")
	rolloutCmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")
	rolloutCmd.Flags().Int64Var(&seed, "seed", config.DefaultSeed, "random seed")
	rolloutCmd.Flags().BoolVar(&saveStates, "save", false, "write states.csv to the results directory")

	rootCmd.AddCommand(runCmd, solversCmd, presetsCmd, analyzeCmd, chartCmd, plotCmd, exportCmd, listCmd, rolloutCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// parseAxis reads name=v1,v2,...
func parseAxis(s string) (param.Axis, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return param.Axis{}, fmt.Errorf("parameter %q is not name=v1,v2,...", s)
	}
	ax := param.Axis{Name: name}
	for _, raw := range strings.Split(list, ",") {
		v, err := param.ParseValue(strings.TrimSpace(raw))
		if err != nil {
			return param.Axis{}, err
		}
		ax.Values = append(ax.Values, v)
	}
	return ax, nil
}

// sweepConfig layers preset, config file and explicit flags.
func sweepConfig(cmd *cobra.Command) (*config.SweepConfig, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		p, err := config.Preset(preset)
		if err != nil {
			return nil, fmt.Errorf("%w (available: %v)", err, config.PresetNames())
		}
		cfg = p
	}
	if configFile != "" {
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	}

	flags := cmd.Flags()
	if flags.Changed("problem") {
		cfg.Problem = problemArg
	}
	if flags.Changed("name") {
		cfg.Name = sweepName
	}
	if flags.Changed("runs") {
		cfg.Runs = runs
	}
	if flags.Changed("eps") {
		cfg.Eps = eps
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("warm-start") {
		cfg.WarmStart = warmStart
	}
	if flags.Changed("max-iter") {
		cfg.MaxIter = maxIter
	}
	if flags.Changed("results") {
		cfg.ResultsDir = resultsDir
	}
	for _, s := range params {
		ax, err := parseAxis(s)
		if err != nil {
			return nil, err
		}
		replaced := false
		for i := range cfg.Axes {
			if cfg.Axes[i].Name == ax.Name {
				cfg.Axes[i] = ax
				replaced = true
			}
		}
		if !replaced {
			cfg.Axes = append(cfg.Axes, ax)
		}
	}
	return cfg, cfg.Validate()
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := sweepConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger()

	names := cfg.Solvers
	if len(names) == 0 {
		names = solver.DefaultNames()
	}
	names, err = solver.Filter(names, patterns)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no solver matches %v", patterns)
	}
	solvers, err := solver.Build(names, solver.Options{
		Eps:       cfg.Eps,
		MaxIter:   cfg.MaxIter,
		Verbose:   verbose,
		WarmStart: cfg.WarmStart,
		Log:       log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sw := &bench.Sweep{
		Class:   cfg.Problem,
		Name:    cfg.Name,
		Axes:    cfg.Axes,
		Runs:    cfg.Runs,
		Seed:    cfg.Seed,
		Eps:     cfg.Eps,
		Solvers: solvers,
		Log:     log,
	}
	log.Info("sweep started", "problem", cfg.Problem, "name", cfg.Name,
		"combinations", cfg.Axes.Size(), "solvers", len(solvers), "runs", cfg.Runs)
	var (
		rep    *bench.Report
		runErr error
	)
	if showTUI {
		sw.Log = slog.New(slog.DiscardHandler)
		rep, runErr = tui.RunSweep(ctx, sw)
	} else {
		rep, runErr = sw.Run(ctx)
	}
	if rep == nil {
		return runErr
	}

	if !noSave {
		st := storage.New(cfg.ResultsDir)
		path, err := st.Save(rep)
		if err != nil {
			return errors.Join(runErr, err)
		}
		log.Info("results saved", "path", path)
	}
	if runErr != nil {
		return runErr
	}

	a, err := report.Analyze(rep)
	if err != nil {
		return err
	}
	fmt.Println()
	return report.WriteSummary(os.Stdout, rep, a)
}

func listSolvers(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tACCEPTS\tVARIANT\tAVAILABLE\tDEFAULT")
	defaults := make(map[string]bool)
	for _, n := range solver.DefaultNames() {
		defaults[n] = true
	}
	for _, name := range solver.Names() {
		s, err := solver.New(name, solver.Options{})
		if err != nil {
			return err
		}
		variant, available := "-", "yes"
		if isa, ok := strings.CutPrefix(name, "ipm_"); ok {
			if isa == "sparse" {
				isa = solver.ISAGeneric
			}
			variant = solver.ResolveISA(isa)
			if !solver.ISAAvailable(isa) {
				available = "fallback"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n", name, s.Accepts(), variant, available, defaults[name])
	}
	return w.Flush()
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tPROBLEM\tNAME\tCOMBINATIONS\tRUNS\tAXES")
	for _, ref := range config.PresetNames() {
		cfg, err := config.Preset(ref)
		if err != nil {
			return err
		}
		var axes []string
		for _, ax := range cfg.Axes {
			axes = append(axes, fmt.Sprintf("%s%v", ax.Name, ax.Values))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			ref, cfg.Problem, cfg.Name, cfg.Axes.Size(), cfg.Runs, strings.Join(axes, " "))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nproblem classes: %s\n", strings.Join(problem.Classes(), ", "))
	return nil
}

// loadResult accepts a path or a file name inside the results directory.
func loadResult(arg string) (*bench.Report, error) {
	rep, err := storage.Load(arg)
	if errors.Is(err, storage.ErrResultNotFound) && !filepath.IsAbs(arg) {
		return storage.Load(filepath.Join(resultsDir, arg))
	}
	return rep, err
}

func analyzeResults(cmd *cobra.Command, args []string) error {
	rep, err := loadResult(args[0])
	if err != nil {
		return err
	}
	a, err := report.Analyze(rep)
	if err != nil {
		return err
	}
	return report.WriteSummary(os.Stdout, rep, a)
}

func chartResults(cmd *cobra.Command, args []string) error {
	rep, err := loadResult(args[0])
	if err != nil {
		return err
	}
	chart, err := report.Chart(rep, axis, height, width)
	if err != nil {
		return err
	}
	fmt.Println(chart)
	return nil
}

func plotResults(cmd *cobra.Command, args []string) error {
	rep, err := loadResult(args[0])
	if err != nil {
		return err
	}
	if err := report.SaveRuntimePlot(rep, axis, plotOut); err != nil {
		return err
	}
	fmt.Printf("saved %s\n", plotOut)

	ext := filepath.Ext(plotOut)
	stem := strings.TrimSuffix(plotOut, ext)
	if baseline != "" {
		speedup := stem + "_speedup" + ext
		if err := report.SaveSpeedupPlot(rep, axis, baseline, speedup); err != nil {
			return err
		}
		fmt.Printf("saved %s\n", speedup)
	}
	if len(heatmap) > 0 {
		if len(heatmap) != 2 {
			return fmt.Errorf("--heatmap takes two solvers, got %d", len(heatmap))
		}
		path := stem + "_heatmap" + ext
		if err := report.SaveSpeedupHeatmap(rep, axis, columns, heatmap[0], heatmap[1], path); err != nil {
			return err
		}
		fmt.Printf("saved %s\n", path)
	}
	return nil
}

func exportResults(cmd *cobra.Command, args []string) error {
	rep, err := loadResult(args[0])
	if err != nil {
		return err
	}
	if exportOut == "" {
		return storage.ExportCSV(os.Stdout, rep)
	}
	f, err := os.Create(exportOut)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := storage.ExportCSV(f, rep); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", exportOut)
	return nil
}

func listResults(cmd *cobra.Command, args []string) error {
	st := storage.New(resultsDir)
	entries, err := st.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no results found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tPROBLEM\tNAME\tTIME\tRUNS\tCELLS\tSOLVERS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			filepath.Base(e.Path),
			e.Metadata.ProblemClass,
			e.Metadata.Name,
			e.Metadata.Timestamp,
			e.Metadata.Runs,
			e.Cells,
			strings.Join(e.Metadata.Solvers, ","),
		)
	}
	return w.Flush()
}

func runRollout(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultRollout()
	if configFile != "" {
		c, err := config.LoadRollout(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	}
	flags := cmd.Flags()
	if flags.Changed("masses") {
		cfg.Masses = masses
	}
	if flags.Changed("inputs") {
		cfg.Inputs = inputs
	}
	if flags.Changed("controller") {
		cfg.Controller = controller
	}
	if flags.Changed("solver") {
		cfg.Solver = solverName
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("horizon") {
		cfg.Horizon = horizon
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := rollout.Run(ctx, cfg, newLogger())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tVALUE")
	for _, name := range []string{"control_effort", "input_saturation", "stage_cost", "bound_violation", "oscillation_freq"} {
		fmt.Fprintf(w, "%s\t%.6g\n", name, res.Metrics[name])
	}
	fmt.Fprintf(w, "final_norm\t%.6g\n", res.States[len(res.States)-1].Norm())
	if res.MPC != nil && res.MPC.Solves > 0 {
		fmt.Fprintf(w, "mpc_solves\t%d\n", res.MPC.Solves)
		fmt.Fprintf(w, "mpc_mean_solve\t%v\n", res.MPC.SolveTime/time.Duration(res.MPC.Solves))
		fmt.Fprintf(w, "mpc_mean_iterations\t%.1f\n", float64(res.MPC.Iterations)/float64(res.MPC.Solves))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	first := make([]float64, len(res.States))
	for i, x := range res.States {
		first[i] = x[0]
	}
	fmt.Println()
	fmt.Println(asciigraph.Plot(first,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("position of mass 1"),
	))

	if saveStates {
		st := storage.New(resultsDir)
		states, controls := res.Series()
		runID, err := st.SaveStates(cfg.Controller, res.Times, states, controls)
		if err != nil {
			return err
		}
		fmt.Printf("\nsaved %s\n", filepath.Join(resultsDir, runID))
	}
	return nil
}
