package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/intcode"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string
	scheduling  string
	seed        int64
	parallelism int
	trace       bool
	timeout     time.Duration

	inputs    string
	phaseSpec string
	noun      int64
	verb      int64

	// populated by the root PersistentPreRunE.
	cfg        Config
	logger     *slog.Logger
	msink      metrics.MetricSink
	stopMetric func()

	rootCmd = &cobra.Command{
		Use:           "intcode",
		Short:         "Run Intcode programs and rings of amplifiers",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if stopMetric != nil {
				stopMetric()
			}
		},
	}

	runCmd = &cobra.Command{
		Use:   "run [program]",
		Short: "Runs one machine fed with --input and prints what it writes",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	execCmd = &cobra.Command{
		Use:   "exec [program]",
		Short: "Runs a program without I/O and prints the value at address 0",
		Args:  cobra.ExactArgs(1),
		RunE:  runExec,
	}

	amplifyCmd = &cobra.Command{
		Use:   "amplify [program]",
		Short: "Runs a ring of amplifiers once for the given --phases",
		Args:  cobra.ExactArgs(1),
		RunE:  runAmplify,
	}

	searchCmd = &cobra.Command{
		Use:   "search [program]",
		Short: "Finds the ordering of --phases producing the highest signal",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	disasmCmd = &cobra.Command{
		Use:   "disasm [program]",
		Short: "Prints a listing of the program",
		Args:  cobra.ExactArgs(1),
		RunE:  runDisasm,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "path to a YAML configuration file")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&logFormat, "log-format", "", "text or json")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	pf.DurationVar(&timeout, "timeout", 0, "abort after this duration")

	for _, cmd := range []*cobra.Command{amplifyCmd, searchCmd} {
		cmd.Flags().StringVar(&phaseSpec, "phases", "", "phase settings, as a list (4,3,2,1,0) or a range (5-9)")
		cmd.Flags().StringVar(&scheduling, "scheduling", "", "concurrent or sequential")
		cmd.Flags().Int64Var(&seed, "seed", 0, "signal pushed to the first amplifier")
		cmd.Flags().BoolVar(&trace, "trace", false, "log every executed instruction")
		cmd.MarkFlagRequired("phases")
	}
	searchCmd.Flags().IntVar(&parallelism, "parallelism", 0, "how many permutations run at once")

	runCmd.Flags().StringVar(&inputs, "input", "", "comma-separated values fed to the program")
	execCmd.Flags().Int64Var(&noun, "noun", 0, "value patched at address 1")
	execCmd.Flags().Int64Var(&verb, "verb", 0, "value patched at address 2")

	rootCmd.AddCommand(runCmd, execCmd, amplifyCmd, searchCmd, disasmCmd)
}

func setup(cmd *cobra.Command) error {
	var err error
	cfg, err = LoadConfig(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Listen = metricsAddr
	}
	if flags.Changed("scheduling") {
		cfg.Network.Scheduling = scheduling
	}
	if flags.Changed("seed") {
		cfg.Network.Seed = seed
	}
	if flags.Changed("parallelism") {
		cfg.Network.Parallelism = parallelism
	}
	if flags.Changed("trace") {
		cfg.Network.Trace = trace
	}
	if flags.Changed("timeout") {
		cfg.Network.Timeout = timeout.String()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger = slog.New(cfg.Log.Handler())
	slog.SetDefault(logger)

	msink, stopMetric, err = startMetrics(cfg.Metrics, logger)
	return err
}

// commandContext ends on SIGINT, SIGTERM or after the configured timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc, error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	if cfg.Network.Timeout == "" {
		return ctx, stop, nil
	}

	d, err := time.ParseDuration(cfg.Network.Timeout)
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("network.timeout: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		stop()
	}, nil
}

func loadProgram(path string) (intcode.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return intcode.ParseProgram(f)
}

func machineOptions() []intcode.MachineOption {
	return []intcode.MachineOption{
		intcode.WithLogger(logger),
		intcode.WithMetrics(msink),
		intcode.WithTrace(cfg.Network.Trace),
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	prog, err := loadProgram(args[0])
	if err != nil {
		return err
	}
	values, err := parseValues(inputs)
	if err != nil {
		return fmt.Errorf("--input: %w", err)
	}

	ctx, cancel, err := commandContext(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	out, err := intcode.Diagnose(ctx, prog, values, append(machineOptions(), intcode.WithName("main"))...)
	for _, v := range out {
		fmt.Fprintln(cmd.OutOrStdout(), v)
	}
	return err
}

func runExec(cmd *cobra.Command, args []string) error {
	prog, err := loadProgram(args[0])
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("noun") || cmd.Flags().Changed("verb") {
		if prog, err = prog.Patch(noun, verb); err != nil {
			return err
		}
	}

	ctx, cancel, err := commandContext(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	v, err := intcode.Execute(ctx, prog, machineOptions()...)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func newNetwork(path string) (*intcode.Network, []int64, error) {
	prog, err := loadProgram(path)
	if err != nil {
		return nil, nil, err
	}
	phases, err := parsePhases(phaseSpec)
	if err != nil {
		return nil, nil, fmt.Errorf("--phases: %w", err)
	}
	opts, err := cfg.NetworkOptions()
	if err != nil {
		return nil, nil, err
	}
	n, err := intcode.NewNetwork(prog, append(opts, intcode.WithMetricSink(msink))...)
	return n, phases, err
}

func runAmplify(cmd *cobra.Command, args []string) error {
	n, phases, err := newNetwork(args[0])
	if err != nil {
		return err
	}

	ctx, cancel, err := commandContext(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	out, err := n.Run(ctx, phases)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	n, phases, err := newNetwork(args[0])
	if err != nil {
		return err
	}

	ctx, cancel, err := commandContext(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	res, err := n.Search(ctx, phases)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", res.Signal, formatValues(res.Phases))
	return nil
}

func runDisasm(cmd *cobra.Command, args []string) error {
	prog, err := loadProgram(args[0])
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), intcode.Disassemble(prog))
	return nil
}

// parseValues parses a comma-separated list of integers, empty meaning
// none.
func parseValues(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	values := make([]int64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// parsePhases accepts either a list or an inclusive range "lo-hi" of
// non-negative values.
func parsePhases(s string) ([]int64, error) {
	if lo, hi, ok := strings.Cut(s, "-"); ok && lo != "" && !strings.Contains(s, ",") {
		from, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
		if err != nil {
			return nil, err
		}
		to, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
		if err != nil {
			return nil, err
		}
		if to < from {
			return nil, fmt.Errorf("empty range %s", s)
		}
		return intcode.PhaseRange(from, to), nil
	}

	values, err := parseValues(s)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, intcode.ErrInvalidPhases
	}
	return values, nil
}

func formatValues(values []int64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}
