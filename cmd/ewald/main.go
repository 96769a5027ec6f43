package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/mdkit/ewald/internal/config"
	"github.com/mdkit/ewald/internal/device"
	"github.com/mdkit/ewald/internal/nonbonded"
)

var (
	configFile string
	precision  string
	iterations int
	warmup     int
	noForces   bool
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ccff"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888899"))

	valueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ff88"))
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ewald",
		Short: "long-range nonbonded energy and force evaluation",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "system config file (yaml)")
	rootCmd.PersistentFlags().StringVar(&precision, "precision", "", "override precision (single, mixed, double)")

	energyCmd := &cobra.Command{
		Use:   "energy [preset]",
		Short: "evaluate energy and its components once",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEnergy,
	}

	benchCmd := &cobra.Command{
		Use:   "bench [preset]",
		Short: "benchmark repeated evaluations",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBench,
	}
	benchCmd.Flags().IntVar(&iterations, "iterations", 200, "timed evaluations")
	benchCmd.Flags().IntVar(&warmup, "warmup", 10, "untimed warmup evaluations")
	benchCmd.Flags().BoolVar(&noForces, "no-forces", false, "energy only, skip force accumulation")

	infoCmd := &cobra.Command{
		Use:   "info [preset]",
		Short: "show derived method parameters",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInfo,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in systems",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := config.ListPresets()
			sort.Strings(names)
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}

	rootCmd.AddCommand(energyCmd, benchCmd, infoCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the system description from a preset name or a config
// file; flags override file values.
func loadConfig(args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case len(args) > 0:
		cfg = config.GetPreset(args[0])
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (try 'ewald presets')", args[0])
		}
	case configFile != "":
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	default:
		cfg = config.DefaultConfig()
	}
	if precision != "" {
		cfg.Precision = precision
	}
	return cfg, nil
}

// buildSystem compiles the configured force against a host device context.
func buildSystem(cfg *config.Config) (*nonbonded.Context, *nonbonded.Kernel, error) {
	f, err := cfg.BuildForce()
	if err != nil {
		return nil, nil, err
	}
	box, err := cfg.GetBox()
	if err != nil {
		return nil, nil, err
	}
	prec, err := cfg.GetPrecision()
	if err != nil {
		return nil, nil, err
	}
	dev := device.NewContext(device.HostCapabilities())
	ctx := nonbonded.NewContext(dev, len(cfg.Particles), prec, nonbonded.SeparateChargeBuffer, box)
	if err := ctx.SetPositions(cfg.GetPositions()); err != nil {
		return nil, nil, err
	}
	k, err := nonbonded.NewKernel(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	return ctx, k, nil
}

func runEnergy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	ctx, k, err := buildSystem(cfg)
	if err != nil {
		return err
	}
	defer ctx.Device().Close()

	evaluate := func(direct, recip bool) (float64, error) {
		ctx.ClearForces()
		return k.Execute(nonbonded.ExecuteOptions{
			IncludeForces:     true,
			IncludeEnergy:     true,
			IncludeDirect:     direct,
			IncludeReciprocal: recip,
			Groups:            nonbonded.AllGroups,
		})
	}

	total, err := evaluate(true, true)
	if err != nil {
		return err
	}
	direct, err := evaluate(true, false)
	if err != nil {
		return err
	}
	recip, err := evaluate(false, true)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%s, %d particles", cfg.Method, len(cfg.Particles))))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "direct space\t%14.6f kJ/mol\n", direct)
	fmt.Fprintf(w, "reciprocal space\t%14.6f kJ/mol\n", recip-k.SelfEnergy())
	fmt.Fprintf(w, "self energy\t%14.6f kJ/mol\n", k.SelfEnergy())
	fmt.Fprintf(w, "total\t%14.6f kJ/mol\n", total)
	if err := w.Flush(); err != nil {
		return err
	}

	if _, err := evaluate(true, true); err != nil {
		return err
	}
	derivs := ctx.EnergyDerivatives()
	if len(derivs) > 0 {
		names := make([]string, 0, len(derivs))
		for name := range derivs {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println()
		for _, name := range names {
			fmt.Printf("dE/d(%s): %.6f kJ/mol\n", name, derivs[name])
		}
	}
	return nil
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	ctx, k, err := buildSystem(cfg)
	if err != nil {
		return err
	}
	defer ctx.Device().Close()

	opts := nonbonded.ExecuteOptions{
		IncludeForces:     !noForces,
		IncludeEnergy:     true,
		IncludeDirect:     true,
		IncludeReciprocal: true,
		Groups:            nonbonded.AllGroups,
	}

	fmt.Printf("benchmarking %s, %d particles, %d iterations...\n\n",
		cfg.Method, len(cfg.Particles), iterations)

	for i := 0; i < warmup; i++ {
		ctx.ClearForces()
		if _, err := k.Execute(opts); err != nil {
			return err
		}
	}

	samples := make([]float64, iterations)
	start := time.Now()
	for i := 0; i < iterations; i++ {
		iterStart := time.Now()
		ctx.ClearForces()
		if _, err := k.Execute(opts); err != nil {
			return err
		}
		samples[i] = float64(time.Since(iterStart).Microseconds())
	}
	elapsed := time.Since(start)

	graph := asciigraph.Plot(samples,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("evaluation time (us) per iteration"),
	)
	fmt.Println(graph)
	fmt.Println()

	min, max := floats.Min(samples), floats.Max(samples)
	mean := floats.Sum(samples) / float64(iterations)
	perSec := float64(iterations) / elapsed.Seconds()

	row := func(label, value string) string {
		return labelStyle.Render(fmt.Sprintf("%-12s", label)) + valueStyle.Render(value)
	}
	summary := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("benchmark summary"),
		row("mean", fmt.Sprintf("%.1f us/eval", mean)),
		row("min", fmt.Sprintf("%.1f us/eval", min)),
		row("max", fmt.Sprintf("%.1f us/eval", max)),
		row("throughput", fmt.Sprintf("%.1f evals/sec", perSec)),
		row("total", elapsed.Round(time.Millisecond).String()),
	)
	fmt.Println(panelStyle.Render(summary))
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	ctx, k, err := buildSystem(cfg)
	if err != nil {
		return err
	}
	defer ctx.Device().Close()

	s := k.Settings()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "method\t%s\n", s.Method)
	fmt.Fprintf(w, "particles\t%d\n", ctx.NumParticles())
	fmt.Fprintf(w, "precision\t%s\n", ctx.Precision())
	fmt.Fprintf(w, "box volume\t%.4f nm^3\n", ctx.Box().Volume())
	if s.Method.String() != "no-cutoff" {
		fmt.Fprintf(w, "cutoff\t%.4f nm\n", s.Cutoff)
	}
	if s.UseSwitch {
		fmt.Fprintf(w, "switching distance\t%.4f nm\n", s.SwitchingDistance)
	}
	if s.UseEwald {
		fmt.Fprintf(w, "alpha\t%.6f 1/nm\n", s.Alpha)
		fmt.Fprintf(w, "self energy\t%.6f kJ/mol\n", k.SelfEnergy())
	}
	if kmax, err := k.EwaldKmax(); err == nil {
		fmt.Fprintf(w, "kmax\t%d x %d x %d\n", kmax[0], kmax[1], kmax[2])
	}
	if _, grid, err := k.PMEParameters(); err == nil {
		fmt.Fprintf(w, "pme grid\t%d x %d x %d\n", grid[0], grid[1], grid[2])
	}
	if alpha, grid, err := k.LJPMEParameters(); err == nil {
		fmt.Fprintf(w, "dispersion alpha\t%.6f 1/nm\n", alpha)
		fmt.Fprintf(w, "dispersion grid\t%d x %d x %d\n", grid[0], grid[1], grid[2])
	}
	return w.Flush()
}
