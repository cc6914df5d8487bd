// Command nclust clusters a dataset on a NUMA-aware worker pool and writes
// the result as Parquet tables.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/23skdu/nclust/internal/dataset"
	"github.com/23skdu/nclust/internal/engine"
	"github.com/23skdu/nclust/internal/export"
	"github.com/23skdu/nclust/internal/logging"
	"github.com/23skdu/nclust/internal/metrics"
	"github.com/23skdu/nclust/internal/numa"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	d := DefaultConfig()
	rootCmd := &cobra.Command{
		Use:          "nclust",
		Short:        "Parallel NUMA-aware clustering",
		SilenceUsage: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "YAML config file")
	pf.String("env-file", ".env", "Environment file loaded before NCLUST_* variables are read")
	pf.String("log-format", d.LogFormat, "Log format: json or console")
	pf.String("log-level", d.LogLevel, "Log level: debug, info, warn, error")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nclust v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "topology",
		Short: "Print the detected NUMA layout and processor",
		RunE:  runTopology,
	})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Cluster a dataset",
		RunE:  runCluster,
	}
	registerRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)

	return rootCmd
}

// loadCommandConfig resolves the config for cmd: environment, YAML file,
// then flags.
func loadCommandConfig(cmd *cobra.Command) (Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	path, _ := cmd.Flags().GetString("config")
	cfg, err := LoadConfig(envFile, path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newLogger(cfg *Config, out io.Writer) (zerolog.Logger, error) {
	lc := logging.DefaultConfig()
	lc.Format = cfg.LogFormat
	lc.Level = cfg.LogLevel
	if out != nil {
		lc.Output = out
	}
	return logging.NewLogger(lc)
}

func runTopology(cmd *cobra.Command, _ []string) error {
	topo, err := numa.DetectTopology()
	if err != nil {
		return err
	}
	cpu := numa.Describe()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "CPU: %s (%d physical, %d logical, %d usable)\n",
		cpu.Brand, cpu.PhysicalCores, cpu.LogicalCores, cpu.Usable)
	fmt.Fprint(out, topo.String())
	if topo.NumNodes <= 1 {
		fmt.Fprintln(out)
	}
	return nil
}

func runCluster(cmd *cobra.Command, _ []string) error {
	cfg, err := loadCommandConfig(cmd)
	if err != nil {
		return err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return err
	}
	logger, err := newLogger(&cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	cpu := numa.Describe()
	logger.Info().
		Str("cpu", cpu.Brand).
		Int("physical_cores", cpu.PhysicalCores).
		Int("logical_cores", cpu.LogicalCores).
		Str("version", version).
		Msg("nclust starting")

	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}
	opts.Logger = logger

	src, closeSrc, err := openDataset(&cfg, opts.NThreads)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSrc(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close dataset")
		}
	}()
	metrics.DatasetRowsLoaded.Set(float64(src.NRow()))
	logger.Info().
		Str("input", cfg.Input).
		Str("format", cfg.ResolvedFormat()).
		Int("rows", src.NRow()).
		Int("cols", src.NCol()).
		Msg("Dataset loaded")

	var centroids []float64
	if cfg.Centroids != "" {
		m, err := dataset.LoadFile(cfg.Centroids, src.NCol(), 1)
		if err != nil {
			return fmt.Errorf("load centroids: %w", err)
		}
		centroids = m.Data()
	}

	c, err := engine.New(src, opts)
	if err != nil {
		return err
	}
	rec, err := c.Run(centroids)
	if err != nil {
		logger.Error().Err(err).Msg("Run failed")
		return err
	}

	paths, err := export.WriteFiles(cfg.Output, rec)
	if err != nil {
		return err
	}
	logger.Info().
		Str("run_id", rec.RunID).
		Int("k", rec.K).
		Int("iters", rec.Iters).
		Bool("converged", rec.Converged).
		Float64("objective", rec.Objective).
		Strs("outputs", paths).
		Msg("Results written")
	return nil
}

// openDataset returns the row source for cfg and a function releasing it.
func openDataset(cfg *Config, parallel int) (dataset.Source, func() error, error) {
	noop := func() error { return nil }
	if parallel < 1 {
		parallel = numa.DefaultThreads()
	}
	switch cfg.ResolvedFormat() {
	case FormatArrow:
		m, err := dataset.ReadArrowFile(cfg.Input, cfg.Column)
		return m, noop, err
	case FormatZstd:
		m, err := dataset.LoadFile(cfg.Input, cfg.NCol, parallel)
		return m, noop, err
	case FormatRaw:
		if cfg.Mmap {
			s, err := dataset.MapFile(cfg.Input, cfg.NCol)
			if err != nil {
				return nil, noop, err
			}
			return s, s.Close, nil
		}
		m, err := dataset.LoadFile(cfg.Input, cfg.NCol, parallel)
		return m, noop, err
	}
	return nil, noop, ErrInvalidFormat
}

func startMetricsServer(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("address", addr).Msg("Starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("address", addr).Msg("Metrics server failed")
		}
	}()
	return srv
}
