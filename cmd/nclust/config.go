package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/23skdu/nclust/internal/core"
	"github.com/23skdu/nclust/internal/engine"
)

// Config holds every setting of a clustering run. Values are resolved in
// order: defaults, NCLUST_* environment (optionally from a .env file), a
// YAML config file, then explicitly set command line flags.
type Config struct {
	Input     string `yaml:"input" envconfig:"INPUT"`
	Format    string `yaml:"format" envconfig:"FORMAT" default:"auto"`
	Column    string `yaml:"column" envconfig:"COLUMN"`
	NCol      int    `yaml:"ncol" envconfig:"NCOL"`
	Mmap      bool   `yaml:"mmap" envconfig:"MMAP"`
	Centroids string `yaml:"centroids" envconfig:"CENTROIDS"`
	Output    string `yaml:"output" envconfig:"OUTPUT" default:"./nclust"`

	Algorithm      string  `yaml:"algorithm" envconfig:"ALGORITHM" default:"kmeans"`
	K              int     `yaml:"k" envconfig:"K" default:"8"`
	MaxIters       int     `yaml:"max_iters" envconfig:"MAX_ITERS" default:"100"`
	Init           string  `yaml:"init" envconfig:"INIT" default:"kmeans++"`
	Metric         string  `yaml:"metric" envconfig:"METRIC" default:"euclidean"`
	Tolerance      float64 `yaml:"tolerance" envconfig:"TOLERANCE" default:"-1"`
	Seed           int64   `yaml:"seed" envconfig:"SEED" default:"1"`
	Threads        int     `yaml:"threads" envconfig:"THREADS"`
	Nodes          int     `yaml:"nodes" envconfig:"NODES"`
	Pin            bool    `yaml:"pin" envconfig:"PIN" default:"true"`
	Verify         bool    `yaml:"verify" envconfig:"VERIFY"`
	Regularization float64 `yaml:"regularization" envconfig:"REGULARIZATION" default:"1e-6"`

	LogFormat   string `yaml:"log_format" envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `yaml:"log_level" envconfig:"LOG_LEVEL" default:"info"`
	MetricsAddr string `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`
}

// Dataset formats accepted by Config.Format.
const (
	FormatAuto  = "auto"
	FormatRaw   = "raw"
	FormatZstd  = "zst"
	FormatArrow = "arrow"
)

// Config validation errors
var (
	ErrMissingInput       = errors.New("input cannot be empty")
	ErrMissingOutput      = errors.New("output cannot be empty")
	ErrInvalidFormat      = errors.New("format must be auto, raw, zst, or arrow")
	ErrInvalidNCol        = errors.New("ncol must be positive for raw input")
	ErrInvalidK           = errors.New("k must be positive")
	ErrInvalidMaxIters    = errors.New("max_iters must be positive")
	ErrInvalidThreads     = errors.New("threads must not be negative")
	ErrInvalidNodes       = errors.New("nodes must not be negative")
	ErrInvalidTolerance   = errors.New("tolerance must be non-negative or -1")
	ErrInvalidRidge       = errors.New("regularization must not be negative")
	ErrInvalidLogFormat   = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel    = errors.New("log_level must be debug, info, warn, or error")
	ErrMmapNeedsRawFormat = errors.New("mmap requires raw input")
)

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Format:         FormatAuto,
		Output:         "./nclust",
		Algorithm:      string(core.AlgorithmKMeans),
		K:              8,
		MaxIters:       100,
		Init:           string(core.InitPlusPlus),
		Metric:         string(core.MetricEuclidean),
		Tolerance:      -1,
		Seed:           1,
		Pin:            true,
		Regularization: engine.DefaultRegularization,
		LogFormat:      "json",
		LogLevel:       "info",
	}
}

// LoadConfig resolves defaults and the environment, then overlays the YAML
// file at path when it is not empty. envFile is loaded first if it exists.
func LoadConfig(envFile, path string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}
	var cfg Config
	if err := envconfig.Process("NCLUST", &cfg); err != nil {
		return Config{}, err
	}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolvedFormat returns the dataset format, inferring it from the input
// extension when Format is auto.
func (c *Config) ResolvedFormat() string {
	if c.Format != FormatAuto && c.Format != "" {
		return c.Format
	}
	switch strings.ToLower(filepath.Ext(c.Input)) {
	case ".zst":
		return FormatZstd
	case ".arrow", ".ipc", ".feather":
		return FormatArrow
	}
	return FormatRaw
}

// ValidateConfig validates the configuration and returns an error if invalid
func ValidateConfig(cfg *Config) error {
	if cfg.Input == "" {
		return ErrMissingInput
	}
	if cfg.Output == "" {
		return ErrMissingOutput
	}
	format := cfg.ResolvedFormat()
	switch format {
	case FormatRaw, FormatZstd, FormatArrow:
	default:
		return ErrInvalidFormat
	}
	if format != FormatArrow && cfg.NCol <= 0 {
		return ErrInvalidNCol
	}
	if cfg.Mmap && format != FormatRaw {
		return ErrMmapNeedsRawFormat
	}
	if cfg.K <= 0 {
		return ErrInvalidK
	}
	if cfg.MaxIters <= 0 {
		return ErrInvalidMaxIters
	}
	if cfg.Threads < 0 {
		return ErrInvalidThreads
	}
	if cfg.Nodes < 0 {
		return ErrInvalidNodes
	}
	if cfg.Tolerance < 0 && cfg.Tolerance != -1 {
		return ErrInvalidTolerance
	}
	if cfg.Regularization < 0 {
		return ErrInvalidRidge
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" && cfg.LogLevel != "error" {
		return ErrInvalidLogLevel
	}
	return nil
}

// EngineOptions maps the configuration onto engine options. The logger and
// topology are left at their defaults.
func (c *Config) EngineOptions() (engine.Options, error) {
	algo, err := core.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return engine.Options{}, err
	}
	init, err := core.ParseInitMethod(c.Init)
	if err != nil {
		return engine.Options{}, err
	}
	metric, err := core.ParseDistanceMetric(c.Metric)
	if err != nil {
		return engine.Options{}, err
	}

	opts := engine.DefaultOptions()
	opts.K = c.K
	opts.MaxIters = c.MaxIters
	opts.NNodes = c.Nodes
	opts.NThreads = c.Threads
	opts.Init = init
	opts.Tolerance = c.Tolerance
	opts.Metric = metric
	opts.Algorithm = algo
	opts.Seed = c.Seed
	opts.Pin = c.Pin
	opts.Verify = c.Verify
	opts.Regularization = c.Regularization
	return opts, nil
}

// registerRunFlags declares the flags of the run command. Defaults shown
// in help come from DefaultConfig; only flags the user sets are applied.
func registerRunFlags(cmd *cobra.Command) {
	d := DefaultConfig()
	f := cmd.Flags()
	f.String("input", "", "Dataset path (raw float64, .zst, or Arrow IPC file)")
	f.String("format", d.Format, "Dataset format: auto, raw, zst, arrow")
	f.String("column", "", "Arrow fixed-size-list column holding the rows")
	f.Int("ncol", 0, "Columns per row for raw input")
	f.Bool("mmap", false, "Memory-map raw input instead of loading it")
	f.String("centroids", "", "Raw float64 file with k initial centroids")
	f.String("output", d.Output, "Output prefix for the Parquet result tables")
	f.String("algorithm", d.Algorithm, "kmeans, skmeans, xmeans, or gmm")
	f.Int("k", d.K, "Number of clusters (upper bound for xmeans)")
	f.Int("max-iters", d.MaxIters, "Iteration limit")
	f.String("init", d.Init, "random, forgy, kmeans++, or none")
	f.String("metric", d.Metric, "euclidean, sqeuclidean, cosine, or taxicab")
	f.Float64("tolerance", d.Tolerance, "Relative objective change that stops the run (-1 disables)")
	f.Int64("seed", d.Seed, "Random seed")
	f.Int("threads", 0, "Worker threads (0 uses every CPU)")
	f.Int("nodes", 0, "NUMA nodes to spread workers over (0 uses all)")
	f.Bool("pin", d.Pin, "Pin worker threads to their NUMA node")
	f.Bool("verify", false, "Checksum worker partitions after loading")
	f.Float64("regularization", d.Regularization, "Ridge added to mixture covariance diagonals")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address during the run")
}

// applyFlags copies every flag the user set onto cfg.
func applyFlags(cmd *cobra.Command, cfg *Config) error {
	f := cmd.Flags()
	strs := map[string]*string{
		"input":        &cfg.Input,
		"format":       &cfg.Format,
		"column":       &cfg.Column,
		"centroids":    &cfg.Centroids,
		"output":       &cfg.Output,
		"algorithm":    &cfg.Algorithm,
		"init":         &cfg.Init,
		"metric":       &cfg.Metric,
		"metrics-addr": &cfg.MetricsAddr,
		"log-format":   &cfg.LogFormat,
		"log-level":    &cfg.LogLevel,
	}
	ints := map[string]*int{
		"ncol":      &cfg.NCol,
		"k":         &cfg.K,
		"max-iters": &cfg.MaxIters,
		"threads":   &cfg.Threads,
		"nodes":     &cfg.Nodes,
	}
	bools := map[string]*bool{
		"mmap":   &cfg.Mmap,
		"pin":    &cfg.Pin,
		"verify": &cfg.Verify,
	}
	floats := map[string]*float64{
		"tolerance":      &cfg.Tolerance,
		"regularization": &cfg.Regularization,
	}

	var err error
	for name, dst := range strs {
		if f.Changed(name) {
			if *dst, err = f.GetString(name); err != nil {
				return err
			}
		}
	}
	for name, dst := range ints {
		if f.Changed(name) {
			if *dst, err = f.GetInt(name); err != nil {
				return err
			}
		}
	}
	for name, dst := range bools {
		if f.Changed(name) {
			if *dst, err = f.GetBool(name); err != nil {
				return err
			}
		}
	}
	for name, dst := range floats {
		if f.Changed(name) {
			if *dst, err = f.GetFloat64(name); err != nil {
				return err
			}
		}
	}
	if f.Changed("seed") {
		if cfg.Seed, err = f.GetInt64("seed"); err != nil {
			return err
		}
	}
	return nil
}
