// Command rir-synth renders ray-traced energy histograms into room impulse
// responses.
//
// Usage:
//
//	rir-synth [options] <histogram-folder>...
//
// Each folder must hold histogram.csv and histogram.json as written by the
// ray tracer. The result is stored as <folder>/histogram.wav, or under
// <s3-prefix>/<folder name>/histogram.wav when -s3-bucket is set. Folders
// that already hold a result are skipped unless -force is given.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"rir-synth/pkg/histogram"
	"rir-synth/pkg/store"
	"rir-synth/pkg/synth"
)

type options struct {
	cfg     synth.Config
	folders []string

	force   bool
	verbose bool
	irlib   string
	report  bool

	s3Bucket   string
	s3Prefix   string
	s3Region   string
	s3Endpoint string
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(opts.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("failed", zap.Error(err))
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("rir-synth", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		opts       options
		configPath = fs.String("config", "", "JSON synthesis config (flags override its fields)")
		strategy   = fs.String("strategy", string(synth.StrategyFilterBank), `band signal strategy: "filterbank" or "noise"`)
		seed       = fs.Uint64("seed", synth.DefaultSeed, "noise seed")
		volume     = fs.Float64("volume", 0, "room volume in m³ (0 = take VOLUME from histogram.json)")
		output     = fs.String("output", synth.DefaultOutputName, "output object name inside each folder")
	)

	fs.BoolVar(&opts.force, "force", false, "re-render folders that already hold a result")
	fs.BoolVar(&opts.verbose, "verbose", false, "human-readable debug logging")
	fs.StringVar(&opts.irlib, "irlib", "", "also add every rendered response to this IR library (.irlib)")
	fs.BoolVar(&opts.report, "report", false, "log band energies and spectral flatness of each response")
	fs.StringVar(&opts.s3Bucket, "s3-bucket", "", "store results in this S3 bucket instead of the folders")
	fs.StringVar(&opts.s3Prefix, "s3-prefix", "", "key prefix inside the S3 bucket")
	fs.StringVar(&opts.s3Region, "s3-region", "", "AWS region (default from the environment)")
	fs.StringVar(&opts.s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint URL, addressed path-style")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: rir-synth [options] <histogram-folder>...\n\n")
		fmt.Fprintf(stderr, "Renders histogram.csv + histogram.json into a 16-bit 44.1 kHz impulse response.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  rir-synth ./rooms/hall\n")
		fmt.Fprintf(stderr, "  rir-synth -strategy noise -seed 7 -irlib rooms.irlib ./rooms/*\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return nil, errors.New("no histogram folder given")
	}

	opts.folders = fs.Args()

	opts.cfg = synth.DefaultConfig()
	if *configPath != "" {
		cfg, err := synth.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}

		opts.cfg = cfg
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "strategy":
			opts.cfg.Strategy = synth.Strategy(*strategy)
		case "seed":
			opts.cfg.Seed = *seed
		case "volume":
			opts.cfg.VolumeM3 = *volume
		case "output":
			opts.cfg.OutputName = *output
		}
	})

	if err := opts.cfg.Validate(); err != nil {
		return nil, err
	}

	return &opts, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}

	return cfg.Build()
}

// storeFor returns the store that holds the result of folder.
type storeFor func(folder string) (store.Store, error)

func run(ctx context.Context, opts *options, logger *zap.Logger) error {
	syn, err := synth.New(opts.cfg, synth.WithLogger(logger))
	if err != nil {
		return err
	}

	open, err := storeOpener(ctx, opts)
	if err != nil {
		return err
	}

	var failed int

	for _, folder := range opts.folders {
		log := logger.With(zap.String("folder", folder))

		if err := renderFolder(ctx, syn, open, folder, opts, log); err != nil {
			if ctx.Err() != nil {
				return err
			}

			log.Error("render_failed", zap.Error(err))
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d folders failed", failed, len(opts.folders))
	}

	return nil
}

func renderFolder(ctx context.Context, syn *synth.Synthesizer, open storeFor, folder string, opts *options, log *zap.Logger) error {
	st, err := open(folder)
	if err != nil {
		return err
	}

	res, err := syn.Run(ctx, histogram.DirSource{Dir: folder}, st, opts.force)
	if err != nil {
		return err
	}

	if !opts.report && opts.irlib == "" {
		return nil
	}

	a, err := loadArtifact(ctx, syn, res, st, folder)
	if err != nil {
		return err
	}

	if opts.report {
		if err := logReport(a, opts.cfg, log); err != nil {
			return err
		}
	}

	if opts.irlib != "" {
		if err := exportIR(opts.irlib, a, folder); err != nil {
			return err
		}

		log.Info("exported", zap.String("irlib", opts.irlib), zap.String("name", irName(folder)))
	}

	return nil
}

func storeOpener(ctx context.Context, opts *options) (storeFor, error) {
	if opts.s3Bucket == "" {
		return func(folder string) (store.Store, error) {
			return store.NewFileStore(folder), nil
		}, nil
	}

	var loaders []func(*config.LoadOptions) error
	if opts.s3Region != "" {
		loaders = append(loaders, config.WithRegion(opts.s3Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	cli := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.s3Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.s3Endpoint)
			o.UsePathStyle = true
		}
	})

	return func(folder string) (store.Store, error) {
		return store.NewS3Store(cli, opts.s3Bucket, path.Join(opts.s3Prefix, irName(folder)))
	}, nil
}

// irName names a folder's response after the folder itself.
func irName(folder string) string {
	return filepath.Base(filepath.Clean(folder))
}

// inferCategory uses the parent directory name, e.g. "halls" for
// ./halls/concert.
func inferCategory(folder string) string {
	parent := filepath.Base(filepath.Dir(filepath.Clean(folder)))
	if parent == "." || parent == string(filepath.Separator) || parent == "" {
		return "Default"
	}

	return parent
}

// inferTags picks room keywords out of name.
func inferTags(name string) []string {
	keywords := []string{
		"hall", "room", "chamber", "church", "cathedral",
		"studio", "booth", "corridor", "stairwell", "office",
		"large", "small", "medium", "short", "long",
	}

	lower := strings.ToLower(name)

	var tags []string
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			tags = append(tags, kw)
		}
	}

	return tags
}
