// Package main is the voxelseg command line.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"voxelseg/pkg/config"
	"voxelseg/pkg/logging"
	"voxelseg/pkg/metrics"
	"voxelseg/pkg/pipeline"
)

const (
	// Flags.
	flagConfig  = "config"
	flagDebug   = "debug"
	flagInput   = "input"
	flagOutput  = "output"
	flagCores   = "cores"
	flagMetrics = "metrics"
	flagPath    = "path"
)

func main() {
	var logger *zap.SugaredLogger

	app := &cli.App{
		Name:  "voxelseg",
		Usage: "segment 2D and 3D time-lapse microscopy images by seeded watershed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "log every fusion and merge",
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			logger, err = logging.NewLogger("voxelseg", c.Bool(flagDebug))
			return err
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				_ = logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "segment",
				Usage:     "segment every frame found under the input directory",
				UsageText: "voxelseg segment --input DIR [--output DIR] [--cores N] [--metrics FILE]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagInput,
						Aliases:  []string{"i"},
						Required: true,
						Usage:    "directory of planes, or of one subdirectory of planes per frame",
					},
					&cli.StringFlag{
						Name:    flagOutput,
						Aliases: []string{"o"},
						Usage:   "save colour label planes under `DIR`",
					},
					&cli.IntFlag{
						Name:  flagCores,
						Usage: "number of frames segmented concurrently, overriding the config",
					},
					&cli.StringFlag{
						Name:  flagMetrics,
						Usage: "write Prometheus metrics to `FILE` when done",
					},
				},
				Action: func(c *cli.Context) error {
					return segmentAction(c, logger)
				},
			},
			{
				Name:  "init-config",
				Usage: "write the default configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagPath,
						Value: "config.yaml",
						Usage: "destination `FILE`",
					},
				},
				Action: func(c *cli.Context) error {
					path := c.String(flagPath)
					if err := config.CreateDefaultConfigFile(path); err != nil {
						return err
					}
					logger.Infow("default configuration written", "path", path)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func segmentAction(c *cli.Context, logger *zap.SugaredLogger) error {
	cfg, err := config.LoadConfig(c.String(flagConfig))
	if err != nil {
		return err
	}
	if c.IsSet(flagCores) {
		cfg.Processing.NumCores = c.Int(flagCores)
	}
	if c.IsSet(flagOutput) {
		cfg.Output.SaveLabels = true
		cfg.Output.LabelsDir = c.String(flagOutput)
	}
	if c.Bool(flagDebug) {
		cfg.Processing.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.Processing.Verbose && !cfg.Processing.Debug {
		logger = logger.Desugar().WithOptions(zap.IncreaseLevel(zap.WarnLevel)).Sugar()
	}

	frames, err := pipeline.LoadFrames(c.String(flagInput))
	if err != nil {
		return err
	}
	logger.Infow("frames loaded", "frames", len(frames), "dims", frames[0].Intensity.Dims())

	m := metrics.New()
	segmenter, err := pipeline.NewSegmenter(pipeline.ParamsFromConfig(cfg), logger, m)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	start := time.Now()
	results, segErr := segmenter.SegmentFrames(ctx, frames)

	done := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		done++
		fmt.Printf("%-20s %6d regions %6d seeds %6d fusions %6d merges %10s\n",
			res.Frame.Name, len(res.Regions), res.Seeds, res.Fusions, res.Merges,
			res.Duration.Round(time.Millisecond))
	}
	logger.Infow("segmentation finished",
		"run", segmenter.RunID(), "segmented", done, "frames", len(frames), "elapsed", time.Since(start))

	if path := c.String(flagMetrics); path != "" {
		if err := prometheus.WriteToTextfile(path, m.Registry()); err != nil {
			return errors.Wrap(err, "writing metrics")
		}
	}
	if segErr != nil && !errors.Is(segErr, context.Canceled) {
		return errors.Wrapf(segErr, "%d of %d frames failed", len(frames)-done, len(frames))
	}
	return segErr
}
