// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command meteor runs the on-camera meteor detection pipeline: it ingests a
// live video stream, accumulates per-pixel statistics over 256-frame
// blocks, searches each block for linear bright transients, and publishes
// detections and periodic full-resolution stacks to a remote receiver.
//
// Sensor/ISP initialisation, exposure control and the vendor capture API
// are out of scope for this program (they are external collaborators); when
// no hardware capture source is wired in, meteor drives the pipeline from a
// synthetic, deterministic source so the rest of the stack stays testable
// without a camera attached.
package main

import (
	"fmt"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/maruel/interrupt"
	"github.com/spf13/pflag"

	"github.com/istorrs/meteor/capture"
	"github.com/istorrs/meteor/detector"
	"github.com/istorrs/meteor/ingest"
	"github.com/istorrs/meteor/push"
	"github.com/istorrs/meteor/stacker"
	"github.com/istorrs/meteor/trig"
)

func mainImpl() error {
	configPath := pflag.StringP("config", "c", "/etc/meteor/meteor.yaml", "path to the YAML configuration file")
	station := pflag.StringP("station", "s", "", "override the configured station id")
	dryRun := pflag.BoolP("dry-run", "n", false, "run the pipeline against a synthetic source without publishing")
	fullResW := pflag.Int("full-width", 640, "full-resolution capture width fed to the stacker")
	fullResH := pflag.Int("full-height", 480, "full-resolution capture height fed to the stacker")
	pflag.Parse()

	logger := charmlog.New(os.Stderr)
	logger.SetLevel(charmlog.InfoLevel)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("meteor: loading %s: %w", *configPath, err)
	}
	if *station != "" {
		cfg.Detect.Station = *station
	}
	cfg.Stacker.Station = cfg.Detect.Station

	if *dryRun {
		logger.Warn("dry run: publishing to an address nothing listens on")
		cfg.Push.ServerIP = "127.0.0.1"
		cfg.Push.ServerPort = 1
		cfg.Push.TimeoutMS = 50
	}

	interrupt.HandleCtrlC()

	tab := trig.New(cfg.Detect.ThetaSteps)
	client := push.New(cfg.Push, logger)
	engine := detector.New(cfg.Detect, tab, client, logger)
	encoder := capture.JPEGEncoder{Quality: cfg.Stacker.JPEGQuality}
	stack := stacker.New(cfg.Stacker, *fullResW, *fullResH, encoder, client, logger)

	source := capture.NewSynthetic(*fullResW, *fullResH, 20, time.Second/time.Duration(cfg.Detect.FPS))
	driver := ingest.New(source, engine, stack, cfg.Detect.DetectW, cfg.Detect.DetectH, logger)

	go driver.Run()

	for !interrupt.IsSet() {
		time.Sleep(time.Second)
		es, ss := engine.Stats(), stack.Stats()
		logger.Info("status",
			"blocks_processed", es.BlocksProcessed,
			"blocks_dropped", es.BlocksDropped,
			"detections", es.DetectionsPublished,
			"stacks_produced", ss.StacksProduced,
			"stacks_dropped", ss.StacksDropped,
		)
	}

	driver.Close()
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "meteor: %s\n", err)
		os.Exit(1)
	}
}
