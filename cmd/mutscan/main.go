// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/attic-labs/kingpin"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/mutscan/mutscan/pipeline"

	// table store backends, registered by extension
	_ "github.com/mutscan/mutscan/store/dirstore"
	_ "github.com/mutscan/mutscan/store/ldbstore"
	_ "github.com/mutscan/mutscan/store/tablefile"
)

func main() {
	kingpin.EnableFileExpansion = false
	kingpin.CommandLine.HelpFlag.Short('h')
	app := kingpin.New("mutscan", "Mutscan counts and scores variants across a deep mutational scanning experiment.")

	configPath := app.Arg("config", "experiment configuration file (JSON)").Required().String()
	scoring := app.Flag("scoring-method", fmt.Sprintf("scoring method, one of: %s", strings.Join(pipeline.ScoringMethods(), ", "))).
		Default("counts").String()
	outputDir := app.Flag("output-dir", "override the output directory in the configuration").String()
	logFile := app.Flag("log", "write the log to this file instead of stderr").String()
	recalculate := app.Flag("recalculate", "discard cached main tables and recompute").Bool()
	outliers := app.Flag("component-outliers", "also compute component outlier statistics (slow)").Bool()
	noTSV := app.Flag("no-tsv", "skip the flat tsv export").Bool()
	chunkSize := app.Flag("chunk-size", "rows per merge chunk").Default("0").Int()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fatal("opening log file: %v", err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}
	log := logrus.NewEntry(logger)

	opts := pipeline.RunOptions{
		ScoringMethod:     *scoring,
		OutputDir:         *outputDir,
		ForceRecompute:    *recalculate,
		ComponentOutliers: *outliers,
		WriteTSV:          !*noTSV,
		ChunkSize:         *chunkSize,
	}

	root, err := pipeline.LoadConfigFile(*configPath, opts, log)
	if err != nil {
		fatal("%v", err)
	}
	if err := pipeline.NewRunner(log).Run(root); err != nil {
		fatal("%v", err)
	}
}

func fatal(format string, args ...interface{}) {
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
