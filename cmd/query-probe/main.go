package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/queryai/internal/probe"
)

// Default configuration constants.
const (
	defaultRounds       = 1
	defaultWorkers      = 4
	defaultTimeout      = 2 * time.Minute
	defaultProbeTimeout = 30 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:8000", "Base URL of the service")
		rounds     = flag.Int("rounds", defaultRounds, "Times each sample is sent")
		workers    = flag.Int("workers", defaultWorkers, "Number of concurrent requests")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Output file for results (default: probe_results_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Also write logs to this file")
		verbose    = flag.Bool("verbose", false, "Log every response")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		probe.ShowHelp()
		return
	}

	closeLog, err := probe.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closeLog()

	ctx, cancel := context.WithTimeout(context.Background(), defaultProbeTimeout)
	defer cancel()

	config := &probe.Config{
		BaseURL:    *baseURL,
		Rounds:     *rounds,
		Workers:    *workers,
		Timeout:    *timeout,
		OutputFile: *outputFile,
		Verbose:    *verbose,
	}

	if _, err := probe.Run(ctx, config, nil); err != nil {
		os.Stderr.WriteString("Probe failed: " + err.Error() + "\n")
		closeLog()
		cancel()
		os.Exit(1)
	}
}
