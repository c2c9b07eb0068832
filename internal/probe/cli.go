package probe

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/queryai/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging sends log output to stdout and, when logFile is set, to the
// file as well. The returned function closes the file.
func SetupLogging(logFile string, verbose bool) (func(), error) {
	var w io.Writer = os.Stdout
	closeFn := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closeFn = func() { _ = f.Close() }
	}
	if err := logger.InitWithWriter(w, "text"); err != nil {
		closeFn()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return closeFn, nil
}

// ShowHelp prints usage information for the probe.
func ShowHelp() {
	os.Stdout.WriteString(`Query Probe
===========

Sends sample insurance questions, claims and chat messages to a running
query backend and checks every answer.

Usage:
  go run ./cmd/query-probe [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8000")
  -rounds int
        Times each sample is sent (default 1)
  -workers int
        Number of concurrent requests (default 4)
  -timeout duration
        HTTP request timeout (default 2m)
  -output string
        Output file for results (default: probe_results_TIMESTAMP.json)
  -log string
        Also write logs to this file
  -verbose
        Log every response
  -help
        Show this help message

Examples:
  # Probe a local service
  go run ./cmd/query-probe

  # Send every sample five times, eight at a time
  go run ./cmd/query-probe -rounds 5 -workers 8 -url http://localhost:8080
`)
}
