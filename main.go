// Package main is the entry point for the support-tracker CLI application.
package main

import (
	"fmt"
	"os"

	"github.com/stevkan/support-tracker/cmd"
	"github.com/stevkan/support-tracker/internal/logging"
)

// main is the entry point of the application.
// It executes the root command and handles any errors that occur.
func main() {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	logging.Info("starting support-tracker", "log_level", logLevel)

	if err := cmd.Execute(); err != nil {
		logging.Error("command execution failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
