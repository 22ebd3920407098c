package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// version is injected at build time with -ldflags "-X main.version=...".
// Defaults to dev.
var version = "dev"

// cliConfig holds user supplied flag values prior to translation into a
// pipeline.Build call, mirroring cmd/rtmp-server's cliConfig split between
// flag parsing/validation and the server it configures.
type cliConfig struct {
	configPath  string
	executor    string
	watch       bool
	graphvizOut string
	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("omafctl", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.configPath, "config", "", "path to the pipeline JSON configuration")
	fs.StringVar(&cfg.executor, "executor", "sequential", "graph executor: sequential|parallel")
	fs.BoolVar(&cfg.watch, "watch", false, "reload the pipeline configuration on change (logs the new graph, does not hot-swap a running one)")
	fs.StringVar(&cfg.graphvizOut, "graphviz", "", "write a DOT-format rendering of the built graph to this path and exit")
	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.showVersion {
		return cfg, nil
	}
	if cfg.configPath == "" {
		return nil, errors.New("-config is required")
	}
	switch cfg.executor {
	case "sequential", "parallel":
	default:
		return nil, fmt.Errorf("invalid executor %q", cfg.executor)
	}

	return cfg, nil
}
