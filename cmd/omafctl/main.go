// Command omafctl builds a data-flow graph from a pipeline configuration
// file and runs it to completion, mirroring cmd/rtmp-server's flag
// parsing and signal-driven shutdown but over a Step-driven graph rather
// than a listening server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alxayo/omaf-creator/internal/logger"
	"github.com/alxayo/omaf-creator/internal/omaf/config"
	"github.com/alxayo/omaf-creator/internal/omaf/errs"
	"github.com/alxayo/omaf-creator/internal/omaf/exec"
	"github.com/alxayo/omaf-creator/internal/omaf/pipeline"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	log := logger.Logger().With("component", "cli")

	doc, err := config.LoadFile(cfg.configPath)
	if err != nil {
		log.Error("failed to load pipeline configuration", "error", err)
		os.Exit(1)
	}

	built, err := pipeline.Build(doc, pipeline.Options{})
	if err != nil {
		log.Error("failed to build pipeline graph", "error", err)
		os.Exit(1)
	}
	log.Info("pipeline built", "nodes", len(built.Nodes))

	if cfg.graphvizOut != "" {
		if err := writeGraphviz(built, cfg.graphvizOut); err != nil {
			log.Error("failed to write graphviz output", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.watch {
		w, err := config.WatchFile(cfg.configPath, func(p *config.Pipeline, err error) {
			if err != nil {
				log.Warn("pipeline config reload failed", "error", err)
				return
			}
			log.Info("pipeline config changed on disk; restart omafctl to apply it", "nodes", len(p.Nodes))
		})
		if err != nil {
			log.Warn("failed to watch pipeline configuration", "error", err)
		} else {
			defer w.Close()
		}
	}

	if err := run(ctx, log, cfg.executor, built); err != nil {
		log.Error("pipeline run failed", "error", err)
		os.Exit(1)
	}
	log.Info("pipeline finished")
}

func writeGraphviz(built *pipeline.Built, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return built.Graph.Graphviz(f)
}

func run(ctx context.Context, log *slog.Logger, executor string, built *pipeline.Built) error {
	switch executor {
	case "parallel":
		return runParallel(ctx, log, built)
	default:
		return runSequential(ctx, log, built)
	}
}

func runSequential(ctx context.Context, log *slog.Logger, built *pipeline.Built) error {
	e := exec.NewSequential(built.Graph)
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received; aborting sources")
			e.Abort()
		default:
		}

		more, err := e.Step()
		if err != nil {
			// Every source having gone inactive is Sequential.Step's way
			// of signaling normal completion, not a real failure.
			var noActive *errs.NoActiveSourcesError
			if errors.As(err, &noActive) {
				return nil
			}
			return err
		}
		if !more {
			return nil
		}
	}
}

func runParallel(ctx context.Context, log *slog.Logger, built *pipeline.Built) error {
	e := exec.NewParallel(built.Graph, exec.Config{})
	defer e.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received; aborting sources")
			e.Abort()
		default:
		}

		more, graphErrs := e.Step()
		for _, ge := range graphErrs {
			log.Warn("node error", "error", ge.Error())
		}
		if !more {
			return nil
		}
	}
}
