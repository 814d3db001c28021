package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/hurricanerix/imggen/internal/config"
	"github.com/hurricanerix/imggen/internal/costs"
	"github.com/hurricanerix/imggen/internal/events"
	"github.com/hurricanerix/imggen/internal/startup"
)

func main() {
	os.Exit(run())
}

func run() int {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "cost" {
		return runCost(args[1:])
	}

	overrides, err := config.ParseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := config.LoadEnv(overrides.EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadRunCfg(overrides.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := overrides.Apply(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	tmpl, err := config.LoadTemplateYaml(overrides.TemplatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger := startup.CreateLogger(cfg)
	logger.Info("starting imggen run: provider=%s target=%d concurrency=%d out_dir=%s",
		cfg.Provider.Kind, cfg.Orchestrator.TargetImages, cfg.Orchestrator.Concurrency, cfg.OutDir)

	if cfg.BudgetLimitUSD != nil {
		estimate := costs.EstimateCost(cfg.Orchestrator.TargetImages, cfg.Provider.PriceUSDPerImage)
		if estimate > *cfg.BudgetLimitUSD {
			logger.Warn("estimated cost $%.2f exceeds budget_limit_usd $%.2f", estimate, *cfg.BudgetLimitUSD)
		}
	}

	bus := events.NewBus(0)
	runID := "cli-run"
	o, err := startup.BuildOrchestrator(cfg, tmpl, runID, cfg.OutDir, overrides.Resume, bus, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go renderProgress(bus, runID, done)

	runErr := o.Run(ctx)
	<-done

	if runErr != nil {
		logger.Error("run failed: %v", runErr)
		return 1
	}
	return 0
}

// renderProgress subscribes to bus and renders a progressbar plus
// color-coded log lines until the run's terminal event fires, mirroring
// the teacher's leveled-logger-before-anything-else startup discipline
// applied instead to a live progress display.
func renderProgress(bus *events.Bus, runID string, done chan<- struct{}) {
	defer close(done)

	useColor := isatty.IsTerminal(os.Stdout.Fd())
	ch, cancel := bus.Subscribe()
	defer cancel()

	var bar *progressbar.ProgressBar
	for ev := range ch {
		if ev.RunID != runID {
			continue
		}
		switch ev.Kind {
		case events.KindStarted:
			bar = progressbar.Default(int64(ev.Total), "generating")
		case events.KindProgress:
			if bar != nil {
				_ = bar.Set64(int64(ev.Done))
			}
		case events.KindLog:
			if useColor {
				color.New(color.FgCyan).Fprintln(os.Stderr, ev.Msg)
			} else {
				fmt.Fprintln(os.Stderr, ev.Msg)
			}
		case events.KindFinished:
			if bar != nil {
				_ = bar.Finish()
			}
			return
		case events.KindFailed:
			if useColor {
				color.New(color.FgRed).Fprintf(os.Stderr, "run failed: %s\n", ev.Error)
			} else {
				fmt.Fprintf(os.Stderr, "run failed: %s\n", ev.Error)
			}
			return
		}
	}
}

func runCost(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Error: usage: imggen cost <out_dir>")
		return 1
	}
	summary, err := costs.ComputeSummary(args[0])
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error: out_dir does not exist: %s\n", args[0])
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}

	fmt.Printf("total_cost: $%.4f across %d images (avg $%.4f/image)\n",
		summary.TotalCost, summary.ImageCount, summary.AvgCostPerImage)
	for _, r := range summary.Runs {
		fmt.Printf("  run %s: $%.4f (%d images)\n", r.RunID, r.Cost, r.ImageCount)
	}
	for _, p := range summary.ByProvider {
		fmt.Printf("  %s/%s: $%.4f (%d images)\n", p.Provider, p.Model, p.Cost, p.ImageCount)
	}
	return 0
}
