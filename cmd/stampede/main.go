package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stampede/internal/client"
	"stampede/internal/config"
	"stampede/internal/core"
	"stampede/internal/progress"
	"stampede/internal/recorder"
	"stampede/internal/report"
	"stampede/internal/scenario"
	"stampede/internal/threshold"
	"stampede/internal/vuser"
)

const (
	ExitSuccess         = 0
	ExitThresholdFailed = 1
	ExitError           = 2
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (required)")
	baseURL := flag.String("base-url", "", "ticketing service base URL (overrides config)")
	vus := flag.Int("vus", 0, "virtual user count (overrides config)")
	duration := flag.Duration("duration", 0, "run duration for constant-vus (overrides config)")
	output := flag.String("output", "text", "output format: text, json")
	quiet := flag.Bool("quiet", false, "suppress progress output during the run")
	verbose := flag.Bool("verbose", false, "enable request/response logging")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "error: --config is required")
		flag.Usage()
		os.Exit(ExitError)
	}
	if *output != "text" && *output != "json" {
		fmt.Fprintf(os.Stderr, "error: --output must be 'text' or 'json', got %q\n", *output)
		os.Exit(ExitError)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(ExitError)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *vus > 0 {
		cfg.Scenario.VUs = *vus
	}
	if *duration > 0 {
		cfg.Scenario.Duration = *duration
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(ExitError)
	}

	rec := recorder.New()
	rec.DeclareCounters(core.OutcomeCounters()...)

	cl := client.New(cfg.BaseURL, &http.Client{Timeout: cfg.RequestTimeout}, rec)
	if *verbose {
		cl.SetDebug(client.NewDebugLogger(os.Stderr))
	}

	user := vuser.New(cfg.UserConfig(), cl, rec)
	exec := scenario.New(cfg.ScenarioOptions(), rec)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	interrupted := false
	go func() {
		<-sigCh
		interrupted = true
		if !*quiet {
			fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		}
		cancel()
	}()

	prog := progress.New(rec, exec.ActiveVUs, *quiet)
	prog.Printf("stampede starting: %s, %d VUs, flow %q against %s",
		cfg.Scenario.Executor, cfg.Scenario.VUs, cfg.Workflow.Flow, cfg.BaseURL)
	prog.Start()

	start := time.Now()
	if err := exec.Run(ctx, user); err != nil {
		prog.Stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(ExitError)
	}
	prog.Stop()
	prog.Printf("run finished in %v", time.Since(start).Round(time.Millisecond))

	rr := rec.Snapshot()

	var eval *threshold.Evaluation
	if len(cfg.Thresholds) > 0 {
		eval, err = threshold.Evaluate(cfg.Thresholds, rr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(ExitError)
		}
	}

	if *output == "json" {
		if err := report.JSON(os.Stdout, rr, eval); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(ExitError)
		}
	} else {
		report.Text(os.Stdout, rr, eval)
	}

	if interrupted {
		os.Exit(ExitSuccess)
	}
	if eval != nil && !eval.Passed {
		if *output == "text" {
			fmt.Fprintln(os.Stderr, "\nThreshold check failed!")
		}
		os.Exit(ExitThresholdFailed)
	}
	os.Exit(ExitSuccess)
}
