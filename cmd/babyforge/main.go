// Command babyforge generates a 3D baby model from two parent photos.
//
// Usage:
//
//	babyforge generate -parent1 mom.jpg -parent2 dad.jpg
//	babyforge generate -config config.yaml -metrics-addr :9090 ...
//	babyforge runs
//	babyforge version
//
// Provider credentials come from the REPLICATE_API_TOKEN and
// MESHY_API_TOKEN environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/babyforge/babyforge"
	"github.com/babyforge/babyforge/config"
	"github.com/babyforge/babyforge/runstore"
	"github.com/babyforge/babyforge/types"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "generate":
		os.Exit(runGenerate(os.Args[2:]))
	case "runs":
		os.Exit(runRuns(os.Args[2:]))
	case "version":
		fmt.Printf("babyforge %s (%s)\n", Version, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `babyforge - photo to 3D baby model pipeline

Commands:
  generate   run the full pipeline over two parent photos
  runs       list persisted pipeline runs
  version    print version information
`)
}

func runGenerate(args []string) int {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	parent1 := fs.String("parent1", "", "path to the first parent photo")
	parent2 := fs.String("parent2", "", "path to the second parent photo")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	fs.Parse(args)

	if *parent1 == "" || *parent2 == "" {
		fmt.Fprintln(os.Stderr, "both -parent1 and -parent2 are required")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	eng, err := babyforge.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		return 1
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: eng.MetricsHandler(), ReadHeaderTimeout: 5 * time.Second}
		go srv.ListenAndServe()
		defer srv.Close()
	}

	start := time.Now()
	run, err := eng.GenerateFiles(ctx, *parent1, *parent2)
	if err != nil {
		diagnose(err)
		if run != nil {
			for stage := 1; stage <= 3; stage++ {
				if out := run.Output(stage); out != nil && out.SavedPath != "" {
					fmt.Fprintf(os.Stderr, "kept stage %d output: %s\n", stage, out.SavedPath)
				}
			}
		}
		return 1
	}

	fmt.Printf("completed in %s (run %s)\n", time.Since(start).Round(time.Second), run.ID)
	for stage := 1; stage <= 3; stage++ {
		if out := run.Output(stage); out != nil {
			fmt.Printf("  stage %d (%s): %s\n", stage, out.Model, out.SavedPath)
		}
	}
	return 0
}

// diagnose prints the failure with per-candidate detail so the operator
// can see which models were tried and why each one was rejected.
func diagnose(err error) {
	fmt.Fprintf(os.Stderr, "generation failed: %v\n", err)

	var terr *types.Error
	for e := err; errors.As(e, &terr); e = terr.Cause {
		if len(terr.Attempts) > 0 {
			fmt.Fprintln(os.Stderr, "candidates tried:")
			for _, a := range terr.Attempts {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", a.Model, a.Reason)
			}
			return
		}
		if terr.Cause == nil {
			return
		}
	}
}

func runRuns(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	store, err := runstore.Open(cfg.Pipeline.RunStorePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open run store: %v\n", err)
		return 1
	}

	recs, err := store.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "list runs: %v\n", err)
		return 1
	}
	if len(recs) == 0 {
		fmt.Println("no runs recorded")
		return 0
	}
	for _, r := range recs {
		line := fmt.Sprintf("%s  %-15s  %s", r.ID, r.Status, r.UpdatedAt.Format(time.RFC3339))
		if r.Status == "failed" {
			line += fmt.Sprintf("  stage %d: %s", r.FailedStage, r.FailureReason)
		}
		fmt.Println(line)
	}
	return 0
}
