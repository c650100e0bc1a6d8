package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shpitdev/cable-intel/internal/app"
	"github.com/shpitdev/cable-intel/internal/services"
	"github.com/shpitdev/cable-intel/internal/types"
)

type urlList []string

func (l *urlList) String() string { return strings.Join(*l, ",") }
func (l *urlList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

func main() {
	var seeds urlList
	var domains urlList
	var template string
	var maxItems int
	var discoverOnly bool
	var timeout time.Duration
	flag.Var(&seeds, "url", "seed product URL (repeatable)")
	flag.Var(&domains, "domain", "allowed domain (repeatable)")
	flag.StringVar(&template, "template", "", "vendor template to discover seeds from (e.g. anker)")
	flag.IntVar(&maxItems, "max", 0, "cap on items per run (0 uses the configured default)")
	flag.BoolVar(&discoverOnly, "discover-only", false, "print discovered URLs without ingesting")
	flag.DurationVar(&timeout, "timeout", 30*time.Minute, "overall run timeout")
	flag.Parse()

	if len(seeds) == 0 && template == "" {
		fmt.Println("usage: seed-ingest [-template anker | -url <product-url> ...] [-domain <host>] [-max N] [-discover-only]")
		os.Exit(2)
	}

	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if template != "" {
		discovered, err := a.Services.Engine.Discover(ctx, template, maxItems)
		if err != nil {
			a.Log.Error("Discovery failed", "template", template, "error", err)
			os.Exit(1)
		}
		fmt.Printf("Discovered %d product URLs from %q\n", len(discovered), template)
		for _, u := range discovered {
			fmt.Println("  " + u)
		}
		if discoverOnly {
			return
		}
		seeds = append(seeds, discovered...)
	}

	wf, err := a.Services.Engine.RunIngest(ctx, services.RunIngestRequest{
		SeedURLs:       seeds,
		AllowedDomains: domains,
		MaxItems:       maxItems,
	})
	if err != nil {
		a.Log.Error("Ingest run failed", "error", err)
		os.Exit(1)
	}

	report, err := a.Services.Reports.GetWorkflowReport(ctx, wf.ID, 0)
	if err != nil {
		a.Log.Error("Could not load workflow report", "workflow_id", wf.ID, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Workflow %s finished with status %s\n", wf.ID, report.Workflow.Status)
	fmt.Printf("  items: %d  completed: %d  failed: %d  cables: %d\n",
		report.Workflow.TotalItems, report.Workflow.CompletedItems, report.Workflow.FailedItems, len(report.Cables))
	for _, item := range report.FailedItems {
		line := fmt.Sprintf("  [%s] %s", item.Status, item.URL)
		if item.LastError != "" {
			line += " (" + item.LastError + ")"
		}
		fmt.Println(line)
	}
	if report.Workflow.Status != types.WorkflowStatusCompleted {
		os.Exit(1)
	}
}
