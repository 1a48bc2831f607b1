package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jengzang/legs-backend-go/internal/analysis"
	"github.com/jengzang/legs-backend-go/internal/app"
	"github.com/jengzang/legs-backend-go/internal/config"
	"github.com/jengzang/legs-backend-go/internal/database"
)

// runjob runs pipeline entry points once, in order, and exits
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	jobs := flag.String("job", "filter_device_data,generate_legs", "comma separated entry points to run in order")
	cutoff := flag.String("cutoff", "", "process data up to this RFC3339 time (default now)")
	repair := flag.Bool("repair", false, "discard incremental state and reprocess the whole history")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	var at time.Time
	if *cutoff != "" {
		if at, err = time.Parse(time.RFC3339, *cutoff); err != nil {
			log.Fatalf("Invalid -cutoff %q: %v", *cutoff, err)
		}
	}

	if err := database.Init(database.Config{Path: cfg.DBPath}); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close()

	a := app.New(cfg, database.GetDB())

	names := strings.Split(*jobs, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
		if _, ok := analysis.AnalyzerRegistry[names[i]]; !ok {
			fmt.Fprintf(os.Stderr, "unknown job %q, available: %s\n", names[i], strings.Join(analysis.Names(), ", "))
			os.Exit(2)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ids, err := a.Tasks.RunChain(ctx, names, a.Tasks.Options(at, *repair), "runjob")
	for _, id := range ids {
		task, getErr := a.Tasks.GetTask(context.Background(), id)
		if getErr != nil {
			continue
		}
		log.Printf("Task %d %s: %s %s", task.ID, task.SkillName, task.Status, task.ResultSummary)
	}
	if err != nil {
		database.Close()
		log.Fatal("Job failed: ", err)
	}
}
