package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/logex"

	"github.com/runningwild/diskmark/pkg/bench"
	"github.com/runningwild/diskmark/pkg/config"
	"github.com/runningwild/diskmark/pkg/engine"
	"github.com/runningwild/diskmark/pkg/fio"
	"github.com/runningwild/diskmark/pkg/history"
	"github.com/runningwild/diskmark/pkg/report"
	"github.com/runningwild/diskmark/pkg/sweep"
)

func main() {
	// Dispatch subcommands
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			runBenchCmd(os.Args[2:])
			return
		case "sweep":
			runSweepCmd(os.Args[2:])
			return
		case "history":
			runHistoryCmd(os.Args[2:])
			return
		case "fio":
			runFioCmd(os.Args[2:])
			return
		}
	}

	// Default behavior (flags -> run)
	runBenchCmd(os.Args[1:])
}

// Flags holds pointers to all supported CLI flags
type Flags struct {
	// Config File (optional)
	ConfigFile  *string
	WriteConfig *string

	// Flag-based settings, ignored when -config is given
	Location   *string
	Write      *bool
	Read       *bool
	Marks      *int
	Blocks     *int
	BlockKB    *int
	Rand       *bool
	MultiFile  *bool
	StartMark  *int
	Sync       *bool
	Direct     *bool
	EngineType *string
	AutoRemove *bool
	DropCaches *bool
	History    *string

	// Reporting
	ReportFile *string
	Verbose    *bool

	fs *flag.FlagSet
}

func SetupFlags(fs *flag.FlagSet) *Flags {
	d := config.Default()
	f := &Flags{fs: fs}
	f.ConfigFile = fs.String("config", "", "Path to YAML or TOML configuration file (disables other flags)")
	f.WriteConfig = fs.String("write-config", "", "Save the effective configuration to this file (.toml or YAML)")

	f.Location = fs.String("location", d.Location, "Directory on the device under test")
	f.Write = fs.Bool("write", d.Write, "Run the WRITE phase")
	f.Read = fs.Bool("read", d.Read, "Run the READ phase")
	f.Marks = fs.Int("marks", d.Marks, "Number of marks (samples) per phase")
	f.Blocks = fs.Int("blocks", d.BlocksPerMark, "Blocks per mark")
	f.BlockKB = fs.Int("bs", d.BlockSizeKB, "Block size in KB")
	f.Rand = fs.Bool("rand", false, "Random block order (default is sequential)")
	f.MultiFile = fs.Bool("multi-file", d.MultiFile, "Use a separate file for every mark")
	f.StartMark = fs.Int("start-mark", d.StartMark, "Index of the first mark (default: continue after the last run in -history)")
	f.Sync = fs.Bool("sync", d.WriteSync, "Open files with O_DSYNC")
	f.Direct = fs.Bool("direct", d.Direct, "Use O_DIRECT (wins over -sync)")
	f.EngineType = fs.String("engine", d.Engine, "I/O engine: 'sync', 'uring', or 'libaio'")
	f.AutoRemove = fs.Bool("auto-remove", d.AutoRemove, "Delete the test files when done")
	f.DropCaches = fs.Bool("drop-caches", d.DropCaches, "Drop the page cache between WRITE and READ (needs root)")
	f.History = fs.String("history", d.History, "Append results to this run-history file")

	f.ReportFile = fs.String("report", "", "Write results to JSON file")
	f.Verbose = fs.Bool("v", false, "Print per-mark log lines")
	return f
}

// LoadConfig determines the config source (file or flags) and returns a Config object.
func (f *Flags) LoadConfig() (*config.Config, error) {
	if *f.ConfigFile != "" {
		cfg, err := config.Load(*f.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		return cfg, nil
	}

	cfg := config.Default()
	cfg.Location = *f.Location
	cfg.Write = *f.Write
	cfg.Read = *f.Read
	cfg.Marks = *f.Marks
	cfg.BlocksPerMark = *f.Blocks
	cfg.BlockSizeKB = *f.BlockKB
	if *f.Rand {
		cfg.Order = string(engine.Random)
	}
	cfg.MultiFile = *f.MultiFile
	cfg.StartMark = *f.StartMark
	cfg.WriteSync = *f.Sync
	cfg.Direct = *f.Direct
	cfg.Engine = *f.EngineType
	cfg.AutoRemove = *f.AutoRemove
	cfg.DropCaches = *f.DropCaches
	cfg.History = *f.History

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// explicitStart reports whether the first mark was chosen by the user,
// either with -start-mark or in the config file.
func (f *Flags) explicitStart(cfg *config.Config) bool {
	if cfg.StartMark != 0 {
		return true
	}
	set := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "start-mark" {
			set = true
		}
	})
	return set
}

func (f *Flags) MaybeWriteConfig(cfg *config.Config) {
	if *f.WriteConfig == "" {
		return
	}
	if err := config.Write(*f.WriteConfig, cfg); err != nil {
		logex.Error("failed to write config file:", err)
		return
	}
	fmt.Printf("Configuration written to %s\n", *f.WriteConfig)
}

func parseConfig(name string, args []string) (*Flags, *config.Config) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	f := SetupFlags(fs)
	fs.Parse(args)

	cfg, err := f.LoadConfig()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	f.MaybeWriteConfig(cfg)
	return f, cfg
}

// interruptible returns a context for a benchmark. The first interrupt asks
// the console to stop after the current mark; the second one cancels the
// context, aborting the mark in flight.
func interruptible(c *report.Console) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
		case <-ctx.Done():
			return
		}
		c.Cancel()
		c.Message("stopping after the current mark, interrupt again to abort now")
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

func openHistory(path string) *history.Store {
	if path == "" {
		return nil
	}
	store, err := history.Open(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return store
}

// runBenchCmd handles "diskmark [run] [flags]"
func runBenchCmd(args []string) {
	f, cfg := parseConfig("run", args)

	store := openHistory(cfg.History)
	if store != nil {
		defer store.Close()
	}

	console := report.NewConsole(os.Stdout)
	console.Verbose = *f.Verbose
	ctx, stop := interruptible(console)
	defer stop()

	session := bench.NewSession(cfg, store)
	if !f.explicitStart(cfg) {
		// Continue numbering where the previous recorded run stopped.
		session.Resume()
	}
	logex.Info("benchmarking", cfg.DataDir(), "from mark", session.NextMark())
	records, runErr := session.Run(ctx, console)
	for _, rec := range records {
		console.Summary(rec)
	}

	if *f.ReportFile != "" && len(records) > 0 {
		writeReport(*f.ReportFile, records)
	}
	if runErr != nil {
		fmt.Printf("Benchmark failed: %v\n", runErr)
		os.Exit(1)
	}
}

// runSweepCmd handles "diskmark sweep [flags]"
func runSweepCmd(args []string) {
	f, cfg := parseConfig("sweep", args)

	console := report.NewConsole(os.Stdout)
	console.Verbose = *f.Verbose
	ctx, stop := interruptible(console)
	defer stop()

	steps, knee, err := sweep.New(cfg).Run(ctx, console)

	var records []*engine.RunRecord
	for _, s := range steps {
		records = append(records, s.Records...)
	}
	if *f.ReportFile != "" && len(records) > 0 {
		writeReport(*f.ReportFile, records)
	}
	if err != nil {
		fmt.Printf("Sweep failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n>>> Sweep Complete <<<\n")
	for _, s := range steps {
		fmt.Printf("%6d KB  %10.2f MB/s\n", s.BlockSizeKB, s.Bandwidth())
	}
	if knee.Label != 0 {
		fmt.Printf("Knee found at: %d KB (%.2f MB/s)\n", knee.Label, knee.Y)
	} else {
		fmt.Println("Could not identify a distinct knee.")
	}
}

// runHistoryCmd handles "diskmark history [-n N] [-clear]"
func runHistoryCmd(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	path := fs.String("history", "diskmark-history.jsonl", "Run-history file")
	n := fs.Int("n", 20, "Number of runs to show")
	clearAll := fs.Bool("clear", false, "Delete all recorded runs")
	fs.Parse(args)

	store := openHistory(*path)
	defer store.Close()

	if *clearAll {
		if err := store.Clear(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("History %s cleared\n", *path)
		return
	}

	recs := store.Recent(*n)
	if len(recs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}
	fmt.Printf("%5s  %-19s  %-5s  %-10s  %7s  %-10s  %9s  %9s  %9s\n",
		"ID", "STARTED", "DIR", "ORDER", "BS(KB)", "STATE", "MIN MB/s", "MAX MB/s", "AVG MB/s")
	for _, r := range recs {
		fmt.Printf("%5d  %-19s  %-5s  %-10s  %7d  %-10s  %9.2f  %9.2f  %9.2f\n",
			r.ID, r.StartTime.Format("2006-01-02 15:04:05"), r.Direction, r.Order,
			r.BlockSize/engine.KiB, r.State, r.Min, r.Max, r.Avg)
	}
}

// runFioCmd handles "diskmark fio [flags]" and "diskmark fio -parse out.json"
func runFioCmd(args []string) {
	fs := flag.NewFlagSet("fio", flag.ExitOnError)
	parse := fs.String("parse", "", "Summarize a fio --output-format=json file instead of generating jobs")
	f := SetupFlags(fs)
	fs.Parse(args)

	if *parse != "" {
		data, err := os.ReadFile(*parse)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		s, err := fio.ParseOutput(data)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("write: %.2f MB/s (%.0f IOPS)\n", s.WriteMBs, s.WriteIOPS)
		fmt.Printf("read:  %.2f MB/s (%.0f IOPS)\n", s.ReadMBs, s.ReadIOPS)
		fmt.Printf("p99 completion latency: %v\n", s.P99Latency)
		return
	}

	cfg, err := f.LoadConfig()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Write {
		fmt.Print(fio.GenerateJob(cfg.Phase(engine.Write, cfg.StartMark)))
	}
	if cfg.Read {
		if cfg.Write {
			fmt.Println()
		}
		fmt.Print(fio.GenerateJob(cfg.Phase(engine.Read, cfg.StartMark)))
	}
}

func writeReport(path string, records []*engine.RunRecord) {
	if err := report.WriteJSON(path, records); err != nil {
		logex.Error(err)
		return
	}
	fmt.Printf("Report written to %s\n", path)
}
