package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"tradesim/internal/api"
	"tradesim/internal/config"
	"tradesim/internal/engine"
	"tradesim/internal/performance"
	"tradesim/internal/store"
	"tradesim/internal/timeseries"
	"tradesim/internal/util"
	"tradesim/pkg/tradesim"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: tradesim-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version      Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  run          Run a simulation locally or on a server\n")
	fmt.Fprintf(os.Stderr, "  show <id>    Print a run from a server\n")
	fmt.Fprintf(os.Stderr, "  list         List runs on a server\n")
	fmt.Fprintf(os.Stderr, "  compare <id>...  Compare completed runs on a server\n")
	fmt.Fprintf(os.Stderr, "  strategies   List the strategy catalogue\n")
	fmt.Fprintf(os.Stderr, "\nRun 'tradesim-cli <command> -h' for command options.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("tradesim-cli %s\n", version)
	case "run":
		err = runCmd(ctx, os.Args[2:])
	case "show":
		err = showCmd(ctx, os.Args[2:])
	case "list":
		err = listCmd(ctx, os.Args[2:])
	case "compare":
		err = compareCmd(ctx, os.Args[2:])
	case "strategies":
		err = strategiesCmd(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

type runFlags struct {
	configPath   string
	remote       string
	grpcAddr     string
	strategy     string
	symbols      string
	start        string
	end          string
	capital      float64
	fill         string
	asJSON       bool
	exportTrades string
	exportEquity string
}

func runCmd(ctx context.Context, args []string) error {
	var f runFlags
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.StringVar(&f.configPath, "config", config.PathFromEnv(), "config file; its simulation section supplies defaults")
	fs.StringVar(&f.remote, "remote", "", "tradesim-server base URL (runs locally when empty)")
	fs.StringVar(&f.grpcAddr, "grpc", "", "tradesim-server gRPC address (host:port)")
	fs.StringVar(&f.strategy, "strategy", "", "strategy id")
	fs.StringVar(&f.symbols, "symbols", "", "comma-separated symbols")
	fs.StringVar(&f.start, "start", "", "start date YYYY-MM-DD")
	fs.StringVar(&f.end, "end", "", "end date YYYY-MM-DD")
	fs.Float64Var(&f.capital, "capital", 0, "initial capital")
	fs.StringVar(&f.fill, "fill", "", "fill policy: next_open or close")
	fs.BoolVar(&f.asJSON, "json", false, "print the result as JSON")
	fs.StringVar(&f.exportTrades, "trades-csv", "", "write the trade log to this CSV file")
	fs.StringVar(&f.exportEquity, "equity-csv", "", "write the equity curve to this CSV file")
	fs.Parse(args)

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	sim := cfg.Simulation
	applyRunFlags(&sim, f)

	var run *engine.Run
	switch {
	case f.grpcAddr != "":
		run, err = runGRPC(ctx, f.grpcAddr, sim)
	case f.remote != "":
		run, err = runRemote(ctx, f.remote, sim)
	default:
		run, err = runLocal(ctx, cfg, sim)
	}
	if err != nil {
		return err
	}
	return report(run, f)
}

// loadConfig falls back to the defaults when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func applyRunFlags(sim *config.Simulation, f runFlags) {
	if f.strategy != "" {
		sim.Strategy = f.strategy
	}
	if f.symbols != "" {
		sim.Symbols = nil
		for _, s := range strings.Split(f.symbols, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sim.Symbols = append(sim.Symbols, strings.ToUpper(s))
			}
		}
	}
	if f.start != "" {
		sim.StartDate = f.start
	}
	if f.end != "" {
		sim.EndDate = f.end
	}
	if f.capital > 0 {
		sim.InitialCapital = f.capital
	}
	if f.fill != "" {
		sim.FillPolicy = f.fill
	}
}

func runLocal(ctx context.Context, cfg *config.Config, sim config.Simulation) (*engine.Run, error) {
	ps := store.NewParquetStore(cfg.Storage.DataDir)
	m := engine.NewManager(
		timeseries.Sources{Bars: ps, Sentiment: ps, Fundamentals: ps},
		nil,
		engine.ManagerOptions{MaxConcurrent: 1, Logger: util.NewLogger(cfg.Logging.Level, "text")},
	)

	id, err := m.Run(ctx, sim)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.Close()
	}
	return m.Result(context.Background(), id)
}

func runRemote(ctx context.Context, baseURL string, sim config.Simulation) (*engine.Run, error) {
	c := tradesim.NewClient(baseURL)
	id, err := c.Run(ctx, sim)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx, id, 500*time.Millisecond)
}

func runGRPC(ctx context.Context, addr string, sim config.Simulation) (*engine.Run, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	c := api.NewSimulationsClient(conn)
	id, err := c.Run(ctx, sim)
	if err != nil {
		return nil, err
	}
	t := time.NewTicker(500 * time.Millisecond)
	defer t.Stop()
	for {
		run, err := c.GetResult(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.State.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func report(run *engine.Run, f runFlags) error {
	if f.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}
	fmt.Println(renderRun(run))
	if run.Result == nil {
		return nil
	}
	if f.exportTrades != "" {
		if err := writeCSV(f.exportTrades, func(w *os.File) error { return performance.WriteTradesCSV(w, run.Result.Trades) }); err != nil {
			return err
		}
	}
	if f.exportEquity != "" {
		if err := writeCSV(f.exportEquity, func(w *os.File) error { return performance.WriteEquityCSV(w, run.Result.EquityCurve) }); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, write func(*os.File) error) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(out); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Println(dimStyle.Render("wrote " + path))
	return out.Close()
}

// ---------------------------------------------------------------------------
// Remote-only commands
// ---------------------------------------------------------------------------

func remoteFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	remote := fs.String("remote", "http://localhost:8080", "tradesim-server base URL")
	return fs, remote
}

func showCmd(ctx context.Context, args []string) error {
	fs, remote := remoteFlags("show")
	asJSON := fs.Bool("json", false, "print the run as JSON")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("show takes exactly one run id")
	}
	run, err := tradesim.NewClient(*remote).Result(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return report(run, runFlags{asJSON: *asJSON})
}

func listCmd(ctx context.Context, args []string) error {
	fs, remote := remoteFlags("list")
	fs.Parse(args)
	runs, err := tradesim.NewClient(*remote).List(ctx)
	if err != nil {
		return err
	}
	fmt.Println(renderSummaries(runs))
	return nil
}

func compareCmd(ctx context.Context, args []string) error {
	fs, remote := remoteFlags("compare")
	fs.Parse(args)
	if fs.NArg() == 0 {
		return errors.New("compare needs at least one run id")
	}
	rows, err := tradesim.NewClient(*remote).Compare(ctx, fs.Args()...)
	if err != nil {
		return err
	}
	fmt.Println(renderComparison(rows))
	return nil
}

func strategiesCmd(ctx context.Context, args []string) error {
	fs, remote := remoteFlags("strategies")
	fs.Parse(args)
	list, err := tradesim.NewClient(*remote).Strategies(ctx)
	if err != nil {
		return err
	}
	for _, s := range list {
		kind := "base"
		if s.Composite {
			kind = "composite"
		}
		fmt.Printf("%s %s  %s\n", symbolStyle.Render(fmt.Sprintf("%-15s", s.ID)), dimStyle.Render(fmt.Sprintf("%-9s", kind)), s.Description)
	}
	return nil
}
