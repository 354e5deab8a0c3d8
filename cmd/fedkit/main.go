// Fedkit runs federated learning simulations and serves remote clients.
//
//	fedkit sim [flags]     run a server over in-memory (and optional remote) clients
//	fedkit client [flags]  serve one client over WebSocket
//	fedkit schema          print the server config JSON Schema
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/randalmurphal/fedkit/proxy"
	"github.com/randalmurphal/fedkit/server"
)

func main() {
	flag.Usage = usage
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "sim":
		err = runSimCmd(ctx, os.Args[2:], os.Stdout)
	case "client":
		err = runClientCmd(ctx, os.Args[2:])
	case "schema":
		err = runSchema(os.Stdout)
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: fedkit <command> [flags]\n\nCommands:\n"+
		"  sim     Run federated rounds over simulated clients\n"+
		"  client  Serve a simulated client over WebSocket\n"+
		"  schema  Print the server config JSON Schema\n")
}

func runSimCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sim", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fedkit sim [flags]\n\nRun federated rounds over simulated linear-regression clients.\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nTransports: %s\n", strings.Join(proxy.Available(), ", "))
	}
	opts := defaultSimOptions()
	fs.StringVar(&opts.configPath, "config", "", "path to server config (.yaml, .yml, .toml or .json)")
	fs.BoolVar(&opts.watch, "watch", false, "reload -config between rounds when it changes")
	envFile := fs.String("env", ".env", "path to .env file (ignored if missing)")
	fs.IntVar(&opts.clients, "clients", opts.clients, "number of in-memory clients")
	fs.IntVar(&opts.samples, "samples", opts.samples, "training samples per client")
	fs.IntVar(&opts.dim, "dim", opts.dim, "number of features")
	fs.Float64Var(&opts.noise, "noise", opts.noise, "label noise standard deviation")
	fs.Uint64Var(&opts.seed, "seed", opts.seed, "random seed for data and sampling")
	fs.StringVar(&opts.prefix, "prefix", "", "client id prefix (default: random UUIDs)")
	fs.Var(&opts.remotes, "remote", "WebSocket URL of a remote client (repeatable)")
	verbose := fs.Bool("verbose", false, "log debug events")
	_ = fs.Parse(args)

	if err := loadDotEnv(*envFile); err != nil {
		return err
	}
	setupLogging(*verbose)
	return runSim(ctx, opts, out)
}

func runClientCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fedkit client [flags]\n\nServe a simulated linear-regression client over WebSocket.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	opts := defaultSimOptions()
	addr := fs.String("addr", ":8089", "listen address")
	envFile := fs.String("env", ".env", "path to .env file (ignored if missing)")
	fs.IntVar(&opts.samples, "samples", opts.samples, "training samples")
	fs.IntVar(&opts.dim, "dim", opts.dim, "number of features")
	fs.Float64Var(&opts.noise, "noise", opts.noise, "label noise standard deviation")
	fs.Uint64Var(&opts.seed, "seed", opts.seed, "random seed for data")
	verbose := fs.Bool("verbose", false, "log debug events")
	_ = fs.Parse(args)

	if err := loadDotEnv(*envFile); err != nil {
		return err
	}
	setupLogging(*verbose)
	return runClient(ctx, *addr, opts)
}

func runSchema(out io.Writer) error {
	data, err := server.ConfigSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
