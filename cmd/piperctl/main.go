// Command piperctl drives a Piper training server from scripts: it
// validates metadata, uploads datasets, starts runs and waits on them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"piper-console/pkg/api"
	"piper-console/pkg/config"
	"piper-console/pkg/history"
	"piper-console/pkg/session"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorRed    = "\033[31m"
)

var errUsage = errors.New("usage")

type app struct {
	cfg       *config.Config
	client    *api.Client
	store     *history.Store
	intervals session.Intervals
	out       io.Writer
	errOut    io.Writer
	color     bool
}

func (a *app) say(color, tag, msg string, args ...any) {
	if a.color {
		fmt.Fprintf(a.errOut, color+"["+tag+"] "+colorReset+msg+"\n", args...)
		return
	}
	fmt.Fprintf(a.errOut, "["+tag+"] "+msg+"\n", args...)
}

func (a *app) info(msg string, args ...any) { a.say(colorBlue, "info", msg, args...) }
func (a *app) warn(msg string, args ...any) { a.say(colorYellow, "warn", msg, args...) }
func (a *app) ok(msg string, args ...any)   { a.say(colorGreen, "ok", msg, args...) }

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"validate-csv":     {"check a metadata.csv file", cmdValidateCSV},
	"inspect":          {"inspect a local dataset directory", cmdInspect},
	"upload":           {"upload audio clips and metadata", cmdUpload},
	"train":            {"start a training run", cmdTrain},
	"status":           {"print a job status as JSON", cmdStatus},
	"models":           {"list trained models", cmdModels},
	"datasets":         {"list uploaded datasets", cmdDatasets},
	"export":           {"package a dataset for cloud training", cmdExport},
	"download-package": {"download an exported package", cmdDownloadPackage},
	"transcribe":       {"transcribe a dataset's clips into metadata.csv", cmdTranscribe},
	"text-file":        {"pair a text file with a dataset's clips", cmdTextFile},
	"test-voice":       {"synthesize a sentence with a trained model", cmdTestVoice},
	"remote":           {"start, stop or query remote training monitoring", cmdRemote},
	"history":          {"show the local journal", cmdHistory},
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "usage: piperctl <command> [flags]")
	fmt.Fprintln(w)
	for _, n := range names {
		fmt.Fprintf(w, "  %-17s %s\n", n, commands[n].summary)
	}
}

func run(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		usage(a.errOut)
		return errUsage
	}
	switch args[0] {
	case "help", "-h", "--help":
		usage(a.out)
		return nil
	}
	cmd, found := commands[args[0]]
	if !found {
		usage(a.errOut)
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	return cmd.run(ctx, a, args[1:])
}

func main() {
	cfg, err := config.Load(config.DefaultFile, config.DefaultEnvFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, colorRed+"[error] "+colorReset+"%v\n", err)
		os.Exit(1)
	}
	a := &app{
		cfg:       cfg,
		client:    api.New(cfg.Server.BaseURL, cfg.TimeoutDuration()),
		intervals: cfg.Intervals(),
		out:       os.Stdout,
		errOut:    os.Stderr,
		color:     os.Getenv("NO_COLOR") == "",
	}
	if store, err := history.Open(cfg.HistoryPath()); err != nil {
		a.warn("history disabled: %v", err)
	} else {
		a.store = store
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, a, os.Args[1:])
	stop()
	if a.store != nil {
		a.store.Close()
	}
	if err != nil {
		if err != errUsage {
			fmt.Fprintf(os.Stderr, colorRed+"[error] "+colorReset+"%v\n", err)
		}
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
