package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/diaorui/fathom-deck/internal/config"
	"github.com/diaorui/fathom-deck/internal/deck"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <stage>

Stages:
  fetch    fetch widget data and persist it under the data directory
  render   render persisted data to HTML and Markdown pages
  all      fetch then render

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to deck configuration file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	stage := flag.Arg(0)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	engine, err := deck.NewEngine(*cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise engine: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch stage {
	case "fetch":
		err = engine.Fetch(ctx)
	case "render":
		err = engine.Render(ctx)
	case "all":
		if err = engine.Fetch(ctx); err == nil {
			err = engine.Render(ctx)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown stage %q\n", stage)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s stage failed: %v\n", stage, err)
		os.Exit(1)
	}
}
