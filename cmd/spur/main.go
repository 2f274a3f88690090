// Spur CLI - drives the object space and foreign-call bridge outside a VM
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/spur/config"
)

var log = commonlog.GetLogger("spur")

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	verbosity := flag.Int("log-verbosity", -1, "Log verbosity (overrides spur.toml)")
	configDir := flag.String("config", ".", "Directory to search upwards for spur.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: spur [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  demo                 Run a callout session against the built-in test library\n")
		fmt.Fprintf(os.Stderr, "  exports              List the named primitive export table\n")
		fmt.Fprintf(os.Stderr, "  dump <file>          Boot an object space and write a snapshot\n")
		fmt.Fprintf(os.Stderr, "  inspect <file>       Read a snapshot and summarise its objects\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  spur demo\n")
		fmt.Fprintf(os.Stderr, "  spur -v exports\n")
		fmt.Fprintf(os.Stderr, "  spur dump kernel.snap && spur inspect kernel.snap\n")
	}
	flag.Parse()

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Log.Verbosity
	if *verbosity >= 0 {
		level = *verbosity
	} else if *verbose && level < 1 {
		level = 1
	}
	commonlog.Configure(level, cfg.LogPath())

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	switch args[0] {
	case "demo":
		err = runDemo(cfg, *verbose)
	case "exports":
		err = runExports(cfg, *verbose)
	case "dump":
		err = runDump(cfg, args[1:], *verbose)
	case "inspect":
		err = runInspect(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig finds spur.toml above dir, falling back to defaults.
func loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return config.Default(), nil
	}
	return cfg, nil
}
