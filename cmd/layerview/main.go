// layerview loads a G-code toolpath into a layer-indexed model and reports
// on it, or serves it to viewer frontends.
//
// Usage:
//
//	layerview [options] [file.gcode]
//
// Options:
//
//	-gcode string     G-code file to load (or pass it as the only argument)
//	-config string    Configuration file (INI style, optional)
//	-format string    Report format: text, json or yaml (default "text")
//	-coloring string  Coloring parameter: none, feedrate, thickness, temperature
//	-layer int        Report the segments of one layer (0-based, -1 for none)
//	-layers           Report every layer
//	-serve            Serve the view API instead of printing a report
//	-addr string      Listen address for -serve (default from [server] address)
//	-root string      G-code root directory for -serve
//	-trace            Enable debug logging
//
// Examples:
//
//	# Summary of a file
//	layerview part.gcode
//
//	# Every layer as YAML, colored by feedrate
//	layerview -layers -coloring feedrate -format yaml part.gcode
//
//	# Serve the files below ~/gcodes
//	layerview -serve -addr 127.0.0.1:7130 -root ~/gcodes
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"layerview/pkg/coloring"
	"layerview/pkg/config"
	"layerview/pkg/files"
	"layerview/pkg/loader"
	"layerview/pkg/log"
	"layerview/pkg/metrics"
	"layerview/pkg/parse"
	"layerview/pkg/viewserver"
)

type options struct {
	gcode    string
	config   string
	format   string
	coloring string
	layer    int
	layers   bool
	serve    bool
	addr     string
	root     string
	trace    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.gcode, "gcode", "", "G-code file to load")
	flag.StringVar(&opts.config, "config", "", "Configuration file")
	flag.StringVar(&opts.format, "format", "text", "Report format: text, json or yaml")
	flag.StringVar(&opts.coloring, "coloring", "", "Coloring parameter: none, feedrate, thickness, temperature")
	flag.IntVar(&opts.layer, "layer", -1, "Report the segments of one layer (0-based)")
	flag.BoolVar(&opts.layers, "layers", false, "Report every layer")
	flag.BoolVar(&opts.serve, "serve", false, "Serve the view API instead of printing a report")
	flag.StringVar(&opts.addr, "addr", "", "Listen address for -serve")
	flag.StringVar(&opts.root, "root", "", "G-code root directory for -serve")
	flag.BoolVar(&opts.trace, "trace", false, "Enable debug logging")
	flag.Parse()

	if opts.gcode == "" && flag.NArg() == 1 {
		opts.gcode = flag.Arg(0)
	}
	if opts.gcode == "" && !opts.serve {
		fmt.Fprintf(os.Stderr, "Error: a G-code file or -serve is required\n")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadSettings(path string, logger *log.Logger) (config.Settings, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Settings{}, err
	}
	settings, err := config.FromConfig(cfg)
	if err != nil {
		return config.Settings{}, err
	}
	for _, opt := range cfg.UnusedOptions() {
		logger.Warn("unknown option '%s' in %s", opt, path)
	}
	return settings, nil
}

func run(ctx context.Context, opts options) error {
	logger := log.GetLogger("layerview")
	settings, err := loadSettings(opts.config, logger)
	if err != nil {
		return err
	}

	root := log.Root()
	root.SetLevel(log.ParseLevel(settings.Log.Level))
	if f, ok := log.ParseFormat(settings.Log.Format); ok {
		root.SetFormat(f)
	}
	log.ConfigureFromEnv(root)
	if opts.trace {
		root.SetLevel(log.DEBUG)
	}

	if opts.coloring != "" {
		settings.Coloring.Parameter = opts.coloring
	}
	param, err := coloring.ParseParameter(settings.Coloring.Parameter)
	if err != nil {
		return err
	}
	mapper := coloring.Mapper{Parameter: param}
	gradient := coloring.NewGradient(settings.Coloring.GradientStart, settings.Coloring.GradientEnd,
		settings.Coloring.GradientSteps)

	registry := metrics.NewRegistry()
	svc := loader.New(parse.OptionsFromSettings(settings), metrics.NewLoadMetrics(registry))
	defer svc.Close()

	if !opts.serve {
		format, err := parseFormat(opts.format)
		if err != nil {
			return err
		}
		loaded, err := svc.Load(ctx, opts.gcode)
		if err != nil {
			return err
		}
		rep := buildReport(loaded, mapper, gradient, reportOptions{layer: opts.layer, allLayers: opts.layers})
		return writeReport(os.Stdout, rep, format)
	}

	rootDir := settings.Server.GCodeRoot
	if opts.root != "" {
		rootDir = opts.root
	} else if opts.gcode != "" && opts.config == "" {
		rootDir = filepath.Dir(opts.gcode)
	}
	fm, err := files.NewManager(rootDir)
	if err != nil {
		return err
	}
	if opts.gcode != "" {
		if _, err := svc.Load(ctx, opts.gcode); err != nil {
			logger.WithError(err).Warn("initial load of %s failed", opts.gcode)
		}
	}
	addr := settings.Server.Address
	if opts.addr != "" {
		addr = opts.addr
	}
	srv := viewserver.New(viewserver.Config{
		Addr:     addr,
		Loader:   svc,
		Files:    fm,
		Registry: registry,
		Coloring: mapper,
		Gradient: gradient,
	})
	logger.Info("serving %s on %s", fm.Root(), addr)
	return srv.ListenAndServe(ctx)
}
