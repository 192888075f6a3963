// Command dfgen generates the RTL of thresholding nodes and the host driver
// of partitioned dataflow graphs.
//
// Usage:
//
//	dfgen hdl -config c.yaml -node n.yaml -out dir
//	dfgen driver -config c.yaml -graph g.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/dataflowgen/api"
	"github.com/sarchlab/dataflowgen/config"
	"github.com/sarchlab/dataflowgen/graph"
	"github.com/sarchlab/dataflowgen/hdl"
	"github.com/sarchlab/dataflowgen/pynq"
	"github.com/sarchlab/dataflowgen/report"
	"github.com/sarchlab/dataflowgen/rtweights"
	"github.com/sarchlab/dataflowgen/tmpl"
	"github.com/sarchlab/dataflowgen/util"
	"github.com/tebeka/atexit"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dfgen hdl|driver [flags]")
	atexit.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	var err error

	switch os.Args[1] {
	case "hdl":
		err = runHDL(os.Args[2:])
	case "driver":
		err = runDriver(os.Args[2:])
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "dfgen:", err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

type commonFlags struct {
	config  string
	logFile string
	verbose bool
	verify  bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "configuration file (YAML)")
	fs.StringVar(&c.logFile, "log", "", "write a JSON log to this file")
	fs.BoolVar(&c.verbose, "v", false, "log every generated artifact")
	fs.BoolVar(&c.verify, "verify", false,
		"replay runtime-writable parameters through the simulated register loader")
}

func (c *commonFlags) setup() (config.Config, error) {
	setupLogging(c.logFile, c.verbose)

	if c.config == "" {
		return config.MakeBuilder().Build()
	}

	return config.Load(c.config)
}

// consoleLevel is info by default. Verbose runs also show the per-artifact
// trace records and debug details.
func consoleLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}

	return slog.LevelInfo
}

func setupLogging(logFile string, verbose bool) {
	var handler slog.Handler = slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: consoleLevel(verbose)})

	if logFile != "" {
		f, err := os.Create(logFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "dfgen:", err)
			atexit.Exit(1)
		}

		atexit.Register(func() { f.Close() })

		handler = slog.NewJSONHandler(f, &slog.HandlerOptions{Level: util.LevelTrace})
	}

	slog.SetDefault(slog.New(handler))
}

// guardDir removes dir at exit unless done is called, but only if dir did
// not exist before.
func guardDir(dir string) (done func()) {
	if _, err := os.Stat(dir); err == nil {
		return func() {}
	}

	finished := false

	atexit.Register(func() {
		if !finished {
			os.RemoveAll(dir)
		}
	})

	return func() { finished = true }
}

func runHDL(args []string) error {
	var (
		common   commonFlags
		nodePath string
		outDir   string
		minimize bool
	)

	fs := flag.NewFlagSet("hdl", flag.ExitOnError)
	common.register(fs)
	fs.StringVar(&nodePath, "node", "", "thresholding node description (YAML)")
	fs.StringVar(&outDir, "out", "", "output folder")
	fs.BoolVar(&minimize, "minimize", false, "shrink the threshold datatype before generating")
	fs.Parse(args)

	if nodePath == "" || outDir == "" {
		return fmt.Errorf("hdl: -node and -out are required")
	}

	cfg, err := common.setup()
	if err != nil {
		return err
	}

	nodeCfg, thresholds, err := hdl.LoadNodeYAML(nodePath)
	if err != nil {
		return err
	}

	if minimize {
		minimized, err := hdl.MinimizeWeightWidth(nodeCfg, thresholds)
		if err != nil {
			return err
		}

		nodeCfg = &minimized
	}

	done := guardDir(outDir)

	gen := hdl.NewGenerator(tmpl.DirLoader{Root: cfg.HDLTemplateDir()}, cfg.AddressStride)

	res, err := gen.Generate(nodeCfg, thresholds, outDir)
	if err != nil {
		return err
	}

	done()

	fmt.Println(report.Artifacts("RTL of "+nodeCfg.Name, res.Files))

	for _, cmd := range hdl.IPICommands(nodeCfg.Name, res.TopModule, outDir, cfg.ClockFreq) {
		fmt.Println(cmd)
	}

	if !nodeCfg.RuntimeWritable {
		return nil
	}

	m, err := hdl.DynamicConfig(nodeCfg, thresholds, cfg.AddressStride)
	if err != nil {
		return err
	}

	fmt.Println(report.AddressTable(nodeCfg.Name, m))

	if common.verify {
		return verify(cfg.ClockFreq, m)
	}

	return nil
}

func runDriver(args []string) error {
	var (
		common    commonFlags
		graphPath string
		outDir    string
	)

	fs := flag.NewFlagSet("driver", flag.ExitOnError)
	common.register(fs)
	fs.StringVar(&graphPath, "graph", "", "partitioned graph (YAML)")
	fs.StringVar(&outDir, "out", "", "output folder, overrides the configuration")
	fs.Parse(args)

	if graphPath == "" {
		return fmt.Errorf("driver: -graph is required")
	}

	cfg, err := common.setup()
	if err != nil {
		return err
	}

	if outDir != "" {
		cfg.OutputDir = outDir
	}

	model, err := graph.LoadYAML(graphPath)
	if err != nil {
		return err
	}

	drv, err := pynq.NewResolver(cfg).Build(model)
	if err != nil {
		return err
	}

	fmt.Println(report.DMATable(drv.Plan))
	fmt.Println(report.Artifacts("Driver in "+drv.Dir, drv.Files))

	if !common.verify {
		return nil
	}

	for _, w := range drv.Plan.Runtime {
		if err := verify(cfg.ClockFreq, w.Map); err != nil {
			return fmt.Errorf("%s: %w", w.FileName(), err)
		}
	}

	return nil
}

func verify(freq sim.Freq, m *rtweights.AddressMap) error {
	engine := sim.NewSerialEngine()

	loader := api.MakeLoaderBuilder().
		WithEngine(engine).
		WithFreq(freq).
		WithCapacity(uint64(m.Channels()*m.Boundary()*m.WordBits()/8) + 1).
		Build("Loader")

	loader.Load(m, 0)

	if err := loader.Run(); err != nil {
		return err
	}

	if err := api.VerifyImage(loader.Storage(), 0, m); err != nil {
		return err
	}

	fmt.Printf("verified %d register writes in %.0f ns\n",
		loader.Writes(), float64(loader.FinishTime()*1e9))

	return nil
}
