package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/dataflowgen/api"
	"github.com/sarchlab/dataflowgen/config"
	"github.com/sarchlab/dataflowgen/graph"
	"github.com/sarchlab/dataflowgen/pynq"
	"github.com/sarchlab/dataflowgen/report"
	"github.com/sarchlab/dataflowgen/util"
	"github.com/tebeka/atexit"
)

//go:embed graph.yaml
var graphYAML []byte

func main() {
	f, err := os.Create("driver.json.log")
	if err != nil {
		panic(err)
	}
	defer f.Close()

	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level: util.LevelTrace,
	})

	slog.SetDefault(slog.New(handler))

	model, err := graph.ParseYAML(graphYAML)
	if err != nil {
		panic(err)
	}

	cfg, err := config.MakeBuilder().
		WithPlatform(config.PlatformZynq).
		WithClockFreq(200 * sim.MHz).
		Build()
	if err != nil {
		panic(err)
	}

	drv, err := pynq.NewResolver(cfg).Build(model)
	if err != nil {
		panic(err)
	}

	fmt.Println(report.DMATable(drv.Plan))
	fmt.Println(report.Artifacts(drv.Dir, drv.Files))

	engine := sim.NewSerialEngine()
	loader := api.MakeLoaderBuilder().
		WithEngine(engine).
		WithFreq(cfg.ClockFreq).
		Build("Loader")

	base := uint64(0)
	for _, w := range drv.Plan.Runtime {
		loader.Load(w.Map, base)
		base += uint64(w.Map.Channels() * w.Map.Boundary() * w.Map.WordBits() / 8)
	}

	if err := loader.Run(); err != nil {
		panic(err)
	}

	fmt.Printf("%d runtime registers written\n", loader.Writes())

	atexit.Exit(0)
}
