package main

import (
	"embed"
	"fmt"
	"os"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/dataflowgen/api"
	"github.com/sarchlab/dataflowgen/hdl"
	"github.com/sarchlab/dataflowgen/report"
	"github.com/sarchlab/dataflowgen/tmpl"
	"github.com/tebeka/atexit"
)

//go:embed hdl
var rtlTemplates embed.FS

//go:embed node.yaml
var nodeYAML []byte

func main() {
	cfg, thresholds, err := hdl.ParseNodeYAML(nodeYAML)
	if err != nil {
		panic(err)
	}

	minimized, err := hdl.MinimizeWeightWidth(cfg, thresholds)
	if err != nil {
		panic(err)
	}

	fmt.Println("threshold type:", minimized.WeightType.Name())

	outDir, err := os.MkdirTemp("", "thresholding_rtl_")
	if err != nil {
		panic(err)
	}

	gen := hdl.NewGenerator(tmpl.FSLoader{FS: rtlTemplates, Dir: "hdl"}, 4)

	res, err := gen.Generate(&minimized, thresholds, outDir)
	if err != nil {
		panic(err)
	}

	fmt.Println(report.Artifacts(res.TopModule, res.Files))

	for _, cmd := range hdl.IPICommands(cfg.Name, res.TopModule, outDir, 200*sim.MHz) {
		fmt.Println(cmd)
	}

	addrMap, err := hdl.DynamicConfig(&minimized, thresholds, 4)
	if err != nil {
		panic(err)
	}

	fmt.Println(report.AddressTable(cfg.Name, addrMap))

	engine := sim.NewSerialEngine()
	loader := api.MakeLoaderBuilder().
		WithEngine(engine).
		WithFreq(200 * sim.MHz).
		Build("Loader")

	loader.Load(addrMap, 0)

	if err := loader.Run(); err != nil {
		panic(err)
	}

	if err := api.VerifyImage(loader.Storage(), 0, addrMap); err != nil {
		panic(err)
	}

	fmt.Printf("%d registers written, finished at %.0f ns\n",
		loader.Writes(), float64(loader.FinishTime()*1e9))

	atexit.Exit(0)
}
