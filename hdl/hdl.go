// Package hdl generates the RTL sources of a thresholding node from the
// finn-rtllib style templates: code-generation values, threshold memory
// files and the commands that place the module in a block design.
package hdl

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/dataflowgen/fold"
	"github.com/sarchlab/dataflowgen/node"
	"github.com/sarchlab/dataflowgen/rtweights"
	"github.com/sarchlab/dataflowgen/tmpl"
	"github.com/sarchlab/dataflowgen/util"
	"gonum.org/v1/gonum/mat"
)

// Files are the templates instantiated for every thresholding node.
var Files = []string{
	"axilite_if.v",
	"thresholding.sv",
	"thresholding_axi.sv",
	"thresholding_template_wrapper.v",
}

// MemBlockFile holds the initial parameter image of runtime-writable nodes.
const MemBlockFile = "memblock.dat"

// TopModule returns the name of the generated wrapper module.
func TopModule(c *node.Config) string {
	if c.GenTopModule != "" {
		return c.GenTopModule
	}

	return c.Name + "_" + c.Name
}

// CodeGenValues returns the placeholder values of the RTL templates.
func CodeGenValues(c *node.Config, thresholds mat.Matrix) (tmpl.Values, error) {
	p, err := prepare(c, thresholds)
	if err != nil {
		return nil, err
	}

	return p.values(), nil
}

func (p *prepared) values() tmpl.Values {
	c := p.cfg
	top := TopModule(c)

	v := tmpl.Values{}
	v.Set("$N$", strconv.Itoa(c.OutputType.BitWidth()))
	v.Set("$M$", strconv.Itoa(c.InputType.BitWidth()))
	v.Set("$C$", strconv.Itoa(c.NumChannels))
	v.Set("$PE$", strconv.Itoa(c.PE))
	v.Set("$SIGNED$", boolBit(c.InputType.Signed()))
	v.Set("$BIAS$", strconv.Itoa(p.bias))
	v.Set("$THRESHOLDS_PATH$", fmt.Sprintf("%q", "./"+c.Name+"_threshs"))
	v.Set("$TOP_MODULE$", top)
	v.Set("$MODULE_NAME_AXI_WRAPPER$", top+"_axi_wrapper")
	v.Set("$RAM_STYLE$", fmt.Sprintf("%q", string(c.RAMStyle)))
	v.Set("$IN_STREAM_WIDTH$", strconv.Itoa(fold.Padded(fold.InStreamWidth(c))))
	v.Set("$OUT_STREAM_WIDTH$", strconv.Itoa(fold.Padded(fold.OutStreamWidth(c))))
	v.Set("$USE_AXILITE$", boolBit(c.RuntimeWritable))

	return v
}

func boolBit(b bool) string {
	if b {
		return "1"
	}

	return "0"
}

// Result describes the artifacts of one generated node.
type Result struct {
	TopModule string
	Files     []string
	// Padded is set when a dummy threshold was prepended.
	Padded bool
}

// Generator writes the RTL of thresholding nodes.
type Generator struct {
	engine *tmpl.Engine
	stride int
}

// NewGenerator creates a generator reading templates through l. The stride
// is the address distance used for runtime-writable parameter images.
func NewGenerator(l tmpl.Loader, stride int) *Generator {
	return &Generator{engine: tmpl.NewEngine(l), stride: stride}
}

// Generate instantiates the RTL templates into destDir and writes the
// threshold memory files next to them.
func (g *Generator) Generate(c *node.Config, thresholds mat.Matrix, destDir string) (*Result, error) {
	p, err := prepare(c, thresholds)
	if err != nil {
		return nil, err
	}

	// Build the address map before touching the disk so a bad stride
	// leaves nothing behind.
	var addrMap *rtweights.AddressMap
	if c.RuntimeWritable {
		addrMap, err = p.addressMap(g.stride)
		if err != nil {
			return nil, err
		}
	}

	files, err := g.engine.Generate(Files, p.values(), destDir)
	if err != nil {
		return nil, err
	}

	if addrMap != nil {
		path := filepath.Join(destDir, MemBlockFile)
		if err := addrMap.WriteDat(path); err != nil {
			return nil, err
		}

		files = append(files, path)
	} else {
		paths, err := p.writeTreeFiles(destDir)
		if err != nil {
			return nil, err
		}

		files = append(files, paths...)
	}

	for _, f := range files {
		util.Trace("generated", "node", c.Name, "file", f)
	}

	slog.Debug("thresholding RTL generated",
		"node", c.Name, "top", TopModule(c), "files", len(files), "padded", p.dummy)

	return &Result{TopModule: TopModule(c), Files: files, Padded: p.dummy}, nil
}

// IPICommands returns the block-design commands that import the generated
// sources from srcDir and instantiate the module.
func IPICommands(name, top, srcDir string, freq sim.Freq) []string {
	target := "./ip/verilog/rtl_ops/" + name
	hz := int64(math.Round(float64(freq)))

	cmds := []string{"file mkdir " + target}
	for _, f := range Files {
		cmds = append(cmds, fmt.Sprintf("add_files -copy_to %s -norecurse %s",
			target, filepath.Join(srcDir, f)))
	}

	cmds = append(cmds,
		fmt.Sprintf("create_bd_cell -type module -reference %s %s", top, name),
		fmt.Sprintf("set_property CONFIG.FREQ_HZ %d [get_bd_intf_pins %s/in0_V]", hz, name),
		fmt.Sprintf("set_property CONFIG.FREQ_HZ %d [get_bd_intf_pins %s/out_V]", hz, name),
	)

	return cmds
}

// Stream is an AXI stream interface and its byte-aligned width.
type Stream struct {
	Name  string
	Width int
}

// Interfaces lists the ports of a generated module.
type Interfaces struct {
	Clk     []string
	Rst     []string
	SAxis   []Stream
	MAxis   []Stream
	AXILite []string
}

// InterfaceNames returns the ports of the module generated for c.
func InterfaceNames(c *node.Config) (Interfaces, error) {
	intf := Interfaces{
		Clk:   []string{"ap_clk"},
		Rst:   []string{"ap_rst_n"},
		SAxis: []Stream{{Name: "in0_V", Width: fold.Padded(fold.InStreamWidth(c))}},
		MAxis: []Stream{{Name: "out_V", Width: fold.Padded(fold.OutStreamWidth(c))}},
	}

	if c.MemMode == node.MemStreamed {
		w, err := fold.WeightStreamWidth(c)
		if err != nil {
			return Interfaces{}, err
		}

		intf.SAxis = append(intf.SAxis, Stream{Name: "in1_V", Width: fold.Padded(w)})
	}

	if c.RuntimeWritable {
		intf.AXILite = []string{"s_axilite"}
	}

	return intf, nil
}

// DynamicConfig returns the register layout a host uses to rewrite the
// thresholds of a runtime-writable node. Elements keep their tensor
// position; the dummy threshold of the RTL memory image is not part of it.
func DynamicConfig(c *node.Config, thresholds mat.Matrix, stride int) (*rtweights.AddressMap, error) {
	t, err := CompatibleThresholds(c, thresholds)
	if err != nil {
		return nil, err
	}

	m, err := rtweights.Build(t, c.WeightType, stride)
	if err != nil {
		return nil, node.WithNode(err, c.Name)
	}

	return m, nil
}
