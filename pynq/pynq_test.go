package pynq_test

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/dataflowgen/config"
	"github.com/sarchlab/dataflowgen/dtype"
	"github.com/sarchlab/dataflowgen/graph"
	"github.com/sarchlab/dataflowgen/node"
	"github.com/sarchlab/dataflowgen/pynq"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

func dmaPartition(name, instance string, in, out []string, burst string) *graph.Node {
	sub := graph.NewModel(name + "_model")
	sub.Inputs = []string{"dma_in"}
	sub.Outputs = []string{"dma_out"}
	sub.AddNode(&graph.Node{
		Name:    name + "_dma",
		OpType:  "IODMA",
		Inputs:  []string{"dma_in"},
		Outputs: []string{"dma_out"},
		Attrs:   map[string]any{"burstMode": burst},
	})

	return &graph.Node{
		Name:     name,
		OpType:   "StreamingDataflowPartition",
		Inputs:   in,
		Outputs:  out,
		Attrs:    map[string]any{"instance_name": instance},
		Subgraph: sub,
	}
}

func computePartition() *graph.Node {
	sub := graph.NewModel("compute_model")
	sub.Inputs = []string{"c_in"}
	sub.Outputs = []string{"c_out"}
	sub.AddNode(&graph.Node{
		Name:    "thr0",
		OpType:  "Thresholding_Binary_Search",
		Inputs:  []string{"c_in", "thr"},
		Outputs: []string{"c_out"},
		Attrs: map[string]any{
			"PE":                        8,
			"NumChannels":               64,
			"numSteps":                  3,
			"inputDataType":             "UINT8",
			"weightDataType":            "UINT8",
			"outputDataType":            "UINT2",
			"runtime_writeable_weights": 1,
		},
	})
	sub.SetInitializer("thr", []float64{10, 20, 30}, 1, 3)

	return &graph.Node{
		Name:     "sdp1",
		OpType:   "StreamingDataflowPartition",
		Inputs:   []string{"t0"},
		Outputs:  []string{"t1"},
		Attrs:    map[string]any{"instance_name": "compute"},
		Subgraph: sub,
	}
}

func topModel() *graph.Model {
	m := graph.NewModel("top")
	m.Inputs = []string{"global_in"}
	m.Outputs = []string{"global_out"}
	m.SetTensorInfo("global_in", "UINT8", 1, 64)
	m.SetTensorInfo("global_out", "UINT2", 1, 64)

	m.AddNode(dmaPartition("sdp0", "idma0", []string{"global_in"}, []string{"t0"}, "increment"))
	m.AddNode(computePartition())
	m.AddNode(dmaPartition("sdp2", "odma0", []string{"t1"}, []string{"global_out"}, "increment"))

	return m
}

func addWrapWeights(m *graph.Model) {
	w := dmaPartition("sdpw", "idma1", nil, []string{"w_out"}, "wrap")
	w.Subgraph.SetInitializer("dma_in", []float64{1, 2, 3, 4, 5, 6}, 2, 3)
	w.Subgraph.SetTensorInfo("dma_in", "UINT4", 2, 3)
	m.AddNode(w)

	compute := m.FindProducer("t1")
	compute.Inputs = append(compute.Inputs, "w_out")
}

func testConfig(root, out string) config.Config {
	cfg, err := config.MakeBuilder().
		WithTemplateRoot(root).
		WithOutputDir(out).
		Build()
	Expect(err).NotTo(HaveOccurred())

	return cfg
}

func expectStructural(err error) *node.StructuralError {
	var structErr *node.StructuralError
	ExpectWithOffset(1, errors.As(err, &structErr)).To(BeTrue(), "got %v", err)

	return structErr
}

var _ = Describe("Literals", func() {
	It("should render Python tuples and lists", func() {
		Expect(pynq.PyTuple([]int{1, 8, 8})).To(Equal("(1, 8, 8)"))
		Expect(pynq.PyTuple([]int{4})).To(Equal("(4,)"))
		Expect(pynq.PyTuple(nil)).To(Equal("()"))
		Expect(pynq.PyTuples([][]int{{1, 8, 8}, {2}})).To(Equal("[(1, 8, 8), (2,)]"))
		Expect(pynq.PyStrings([]string{"idma0", "idma1"})).To(Equal("['idma0', 'idma1']"))
		Expect(pynq.PyDatatypes([]dtype.NumericType{dtype.MustLookup("UINT8")})).
			To(Equal("[DataType['UINT8']]"))
		Expect(pynq.PyStrings(nil)).To(Equal("[]"))
	})
})

var _ = Describe("ToExternal", func() {
	It("should pack rows little-endian and concatenate them", func() {
		init := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})

		data, err := pynq.ToExternal(init, dtype.MustLookup("UINT4"))

		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]uint8{0x23, 0x01, 0x56, 0x04}))
	})

	It("should reject values outside the datatype", func() {
		_, err := pynq.ToExternal(mat.NewDense(1, 1, []float64{16}), dtype.MustLookup("UINT4"))

		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Resolver", func() {
	var (
		root string
		out  string
		r    *pynq.Resolver
	)

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		out = filepath.Join(GinkgoT().TempDir(), "driver")

		Expect(os.MkdirAll(filepath.Join(root, "driver"), 0o755)).To(Succeed())
		for _, f := range []string{"driver_base.py", "validate.py"} {
			Expect(os.WriteFile(filepath.Join(root, "driver", f), []byte("# "+f+"\n"), 0o644)).
				To(Succeed())
		}

		r = pynq.NewResolver(testConfig(root, out))
	})

	Context("resolving", func() {
		It("should return one chain per boundary tensor", func() {
			plan, err := r.Resolve(topModel())

			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Chains()).To(HaveLen(2))

			in := plan.Inputs[0]
			Expect(in.DMAName).To(Equal("idma0"))
			Expect(in.Compute).To(Equal("thr0"))
			Expect(in.Normal).To(Equal([]int{1, 64}))
			Expect(in.Folded).To(Equal([]int{1, 8, 8}))
			Expect(in.Packed).To(Equal([]int{1, 8, 8}))

			o := plan.Outputs[0]
			Expect(o.DMAName).To(Equal("odma0"))
			Expect(o.Folded).To(Equal([]int{1, 8, 8}))
			Expect(o.Packed).To(Equal([]int{1, 8, 2}))
		})

		It("should fill the driver placeholders", func() {
			plan, err := r.Resolve(topModel())
			Expect(err).NotTo(HaveOccurred())

			v := plan.Values()

			Expect(v["$PLATFORM$"]).To(Equal([]string{"zynq-iodma"}))
			Expect(v["$INPUT_FINN_DATATYPE$"]).To(Equal([]string{"[DataType['UINT8']]"}))
			Expect(v["$OUTPUT_FINN_DATATYPE$"]).To(Equal([]string{"[DataType['UINT2']]"}))
			Expect(v["$INPUT_SHAPE_NORMAL$"]).To(Equal([]string{"[(1, 64)]"}))
			Expect(v["$INPUT_SHAPE_FOLDED$"]).To(Equal([]string{"[(1, 8, 8)]"}))
			Expect(v["$OUTPUT_SHAPE_PACKED$"]).To(Equal([]string{"[(1, 8, 2)]"}))
			Expect(v["$INPUT_DMA_NAME$"]).To(Equal([]string{"['idma0']"}))
			Expect(v["$OUTPUT_DMA_NAME$"]).To(Equal([]string{"['odma0']"}))
			Expect(v["$NUM_INPUTS$"]).To(Equal([]string{"1"}))
			Expect(v["$NUM_OUTPUTS$"]).To(Equal([]string{"1"}))
			Expect(v["$EXT_WEIGHT_NUM$"]).To(Equal([]string{"0"}))
		})

		It("should collect runtime-writable parameters", func() {
			plan, err := r.Resolve(topModel())

			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Runtime).To(HaveLen(1))

			w := plan.Runtime[0]
			Expect(w.FileName()).To(Equal("1_0_thr0.dat"))
			Expect(w.Map.Channels()).To(Equal(64))

			e, ok := w.Map.Lookup("axilite_ch2_w1")
			Expect(ok).To(BeTrue())
			Expect(e.Offset).To(Equal(uint64(9)))
			Expect(e.Value).To(Equal(uint64(20)))
		})

		It("should map runtime parameters without the RTL dummy threshold", func() {
			m := topModel()
			compute := m.FindProducer("t1")
			compute.Subgraph.Nodes[0].Attrs["numSteps"] = 2
			compute.Subgraph.SetInitializer("thr", []float64{10, 20}, 1, 2)

			plan, err := r.Resolve(m)

			Expect(err).NotTo(HaveOccurred())
			w := plan.Runtime[0].Map
			Expect(w.Boundary()).To(Equal(2))
			Expect(w.Steps()).To(Equal(2))

			e, ok := w.Lookup("axilite_ch1_w1")
			Expect(ok).To(BeTrue())
			Expect(e.Offset).To(Equal(uint64(3)))
			Expect(e.Value).To(Equal(uint64(20)))
		})

		It("should not restrict runtime step counts to search tree sizes", func() {
			m := topModel()
			thr := m.FindProducer("t1").Subgraph.Nodes[0]
			thr.Attrs["numSteps"] = 5
			thr.Attrs["outputDataType"] = "UINT4"
			m.FindProducer("t1").Subgraph.SetInitializer("thr", []float64{1, 2, 3, 4, 5}, 1, 5)

			plan, err := r.Resolve(m)

			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Runtime[0].Map.Boundary()).To(Equal(8))
		})

		It("should externalize wrap-mode parameters", func() {
			m := topModel()
			addWrapWeights(m)

			plan, err := r.Resolve(m)

			Expect(err).NotTo(HaveOccurred())
			Expect(plan.External).To(HaveLen(1))
			Expect(plan.External[0].FileName()).To(Equal("idma1.npy"))
			Expect(plan.External[0].Data).To(Equal([]uint8{0x23, 0x01, 0x56, 0x04}))
			Expect(plan.Values()["$EXT_WEIGHT_NUM$"]).To(Equal([]string{"1"}))
		})

		It("should fail if the input partition does not start with a DMA", func() {
			m := topModel()
			m.Nodes[0].Subgraph.Nodes[0].OpType = "Thresholding_Binary_Search"

			_, err := r.Resolve(m)

			Expect(expectStructural(err).Node).To(Equal("sdp0"))
		})

		It("should fail if the output partition does not end with a DMA", func() {
			m := topModel()
			m.Nodes[2].Subgraph.Nodes[0].OpType = "MatrixVectorActivation"

			_, err := r.Resolve(m)

			Expect(expectStructural(err).Node).To(Equal("sdp2"))
		})

		It("should fail on unpartitioned graphs", func() {
			m := topModel()
			m.AddNode(&graph.Node{Name: "stray", OpType: "IODMA"})

			_, err := r.Resolve(m)

			Expect(expectStructural(err).Node).To(Equal("stray"))
		})

		It("should skip nested partitions without failing", func() {
			m := topModel()
			compute := m.FindProducer("t1")
			compute.Subgraph.AddNode(&graph.Node{
				Name:     "nested",
				OpType:   "StreamingDataflowPartition",
				Subgraph: graph.NewModel("nested_model"),
			})

			var logs bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
			DeferCleanup(func() { slog.SetDefault(prev) })

			plan, err := r.Resolve(m)

			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Runtime).To(HaveLen(1))
			Expect(logs.String()).To(ContainSubstring("level=WARN"))
			Expect(logs.String()).To(ContainSubstring(`msg="nested partition skipped"`))
			Expect(logs.String()).To(ContainSubstring("partition=1 node=nested"))
		})
	})

	Context("building", func() {
		It("should write the driver and weight files", func() {
			m := topModel()
			addWrapWeights(m)

			drv, err := r.Build(m)

			Expect(err).NotTo(HaveOccurred())
			Expect(drv.Dir).To(Equal(out))

			text, err := os.ReadFile(filepath.Join(out, "driver.py"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(text)).To(ContainSubstring(`"ishape_folded": [(1, 8, 8)],`))
			Expect(string(text)).To(ContainSubstring(`"input_dma_name": ['idma0'],`))
			Expect(string(text)).To(ContainSubstring(`default="zynq-iodma"`))
			Expect(string(text)).NotTo(ContainSubstring("$"))

			Expect(filepath.Join(out, "driver_base.py")).To(BeAnExistingFile())
			Expect(filepath.Join(out, "validate.py")).To(BeAnExistingFile())
			Expect(filepath.Join(out, "runtime_weights", "1_0_thr0.dat")).To(BeAnExistingFile())

			f, err := os.Open(filepath.Join(out, "runtime_weights", "idma1.npy"))
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()

			var data []uint8
			Expect(npyio.Read(f, &data)).To(Succeed())
			Expect(data).To(Equal([]uint8{0x23, 0x01, 0x56, 0x04}))
		})

		It("should create a unique build directory without an output dir", func() {
			buildRoot := GinkgoT().TempDir()
			cfg, err := config.MakeBuilder().WithBuildRoot(buildRoot).Build()
			Expect(err).NotTo(HaveOccurred())

			drv, err := pynq.NewResolver(cfg).Build(topModel())

			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Dir(drv.Dir)).To(Equal(buildRoot))
			Expect(filepath.Base(drv.Dir)).To(HavePrefix("pynq_driver_"))
			Expect(filepath.Join(drv.Dir, "driver.py")).To(BeAnExistingFile())
		})

		It("should leave nothing behind on a structural error", func() {
			m := topModel()
			m.Nodes[0].Subgraph.Nodes[0].OpType = "MatrixVectorActivation"

			_, err := r.Build(m)

			expectStructural(err)
			Expect(out).NotTo(BeADirectory())
		})

		It("should drop stale weight files on a rerun", func() {
			_, err := r.Build(topModel())
			Expect(err).NotTo(HaveOccurred())

			stale := filepath.Join(out, "runtime_weights", "0_0_old.dat")
			Expect(os.WriteFile(stale, []byte("0\n"), 0o644)).To(Succeed())

			_, err = r.Build(topModel())

			Expect(err).NotTo(HaveOccurred())
			Expect(stale).NotTo(BeAnExistingFile())
		})

		It("should report missing support files", func() {
			Expect(os.Remove(filepath.Join(root, "driver", "validate.py"))).To(Succeed())

			_, err := r.Build(topModel())

			var resErr *node.ResourceError
			Expect(errors.As(err, &resErr)).To(BeTrue())
		})
	})
})
