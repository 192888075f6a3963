package node_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/dataflowgen/dtype"
	"github.com/sarchlab/dataflowgen/node"
)

func thresholdAttrs() map[string]any {
	return map[string]any{
		"PE":             8,
		"NumChannels":    64,
		"numSteps":       3,
		"inputDataType":  "UINT8",
		"weightDataType": "INT9",
		"outputDataType": "UINT2",
	}
}

func expectConfigError(err error, attr string) {
	var cfgErr *node.ConfigError
	ExpectWithOffset(1, errors.As(err, &cfgErr)).To(BeTrue(), "got %v", err)
	ExpectWithOffset(1, cfgErr.Attr).To(Equal(attr))
	ExpectWithOffset(1, cfgErr.Node).To(Equal("Thres_0"))
}

var _ = Describe("Parse", func() {
	It("should fill defaults for a thresholding node", func() {
		d, err := node.Parse(node.KindThresholding, "Thres_0", thresholdAttrs())

		Expect(err).NotTo(HaveOccurred())
		Expect(d.Kind).To(Equal(node.KindThresholding))
		Expect(d.Threshold).NotTo(BeNil())
		Expect(d.Matrix).To(BeNil())

		c := d.Threshold
		Expect(c.PE).To(Equal(8))
		Expect(c.NumChannels).To(Equal(64))
		Expect(c.NumSteps).To(Equal(3))
		Expect(c.NumInputVectors).To(Equal([]int{1}))
		Expect(c.InputType).To(Equal(dtype.Uint(8)))
		Expect(c.WeightType).To(Equal(dtype.Int(9)))
		Expect(c.MemMode).To(Equal(node.MemEmbedded))
		Expect(c.RAMStyle).To(Equal(node.RAMDistributed))
		Expect(c.RuntimeWritable).To(BeFalse())
		Expect(d.RuntimeWritable()).To(BeFalse())
	})

	It("should accept YAML-style values", func() {
		attrs := thresholdAttrs()
		attrs["numInputVectors"] = []any{1, 4, 4}
		attrs["runtime_writeable_weights"] = 1
		attrs["mem_mode"] = "streamed"
		attrs["activation_bias"] = float64(-2)

		d, err := node.Parse(node.KindThresholdingBatch, "Thres_0", attrs)

		Expect(err).NotTo(HaveOccurred())
		Expect(d.Threshold.NumInputVectors).To(Equal([]int{1, 4, 4}))
		Expect(d.Threshold.MemMode).To(Equal(node.MemStreamed))
		Expect(d.Threshold.ActivationBias).To(Equal(-2))
		Expect(d.RuntimeWritable()).To(BeTrue())
	})

	It("should reject a missing required attribute", func() {
		attrs := thresholdAttrs()
		delete(attrs, "PE")

		_, err := node.Parse(node.KindThresholding, "Thres_0", attrs)

		expectConfigError(err, "PE")
	})

	It("should reject values outside the allowed set", func() {
		attrs := thresholdAttrs()
		attrs["mem_mode"] = "decoupled"

		_, err := node.Parse(node.KindThresholding, "Thres_0", attrs)

		expectConfigError(err, "mem_mode")
	})

	It("should reject an unknown datatype", func() {
		attrs := thresholdAttrs()
		attrs["inputDataType"] = "FLOAT32"

		_, err := node.Parse(node.KindThresholding, "Thres_0", attrs)

		expectConfigError(err, "inputDataType")
	})

	It("should reject channels not divisible by PE", func() {
		attrs := thresholdAttrs()
		attrs["PE"] = 6

		_, err := node.Parse(node.KindThresholding, "Thres_0", attrs)

		expectConfigError(err, "PE")
	})

	It("should reject a wrongly typed attribute", func() {
		attrs := thresholdAttrs()
		attrs["NumChannels"] = "64"

		_, err := node.Parse(node.KindThresholding, "Thres_0", attrs)

		expectConfigError(err, "NumChannels")
	})

	It("should reject an unsupported kind", func() {
		_, err := node.Parse(node.Kind("LabelSelect"), "Thres_0", nil)

		expectConfigError(err, "op_type")
	})

	It("should parse boundary-transfer and partition nodes", func() {
		d, err := node.Parse(node.KindIODMA, "IODMA_0", map[string]any{"burstMode": "wrap"})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.DMA.BurstMode).To(Equal(node.BurstWrap))

		d, err = node.Parse(node.KindPartition, "SDP_0", map[string]any{"instance_name": "idma0"})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Partition.InstanceName).To(Equal("idma0"))
		Expect(d.RuntimeWritable()).To(BeFalse())
	})

	It("should derive a copy with a new weight type", func() {
		d, _ := node.Parse(node.KindThresholding, "Thres_0", thresholdAttrs())

		c := d.Threshold.WithWeightType(dtype.Int(4))

		Expect(c.WeightType).To(Equal(dtype.Int(4)))
		Expect(d.Threshold.WeightType).To(Equal(dtype.Int(9)))
	})
})

var _ = Describe("Kind", func() {
	It("should allow runtime weights only for compute kinds", func() {
		Expect(node.KindMVAU.RuntimeWeightsCapable()).To(BeTrue())
		Expect(node.KindThresholdingBatch.RuntimeWeightsCapable()).To(BeTrue())
		Expect(node.KindIODMA.RuntimeWeightsCapable()).To(BeFalse())
		Expect(node.KindPartition.RuntimeWeightsCapable()).To(BeFalse())
	})
})
