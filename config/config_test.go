package config_test

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/dataflowgen/config"
	"github.com/sarchlab/dataflowgen/node"
)

var _ = Describe("Builder", func() {
	It("should provide defaults", func() {
		cfg, err := config.MakeBuilder().Build()

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Platform).To(Equal(config.PlatformZynq))
		Expect(cfg.ClockFreq).To(Equal(100 * sim.MHz))
		Expect(cfg.AddressStride).To(Equal(1))
		Expect(cfg.DriverSupportFiles).To(Equal([]string{"driver_base.py", "validate.py"}))
	})

	It("should derive the template folders", func() {
		cfg, err := config.MakeBuilder().WithTemplateRoot("/finn/templates").Build()

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.HDLTemplateDir()).To(Equal("/finn/templates/thresholding/hdl"))
		Expect(cfg.DriverTemplateDir()).To(Equal("/finn/templates/driver"))
	})

	It("should reject invalid values", func() {
		_, err := config.MakeBuilder().WithPlatform("ultra96").Build()
		Expect(err).To(HaveOccurred())

		_, err = config.MakeBuilder().WithClockFreq(0).Build()
		Expect(err).To(HaveOccurred())

		_, err = config.MakeBuilder().WithAddressStride(0).Build()
		Expect(err).To(HaveOccurred())

		_, err = config.MakeBuilder().WithBuildRoot("").Build()
		Expect(err).To(HaveOccurred())
	})

	It("should not share support file lists between builders", func() {
		files := []string{"a.py"}
		b := config.MakeBuilder().WithDriverSupportFiles(files...)
		files[0] = "b.py"

		cfg, err := b.Build()

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.DriverSupportFiles).To(Equal([]string{"a.py"}))
	})
})

var _ = Describe("Platform", func() {
	It("should parse known platforms", func() {
		p, err := config.ParsePlatform("alveo")

		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name()).To(Equal("alveo"))
	})

	It("should panic on invalid platforms", func() {
		Expect(func() { _ = config.Platform("x").Name() }).To(Panic())
	})
})

var _ = Describe("Load", func() {
	It("should override defaults with file values", func() {
		path := filepath.Join(GinkgoT().TempDir(), "dfgen.yaml")
		doc := "template_root: /t\nplatform: alveo\nclock_mhz: 250\naddress_stride: 4\n" +
			"driver_support_files: [driver_base.py]\n"
		Expect(os.WriteFile(path, []byte(doc), 0o644)).To(Succeed())

		cfg, err := config.Load(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.TemplateRoot).To(Equal("/t"))
		Expect(cfg.Platform).To(Equal(config.PlatformAlveo))
		Expect(cfg.ClockFreq).To(Equal(250 * sim.MHz))
		Expect(cfg.AddressStride).To(Equal(4))
		Expect(cfg.DriverSupportFiles).To(Equal([]string{"driver_base.py"}))
	})

	It("should reject unknown platforms", func() {
		_, err := config.Parse([]byte("platform: pynq-z1\n"))

		Expect(err).To(MatchError(ContainSubstring("unsupported platform")))
	})

	It("should report a missing file", func() {
		_, err := config.Load(filepath.Join(GinkgoT().TempDir(), "none.yaml"))

		var resErr *node.ResourceError
		Expect(errors.As(err, &resErr)).To(BeTrue())
	})
})
