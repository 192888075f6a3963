// Package config holds the configuration shared by the generators. A Config
// is an explicit value handed to constructors; nothing is read from the
// process environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/dataflowgen/node"
	"gopkg.in/yaml.v3"
)

// Config describes where templates come from, where artifacts go, and the
// platform the artifacts are generated for.
type Config struct {
	// TemplateRoot contains thresholding/hdl/ and driver/ template folders.
	TemplateRoot string
	// OutputDir receives the driver. When empty, a unique directory under
	// BuildRoot is created.
	OutputDir string
	BuildRoot string

	Platform      Platform
	ClockFreq     sim.Freq
	AddressStride int

	// DriverTemplate overrides the built-in driver.py template.
	DriverTemplate string
	// DriverSupportFiles are copied verbatim from TemplateRoot/driver.
	DriverSupportFiles []string
}

// HDLTemplateDir is the folder holding the thresholding RTL templates.
func (c Config) HDLTemplateDir() string {
	return filepath.Join(c.TemplateRoot, "thresholding", "hdl")
}

// DriverTemplateDir is the folder holding the driver support files.
func (c Config) DriverTemplateDir() string {
	return filepath.Join(c.TemplateRoot, "driver")
}

func (c Config) validate() error {
	if _, err := ParsePlatform(string(c.Platform)); err != nil {
		return err
	}

	if c.ClockFreq <= 0 {
		return fmt.Errorf("clock frequency must be > 0")
	}

	if c.AddressStride <= 0 {
		return fmt.Errorf("address stride must be > 0")
	}

	if c.OutputDir == "" && c.BuildRoot == "" {
		return fmt.Errorf("either an output dir or a build root must be provided")
	}

	return nil
}

// Builder creates validated configurations.
type Builder struct {
	cfg Config
}

// MakeBuilder returns a builder holding the default configuration.
func MakeBuilder() Builder {
	return Builder{cfg: defaults()}
}

func defaults() Config {
	return Config{
		BuildRoot:          os.TempDir(),
		Platform:           PlatformZynq,
		ClockFreq:          100 * sim.MHz,
		AddressStride:      1,
		DriverSupportFiles: []string{"driver_base.py", "validate.py"},
	}
}

// WithTemplateRoot sets the template root folder.
func (b Builder) WithTemplateRoot(dir string) Builder {
	b.cfg.TemplateRoot = dir
	return b
}

// WithOutputDir sets the driver output folder.
func (b Builder) WithOutputDir(dir string) Builder {
	b.cfg.OutputDir = dir
	return b
}

// WithBuildRoot sets the folder unique build directories are created in.
func (b Builder) WithBuildRoot(dir string) Builder {
	b.cfg.BuildRoot = dir
	return b
}

// WithPlatform sets the target platform.
func (b Builder) WithPlatform(p Platform) Builder {
	b.cfg.Platform = p
	return b
}

// WithClockFreq sets the stream interface clock frequency.
func (b Builder) WithClockFreq(freq sim.Freq) Builder {
	b.cfg.ClockFreq = freq
	return b
}

// WithAddressStride sets the address distance between runtime parameters.
func (b Builder) WithAddressStride(stride int) Builder {
	b.cfg.AddressStride = stride
	return b
}

// WithDriverTemplate overrides the built-in driver template.
func (b Builder) WithDriverTemplate(path string) Builder {
	b.cfg.DriverTemplate = path
	return b
}

// WithDriverSupportFiles sets the files copied next to the driver.
func (b Builder) WithDriverSupportFiles(names ...string) Builder {
	b.cfg.DriverSupportFiles = append([]string(nil), names...)
	return b
}

// Build validates and returns the configuration.
func (b Builder) Build() (Config, error) {
	if err := b.cfg.validate(); err != nil {
		return Config{}, err
	}

	return b.cfg, nil
}

type file struct {
	TemplateRoot       string   `yaml:"template_root"`
	OutputDir          string   `yaml:"output_dir"`
	BuildRoot          string   `yaml:"build_root"`
	Platform           string   `yaml:"platform"`
	ClockMHz           float64  `yaml:"clock_mhz"`
	AddressStride      int      `yaml:"address_stride"`
	DriverTemplate     string   `yaml:"driver_template"`
	DriverSupportFiles []string `yaml:"driver_support_files"`
}

// Load reads a YAML configuration file. Keys that are absent keep their
// default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &node.ResourceError{Path: path, Err: err}
	}

	return Parse(data)
}

// Parse decodes a YAML configuration document.
func Parse(data []byte) (Config, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	b := MakeBuilder()

	if f.TemplateRoot != "" {
		b = b.WithTemplateRoot(f.TemplateRoot)
	}

	if f.OutputDir != "" {
		b = b.WithOutputDir(f.OutputDir)
	}

	if f.BuildRoot != "" {
		b = b.WithBuildRoot(f.BuildRoot)
	}

	if f.Platform != "" {
		p, err := ParsePlatform(f.Platform)
		if err != nil {
			return Config{}, err
		}

		b = b.WithPlatform(p)
	}

	if f.ClockMHz != 0 {
		b = b.WithClockFreq(sim.Freq(f.ClockMHz) * sim.MHz)
	}

	if f.AddressStride != 0 {
		b = b.WithAddressStride(f.AddressStride)
	}

	if f.DriverTemplate != "" {
		b = b.WithDriverTemplate(f.DriverTemplate)
	}

	if f.DriverSupportFiles != nil {
		b = b.WithDriverSupportFiles(f.DriverSupportFiles...)
	}

	return b.Build()
}
