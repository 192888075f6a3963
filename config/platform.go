package config

import "fmt"

// Platform is the board family the generated host driver targets.
type Platform string

const (
	// PlatformZynq is an embedded Zynq board with DMA engines in the fabric.
	PlatformZynq Platform = "zynq-iodma"
	// PlatformAlveo is a PCIe-attached Alveo datacenter card.
	PlatformAlveo Platform = "alveo"
)

// Name returns the name of the platform as written into the driver.
func (p Platform) Name() string {
	switch p {
	case PlatformZynq, PlatformAlveo:
		return string(p)
	default:
		panic("invalid platform")
	}
}

// ParsePlatform converts a platform name into a Platform.
func ParsePlatform(name string) (Platform, error) {
	switch Platform(name) {
	case PlatformZynq:
		return PlatformZynq, nil
	case PlatformAlveo:
		return PlatformAlveo, nil
	default:
		return "", fmt.Errorf("unsupported platform %q", name)
	}
}
