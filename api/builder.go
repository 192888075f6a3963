package api

import (
	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"
)

// LoaderBuilder creates a new instance of Loader.
type LoaderBuilder struct {
	engine         sim.Engine
	freq           sim.Freq
	storage        *mem.Storage
	capacity       uint64
	writesPerCycle int
}

// MakeLoaderBuilder returns a builder with default parameters.
func MakeLoaderBuilder() LoaderBuilder {
	return LoaderBuilder{
		freq:           100 * sim.MHz,
		capacity:       1 << 20,
		writesPerCycle: 1,
	}
}

// WithEngine sets the engine.
func (b LoaderBuilder) WithEngine(engine sim.Engine) LoaderBuilder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the register interface.
func (b LoaderBuilder) WithFreq(freq sim.Freq) LoaderBuilder {
	b.freq = freq
	return b
}

// WithStorage sets the parameter memory the loader writes to. If no storage
// is given, a new one of the configured capacity is created.
func (b LoaderBuilder) WithStorage(storage *mem.Storage) LoaderBuilder {
	b.storage = storage
	return b
}

// WithCapacity sets the capacity of a storage created by the builder.
func (b LoaderBuilder) WithCapacity(capacity uint64) LoaderBuilder {
	b.capacity = capacity
	return b
}

// WithWritesPerCycle sets how many registers are written per cycle.
func (b LoaderBuilder) WithWritesPerCycle(n int) LoaderBuilder {
	b.writesPerCycle = n
	return b
}

// Build creates a loader.
func (b LoaderBuilder) Build(name string) Loader {
	if b.writesPerCycle <= 0 {
		panic("writes per cycle must be > 0")
	}

	l := &loaderImpl{
		storage:        b.storage,
		writesPerCycle: b.writesPerCycle,
	}

	if l.storage == nil {
		l.storage = mem.NewStorage(b.capacity)
	}

	l.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, l)

	return l
}
