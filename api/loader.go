// Package api simulates the host side of a runtime-writable parameter
// interface. A Loader replays the register writes of an address map into a
// parameter memory, one cycle at a time, so the write sequence and the
// resulting memory image can be checked before touching hardware.
package api

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/dataflowgen/rtweights"
	"github.com/sarchlab/dataflowgen/util"
)

// Loader writes parameter images into a simulated memory.
type Loader interface {
	// Load queues the entries of an address map. The first element slot is
	// placed at base.
	Load(m *rtweights.AddressMap, base uint64)

	// Run performs all queued writes.
	Run() error

	// Storage returns the memory written by the loader.
	Storage() *mem.Storage

	// Writes returns the number of register writes performed so far.
	Writes() int

	// FinishTime returns the time the last queued write completed.
	FinishTime() sim.VTimeInSec
}

type loadTask struct {
	addrMap *rtweights.AddressMap
	entries []rtweights.Entry
	base    uint64
	next    int
}

func (t *loadTask) isFinished() bool {
	return t.next >= len(t.entries)
}

type loaderImpl struct {
	*sim.TickingComponent

	storage        *mem.Storage
	writesPerCycle int

	tasks      []*loadTask
	writes     int
	finishTime sim.VTimeInSec
	err        error
}

// Tick runs the loader for one cycle.
func (l *loaderImpl) Tick() (madeProgress bool) {
	if l.err != nil {
		return false
	}

	for i := 0; i < l.writesPerCycle; i++ {
		if !l.writeOne() {
			break
		}

		madeProgress = true
	}

	if madeProgress && len(l.tasks) == 0 {
		l.finishTime = l.Engine.CurrentTime()
	}

	return madeProgress
}

func (l *loaderImpl) writeOne() bool {
	if len(l.tasks) == 0 {
		return false
	}

	task := l.tasks[0]
	entry := task.entries[task.next]

	addr := SlotAddress(task.addrMap, task.base, entry)
	if err := l.storage.Write(addr, wordBytes(task.addrMap, entry.Value)); err != nil {
		l.err = fmt.Errorf("writing %s at 0x%x: %w", entry.Key, addr, err)
		return false
	}

	util.Trace("register write", "loader", l.Name(), "key", entry.Key,
		"addr", addr, "value", entry.Value)

	task.next++
	l.writes++

	if task.isFinished() {
		l.tasks = l.tasks[1:]
	}

	return true
}

// SlotAddress returns the byte address of an entry in a word-addressed
// memory starting at base.
func SlotAddress(m *rtweights.AddressMap, base uint64, e rtweights.Entry) uint64 {
	slot := e.Offset / uint64(m.Stride())
	return base + slot*uint64(m.WordBits()/8)
}

func wordBytes(m *rtweights.AddressMap, v uint64) []byte {
	buf := make([]byte, m.WordBits()/8)
	if len(buf) == 4 {
		binary.LittleEndian.PutUint32(buf, uint32(v))
	} else {
		binary.LittleEndian.PutUint64(buf, v)
	}

	return buf
}

// Load queues the entries of an address map.
func (l *loaderImpl) Load(m *rtweights.AddressMap, base uint64) {
	if m.Len() == 0 {
		return
	}

	l.tasks = append(l.tasks, &loadTask{
		addrMap: m,
		entries: m.Entries(),
		base:    base,
	})
}

// Run performs all queued writes.
func (l *loaderImpl) Run() error {
	l.TickNow()

	if err := l.Engine.Run(); err != nil {
		return err
	}

	return l.err
}

func (l *loaderImpl) Storage() *mem.Storage {
	return l.storage
}

func (l *loaderImpl) Writes() int {
	return l.writes
}

func (l *loaderImpl) FinishTime() sim.VTimeInSec {
	return l.finishTime
}

// VerifyImage compares the memory starting at base with the dense image of
// an address map, padding slots included.
func VerifyImage(storage *mem.Storage, base uint64, m *rtweights.AddressMap) error {
	size := uint64(m.WordBits() / 8)

	for i, want := range m.Image() {
		addr := base + uint64(i)*size

		data, err := storage.Read(addr, size)
		if err != nil {
			return fmt.Errorf("reading slot %d at 0x%x: %w", i, addr, err)
		}

		var got uint64
		if size == 4 {
			got = uint64(binary.LittleEndian.Uint32(data))
		} else {
			got = binary.LittleEndian.Uint64(data)
		}

		if got != want {
			return fmt.Errorf("slot %d at 0x%x holds 0x%x, expected 0x%x", i, addr, got, want)
		}
	}

	return nil
}
