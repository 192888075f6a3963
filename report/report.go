// Package report renders generator results as text tables.
package report

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sarchlab/dataflowgen/pynq"
	"github.com/sarchlab/dataflowgen/rtweights"
)

// DMATable lists the input and output chains of a driver plan.
func DMATable(plan *pynq.Plan) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("DMA chains of %s (%s)", plan.Graph, plan.Platform.Name()))
	t.AppendHeader(table.Row{"Dir", "Tensor", "DMA", "Compute", "Type", "Normal", "Folded", "Packed"})

	for _, c := range plan.Inputs {
		t.AppendRow(chainRow("in", c))
	}

	for _, c := range plan.Outputs {
		t.AppendRow(chainRow("out", c))
	}

	t.AppendFooter(table.Row{"", "", "", "", "", "",
		"external", len(plan.External)})

	return t.Render()
}

func chainRow(dir string, c pynq.DMAChain) table.Row {
	return table.Row{
		dir,
		c.Tensor,
		c.DMAName,
		c.Compute,
		c.Datatype.Name(),
		pynq.PyTuple(c.Normal),
		pynq.PyTuple(c.Folded),
		pynq.PyTuple(c.Packed),
	}
}

// AddressTable lists the register writes of an address map.
func AddressTable(title string, m *rtweights.AddressMap) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("%s: %s, boundary %d, stride %d",
		title, m.Datatype().Name(), m.Boundary(), m.Stride()))
	t.AppendHeader(table.Row{"Key", "Channel", "Element", "Offset", "Value"})

	digits := m.WordBits() / 4
	for _, e := range m.Entries() {
		t.AppendRow(table.Row{
			e.Key,
			e.Channel,
			e.Element,
			fmt.Sprintf("0x%x", e.Offset),
			fmt.Sprintf("0x%0*x", digits, e.Value),
		})
	}

	return t.Render()
}

// Artifacts lists generated files.
func Artifacts(title string, paths []string) string {
	t := table.NewWriter()
	t.SetTitle(title)
	t.AppendHeader(table.Row{"#", "File"})

	for i, p := range paths {
		t.AppendRow(table.Row{i, p})
	}

	return t.Render()
}
