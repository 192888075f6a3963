package hdl

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sarchlab/dataflowgen/dtype"
	"github.com/sarchlab/dataflowgen/node"
	"github.com/sarchlab/dataflowgen/rtweights"
	"gonum.org/v1/gonum/mat"
)

// maxOutputBits bounds the depth of the threshold search tree.
const maxOutputBits = 24

// CompatibleThresholds checks a threshold tensor against the node and
// returns it as a NumChannels x numSteps matrix. A single row is broadcast
// to all channels.
func CompatibleThresholds(c *node.Config, t mat.Matrix) (*mat.Dense, error) {
	rows, cols := t.Dims()

	if cols != c.NumSteps {
		return nil, &node.ConfigError{Node: c.Name, Attr: "numSteps",
			Reason: fmt.Sprintf("threshold tensor has %d steps, expected %d", cols, c.NumSteps)}
	}

	if rows != 1 && rows != c.NumChannels {
		return nil, &node.ConfigError{Node: c.Name, Attr: "NumChannels",
			Reason: fmt.Sprintf("threshold tensor has %d rows, expected 1 or %d", rows, c.NumChannels)}
	}

	out := mat.NewDense(c.NumChannels, c.NumSteps, nil)

	for ch := 0; ch < c.NumChannels; ch++ {
		src := ch
		if rows == 1 {
			src = 0
		}

		for s := 0; s < c.NumSteps; s++ {
			f := t.At(src, s)
			if f != math.Trunc(f) || math.IsInf(f, 0) {
				return nil, &node.ConfigError{Node: c.Name, Attr: "thresholds",
					Reason: fmt.Sprintf("value %v at (%d, %d) is not an integer", f, src, s)}
			}

			v := int64(f)
			if !c.InputType.Signed() && v < 0 {
				return nil, &node.ConfigError{Node: c.Name, Attr: "thresholds",
					Reason: fmt.Sprintf("negative threshold %d for unsigned input %s",
						v, c.InputType.Name())}
			}

			if !c.WeightType.Allowed(v) {
				return nil, &node.ConfigError{Node: c.Name, Attr: "weightDataType",
					Reason: fmt.Sprintf("threshold %d does not fit %s", v, c.WeightType.Name())}
			}

			out.Set(ch, s, f)
		}
	}

	return out, nil
}

// MinimizeWeightWidth returns a copy of c whose weight datatype is the
// smallest type holding both the thresholds and the input range. Nodes with
// runtime-writable thresholds keep their declared type, since the values may
// change after synthesis.
func MinimizeWeightWidth(c *node.Config, t mat.Matrix) (node.Config, error) {
	if c.RuntimeWritable {
		return c.WithWeightType(c.WeightType), nil
	}

	rows, cols := t.Dims()
	if rows == 0 || cols == 0 {
		return node.Config{}, &node.ConfigError{Node: c.Name, Attr: "thresholds",
			Reason: "threshold tensor is empty"}
	}

	tMin, tMax := int64(math.MaxInt64), int64(math.MinInt64)

	for r := 0; r < rows; r++ {
		for col := 0; col < cols; col++ {
			f := t.At(r, col)
			if f != math.Trunc(f) || math.IsInf(f, 0) {
				return node.Config{}, &node.ConfigError{Node: c.Name, Attr: "thresholds",
					Reason: fmt.Sprintf("value %v at (%d, %d) is not an integer", f, r, col)}
			}

			tMin = min(tMin, int64(f))
			tMax = max(tMax, int64(f))
		}
	}

	lo := min(c.InputType.Min(), tMin)
	hi := max(c.InputType.Max(), tMax)

	var tdt dtype.NumericType

	switch {
	case lo >= 0:
		tdt = dtype.SmallestFor(hi)
	case -lo > hi:
		tdt = dtype.SmallestFor(lo)
	default:
		tdt = dtype.SmallestFor(-hi - 1)
	}

	return c.WithWeightType(tdt), nil
}

// prepared holds thresholds laid out for the search tree: exactly
// 2^N - 1 columns, where N is the output width.
type prepared struct {
	cfg    *node.Config
	thresh *mat.Dense
	bias   int
	dummy  bool
}

func prepare(c *node.Config, t mat.Matrix) (*prepared, error) {
	compat, err := CompatibleThresholds(c, t)
	if err != nil {
		return nil, err
	}

	n := c.OutputType.BitWidth()
	if n > maxOutputBits {
		return nil, &node.ConfigError{Node: c.Name, Attr: "outputDataType",
			Reason: fmt.Sprintf("%d output bits exceed the supported %d",
				n, maxOutputBits)}
	}

	expected := 1<<n - 1
	p := &prepared{cfg: c, thresh: compat, bias: c.ActivationBias}

	switch c.NumSteps {
	case expected:
	case expected - 1:
		dummy := c.InputType.Min()
		if !c.WeightType.Allowed(dummy) {
			return nil, &node.ConfigError{Node: c.Name, Attr: "weightDataType",
				Reason: fmt.Sprintf("%s cannot hold the padding threshold %d",
					c.WeightType.Name(), dummy)}
		}

		padded := mat.NewDense(c.NumChannels, expected, nil)
		for ch := 0; ch < c.NumChannels; ch++ {
			padded.Set(ch, 0, float64(dummy))
			for s := 0; s < c.NumSteps; s++ {
				padded.Set(ch, s+1, compat.At(ch, s))
			}
		}

		p.thresh = padded
		p.bias--
		p.dummy = true
	default:
		return nil, &node.ConfigError{Node: c.Name, Attr: "numSteps",
			Reason: fmt.Sprintf("%s output needs %d or %d thresholds, got %d",
				c.OutputType.Name(), expected, expected-1, c.NumSteps)}
	}

	return p, nil
}

// TreeIndex returns the threshold compared at node i of stage s in a binary
// search tree of depth n.
func TreeIndex(n, s, i int) int {
	return (2*i+1)<<(n-s-1) - 1
}

// TreeFileName names the file holding stage s of processing element pe.
func TreeFileName(nodeName string, pe, stage int) string {
	return fmt.Sprintf("%s_threshs_%d_%d.dat", nodeName, pe, stage)
}

func (p *prepared) writeTreeFiles(destDir string) ([]string, error) {
	c := p.cfg
	n := c.OutputType.BitWidth()
	wbits := c.WeightType.BitWidth()
	digits := dtype.RoundUp(wbits, 4) / 4
	folds := c.NumChannels / c.PE

	var paths []string

	for pe := 0; pe < c.PE; pe++ {
		for s := 0; s < n; s++ {
			var sb strings.Builder

			for f := 0; f < folds; f++ {
				ch := f*c.PE + pe
				for i := 0; i < 1<<s; i++ {
					v := int64(p.thresh.At(ch, TreeIndex(n, s, i)))
					fmt.Fprintf(&sb, "%0*x\n", digits, rtweights.Encode(v, wbits))
				}
			}

			path := filepath.Join(destDir, TreeFileName(c.Name, pe, s))
			if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
				return nil, &node.ResourceError{Path: path, Err: err}
			}

			paths = append(paths, path)
		}
	}

	return paths, nil
}

func (p *prepared) addressMap(stride int) (*rtweights.AddressMap, error) {
	m, err := rtweights.Build(p.thresh, p.cfg.WeightType, stride)
	if err != nil {
		return nil, node.WithNode(err, p.cfg.Name)
	}

	return m, nil
}
