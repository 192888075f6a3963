package pynq

import (
	"embed"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sarchlab/dataflowgen/graph"
	"github.com/sarchlab/dataflowgen/node"
	"github.com/sarchlab/dataflowgen/tmpl"
	"github.com/sarchlab/dataflowgen/util"
	"github.com/sbinet/npyio"
)

//go:embed templates/driver.py
var templates embed.FS

const (
	driverFile     = "driver.py"
	runtimeWeights = "runtime_weights"
)

// Driver is a written host driver.
type Driver struct {
	Dir   string
	Files []string
	Plan  *Plan
}

// Build resolves the graph and writes the driver. The graph is fully
// resolved first, so a structural problem leaves nothing on disk.
func (r *Resolver) Build(m *graph.Model) (*Driver, error) {
	plan, err := r.Resolve(m)
	if err != nil {
		return nil, err
	}

	dir := r.cfg.OutputDir
	if dir == "" {
		dir = filepath.Join(r.cfg.BuildRoot, "pynq_driver_"+uuid.NewString())
	}

	files, err := r.Emit(plan, dir)
	if err != nil {
		return nil, err
	}

	slog.Info("driver generated", "graph", m.Name, "dir", dir,
		"inputs", len(plan.Inputs), "outputs", len(plan.Outputs))

	return &Driver{Dir: dir, Files: files, Plan: plan}, nil
}

// Emit writes the driver of plan into dir. Existing files are replaced and
// the runtime_weights folder is recreated from scratch.
func (r *Resolver) Emit(plan *Plan, dir string) ([]string, error) {
	doc, err := r.driverEngine().Render(r.driverTemplateName(), plan.Values())
	if err != nil {
		return nil, err
	}

	weightsDir := filepath.Join(dir, runtimeWeights)
	if err := os.RemoveAll(weightsDir); err != nil {
		return nil, &node.ResourceError{Path: weightsDir, Err: err}
	}

	if err := os.MkdirAll(weightsDir, 0o755); err != nil {
		return nil, &node.ResourceError{Path: weightsDir, Err: err}
	}

	var files []string

	driverPath := filepath.Join(dir, driverFile)
	if err := os.WriteFile(driverPath, []byte(doc.Text), 0o644); err != nil {
		return nil, &node.ResourceError{Path: driverPath, Err: err}
	}

	files = append(files, driverPath)

	support, err := r.copySupportFiles(dir)
	if err != nil {
		return nil, err
	}

	files = append(files, support...)

	for _, w := range plan.External {
		path := filepath.Join(weightsDir, w.FileName())
		if err := writeNpy(path, w.Data); err != nil {
			return nil, err
		}

		files = append(files, path)
	}

	for _, w := range plan.Runtime {
		path := filepath.Join(weightsDir, w.FileName())
		if err := w.Map.WriteDat(path); err != nil {
			return nil, err
		}

		files = append(files, path)
	}

	for _, f := range files {
		util.Trace("driver artifact", "file", f)
	}

	return files, nil
}

func (r *Resolver) driverEngine() *tmpl.Engine {
	if r.cfg.DriverTemplate != "" {
		return tmpl.NewEngine(tmpl.DirLoader{Root: filepath.Dir(r.cfg.DriverTemplate)})
	}

	return tmpl.NewEngine(tmpl.FSLoader{FS: templates, Dir: "templates"})
}

func (r *Resolver) driverTemplateName() string {
	if r.cfg.DriverTemplate != "" {
		return filepath.Base(r.cfg.DriverTemplate)
	}

	return driverFile
}

func (r *Resolver) copySupportFiles(dir string) ([]string, error) {
	if r.cfg.TemplateRoot == "" {
		slog.Debug("no template root, driver support files not copied")
		return nil, nil
	}

	var files []string

	for _, name := range r.cfg.DriverSupportFiles {
		src := filepath.Join(r.cfg.DriverTemplateDir(), name)
		dst := filepath.Join(dir, name)

		if err := copyFile(src, dst); err != nil {
			return nil, err
		}

		files = append(files, dst)
	}

	return files, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &node.ResourceError{Path: src, Err: err}
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return &node.ResourceError{Path: dst, Err: err}
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return &node.ResourceError{Path: dst, Err: err}
	}

	if err := out.Close(); err != nil {
		return &node.ResourceError{Path: dst, Err: err}
	}

	return nil
}

func writeNpy(path string, data []uint8) error {
	f, err := os.Create(path)
	if err != nil {
		return &node.ResourceError{Path: path, Err: err}
	}

	if err := npyio.Write(f, data); err != nil {
		f.Close()
		return &node.ResourceError{Path: path, Err: err}
	}

	if err := f.Close(); err != nil {
		return &node.ResourceError{Path: path, Err: err}
	}

	return nil
}
