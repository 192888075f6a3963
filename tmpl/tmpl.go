// Package tmpl instantiates text templates by literal placeholder
// replacement.
//
// A placeholder is any token, conventionally written as $NAME$. There is no
// escaping and no nested expansion: replacement text is never scanned for
// further placeholders. Placeholders without a value stay in the output.
package tmpl

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sarchlab/dataflowgen/node"
)

// Values maps placeholders to the lines that replace them.
type Values map[string][]string

// Set assigns the replacement lines of a placeholder.
func (v Values) Set(placeholder string, lines ...string) {
	v[placeholder] = lines
}

// Merge copies all entries of other into v.
func (v Values) Merge(other Values) {
	for k, lines := range other {
		v[k] = lines
	}
}

// Instantiate replaces every occurrence of every placeholder in text.
func Instantiate(text string, values Values) string {
	if len(values) == 0 {
		return text
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "" {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, strings.Join(values[k], "\n"))
	}

	return strings.NewReplacer(pairs...).Replace(text)
}

// Document is a named template text.
type Document struct {
	Name string
	Text string
}

// Instantiate returns a new document with the placeholders replaced.
func (d Document) Instantiate(values Values) Document {
	return Document{Name: d.Name, Text: Instantiate(d.Text, values)}
}

// A Loader reads template documents by name.
type Loader interface {
	Load(name string) (Document, error)
}

// DirLoader reads templates from a directory on disk.
type DirLoader struct {
	Root string
}

// Load reads Root/name.
func (l DirLoader) Load(name string) (Document, error) {
	path := filepath.Join(l.Root, name)

	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, &node.ResourceError{Path: path, Err: err}
	}

	return Document{Name: name, Text: string(data)}, nil
}

// FSLoader reads templates from a file system, such as an embed.FS.
type FSLoader struct {
	FS  fs.FS
	Dir string
}

// Load reads Dir/name from the file system.
func (l FSLoader) Load(name string) (Document, error) {
	path := name
	if l.Dir != "" {
		path = l.Dir + "/" + name
	}

	data, err := fs.ReadFile(l.FS, path)
	if err != nil {
		return Document{}, &node.ResourceError{Path: path, Err: err}
	}

	return Document{Name: name, Text: string(data)}, nil
}

// Engine instantiates templates from a loader into a destination directory.
type Engine struct {
	loader Loader
}

// NewEngine creates an engine reading templates through l.
func NewEngine(l Loader) *Engine {
	return &Engine{loader: l}
}

// Render loads and instantiates one template without writing it.
func (e *Engine) Render(name string, values Values) (Document, error) {
	doc, err := e.loader.Load(name)
	if err != nil {
		var resErr *node.ResourceError
		if !errors.As(err, &resErr) {
			err = &node.ResourceError{Path: name, Err: err}
		}

		return Document{}, err
	}

	return doc.Instantiate(values), nil
}

// Generate instantiates each named template and writes it to destDir under
// the same name, replacing existing files. It returns the written paths.
func (e *Engine) Generate(names []string, values Values, destDir string) ([]string, error) {
	docs := make([]Document, 0, len(names))
	for _, name := range names {
		doc, err := e.Render(name, values)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, &node.ResourceError{Path: destDir, Err: err}
	}

	paths := make([]string, 0, len(docs))
	for _, doc := range docs {
		path := filepath.Join(destDir, doc.Name)
		if err := os.WriteFile(path, []byte(doc.Text), 0o644); err != nil {
			return nil, &node.ResourceError{Path: path, Err: err}
		}

		paths = append(paths, path)
	}

	return paths, nil
}
