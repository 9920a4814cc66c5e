// Package definition loads YAML section definitions, validates them, and
// provides a fast-lookup registry with atomic pointer swap.
package definition

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/repairdesk/model"
)

//go:embed sections/*.yaml
var embedded embed.FS

// Embedded returns the section definitions compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "sections")
	if err != nil {
		panic(err)
	}
	return sub
}

// Loader scans directories for YAML definition files, parses them, and computes
// SHA-256 checksums.
type Loader struct{}

// NewLoader creates a new definition Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll recursively scans directories for *.yaml and *.yml files and parses
// each into a SectionDefinition.
func (l *Loader) LoadAll(directories []string) ([]model.SectionDefinition, error) {
	var defs []model.SectionDefinition

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isYAML(path) {
				return nil
			}

			def, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			defs = append(defs, def)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return defs, nil
}

// LoadFS parses every YAML file in fsys, in lexical order.
func (l *Loader) LoadFS(fsys fs.FS) ([]model.SectionDefinition, error) {
	var defs []model.SectionDefinition
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(p) {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		def, err := parse(data, "embedded:"+path.Clean(p))
		if err != nil {
			return err
		}
		defs = append(defs, def)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return defs, nil
}

// LoadFile loads and parses a single YAML definition file. It computes the
// SHA-256 checksum and records the source file path.
func (l *Loader) LoadFile(path string) (model.SectionDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.SectionDefinition{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return parse(data, path)
}

func parse(data []byte, source string) (model.SectionDefinition, error) {
	var def model.SectionDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return model.SectionDefinition{}, fmt.Errorf("parsing %s: %w", source, err)
	}

	def.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	def.SourceFile = source
	if def.Navigation.Route == "" && def.Section != "" {
		def.Navigation.Route = "/" + def.Section
	}

	return def, nil
}

func isYAML(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".yaml" || ext == ".yml"
}
