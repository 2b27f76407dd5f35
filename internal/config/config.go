// Package config loads loader declarations from CUE or YAML files and builds
// them into binding.Autoloaders that fetch JSON over HTTP.
//
// Both formats declare loaders under a top-level "loader" struct keyed by
// name:
//
//	loader: users: {
//		url:                   "https://api.example.com/users/{id}"
//		auto_refresh_interval: "30s"
//		cache_expires_in:      "5m"
//		reload:                "prev.id != next.id"
//	}
//
// Durations are Go duration strings. {key} placeholders in url and in the
// loader name are filled from the mount props.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// LoaderSpec is one declared loader, as written in the file.
type LoaderSpec struct {
	Name                string `yaml:"-" json:"-"`
	URL                 string `yaml:"url" json:"url"`
	AutoRefreshInterval string `yaml:"auto_refresh_interval" json:"auto_refresh_interval"`
	CacheExpiresIn      string `yaml:"cache_expires_in" json:"cache_expires_in"`
	LoadOnInitialize    *bool  `yaml:"load_on_initialize" json:"load_on_initialize"`
	StartOnMount        *bool  `yaml:"start_on_mount" json:"start_on_mount"`
	ReloadOnMount       *bool  `yaml:"reload_on_mount" json:"reload_on_mount"`
	ResetOnUnmount      *bool  `yaml:"reset_on_unmount" json:"reset_on_unmount"`
	Reload              string `yaml:"reload" json:"reload"`
	Reinitialize        string `yaml:"reinitialize" json:"reinitialize"`
	Timeout             string `yaml:"timeout" json:"timeout"`

	// Pos is the declaration's position in a CUE file, if known.
	Pos token.Pos `yaml:"-" json:"-"`
}

// knownFields are the accepted keys of a loader declaration.
var knownFields = map[string]bool{
	"url":                   true,
	"auto_refresh_interval": true,
	"cache_expires_in":      true,
	"load_on_initialize":    true,
	"start_on_mount":        true,
	"reload_on_mount":       true,
	"reset_on_unmount":      true,
	"reload":                true,
	"reinitialize":          true,
	"timeout":               true,
}

// File is a parsed declaration file. Loaders are sorted by name.
type File struct {
	Path    string
	Loaders []LoaderSpec
}

// Lookup returns the loader declared as name.
func (f *File) Lookup(name string) (LoaderSpec, bool) {
	for _, l := range f.Loaders {
		if l.Name == name {
			return l, true
		}
	}
	return LoaderSpec{}, false
}

// ErrUnsupportedFormat is returned for file extensions other than .cue,
// .yaml and .yml.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Load reads and parses the file at path, choosing the format by extension.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var f *File
	switch filepath.Ext(path) {
	case ".cue":
		f, err = ParseCUE(data, path)
	case ".yaml", ".yml":
		f, err = ParseYAML(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	f.Path = path
	return f, nil
}

// ParseYAML decodes a YAML declaration file. Unknown keys are errors.
func ParseYAML(r io.Reader) (*File, error) {
	var doc struct {
		Loader map[string]LoaderSpec `yaml:"loader"`
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	f := &File{}
	for name, spec := range doc.Loader {
		spec.Name = name
		f.Loaders = append(f.Loaders, spec)
	}
	sortLoaders(f.Loaders)
	return f, nil
}

// ParseCUE compiles a CUE declaration file. filename is used in positions.
func ParseCUE(src []byte, filename string) (*File, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	f := &File{}

	loaders := v.LookupPath(cue.ParsePath("loader"))
	if !loaders.Exists() {
		return f, nil
	}

	iter, err := loaders.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		lv := iter.Value()
		name := iter.Label()

		fields, err := lv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for fields.Next() {
			label := fields.Label()
			if !knownFields[label] {
				return nil, &FieldError{
					Loader:  name,
					Field:   label,
					Code:    ErrCodeUnknownField,
					Message: "unknown field",
					Pos:     fields.Value().Pos(),
				}
			}
		}

		var spec LoaderSpec
		if err := lv.Decode(&spec); err != nil {
			return nil, formatCUEError(err)
		}
		spec.Name = name
		spec.Pos = lv.Pos()
		f.Loaders = append(f.Loaders, spec)
	}

	sortLoaders(f.Loaders)
	return f, nil
}

func sortLoaders(l []LoaderSpec) {
	sort.Slice(l, func(i, j int) bool { return l[i].Name < l[j].Name })
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := cueerrors.Positions(first)
	if len(positions) > 0 {
		return &FieldError{
			Field:   "cue",
			Code:    ErrCodeSyntax,
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return fmt.Errorf("parse CUE: %w", err)
}
