package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chazu/corvid/bytecode"
	"github.com/chazu/corvid/compiler"
	"github.com/chazu/corvid/compiler/pratt"
	"github.com/chazu/corvid/manifest"
)

const (
	sourceExt = ".cv"
	moduleExt = ".cvb"
)

var errNoInput = errors.New("no input file and no corvid.toml found")

// frontEnd selects a parser by name.
func frontEnd(name string) (compiler.ParseFunc, error) {
	switch name {
	case "", "descent":
		return compiler.Parse, nil
	case "pratt":
		return pratt.Parse, nil
	}
	return nil, fmt.Errorf("unknown parser %q (want descent or pratt)", name)
}

// findManifest loads the nearest corvid.toml, or returns nil.
func findManifest() (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	if m != nil {
		log.Infof("using %s", filepath.Join(m.Dir, manifest.FileName))
	}
	return m, nil
}

// loadModule reads a compiled module or compiles source. With path empty
// the manifest's sources are compiled.
func loadModule(path string, m *manifest.Manifest, parser string) (*bytecode.Module, error) {
	if strings.HasSuffix(path, moduleExt) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		mod, err := bytecode.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return mod, nil
	}

	var paths []string
	switch {
	case path != "":
		paths = []string{path}
	case m != nil:
		paths = m.SourcePaths()
	default:
		return nil, errNoInput
	}
	src, err := readSources(paths)
	if err != nil {
		return nil, err
	}
	parse, err := frontEnd(parser)
	if err != nil {
		return nil, err
	}
	mod, err := compiler.Compile(src, compiler.Options{Parser: parse})
	if err != nil {
		return nil, err
	}
	log.Infof("compiled %d functions", len(mod.Functions))
	return mod, nil
}

// readSources concatenates the source files named by paths. A directory
// contributes its .cv files in name order.
func readSources(paths []string) (string, error) {
	var sb strings.Builder
	for _, p := range paths {
		files, err := sourceFiles(p)
		if err != nil {
			return "", err
		}
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				return "", err
			}
			log.Debugf("reading %s", f)
			sb.Write(data)
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}

func sourceFiles(p string) ([]string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{p}, nil
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), sourceExt) {
			files = append(files, filepath.Join(p, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files in %s", sourceExt, p)
	}
	return files, nil
}
