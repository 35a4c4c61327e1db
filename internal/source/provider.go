// Package source resolves logical script paths to bytes.
//
// A logical path is "asset:<path>", resolved against an fs.FS such as an
// embedded bundle, or "file:<path>", resolved against a directory. A path with
// no scheme is a file path.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	SchemeAsset = "asset:"
	SchemeFile  = "file:"

	// BytecodeExt marks a precompiled unit.
	BytecodeExt = ".kbc1"
)

var (
	ErrNotFound        = errors.New("source: not found")
	ErrInvalidPath     = errors.New("source: invalid path")
	ErrInvalidEncoding = errors.New("source: script is not valid UTF-8")
)

// Kind tells source text from precompiled bytecode.
type Kind int

const (
	KindSource Kind = iota
	KindBytecode
)

func (k Kind) String() string {
	if k == KindBytecode {
		return "bytecode"
	}
	return "source"
}

// Unit is a loaded script.
type Unit struct {
	Kind    Kind
	Name    string
	Payload []byte
}

// Text returns the payload as script text.
func (u Unit) Text() (string, error) {
	if !utf8.Valid(u.Payload) {
		return "", fmt.Errorf("%w: %s", ErrInvalidEncoding, u.Name)
	}
	return string(u.Payload), nil
}

// Provider loads scripts from an asset filesystem and a file root.
type Provider struct {
	assets   fs.FS
	fileRoot string
}

// New creates a provider. assets may be nil when no asset scheme is used;
// an empty fileRoot resolves file paths as given.
func New(assets fs.FS, fileRoot string) *Provider {
	return &Provider{assets: assets, fileRoot: fileRoot}
}

// Load returns the bytes at a logical path.
func (p *Provider) Load(logical string) ([]byte, error) {
	switch {
	case strings.HasPrefix(logical, SchemeAsset):
		return p.loadAsset(strings.TrimPrefix(logical, SchemeAsset))
	case strings.HasPrefix(logical, SchemeFile):
		return p.loadFile(strings.TrimPrefix(logical, SchemeFile))
	default:
		return p.loadFile(logical)
	}
}

// LoadUnit loads a logical path and classifies it by extension. The unit is
// named by its canonical path, so every spelling of one file gets one name.
func (p *Provider) LoadUnit(logical string) (Unit, error) {
	b, err := p.Load(logical)
	if err != nil {
		return Unit{}, err
	}
	u := Unit{Kind: KindSource, Name: p.Canonical(logical), Payload: b}
	if IsBytecode(logical) {
		u.Kind = KindBytecode
	}
	return u, nil
}

// Canonical returns the name a logical path is known by: asset paths keep
// their scheme without leading slashes; file and bare paths drop the file
// scheme and are cleaned, relative to the file root when one is set.
func (p *Provider) Canonical(logical string) string {
	if strings.HasPrefix(logical, SchemeAsset) {
		return SchemeAsset + strings.TrimLeft(strings.TrimPrefix(logical, SchemeAsset), "/")
	}
	name := strings.TrimPrefix(logical, SchemeFile)
	if p.fileRoot == "" {
		return filepath.ToSlash(filepath.Clean(name))
	}
	return filepath.ToSlash(p.relative(name))
}

// FilePath resolves a file or bare logical path to its location on disk.
// Asset paths have none and report false.
func (p *Provider) FilePath(logical string) (string, bool) {
	if strings.HasPrefix(logical, SchemeAsset) {
		return "", false
	}
	full, err := p.resolveFile(strings.TrimPrefix(logical, SchemeFile))
	if err != nil {
		return "", false
	}
	return full, true
}

// IsBytecode reports whether path names a precompiled unit.
func IsBytecode(p string) bool {
	return strings.EqualFold(path.Ext(p), BytecodeExt)
}

// BytecodePath replaces the extension of a source path with BytecodeExt.
func BytecodePath(src string) string {
	return strings.TrimSuffix(src, filepath.Ext(src)) + BytecodeExt
}

func (p *Provider) loadAsset(name string) ([]byte, error) {
	if p.assets == nil {
		return nil, fmt.Errorf("%w: no asset filesystem for %q", ErrNotFound, name)
	}
	name = strings.TrimLeft(name, "/")
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	b, err := fs.ReadFile(p.assets, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: asset %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read asset %q: %w", name, err)
	}
	return b, nil
}

func (p *Provider) loadFile(name string) ([]byte, error) {
	full, err := p.resolveFile(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: file %q", ErrNotFound, full)
		}
		return nil, fmt.Errorf("read file %q: %w", full, err)
	}
	return b, nil
}

func (p *Provider) resolveFile(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if p.fileRoot == "" {
		return filepath.Clean(name), nil
	}
	rel := p.relative(name)
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes %s", ErrInvalidPath, name, p.fileRoot)
	}
	return filepath.Join(p.fileRoot, rel), nil
}

func (p *Provider) relative(name string) string {
	return filepath.Clean(strings.TrimLeft(filepath.FromSlash(name), string(filepath.Separator)))
}
