// Package scriptbuilder lowers TypeScript and module sources into plain
// scripts an embedded engine can evaluate.
package scriptbuilder

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	esbuildApi "github.com/evanw/esbuild/pkg/api"
)

var loaders = map[string]esbuildApi.Loader{
	".js":   esbuildApi.LoaderJS,
	".cjs":  esbuildApi.LoaderJS,
	".mjs":  esbuildApi.LoaderJS,
	".jsx":  esbuildApi.LoaderJSX,
	".ts":   esbuildApi.LoaderTS,
	".mts":  esbuildApi.LoaderTS,
	".cts":  esbuildApi.LoaderTS,
	".tsx":  esbuildApi.LoaderTSX,
	".json": esbuildApi.LoaderJSON,
	".txt":  esbuildApi.LoaderText,
}

var processPolyfill = `var process = {env: {NODE_ENV: "production"}};`

// Options tune a build.
type Options struct {
	// Target is the ECMAScript level to lower to, e.g. "es2020".
	Target string
	Minify bool
	// Define replaces global identifiers at build time.
	Define map[string]string
}

// Result is the script produced by a build.
type Result struct {
	JS string
	// Dependencies lists the absolute paths of every local file the bundle
	// read. Transform leaves it empty.
	Dependencies []string
}

// NeedsTransform reports whether a file must go through Transform before an
// engine can run it.
func NeedsTransform(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ts", ".mts", ".cts", ".tsx", ".jsx", ".mjs":
		return true
	}
	return false
}

// Transform converts one file without resolving imports. Top-level
// declarations stay global so the host can call them by name.
func Transform(source, name string, opts Options) (Result, error) {
	target, err := parseTarget(opts.Target)
	if err != nil {
		return Result{}, err
	}
	res := esbuildApi.Transform(source, esbuildApi.TransformOptions{
		Loader:           loaderFor(name),
		Sourcefile:       name,
		Target:           target,
		Format:           esbuildApi.FormatDefault,
		MinifyWhitespace: opts.Minify,
		MinifySyntax:     opts.Minify,
		Define:           opts.Define,
		LegalComments:    esbuildApi.LegalCommentsNone,
		Charset:          esbuildApi.CharsetUTF8,
		TsconfigRaw:      `{"compilerOptions":{"useDefineForClassFields":true}}`,
		JSX:              esbuildApi.JSXTransform,
		KeepNames:        true,
	})
	if len(res.Errors) > 0 {
		return Result{}, formatError(res.Errors[0])
	}
	return Result{JS: string(res.Code)}, nil
}

// Bundle resolves entry and its imports into one IIFE script. Bundled
// modules are scoped, so an entry that exposes host callbacks must assign
// them to globalThis.
func Bundle(entry string, opts Options) (Result, error) {
	target, err := parseTarget(opts.Target)
	if err != nil {
		return Result{}, err
	}
	abs, err := filepath.Abs(entry)
	if err != nil {
		return Result{}, err
	}
	result := esbuildApi.Build(esbuildApi.BuildOptions{
		EntryPoints:       []string{abs},
		Bundle:            true,
		Write:             false,
		Outdir:            "/",
		Metafile:          true,
		Format:            esbuildApi.FormatIIFE,
		Platform:          esbuildApi.PlatformNeutral,
		MainFields:        []string{"module", "main"},
		Target:            target,
		MinifyWhitespace:  opts.Minify,
		MinifyIdentifiers: opts.Minify,
		MinifySyntax:      opts.Minify,
		Define:            opts.Define,
		Loader:            loaders,
		LegalComments:     esbuildApi.LegalCommentsNone,
		Banner: map[string]string{
			"js": processPolyfill,
		},
	})
	if len(result.Errors) > 0 {
		return Result{}, formatError(result.Errors[0])
	}

	var br Result
	for _, file := range result.OutputFiles {
		if strings.HasSuffix(file.Path, ".js") {
			br.JS = string(file.Contents)
			break
		}
	}
	br.Dependencies = dependencyPaths(result.Metafile)
	return br, nil
}

func loaderFor(name string) esbuildApi.Loader {
	if l, ok := loaders[strings.ToLower(filepath.Ext(name))]; ok {
		return l
	}
	return esbuildApi.LoaderJS
}

func parseTarget(t string) (esbuildApi.Target, error) {
	switch strings.ToLower(t) {
	case "", "es2020":
		return esbuildApi.ES2020, nil
	case "es5":
		return esbuildApi.ES5, nil
	case "es2015":
		return esbuildApi.ES2015, nil
	case "es2017":
		return esbuildApi.ES2017, nil
	case "es2019":
		return esbuildApi.ES2019, nil
	case "es2022":
		return esbuildApi.ES2022, nil
	case "esnext":
		return esbuildApi.ESNext, nil
	}
	return 0, fmt.Errorf("scriptbuilder: unknown target %q", t)
}

func formatError(msg esbuildApi.Message) error {
	if msg.Location == nil {
		return fmt.Errorf("%s", msg.Text)
	}
	return fmt.Errorf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text)
}

// metafileSchema represents the structure of esbuild metafile
type metafileSchema struct {
	Inputs map[string]interface{} `json:"inputs"`
}

// dependencyPaths returns the local inputs recorded in an esbuild metafile.
// Metafile paths are relative to the working directory.
func dependencyPaths(metafile string) []string {
	var meta metafileSchema
	if err := json.Unmarshal([]byte(metafile), &meta); err != nil {
		return nil
	}

	var paths []string
	for key := range meta.Inputs {
		if strings.Contains(key, "node_modules/") || strings.Contains(key, ":") {
			continue
		}
		abs, err := filepath.Abs(key)
		if err != nil {
			continue
		}
		paths = append(paths, abs)
	}
	sort.Strings(paths)
	return paths
}
