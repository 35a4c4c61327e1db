package jshost

import (
	"fmt"

	"github.com/tkrajina/typescriptify-golang-structs/typescriptify"
)

// Generator interface for custom code generation
// Implementations can emit declarations, fixtures or any other files
// derived from the host configuration
type Generator interface {
	// Generate is called during host initialization (dev mode only)
	Generate(config *Config) error
}

// TypesGenerator writes TypeScript declarations for the reports a host
// publishes, so relay clients can type what they receive.
type TypesGenerator struct {
	Path string
}

func (g TypesGenerator) Generate(config *Config) error {
	converter := typescriptify.New().
		Add(ConsoleLine{}).
		Add(RunReport{})
	converter.CreateInterface = true
	converter.BackupDir = ""
	if err := converter.ConvertToFile(g.Path); err != nil {
		return fmt.Errorf("generate types %s: %w", g.Path, err)
	}
	return nil
}
