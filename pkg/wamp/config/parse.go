package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
)

var configSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{
			Type:       "client",
			LabelNames: []string{"name"},
		},
	},
}

// Loaded holds the parsed form of every source: HCL bodies still to be
// evaluated, and clients already decoded from TOML files.
type Loaded struct {
	Bodies      []hcl.Body
	TOMLClients []*ClientConfig
}

func GetBlocks(bodies []hcl.Body) (hcl.Blocks, hcl.Diagnostics) {
	diags := hcl.Diagnostics{}

	var blocks hcl.Blocks

	for _, body := range bodies {
		content, contentDiags := body.Content(configSchema)
		diags = diags.Extend(contentDiags)

		blocks = append(blocks, content.Blocks...)
	}

	return blocks, diags
}

func ParseConfigFiles(sources ...any) (*Loaded, hcl.Diagnostics) {
	parser := hclparse.NewParser()
	var diags hcl.Diagnostics
	loaded := &Loaded{}

	for _, source := range sources {
		switch v := source.(type) {
		case string:
			info, err := os.Stat(v)
			if err != nil {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Failed to stat file",
					Detail:   fmt.Sprintf("Error statting %s: %s", v, err),
				})
				continue
			}

			if info.IsDir() {
				diags = diags.Extend(parseDirectory(parser, v, loaded))
			} else {
				diags = diags.Extend(parseFile(parser, v, loaded))
			}
		case []byte:
			filename := fmt.Sprintf("<bytes@%p>", v)
			file, parseDiags := parser.ParseHCL(v, filename)
			diags = diags.Extend(parseDiags)
			if file != nil {
				loaded.Bodies = append(loaded.Bodies, file.Body)
			}
		default:
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid source type",
				Detail:   fmt.Sprintf("Invalid source type: %T", v),
			})
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}

	return loaded, diags
}

func parseFile(parser *hclparse.Parser, path string, loaded *Loaded) hcl.Diagnostics {
	if strings.HasSuffix(path, ".toml") {
		clients, err := LoadTOMLFile(path)
		if err != nil {
			return hcl.Diagnostics{
				&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Failed to load TOML config",
					Detail:   err.Error(),
				},
			}
		}
		loaded.TOMLClients = append(loaded.TOMLClients, clients...)
		return nil
	}

	file, diags := parser.ParseHCLFile(path)
	if file != nil {
		loaded.Bodies = append(loaded.Bodies, file.Body)
	}
	return diags
}

func parseDirectory(parser *hclparse.Parser, dir string, loaded *Loaded) hcl.Diagnostics {
	var diags hcl.Diagnostics

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Failed to access file or directory",
				Detail:   fmt.Sprintf("Error accessing %s: %s", path, err),
			})
			return nil
		}
		if !info.IsDir() && (strings.HasSuffix(path, ".hcl") || strings.HasSuffix(path, ".toml")) {
			diags = diags.Extend(parseFile(parser, path, loaded))
		}

		return nil
	})

	if err != nil {
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Failed to walk directory",
			Detail:   fmt.Sprintf("Error walking directory %s: %s", dir, err),
		})
	}

	return diags
}
