package hcl

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/texturesets/internal/config"
	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/vk/texturesets/internal/definition"
	"github.com/vk/texturesets/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file under paths. Texture set names must be unique
// across all files.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.CollectFiles(".hcl", paths...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	model := config.NewModel()
	parser := hclparse.NewParser()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		sets, err := l.decode(ctx, file, hclFile.Body)
		if err != nil {
			return nil, err
		}
		for _, set := range sets {
			if err := model.Add(set, file); err != nil {
				return nil, err
			}
		}
	}

	logger.Debug("HCL loading complete.", "texture_sets", len(model.TextureSets))
	return model, nil
}

// Parse decodes the texture sets of a single HCL document. Relative sources
// are resolved against the directory of filename.
func (l *Loader) Parse(ctx context.Context, filename string, src []byte) ([]*definition.TextureSet, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return l.decode(ctx, filename, hclFile.Body)
}

// decode translates every texture_set block of one file body.
func (l *Loader) decode(ctx context.Context, file string, body hcl.Body) ([]*definition.TextureSet, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
	}

	sets := make([]*definition.TextureSet, 0, len(root.TextureSets))
	for _, block := range root.TextureSets {
		set, err := translateTextureSet(ctx, filepath.Dir(file), block)
		if err != nil {
			return nil, fmt.Errorf("%s: texture_set %q: %w", file, block.Name, err)
		}
		sets = append(sets, set)
	}
	return sets, nil
}
