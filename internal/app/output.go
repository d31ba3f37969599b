package app

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/vk/texturesets/internal/compiler"
	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/vk/texturesets/internal/material"
	"gopkg.in/yaml.v3"
)

// manifest is the material-facing description written next to the textures.
type manifest struct {
	TextureSet string                `yaml:"texture_set"`
	Key        string                `yaml:"key"`
	Textures   []manifestTexture     `yaml:"textures"`
	Samplers   []manifestSampler     `yaml:"samplers"`
	Parameters map[string][4]float32 `yaml:"parameters,omitempty"`
}

type manifestTexture struct {
	Name           string `yaml:"name"`
	File           string `yaml:"file"`
	Key            string `yaml:"key"`
	Format         string `yaml:"format"`
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
	Mips           int    `yaml:"mips"`
	SRGB           bool   `yaml:"srgb"`
	LODBias        int    `yaml:"lod_bias,omitempty"`
	Compression    string `yaml:"compression,omitempty"`
	VirtualTexture bool   `yaml:"virtual_texture,omitempty"`
}

type manifestSampler struct {
	Name       string `yaml:"name"`
	Texture    string `yaml:"texture"`
	Swizzle    string `yaml:"swizzle"`
	Expression string `yaml:"expression"`
}

// writeSet stores each packed texture of set under dir and a manifest named
// <set>.texset.yaml. 8-bit textures become PNG files holding the base level;
// HDR textures are written as raw little-endian float32 payloads with every
// mip level.
func writeSet(ctx context.Context, dir string, set *compiler.CompiledTextureSet) error {
	logger := ctxlog.FromContext(ctx)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	bindings, err := material.Bind(set)
	if err != nil {
		return err
	}
	m := manifest{TextureSet: set.Name, Key: set.Key.String()}

	for i := range set.Textures {
		t := &set.Textures[i]
		file, err := writeTexture(dir, set.Name, t)
		if err != nil {
			return fmt.Errorf("texture %q: %w", t.Name, err)
		}
		m.Textures = append(m.Textures, manifestTexture{
			Name:           t.Name,
			File:           file,
			Key:            t.Key.String(),
			Format:         string(t.Entry.Format),
			Width:          t.Entry.Width,
			Height:         t.Entry.Height,
			Mips:           t.Entry.MipCount,
			SRGB:           t.Entry.SRGB,
			LODBias:        t.LODBias,
			Compression:    t.Compression,
			VirtualTexture: t.VirtualTexture,
		})
	}
	for _, s := range bindings.Samplers {
		m.Samplers = append(m.Samplers, manifestSampler{
			Name:       s.Name,
			Texture:    s.Texture.Name,
			Swizzle:    s.Swizzle,
			Expression: s.Expression(),
		})
	}
	if len(bindings.Parameters) > 0 {
		m.Parameters = make(map[string][4]float32, len(bindings.Parameters))
		for _, p := range bindings.Parameters {
			m.Parameters[p.Name] = p.Value
		}
	}

	out, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	path := filepath.Join(dir, set.Name+".texset.yaml")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	logger.Debug("Texture set written.", "texture_set", set.Name, "manifest", path)
	return nil
}

func writeTexture(dir, setName string, t *compiler.PackedResult) (string, error) {
	if t.Entry.Format.IsFloat() {
		file := fmt.Sprintf("%s_%s.f32", setName, t.Name)
		return file, os.WriteFile(filepath.Join(dir, file), t.Payload, 0o644)
	}

	pix, w, h, err := t.Level(0)
	if err != nil {
		return "", err
	}
	img := toImage(pix, w, h, t.Entry.Channels)
	file := fmt.Sprintf("%s_%s.png", setName, t.Name)
	f, err := os.Create(filepath.Join(dir, file))
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", err
	}
	return file, f.Close()
}

// toImage wraps 8-bit pixels in an image.Image. Missing channels read as
// zero, missing alpha as opaque.
func toImage(pix []byte, w, h, channels int) image.Image {
	if channels == 1 {
		return &image.Gray{Pix: pix, Stride: w, Rect: image.Rect(0, 0, w, h)}
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		c := color.NRGBA{A: 255}
		src := pix[i*channels : (i+1)*channels]
		c.R = src[0]
		c.G = src[1]
		if channels > 2 {
			c.B = src[2]
		}
		if channels > 3 {
			c.A = src[3]
		}
		img.SetNRGBA(i%w, i/w, c)
	}
	return img
}
