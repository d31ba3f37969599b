package app

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/texturesets/modules/invert"
	"gopkg.in/yaml.v3"
)

const inkHCL = `
texture_set "ink" {
  input "albedo" {
    source = "albedo.png"
    format = "rgb8"
  }

  module "inv" {
    type   = "invert"
    inputs = ["albedo"]
  }

  packed_texture "T0" {
    r = "inv.Out.r"
    g = "inv.Out.g"
    b = "inv.Out.b"
  }
}

texture_set "plain" {
  input "h" {
    format  = "r8"
    default = [0.5]
  }

  module "height" {
    type   = "height"
    inputs = ["h"]
  }

  packed_texture "T0" {
    r = "height.Height.r"
  }
}
`

// setupProject writes the definitions and the albedo source into a fresh
// directory and returns it.
func setupProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sets.hcl"), []byte(inkHCL), 0o600))
	writePNG(t, filepath.Join(dir, "albedo.png"), 2, 2, 200)
	return dir
}

func TestRun_CompilesAndWritesOutputs(t *testing.T) {
	t.Parallel()
	dir := setupProject(t)
	outDir := filepath.Join(dir, "out")

	a, logs := SetupAppTest(t, &Config{Paths: []string{dir}, OutputDir: outDir, LogFormat: "text"})
	require.NoError(t, a.Run(testCtx()))
	assert.Contains(t, logs.String(), "ink")
	assert.Contains(t, logs.String(), "OK")

	f, err := os.Open(filepath.Join(outDir, "ink_T0.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
	c := color.NRGBAModel.Convert(img.At(0, 0)).(color.NRGBA)
	assert.Equal(t, []uint8{55, 155, 205}, []uint8{c.R, c.G, c.B})

	raw, err := os.ReadFile(filepath.Join(outDir, "ink.texset.yaml"))
	require.NoError(t, err)
	var m manifest
	require.NoError(t, yaml.Unmarshal(raw, &m))
	assert.Equal(t, "ink", m.TextureSet)
	require.Len(t, m.Textures, 1)
	assert.Equal(t, "ink_T0.png", m.Textures[0].File)
	assert.Equal(t, 2, m.Textures[0].Mips)
	require.Len(t, m.Samplers, 1)
	assert.Equal(t, "Out", m.Samplers[0].Name)
	assert.Equal(t, "rgb", m.Samplers[0].Swizzle)

	plain, err := os.ReadFile(filepath.Join(outDir, "plain.texset.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(plain), "HeightParams")
}

func TestRun_DiskCacheAcrossRuns(t *testing.T) {
	t.Parallel()
	dir := setupProject(t)
	cacheDir := filepath.Join(dir, "cache")

	check, out := SetupAppTest(t, &Config{Paths: []string{dir}, CacheDir: cacheDir, DryRun: true, LogFormat: "text"})
	require.NoError(t, check.Run(testCtx()))
	assert.Contains(t, out.String(), "STALE")

	first, _ := SetupAppTest(t, &Config{Paths: []string{dir}, CacheDir: cacheDir, LogFormat: "text"})
	require.NoError(t, first.Run(testCtx()))

	second, out := SetupAppTest(t, &Config{Paths: []string{dir}, CacheDir: cacheDir, Sets: []string{"ink"}, LogFormat: "text"})
	require.NoError(t, second.Run(testCtx()))
	assert.Contains(t, out.String(), "executed=0")

	recheck, out := SetupAppTest(t, &Config{Paths: []string{dir}, CacheDir: cacheDir, DryRun: true, LogFormat: "text"})
	require.NoError(t, recheck.Run(testCtx()))
	assert.Contains(t, out.String(), "UP-TO-DATE")
	assert.NotContains(t, out.String(), "STALE")
}

const fallbackHCL = `
texture_set "moss" {
  input "mask" {
    source  = "gone.png"
    format  = "r8"
    default = [0.25]
  }

  module "inv" {
    type   = "invert"
    inputs = ["mask"]
  }

  packed_texture "T0" {
    r = "inv.Out.r"
  }
}

texture_set "dune" {
  input "h" {
    source = "gone.png"
    format = "r8"
  }

  module "height" {
    type   = "height"
    inputs = ["h"]
  }

  packed_texture "T0" {
    r = "height.Height.r"
  }
}
`

func TestRun_MissingSourceFallsBack(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sets.hcl"), []byte(fallbackHCL), 0o600))
	outDir := filepath.Join(dir, "out")

	a, out := SetupAppTest(t, &Config{Paths: []string{dir}, OutputDir: outDir, LogFormat: "text"})
	require.NoError(t, a.Run(testCtx()))
	assert.NotContains(t, out.String(), "FAILED")
	assert.FileExists(t, filepath.Join(outDir, "moss_T0.png"))

	raw, err := os.ReadFile(filepath.Join(outDir, "dune.texset.yaml"))
	require.NoError(t, err)
	var m manifest
	require.NoError(t, yaml.Unmarshal(raw, &m))
	add, ok := m.Parameters["RangeCompress_0_Add"]
	require.True(t, ok)
	assert.Equal(t, float32(1), add[0], "height falls back to its port default")
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unknown set", func(t *testing.T) {
		t.Parallel()
		dir := setupProject(t)
		a, _ := SetupAppTest(t, &Config{Paths: []string{dir}, Sets: []string{"granite"}})
		err := a.Run(testCtx())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "granite")
	})

	t.Run("missing source fails only its set", func(t *testing.T) {
		t.Parallel()
		dir := setupProject(t)
		require.NoError(t, os.Remove(filepath.Join(dir, "albedo.png")))
		outDir := filepath.Join(dir, "out")

		a, out := SetupAppTest(t, &Config{Paths: []string{dir}, OutputDir: outDir})
		err := a.Run(testCtx())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `texture set "ink"`)
		assert.Contains(t, out.String(), "FAILED")
		assert.FileExists(t, filepath.Join(outDir, "plain.texset.yaml"))
	})

	t.Run("missing module", func(t *testing.T) {
		t.Parallel()
		dir := setupProject(t)
		a, _ := SetupAppTest(t, &Config{Paths: []string{dir}, Sets: []string{"ink"}}, &invert.Module{})
		err := a.Run(testCtx())
		require.Error(t, err)
	})
}

func TestNewApp_DefaultModules(t *testing.T) {
	t.Parallel()
	a, _ := SetupAppTest(t, &Config{Paths: []string{"."}})
	ids := a.Registry().IDs()
	for _, id := range []string{"texturesets.pack", "pbr_surface", "flip_green", "unpack_normal", "normal_to_roughness", "invert", "height"} {
		assert.Contains(t, ids, id)
	}
}
