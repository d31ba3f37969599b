package app

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/vk/texturesets/internal/hcl"
	"github.com/vk/texturesets/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest creates an app with the HCL loader and debug logging. Set
// TEXSETS_TEST_LOGS=true to dump the captured output after the test.
func SetupAppTest(t *testing.T, cfg *Config, plugins ...registry.Plugin) (*App, *SafeBuffer) {
	t.Helper()

	out := &SafeBuffer{}
	cfg.LogLevel = "debug"
	testApp := NewApp(out, cfg, hcl.NewLoader(), plugins...)

	t.Cleanup(func() {
		if os.Getenv("TEXSETS_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), out.String())
		}
	})

	return testApp, out
}
