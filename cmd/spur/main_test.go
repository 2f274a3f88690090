package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/spur/config"
	"github.com/chazu/spur/objects"
	"github.com/chazu/spur/objmem"
)

func testConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	content := "[bridge]\nmode = \"" + mode + "\"\n\n[memory]\nsize = \"4MiB\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(content), 0644))
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	return cfg
}

func TestDemoSession(t *testing.T) {
	for _, mode := range []string{"worker", "inline"} {
		t.Run(mode, func(t *testing.T) {
			s, err := newSession(context.Background(), testConfig(t, mode))
			require.NoError(t, err)
			defer s.close()

			require.NoError(t, demoSession(context.Background(), s, true))
			require.Equal(t, 0, s.plugin.PendingInvocations())
			require.Equal(t, 4, s.plugin.Callouts().Len())
		})
	}
}

func TestExports(t *testing.T) {
	require.NoError(t, runExports(testConfig(t, "inline"), true))
}

func TestDumpAndInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.snap")
	require.NoError(t, runDump(testConfig(t, "inline"), []string{path}, true))
	require.Error(t, runDump(testConfig(t, "inline"), nil, false))

	f, err := os.Open(path)
	require.NoError(t, err)
	space, err := objmem.ReadSnapshot(f)
	f.Close()
	require.NoError(t, err)
	defer space.Close()

	symbols := 0
	space.AllObjects(func(o objmem.Object) bool {
		if _, err := objects.AsByteSymbol(space, o.Word()); err == nil {
			symbols++
		}
		return true
	})
	require.Greater(t, symbols, 10)

	require.NoError(t, runInspect([]string{path}))
	require.Error(t, runInspect([]string{filepath.Join(t.TempDir(), "missing")}))
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	cfg, err := loadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, config.DefaultMode, cfg.Bridge.Mode)
}
