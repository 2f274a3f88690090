package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/spur/eventloop"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[bridge]
mode = "inline"
queue = 16
lock-os-thread = false

[memory]
size = "8MiB"

[libraries]
search = ["lib", "/usr/local/lib"]

[libraries.alias]
libc = "libc.so.6"

[log]
verbosity = 2
path = "spur.log"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	opts, err := c.BridgeOptions()
	if err != nil {
		t.Fatalf("BridgeOptions failed: %v", err)
	}
	if opts.Mode != eventloop.Inline {
		t.Errorf("bridge mode = %v, want inline", opts.Mode)
	}
	if opts.Capacity != 16 {
		t.Errorf("bridge queue = %d, want 16", opts.Capacity)
	}
	if opts.LockOSThread {
		t.Error("lock-os-thread = true, want false")
	}

	words, err := c.MemoryWords()
	if err != nil {
		t.Fatalf("MemoryWords failed: %v", err)
	}
	if words != 8<<20/8 {
		t.Errorf("memory words = %d, want %d", words, 8<<20/8)
	}

	paths := c.SearchPaths()
	if len(paths) != 2 || paths[0] != filepath.Join(c.Dir, "lib") || paths[1] != "/usr/local/lib" {
		t.Errorf("search paths = %v", paths)
	}
	if c.Libraries.Alias["libc"] != "libc.so.6" {
		t.Errorf("libc alias = %q, want libc.so.6", c.Libraries.Alias["libc"])
	}

	if c.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", c.Log.Verbosity)
	}
	if p := c.LogPath(); p == nil || *p != filepath.Join(c.Dir, "spur.log") {
		t.Errorf("log path = %v", p)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[log]\nverbosity = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Bridge.Mode != DefaultMode {
		t.Errorf("bridge mode = %q, want %q", c.Bridge.Mode, DefaultMode)
	}
	if c.Bridge.Queue != eventloop.DefaultCapacity {
		t.Errorf("bridge queue = %d, want %d", c.Bridge.Queue, eventloop.DefaultCapacity)
	}
	opts, _ := c.BridgeOptions()
	if !opts.LockOSThread {
		t.Error("lock-os-thread default = false, want true")
	}
	if c.Memory.Size != DefaultMemorySize {
		t.Errorf("memory size = %q, want %q", c.Memory.Size, DefaultMemorySize)
	}
	if c.LogPath() != nil {
		t.Errorf("log path = %v, want nil", *c.LogPath())
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"mode":   "[bridge]\nmode = \"main\"\n",
		"size":   "[memory]\nsize = \"lots\"\n",
		"syntax": "[bridge\n",
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(dir); err == nil {
				t.Error("Load succeeded, want error")
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[memory]\nsize = \"1MiB\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if c.Memory.Size != "1MiB" {
		t.Errorf("memory size = %q, want 1MiB", c.Memory.Size)
	}

	c, err = FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c != nil {
		t.Errorf("FindAndLoad found %v in an empty tree", c.Dir)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"4096", 4096},
		{"64MiB", 64 << 20},
		{"512K", 512 << 10},
		{"1 GiB", 1 << 30},
		{"10B", 10},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if err != nil {
			t.Errorf("ParseSize(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"", "MiB", "-1K", "1.5M"} {
		if _, err := ParseSize(bad); err == nil {
			t.Errorf("ParseSize(%q) succeeded, want error", bad)
		}
	}
}
