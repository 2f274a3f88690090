package main

import (
	"context"
	"fmt"

	"github.com/chazu/spur/config"
	"github.com/chazu/spur/primitives"
)

// runExports processes the `spur exports` subcommand. It encodes the
// export table the way the VM reads it and walks it back.
func runExports(cfg *config.Config, verbose bool) error {
	s, err := newSession(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer s.close()

	encoded, err := s.plugin.Exports().Encode()
	if err != nil {
		return err
	}
	defer encoded.Close()

	n := primitives.CountValid(encoded.Bytes())
	if verbose {
		fmt.Printf("export table at %#x, %d bytes\n", encoded.Address(), len(encoded.Bytes()))
	}
	for i := 0; i < n; i++ {
		pluginAddr, nameAddr, fn := encoded.Record(i)
		plugin, err := encoded.CString(pluginAddr)
		if err != nil {
			return err
		}
		name, err := encoded.CString(nameAddr)
		if err != nil {
			return err
		}
		if plugin == "" {
			plugin = "<vm>"
		}
		fmt.Printf("%-6s %-42s %#x\n", plugin, name, fn)
	}
	fmt.Printf("%d primitives\n", n)
	return nil
}
