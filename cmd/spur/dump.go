package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/chazu/spur/config"
	"github.com/chazu/spur/ffi"
	"github.com/chazu/spur/marshal"
	"github.com/chazu/spur/objects"
	"github.com/chazu/spur/objmem"
)

// runDump processes the `spur dump <file>` subcommand. The snapshot holds
// the kernel, a symbol table of the exported primitive names and function
// descriptions for the demo library.
func runDump(cfg *config.Config, args []string, verbose bool) error {
	if len(args) != 1 {
		return errors.New("dump requires an output file")
	}

	s, err := newSession(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer s.close()
	space := s.space

	names := s.plugin.PrimitiveNames()
	symbols, err := objects.NewWeakSymbolSet(space, 2*len(names))
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := symbols.Intern(name); err != nil {
			return fmt.Errorf("intern %s: %w", name, err)
		}
	}

	sig := ffi.Signature{Args: []marshal.Type{marshal.I64, marshal.I64}, Return: marshal.I64}
	if _, err := ffi.NewBareFunction(space, demoModule, "add", sig); err != nil {
		return err
	}
	if _, err := ffi.NewLoopFunction(space, demoModule, "add", sig); err != nil {
		return err
	}

	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := space.WriteSnapshot(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if verbose {
		fmt.Printf("wrote %s: %d of %d bytes used, %d symbols\n", args[0], space.Used(), space.Size(), symbols.Len())
	}
	return nil
}

// runInspect processes the `spur inspect <file>` subcommand.
func runInspect(args []string) error {
	if len(args) != 1 {
		return errors.New("inspect requires a snapshot file")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	space, err := objmem.ReadSnapshot(f)
	if err != nil {
		return err
	}
	defer space.Close()

	counts := make(map[string]int)
	total := 0
	space.AllObjects(func(o objmem.Object) bool {
		total++
		name := "<forwarded>"
		if !o.IsForwarded() {
			if class, err := o.Class(); err == nil {
				name = space.ClassName(class)
			} else {
				name = fmt.Sprintf("<class %d>", o.ClassIndex())
			}
		}
		counts[name]++
		return true
	})

	classes := make([]string, 0, len(counts))
	for name := range counts {
		classes = append(classes, name)
	}
	sort.Slice(classes, func(i, j int) bool {
		if counts[classes[i]] != counts[classes[j]] {
			return counts[classes[i]] > counts[classes[j]]
		}
		return classes[i] < classes[j]
	})

	fmt.Printf("%s: %d objects, %d of %d bytes used\n", args[0], total, space.Used(), space.Size())
	for _, name := range classes {
		fmt.Printf("  %6d  %s\n", counts[name], name)
	}
	return nil
}
