// Package program defines runnable tendril programs. A program couples a
// topology with a loop configuration and training data. Built-in programs
// reproduce the sample networks; YAML files describe new ones.
package program

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nvandessel/tendril/internal/random"
	"github.com/nvandessel/tendril/internal/simulation"
)

// ErrUnknownProgram is returned by Lookup for names that are neither a
// built-in nor a readable program file.
var ErrUnknownProgram = errors.New("unknown program")

// Program is a complete, buildable simulation setup.
type Program struct {
	Name        string
	Description string
	Config      simulation.Config
	Data        []simulation.Sample

	// Seed is used when the caller does not pick one. Zero means the caller
	// must choose.
	Seed int64

	// Source is the file the program was loaded from, empty for built-ins.
	Source string

	// Topology returns the construction function. It receives the same
	// random source that seeds default weights, so one seed reproduces the
	// whole world.
	Topology func(rnd *random.Source) simulation.TopologyFunc
}

// Build constructs a fresh world for the program.
func (p *Program) Build(seed int64, opts ...simulation.Option) (*simulation.World, error) {
	rnd := random.New(seed)
	w, err := simulation.Build(p.Config, p.Data, rnd, p.Topology(rnd), opts...)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", p.Name, err)
	}
	return w, nil
}

// Lookup resolves name to a built-in program, or loads it as a YAML file
// when it has a .yaml or .yml extension.
func Lookup(name string) (*Program, error) {
	if IsFile(name) {
		return LoadFile(name)
	}
	if p, ok := builtins[name]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: %q (built-ins: %s)", ErrUnknownProgram, name, strings.Join(Builtins(), ", "))
}

// IsFile reports whether name refers to a program file rather than a
// built-in.
func IsFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// Builtins returns the names of the built-in programs, sorted.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
