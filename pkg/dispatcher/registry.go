package dispatcher

import (
	"fmt"
	"sort"
	"strings"
)

const registryLogPrefix = "dispatcher:registry"

// Entry binds a command name to its implementation.
type Entry struct {
	Name    string
	Command Command
}

// Registry is an immutable name to command map. It is safe for concurrent use.
type Registry struct {
	commands map[string]Command
	names    []string
}

// NewRegistry builds a Registry from entries. Empty names, nil commands and duplicate
// names are rejected.
func NewRegistry(entries ...Entry) (*Registry, error) {
	commands := make(map[string]Command, len(entries))
	names := make([]string, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("%s - entry %d has an empty name", registryLogPrefix, i)
		}
		if e.Command == nil {
			return nil, fmt.Errorf("%s - command %q is nil", registryLogPrefix, e.Name)
		}
		if _, dup := commands[e.Name]; dup {
			return nil, fmt.Errorf("%s - duplicate command name %q", registryLogPrefix, e.Name)
		}
		commands[e.Name] = e.Command
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return &Registry{commands: commands, names: names}, nil
}

// Lookup returns the command registered under name. Matching is exact and case-sensitive.
func (r *Registry) Lookup(name string) (Command, bool) {
	if r == nil {
		return nil, false
	}
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}
