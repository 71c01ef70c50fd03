// Package naming derives physical resource names and logical resource
// identifiers for every stack in the deployment.
package naming

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// TrunkStages are the stages with a CI/CD pipeline. Resources deployed to a
// trunk stage carry no stage suffix.
var TrunkStages = []string{"dev", "test", "staging", "prod"}

// IsTrunk reports whether stage is one of TrunkStages.
func IsTrunk(stage string) bool { return slices.Contains(TrunkStages, stage) }

// Namer builds physical names of the form <prefix>-<purpose>[-<stage>].
type Namer struct {
	Prefix string
	Stage  string
}

// Name returns the physical name for purpose.
func (n Namer) Name(purpose string) string {
	if IsTrunk(n.Stage) {
		return fmt.Sprintf("%s-%s", n.Prefix, purpose)
	}
	return fmt.Sprintf("%s-%s-%s", n.Prefix, purpose, n.Stage)
}

// Stack returns the name of a stack. Stacks follow the same rule as resources.
func (n Namer) Stack(purpose string) string { return n.Name(purpose) }

// StackNames lists the three stack names keyed by their role.
func (n Namer) StackNames() map[string]string {
	return map[string]string{
		"core":       n.Stack(CoreStack),
		"ingestion":  n.Stack(IngestionStack),
		"processing": n.Stack(ProcessingStack),
	}
}

// Stack purposes.
const (
	CoreStack       = "stack"
	IngestionStack  = "data-ingestion-content-stack"
	ProcessingStack = "data-processing-content-stack"
)

// Scope is a node of the construct tree. It turns a local name into a
// deterministic, fully qualified logical identifier.
type Scope struct {
	path []string
}

// Root starts a scope tree at id.
func Root(id string) (Scope, error) {
	seg, err := segment(id)
	if err != nil {
		return Scope{}, fmt.Errorf("naming: root scope: %w", err)
	}
	return Scope{path: []string{seg}}, nil
}

// Child returns the scope nested under s with the given id.
func (s Scope) Child(id string) (Scope, error) {
	seg, err := segment(id)
	if err != nil {
		return Scope{}, fmt.Errorf("naming: child of %s: %w", s.Path(), err)
	}
	path := make([]string, 0, len(s.path)+1)
	path = append(path, s.path...)
	return Scope{path: append(path, seg)}, nil
}

// ID returns the logical identifier of local within s. A blank local names
// the scope itself.
func (s Scope) ID(local string) string {
	path := slices.Clone(s.path)
	if local = strings.TrimSpace(local); local != "" {
		path = append(path, local)
	}
	return strings.Join(path, "-")
}

// Path returns the scope path joined with "/", for display.
func (s Scope) Path() string { return strings.Join(s.path, "/") }

func segment(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("empty scope segment")
	}
	return id, nil
}
