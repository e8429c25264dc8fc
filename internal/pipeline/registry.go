// Package pipeline provides pipeline definitions for gantry.
// Pipelines define the sequence of steps a run executes.
package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gantrybuild/gantry/internal/domain"
	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// Registry provides thread-safe access to pipelines.
// Pipelines are stored by name and can be retrieved or listed.
// Aliases can map alternative names to existing pipelines.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]*domain.Pipeline
	aliases   map[string]string // maps alias name to target pipeline name
}

// NewRegistry creates a new empty pipeline registry.
func NewRegistry() *Registry {
	return &Registry{
		pipelines: make(map[string]*domain.Pipeline),
		aliases:   make(map[string]string),
	}
}

// Get retrieves a pipeline by name or alias.
// Returns a clone of the pipeline to prevent mutation of registry state.
// Returns ErrPipelineNotFound if the pipeline doesn't exist.
func (r *Registry) Get(name string) (*domain.Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Check if name is an alias and resolve to target
	resolvedName := name
	if target, isAlias := r.aliases[name]; isAlias {
		resolvedName = target
	}

	p, ok := r.pipelines[resolvedName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gantryerrors.ErrPipelineNotFound, name)
	}
	return p.Clone(), nil
}

// List returns all registered pipelines.
// The returned slice and pipelines are clones, safe to modify without affecting the registry.
func (r *Registry) List() []*domain.Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Pipeline, 0, len(r.pipelines))
	for _, p := range r.pipelines {
		result = append(result, p.Clone())
	}
	return result
}

// Register adds a pipeline to the registry.
// Returns error if pipeline is nil, has empty name, or already exists.
func (r *Registry) Register(p *domain.Pipeline) error {
	if p == nil {
		return gantryerrors.ErrPipelineNil
	}
	if strings.TrimSpace(p.Name) == "" {
		return gantryerrors.ErrPipelineNameEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pipelines[p.Name]; exists {
		return fmt.Errorf("%w: %s", gantryerrors.ErrPipelineExists, p.Name)
	}

	r.pipelines[p.Name] = p
	return nil
}

// RegisterOrReplace adds a pipeline to the registry, replacing any existing pipeline with the same name.
// This is used for project pipelines that should override built-in pipelines.
// Returns error if pipeline is nil or has empty name.
func (r *Registry) RegisterOrReplace(p *domain.Pipeline) error {
	if p == nil {
		return gantryerrors.ErrPipelineNil
	}
	if strings.TrimSpace(p.Name) == "" {
		return gantryerrors.ErrPipelineNameEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pipelines[p.Name] = p
	return nil
}

// RegisterAlias creates an alias that points to an existing pipeline.
// When Get is called with the alias name, it returns the target pipeline.
// Returns error if:
// - alias or target is empty
// - target pipeline doesn't exist
// - alias name conflicts with an existing pipeline name
func (r *Registry) RegisterAlias(alias, target string) error {
	alias = strings.TrimSpace(alias)
	target = strings.TrimSpace(target)

	if alias == "" {
		return fmt.Errorf("%w: alias name cannot be empty", gantryerrors.ErrPipelineNameEmpty)
	}
	if target == "" {
		return fmt.Errorf("%w: alias target cannot be empty", gantryerrors.ErrPipelineNameEmpty)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check that target pipeline exists
	if _, exists := r.pipelines[target]; !exists {
		return fmt.Errorf("%w: alias target %q", gantryerrors.ErrPipelineNotFound, target)
	}

	// Check that alias doesn't conflict with an existing pipeline name
	if _, exists := r.pipelines[alias]; exists {
		return fmt.Errorf("%w: alias %q conflicts with existing pipeline", gantryerrors.ErrAliasExists, alias)
	}

	r.aliases[alias] = target
	return nil
}

// Aliases returns all registered aliases as a map from alias to target pipeline name.
func (r *Registry) Aliases() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]string, len(r.aliases))
	for alias, target := range r.aliases {
		result[alias] = target
	}
	return result
}

// IsAlias returns true if the given name is a registered alias.
func (r *Registry) IsAlias(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, isAlias := r.aliases[name]
	return isAlias
}
