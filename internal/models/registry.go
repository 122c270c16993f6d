package models

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
)

type Registry struct {
	mu       sync.RWMutex
	byType   map[string]map[string]Capability
	defaults map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byType:   make(map[string]map[string]Capability),
		defaults: make(map[string]string),
	}
}

// Register adds c. The first capability registered for a type becomes its
// default unless SetDefault says otherwise.
func (r *Registry) Register(c Capability) error {
	if c == nil {
		return fmt.Errorf("nil capability")
	}
	t := prediction.NormalizeModelType(c.ModelType())
	name := strings.TrimSpace(c.Name())
	if t == "" || name == "" {
		return fmt.Errorf("capability requires model type and name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	names := r.byType[t]
	if names == nil {
		names = make(map[string]Capability)
		r.byType[t] = names
	}
	if _, exists := names[name]; exists {
		return fmt.Errorf("capability already registered for model_type=%s name=%s", t, name)
	}
	names[name] = c
	if _, ok := r.defaults[t]; !ok {
		r.defaults[t] = name
	}
	return nil
}

func (r *Registry) SetDefault(modelType, name string) error {
	t := prediction.NormalizeModelType(modelType)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byType[t][name]; !ok {
		return fmt.Errorf("no capability model_type=%s name=%s", t, name)
	}
	r.defaults[t] = name
	return nil
}

// Resolve finds the capability for (type, name); an empty name selects the
// type's default.
func (r *Registry) Resolve(modelType, name string) (Capability, bool) {
	t := prediction.NormalizeModelType(modelType)
	name = strings.TrimSpace(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaults[t]
	}
	c, ok := r.byType[t][name]
	return c, ok
}

func (r *Registry) Has(modelType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[prediction.NormalizeModelType(modelType)]) > 0
}

// Types lists registered model types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

type ModelInfo struct {
	ModelType string   `json:"model_type"`
	Default   string   `json:"default"`
	Names     []string `json:"names"`
}

// Describe summarizes the registry for the models listing endpoint.
func (r *Registry) Describe() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModelInfo, 0, len(r.byType))
	for t, names := range r.byType {
		info := ModelInfo{ModelType: t, Default: r.defaults[t]}
		for n := range names {
			info.Names = append(info.Names, n)
		}
		sort.Strings(info.Names)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelType < out[j].ModelType })
	return out
}
