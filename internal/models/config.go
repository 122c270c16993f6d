package models

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
)

const (
	KindHeuristic = "heuristic"
	KindRemote    = "remote"
)

type Entry struct {
	Type    string        `yaml:"type"`
	Name    string        `yaml:"name"`
	Kind    string        `yaml:"kind"`
	URL     string        `yaml:"url,omitempty"`
	APIKey  string        `yaml:"api_key,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Default bool          `yaml:"default,omitempty"`
}

type Config struct {
	// IncludeHeuristics registers the built-in heuristics before the entries.
	IncludeHeuristics *bool   `yaml:"include_heuristics,omitempty"`
	Models            []Entry `yaml:"models"`
}

func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model config: %w", err)
	}
	return ParseConfig(raw)
}

func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse model config: %w", err)
	}
	for i, e := range cfg.Models {
		if strings.TrimSpace(e.Type) == "" || strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("model config entry %d: type and name required", i)
		}
		switch strings.ToLower(strings.TrimSpace(e.Kind)) {
		case KindHeuristic, "":
		case KindRemote:
			if strings.TrimSpace(e.URL) == "" {
				return nil, fmt.Errorf("model config entry %d (%s/%s): remote requires url", i, e.Type, e.Name)
			}
		default:
			return nil, fmt.Errorf("model config entry %d: unsupported kind %q", i, e.Kind)
		}
	}
	return &cfg, nil
}

// BuildRegistry registers the heuristics (unless disabled) and every configured
// entry. A nil cfg yields the heuristics only.
func BuildRegistry(cfg *Config) (*Registry, error) {
	reg := NewRegistry()
	if cfg == nil || cfg.IncludeHeuristics == nil || *cfg.IncludeHeuristics {
		for _, c := range Heuristics() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	if cfg == nil {
		return reg, nil
	}
	for _, e := range cfg.Models {
		kind := strings.ToLower(strings.TrimSpace(e.Kind))
		if kind == KindRemote {
			c, err := NewRemote(RemoteConfig{ModelType: e.Type, Name: e.Name, URL: e.URL, APIKey: e.APIKey, Timeout: e.Timeout})
			if err != nil {
				return nil, err
			}
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		} else if _, ok := reg.Resolve(e.Type, e.Name); !ok {
			c, err := heuristicFor(e.Type, e.Name)
			if err != nil {
				return nil, err
			}
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
		if e.Default {
			if err := reg.SetDefault(e.Type, strings.TrimSpace(e.Name)); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}

func heuristicFor(modelType, name string) (Capability, error) {
	for _, c := range Heuristics() {
		h := c.(*heuristic)
		if h.modelType == prediction.NormalizeModelType(modelType) {
			cp := *h
			cp.name = strings.TrimSpace(name)
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("no heuristic for model type %q", modelType)
}
