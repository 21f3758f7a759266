package config

import (
	"github.com/spf13/pflag"
)

// FlagSource command line flags, only flags explicitly set by the user are loaded
type FlagSource struct {
	flags    *pflag.FlagSet
	bindings map[string]string // flag name -> config key
	priority int
}

// NewFlagSource bindings e.g. {"redis-addr": "redis.instances.main.addr"}
func NewFlagSource(flags *pflag.FlagSet, bindings map[string]string, priority int) *FlagSource {
	return &FlagSource{flags: flags, bindings: bindings, priority: priority}
}

func (s *FlagSource) Name() string  { return "flags" }
func (s *FlagSource) Priority() int { return s.priority }

func (s *FlagSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})
	if s.flags == nil {
		return result, nil
	}

	for name, key := range s.bindings {
		f := s.flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			result[key] = sv.GetSlice()
			continue
		}
		result[key] = f.Value.String()
	}
	return result, nil
}
