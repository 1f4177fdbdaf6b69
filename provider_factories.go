package dispatch

import (
	"github.com/goliatone/go-dispatch/core"
	"github.com/goliatone/go-dispatch/providers/openai"
	"github.com/goliatone/go-dispatch/providers/replicate"
	"github.com/goliatone/go-dispatch/providers/research"
	"github.com/goliatone/go-dispatch/providers/runway"
)

func OpenAIChatSpec(cfg openai.Config) (core.AdapterSpec, error) {
	return openai.ChatSpec(cfg)
}

func OpenAIResearchSpec(cfg openai.Config) (core.AdapterSpec, error) {
	return openai.ResearchSpec(cfg)
}

func ReplicateSpec(cfg replicate.Config) (core.AdapterSpec, error) {
	return replicate.Spec(cfg)
}

func RunwaySpec(cfg runway.Config) (core.AdapterSpec, error) {
	return runway.Spec(cfg)
}

func ResearchSpec(cfg research.Config) (core.AdapterSpec, error) {
	return research.Spec(cfg)
}

// RegisterBuiltinProviders installs every built-in adapter with its default
// endpoint and credential configuration.
func RegisterBuiltinProviders(registry *core.AdapterRegistry) error {
	specs := []func() (core.AdapterSpec, error){
		func() (core.AdapterSpec, error) { return openai.ChatSpec(openai.Config{}) },
		func() (core.AdapterSpec, error) { return openai.ResearchSpec(openai.Config{}) },
		func() (core.AdapterSpec, error) { return replicate.Spec(replicate.Config{}) },
		func() (core.AdapterSpec, error) { return runway.Spec(runway.Config{}) },
		func() (core.AdapterSpec, error) { return research.Spec(research.Config{}) },
	}
	for _, build := range specs {
		spec, err := build()
		if err != nil {
			return err
		}
		if err := registry.Register(spec); err != nil {
			return err
		}
	}
	return nil
}
