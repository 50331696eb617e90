package pipeline

import (
	"fmt"
	"strings"

	"github.com/jonathan/research-agent/internal/credentials"
	"github.com/jonathan/research-agent/internal/llm"
	"github.com/jonathan/research-agent/internal/types"
)

// Backend is the LLM provider a run commits to. It holds no secrets, so it
// is safe to checkpoint; keys are resolved again for every stage.
type Backend struct {
	Provider llm.Provider `json:"provider"`
	Model    string       `json:"model,omitempty"`
	// Fallback is used when the primary fails the canary call
	Fallback llm.Provider `json:"fallback,omitempty"`
}

// llmOrder is the order in which providers with a stored key are tried.
var llmOrder = []llm.Provider{llm.ProviderGemini, llm.ProviderOpenAI, llm.ProviderAnthropic}

// ParseModelPreference splits a stored preference of the form
// "provider:model" or "provider". Unknown providers yield "".
func ParseModelPreference(pref string) (llm.Provider, string) {
	name, model, _ := strings.Cut(strings.TrimSpace(pref), ":")
	p, err := llm.ParseProvider(strings.TrimSpace(name))
	if err != nil {
		return "", ""
	}
	return p, strings.TrimSpace(model)
}

// SelectBackend picks the LLM backend for a run. A retry override wins, then
// the user's model preference, then the configured default. When the chosen
// provider has no key the first provider with one is used instead, except
// for an explicit retry override, which must be honored or fail.
func SelectBackend(keys credentials.Keys, opts types.RetryOptions, defaultProvider, defaultModel string) (Backend, error) {
	var b Backend
	explicit := false

	switch {
	case opts.Provider != "":
		p, err := llm.ParseProvider(opts.Provider)
		if err != nil {
			return Backend{}, err
		}
		b.Provider, explicit = p, true
	case keys.ModelPreference != "":
		b.Provider, b.Model = ParseModelPreference(keys.ModelPreference)
	}
	if b.Provider == "" {
		if p, err := llm.ParseProvider(defaultProvider); err == nil {
			b.Provider, b.Model = p, defaultModel
		}
	}
	if opts.Model != "" {
		b.Model = opts.Model
	}

	if b.Provider == "" || keys.Get(string(b.Provider)) == "" {
		if explicit {
			return Backend{}, fmt.Errorf("%w: no %s API key", ErrMissingCredentials, b.Provider)
		}
		b.Provider, b.Model = "", ""
		for _, p := range llmOrder {
			if keys.Get(string(p)) != "" {
				b.Provider = p
				break
			}
		}
		if b.Provider == "" {
			return Backend{}, fmt.Errorf("%w: no LLM API key configured", ErrMissingCredentials)
		}
	}

	for _, p := range llmOrder {
		if p != b.Provider && keys.Get(string(p)) != "" {
			b.Fallback = p
			break
		}
	}
	return b, nil
}

// spec resolves the client spec for a provider from fresh keys.
func (b Backend) spec(keys credentials.Keys, provider llm.Provider) llm.ClientSpec {
	s := llm.ClientSpec{Provider: provider, APIKey: keys.Get(string(provider))}
	if provider == b.Provider {
		s.Model = b.Model
	}
	return s
}
