package llm

import (
	"context"
	"sync"
)

type fakeResponse struct {
	text string
	err  error
}

// fakeClient replays scripted responses; the last one repeats.
type fakeClient struct {
	mu        sync.Mutex
	provider  Provider
	responses []fakeResponse
	prompts   []string
	opts      []GenerateOptions
	closed    bool
}

func newFakeClient(p Provider, responses ...fakeResponse) *fakeClient {
	return &fakeClient{provider: p, responses: responses}
}

func (f *fakeClient) GenerateText(_ context.Context, prompt string, opts GenerateOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	if len(f.responses) == 0 {
		return "", nil
	}
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	return r.text, r.err
}

func (f *fakeClient) Provider() Provider { return f.provider }
func (f *fakeClient) Model() string      { return "fake-model" }
func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}
