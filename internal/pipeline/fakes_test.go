package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/allergymenu/allergy-menu-assistant/internal/llm"
)

// scriptedLLM answers each agent by looking at its system prompt.
type scriptedLLM struct {
	mu        sync.Mutex
	normalize func(prompt string) (string, error)
	profile   func(prompt string) (string, error)
	expand    func(prompt string) (string, error)
	calls     map[string]int
	keys      []string
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request, key llm.APIKey) (string, error) {
	agent := "unknown"
	var handler func(string) (string, error)
	switch {
	case strings.HasPrefix(req.System, "You are a restaurant menu parsing assistant"):
		agent, handler = "normalize", s.normalize
	case strings.HasPrefix(req.System, "You are a food allergen assistant"):
		agent, handler = "profile", s.profile
	case strings.HasPrefix(req.System, "You help people with food allergies"):
		agent, handler = "expand", s.expand
	}

	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[agent]++
	s.keys = append(s.keys, key.Reveal())
	s.mu.Unlock()

	if handler == nil {
		return "", nil
	}
	return handler(req.Prompt)
}

func (s *scriptedLLM) count(agent string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[agent]
}

func (s *scriptedLLM) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

type fakeExtractor struct {
	text  string
	err   error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte, _ llm.APIKey) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeCreds struct {
	allergies []string
	key       llm.APIKey
	keyErr    error
}

func (f *fakeCreds) GetAllergies(context.Context, uint) ([]string, error) {
	return f.allergies, nil
}

func (f *fakeCreds) DecryptAPIKey(context.Context, uint) (llm.APIKey, error) {
	return f.key, f.keyErr
}
