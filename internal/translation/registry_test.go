package translation

import (
	"context"
	"testing"
)

type fakeProvider struct {
	name string
}

func (p *fakeProvider) Name() string                 { return p.name }
func (p *fakeProvider) SupportedLanguages() []string { return []string{"en"} }
func (p *fakeProvider) Translate(_ context.Context, req TranslateRequest) (*TranslateResponse, error) {
	return &TranslateResponse{Text: req.Text, ProviderName: p.name}, nil
}

func TestRegistryResolvesByName(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("google")
	if err := registry.Register(&fakeProvider{name: "google"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(&fakeProvider{name: "local"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	provider, err := registry.Provider("LOCAL")
	if err != nil {
		t.Fatalf("resolve provider: %v", err)
	}
	if provider.Name() != "local" {
		t.Fatalf("unexpected provider: %q", provider.Name())
	}

	provider, err = registry.Provider("")
	if err != nil {
		t.Fatalf("resolve default provider: %v", err)
	}
	if provider.Name() != "google" {
		t.Fatalf("unexpected default provider: %q", provider.Name())
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("")
	if err := registry.Register(&fakeProvider{name: "google"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := registry.Provider("deepl"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestRegistryResolveDefault(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("missing")
	if err := registry.Register(&fakeProvider{name: "local"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	registry.ResolveDefault()
	if got := registry.DefaultProvider(); got != "local" {
		t.Fatalf("unexpected default: %q", got)
	}

	provider, err := registry.Provider("")
	if err != nil {
		t.Fatalf("resolve default provider: %v", err)
	}
	if provider.Name() != "local" {
		t.Fatalf("unexpected provider: %q", provider.Name())
	}
}
