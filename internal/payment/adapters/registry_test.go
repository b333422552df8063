package adapters

import (
	"errors"
	"testing"

	"github.com/smallbiznis/sitecraft/internal/payment/adapters/razorpay"
	"github.com/smallbiznis/sitecraft/internal/payment/domain"
)

func TestRegistryNormalizesProviderNames(t *testing.T) {
	registry := NewRegistry(razorpay.NewFactory(), nil)

	if !registry.ProviderExists(" RazorPay ") {
		t.Fatalf("expected razorpay to be registered")
	}
	if registry.ProviderExists("stripe") {
		t.Fatalf("expected stripe to be unknown")
	}
	if got := registry.Providers(); len(got) != 1 || got[0] != "razorpay" {
		t.Fatalf("unexpected providers: %v", got)
	}

	_, err := registry.NewAdapter("stripe", domain.AdapterConfig{})
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("expected provider not found, got %v", err)
	}
	adapter, err := registry.NewAdapter("razorpay", domain.AdapterConfig{Config: map[string]any{"webhook_secret": "s"}})
	if err != nil || adapter == nil {
		t.Fatalf("expected adapter, got %v", err)
	}
}

func TestNilRegistry(t *testing.T) {
	var registry *Registry
	if registry.ProviderExists("razorpay") {
		t.Fatalf("nil registry must not report providers")
	}
	if _, err := registry.NewAdapter("razorpay", domain.AdapterConfig{}); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("expected provider not found, got %v", err)
	}
}
