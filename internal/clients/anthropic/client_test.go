package anthropic

import (
	"testing"

	"github.com/paraito/registre-extractor/internal/common"
)

func TestNewClient_DefaultsModel(t *testing.T) {
	c := NewClient("fake-api-key")
	if c.model != DefaultModel {
		t.Errorf("expected default model, got %v", c.model)
	}
	if c.maxTokens <= 0 {
		t.Errorf("expected a positive default max token budget, got %d", c.maxTokens)
	}
}

func TestNewClient_AppliesOptions(t *testing.T) {
	c := NewClient("fake-api-key", WithModel(DefaultModel), WithLogger(common.NewSilentLogger()))
	if c.model != DefaultModel {
		t.Errorf("expected model override to apply, got %v", c.model)
	}
}
