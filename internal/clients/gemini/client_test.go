package gemini

import (
	"context"
	"testing"

	"google.golang.org/genai"

	"github.com/paraito/registre-extractor/internal/common"
)

func TestNewClient_AppliesOptions(t *testing.T) {
	c, err := NewClient(context.Background(), "fake-api-key", WithModel("gemini-custom"), WithLogger(common.NewSilentLogger()))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.model != "gemini-custom" {
		t.Errorf("expected model override to apply, got %q", c.model)
	}
}

func TestNewClient_DefaultsModel(t *testing.T) {
	c, err := NewClient(context.Background(), "fake-api-key")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, c.model)
	}
}

func TestExtractTextFromResponse_ConcatenatesParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{
						{Text: "hello "},
						{Text: "world"},
					},
				},
			},
		},
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		t.Fatalf("extractTextFromResponse failed: %v", err)
	}
	if text != "hello world" {
		t.Errorf("expected concatenated text, got %q", text)
	}
}

func TestExtractTextFromResponse_NoCandidatesErrors(t *testing.T) {
	resp := &genai.GenerateContentResponse{}
	_, err := extractTextFromResponse(resp)
	if err == nil {
		t.Fatal("expected an error for a response with no candidates")
	}
}
