package openai

import (
	"errors"
	"testing"

	oai "github.com/openai/openai-go"

	"github.com/MrWong99/courtside/pkg/provider/llm"
)

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Return the command as JSON.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "ponto do time a"}},
		Temperature:  0.1,
		MaxTokens:    120,
		JSON:         true,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 || params.Messages[0].OfSystem == nil || params.Messages[1].OfUser == nil {
		t.Fatalf("messages = %+v, want system prompt then transcript", params.Messages)
	}
	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model = %q", params.Model)
	}
	if params.MaxCompletionTokens.Value != 120 {
		t.Errorf("MaxCompletionTokens = %d, want 120", params.MaxCompletionTokens.Value)
	}
	if params.ResponseFormat.OfJSONObject == nil {
		t.Error("JSON request without the json_object response format")
	}
}

func TestBuildParams_RejectsUnknownRole(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	if _, err := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{{Role: "tool"}}}); err == nil {
		t.Fatal("buildParams accepted a tool message")
	}
}

func TestBuildParams_PlainRequest(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "desfazer"}},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.ResponseFormat.OfJSONObject != nil {
		t.Error("json_object set without being asked for")
	}
}

func TestFromCompletion(t *testing.T) {
	t.Parallel()

	choice := func(content, refusal, finish string) *oai.ChatCompletion {
		return &oai.ChatCompletion{
			Choices: []oai.ChatCompletionChoice{{
				FinishReason: finish,
				Message:      oai.ChatCompletionMessage{Content: content, Refusal: refusal},
			}},
			Usage: oai.CompletionUsage{PromptTokens: 300, CompletionTokens: 20, TotalTokens: 320},
		}
	}

	tests := []struct {
		name    string
		resp    *oai.ChatCompletion
		want    string
		wantErr error
	}{
		{"answer", choice(`{"type":"swap"}`, "", "stop"), `{"type":"swap"}`, nil},
		{"refusal", choice("", "I can't help with that.", "stop"), "", llm.ErrRefused},
		{"cut off", choice(`{"type":"po`, "", "length"), "", llm.ErrTruncated},
		{"no choices", &oai.ChatCompletion{}, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := fromCompletion(tt.resp)
			switch {
			case tt.name == "no choices":
				if err == nil {
					t.Fatal("empty response accepted")
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Fatalf("fromCompletion: %v", err)
				}
				if got.Content != tt.want || got.Usage.TotalTokens != 320 {
					t.Errorf("response = %+v", got)
				}
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("empty API key accepted")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("empty model accepted")
	}
	p, err := New("sk-test", "qwen2.5-7b-instruct",
		WithBaseURL("http://vllm.local:8000/v1"),
		WithOrganization("org-123"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Model() != "qwen2.5-7b-instruct" {
		t.Errorf("Model() = %q", p.Model())
	}
}
