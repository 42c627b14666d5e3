package anyllm

import (
	"errors"
	"slices"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/courtside/pkg/provider/llm"
)

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "llama3.2"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Return the command as JSON.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "ponto do time b"}},
		Temperature:  0.2,
		MaxTokens:    64,
		JSON:         true,
	})

	if params.Model != "llama3.2" {
		t.Errorf("model = %q, want llama3.2", params.Model)
	}
	roles := make([]string, len(params.Messages))
	for i, m := range params.Messages {
		roles[i] = m.Role
	}
	if want := []string{anyllmlib.RoleSystem, anyllmlib.RoleSystem, llm.RoleUser}; !slices.Equal(roles, want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	if got := params.Messages[1].ContentString(); got != jsonInstruction {
		t.Errorf("second system message = %q, want the JSON instruction", got)
	}
	if got := params.Messages[2].ContentString(); got != "ponto do time b" {
		t.Errorf("user message = %q", got)
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Errorf("temperature = %v, want 0.2", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 64 {
		t.Errorf("max tokens = %v, want 64", params.MaxTokens)
	}
}

func TestBuildParams_PlainRequest(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "desfazer"}},
	})
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Errorf("temperature/max tokens = %v/%v, want backend defaults", params.Temperature, params.MaxTokens)
	}
	if len(params.Messages) != 1 {
		t.Errorf("messages = %d, want only the transcript", len(params.Messages))
	}
}

func TestCheckFinish(t *testing.T) {
	t.Parallel()

	for reason, want := range map[string]error{
		"stop":   nil,
		"":       nil,
		"length": llm.ErrTruncated,
	} {
		if err := checkFinish(reason); !errors.Is(err, want) {
			t.Errorf("checkFinish(%q) = %v, want %v", reason, err, want)
		}
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend string
		model   string
		opts    []anyllmlib.Option
		wantErr error
	}{
		{"hosted", "anthropic", "claude-3-5-haiku-latest", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}, nil},
		{"local", "ollama", "llama3.2", nil, nil},
		{"case and spaces", " LlamaCpp ", "llama3", nil, nil},
		{"unknown backend", "fakecloud", "m", nil, ErrUnsupported},
		{"empty backend", "", "m", nil, ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := New(tt.backend, tt.model, tt.opts...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.Model() != tt.model {
				t.Errorf("Model() = %q, want %q", p.Model(), tt.model)
			}
			if !slices.Contains(Backends(), p.Name()) {
				t.Errorf("Name() = %q, not a listed backend", p.Name())
			}
		})
	}
}

func TestNew_EmptyModel(t *testing.T) {
	t.Parallel()

	if _, err := New("ollama", ""); err == nil {
		t.Fatal("New accepted an empty model")
	}
}

func TestBackends_Sorted(t *testing.T) {
	t.Parallel()

	b := Backends()
	if !slices.IsSorted(b) || len(b) != len(backends) {
		t.Errorf("Backends() = %v", b)
	}
}
