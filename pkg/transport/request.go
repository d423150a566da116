package transport

import (
	"fmt"

	"github.com/alex-ilgayev/llmstream/pkg/llm"
	"github.com/tidwall/sjson"
)

// anthropicVersion is required by Anthropic models on the invoke API.
const anthropicVersion = "bedrock-2023-05-31"

// Prompt is a single-turn request.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
}

type bodyBuilder struct {
	body []byte
	err  error
}

func (b *bodyBuilder) set(path string, value any) {
	if b.err != nil {
		return
	}
	b.body, b.err = sjson.SetBytes(b.body, path, value)
}

// BuildRequestBody renders p in the request shape of api.
func BuildRequestBody(api llm.API, p Prompt) ([]byte, error) {
	if p.User == "" {
		return nil, fmt.Errorf("empty prompt")
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = 1024
	}

	b := &bodyBuilder{body: []byte(`{}`)}
	switch api {
	case llm.APIConverse:
		b.set("messages.0.role", "user")
		b.set("messages.0.content.0.text", p.User)
		b.set("inferenceConfig.maxTokens", p.MaxTokens)
		if p.System != "" {
			b.set("system.0.text", p.System)
		}
	case llm.APIInvoke:
		b.set("anthropic_version", anthropicVersion)
		b.set("max_tokens", p.MaxTokens)
		b.set("messages.0.role", "user")
		b.set("messages.0.content", p.User)
		if p.System != "" {
			b.set("system", p.System)
		}
	default:
		return nil, fmt.Errorf("unsupported api %q", api)
	}

	if b.err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", b.err)
	}
	return b.body, nil
}
