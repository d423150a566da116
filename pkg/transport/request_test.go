package transport

import (
	"testing"

	"github.com/alex-ilgayev/llmstream/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequestBody(t *testing.T) {
	tests := []struct {
		name   string
		api    llm.API
		prompt Prompt
		want   string
	}{
		{
			name:   "converse",
			api:    llm.APIConverse,
			prompt: Prompt{User: "hi", MaxTokens: 64},
			want:   `{"messages":[{"role":"user","content":[{"text":"hi"}]}],"inferenceConfig":{"maxTokens":64}}`,
		},
		{
			name:   "converse with system and default max tokens",
			api:    llm.APIConverse,
			prompt: Prompt{System: "be brief", User: "hi"},
			want:   `{"messages":[{"role":"user","content":[{"text":"hi"}]}],"inferenceConfig":{"maxTokens":1024},"system":[{"text":"be brief"}]}`,
		},
		{
			name:   "invoke",
			api:    llm.APIInvoke,
			prompt: Prompt{System: "be brief", User: "hi \"there\"", MaxTokens: 10},
			want:   `{"anthropic_version":"bedrock-2023-05-31","max_tokens":10,"messages":[{"role":"user","content":"hi \"there\""}],"system":"be brief"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := BuildRequestBody(tt.api, tt.prompt)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(body))
		})
	}
}

func TestBuildRequestBody_Errors(t *testing.T) {
	_, err := BuildRequestBody(llm.APIConverse, Prompt{})
	assert.Error(t, err)

	_, err = BuildRequestBody(llm.APIUnknown, Prompt{User: "hi"})
	assert.Error(t, err)
}
