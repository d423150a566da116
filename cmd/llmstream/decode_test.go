package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tu "github.com/alex-ilgayev/llmstream/internal/testing"
	"github.com/alex-ilgayev/llmstream/pkg/llm"
)

func TestCaptureSource(t *testing.T) {
	tests := []struct {
		name       string
		api        string
		url        string
		wantAPI    llm.API
		wantSource string
		wantErr    bool
	}{
		{
			name:       "file only",
			wantAPI:    llm.APIUnknown,
			wantSource: "capture.bin",
		},
		{
			name:       "api flag",
			api:        "invoke",
			wantAPI:    llm.APIInvoke,
			wantSource: "capture.bin",
		},
		{
			name:       "detected from url",
			url:        "https://bedrock-runtime.us-east-1.amazonaws.com/model/anthropic.claude-3-haiku/converse-stream",
			wantAPI:    llm.APIConverse,
			wantSource: "https://bedrock-runtime.us-east-1.amazonaws.com/model/anthropic.claude-3-haiku/converse-stream",
		},
		{
			name:       "api flag wins over url",
			api:        "converse",
			url:        "https://bedrock-runtime.us-east-1.amazonaws.com/model/m/invoke-with-response-stream",
			wantAPI:    llm.APIConverse,
			wantSource: "https://bedrock-runtime.us-east-1.amazonaws.com/model/m/invoke-with-response-stream",
		},
		{
			name:       "url without model path",
			url:        "https://example.com/stream",
			wantAPI:    llm.APIUnknown,
			wantSource: "https://example.com/stream",
		},
		{
			name:    "unknown api",
			api:     "chat",
			wantErr: true,
		},
		{
			name:    "bad url",
			url:     "http://[::1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decodeAPI, decodeURL = tt.api, tt.url
			t.Cleanup(func() { decodeAPI, decodeURL = "", "" })

			api, source, err := captureSource("capture.bin")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAPI, api)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestFeed_ChunkSizes(t *testing.T) {
	stream := tu.ConverseTextStream("Hel", "lo")
	path := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(path, stream, 0o600))

	for _, size := range []int{0, 1, 7, 64, len(stream) * 2} {
		f, err := os.Open(path)
		require.NoError(t, err)

		var texts []string
		emit := func(c llm.ContentChunk) {
			if c.Text != "" {
				texts = append(texts, c.Text)
			}
		}
		d := llm.NewDecoder(llm.WithChunkHandler(emit))
		require.NoError(t, feed(f, d, size, emit))
		result := d.Finalize(emit)
		f.Close()

		assert.Equal(t, []string{"Hel", "lo"}, texts, "chunk size %d", size)
		assert.Zero(t, result.Leftover, "chunk size %d", size)
	}
}
