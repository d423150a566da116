package llm

import "strings"

// API is the Bedrock streaming operation a stream belongs to.
type API string

const (
	APIUnknown  API = ""
	APIConverse API = "converse"
	APIInvoke   API = "invoke"
)

// Path is the operation suffix of the model URL.
func (a API) Path() string {
	switch a {
	case APIConverse:
		return "converse-stream"
	case APIInvoke:
		return "invoke-with-response-stream"
	default:
		return ""
	}
}

// ParseAPI accepts the config spelling of an API.
func ParseAPI(s string) API {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "converse", "converse-stream":
		return APIConverse
	case "invoke", "invoke-with-response-stream":
		return APIInvoke
	default:
		return APIUnknown
	}
}

// DetectAPI detects the streaming operation from a request path such as
// /model/anthropic.claude-3-haiku/converse-stream. A query string is
// ignored.
func DetectAPI(path string) API {
	path, _, _ = strings.Cut(strings.ToLower(path), "?")
	path = strings.TrimSuffix(path, "/")

	if !strings.HasPrefix(path, "/model/") {
		return APIUnknown
	}

	switch {
	case strings.HasSuffix(path, "/converse-stream"):
		return APIConverse
	case strings.HasSuffix(path, "/invoke-with-response-stream"):
		return APIInvoke
	default:
		return APIUnknown
	}
}

// StreamFormat is the framing of a response body.
type StreamFormat string

const (
	FormatUnknown     StreamFormat = ""
	FormatEventStream StreamFormat = "eventstream"
	FormatJSON        StreamFormat = "json"
	FormatSSE         StreamFormat = "sse"
)

// ContentTypeEventStream is the media type of binary event streams.
const ContentTypeEventStream = "application/vnd.amazon.eventstream"

// DetectStreamFormat maps a Content-Type header to a StreamFormat.
func DetectStreamFormat(contentType string) StreamFormat {
	mediaType := contentType
	if idx := strings.Index(mediaType, ";"); idx != -1 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	switch {
	case mediaType == ContentTypeEventStream:
		return FormatEventStream
	case mediaType == "text/event-stream":
		return FormatSSE
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return FormatJSON
	default:
		return FormatUnknown
	}
}
