package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/parrotgw/parrot/internal/pkg/httpclient"
)

var (
	// DoneStreamEvent is the terminal marker of an SSE chat completion stream.
	DoneStreamEvent = httpclient.StreamEvent{
		Data: []byte("[DONE]"),
	}
)

// Request is the unified chat completion request model, based on the OpenAI
// chat completion schema. All inbound requests are decoded into this form
// before fingerprinting.
type Request struct {
	// Messages is the conversation to send to the model.
	Messages []Message `json:"messages"`

	// Model is the model ID used to generate the response.
	Model string `json:"model"`

	// Number between -2.0 and 2.0 penalizing new tokens by their frequency
	// in the text so far.
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`

	// The maximum number of tokens that can be generated in the completion.
	MaxTokens *int64 `json:"max_tokens,omitempty"`

	// An upper bound for generated tokens, including reasoning tokens.
	MaxCompletionTokens *int64 `json:"max_completion_tokens,omitempty"`

	// How many chat completion choices to generate for each input message.
	N *int64 `json:"n,omitempty"`

	// Number between -2.0 and 2.0 penalizing tokens that already appeared.
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`

	// Best-effort deterministic sampling seed.
	Seed *int64 `json:"seed,omitempty"`

	// Sampling temperature between 0 and 2.
	Temperature *float64 `json:"temperature,omitempty"`

	// Nucleus sampling probability mass.
	TopP *float64 `json:"top_p,omitempty"`

	// A stable identifier for the end user.
	User *string `json:"user,omitempty"`

	// Up to 4 sequences where the API stops generating further tokens.
	Stop *Stop `json:"stop,omitempty"`

	Stream        *bool          `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	ParallelToolCalls *bool       `json:"parallel_tool_calls,omitempty"`
	Tools             []Tool      `json:"tools,omitempty"`
	ToolChoice        *ToolChoice `json:"tool_choice,omitempty"`

	// Functions is the legacy predecessor of Tools.
	Functions []FunctionDefinition `json:"functions,omitempty"`

	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// IsStreaming reports whether the request asked for a streamed response.
func (r *Request) IsStreaming() bool {
	return r.Stream != nil && *r.Stream
}

// Validate rejects requests the gateway cannot serve.
func (r *Request) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}

	if len(r.Messages) == 0 {
		return errors.New("messages must not be empty")
	}

	return nil
}

type StreamOptions struct {
	// If set, an additional chunk carrying usage is streamed before [DONE].
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// Stop is a string or a list of strings on the wire.
type Stop struct {
	Stop         *string
	MultipleStop []string
}

func (s Stop) MarshalJSON() ([]byte, error) {
	if s.Stop != nil {
		return json.Marshal(s.Stop)
	}

	if len(s.MultipleStop) > 0 {
		return json.Marshal(s.MultipleStop)
	}

	return []byte("[]"), nil
}

func (s *Stop) UnmarshalJSON(data []byte) error {
	var str string

	err := json.Unmarshal(data, &str)
	if err == nil {
		s.Stop = &str
		return nil
	}

	var strs []string

	err = json.Unmarshal(data, &strs)
	if err == nil {
		s.MultipleStop = strs
		return nil
	}

	return errors.New("invalid stop type")
}

// Message represents a message in the conversation.
type Message struct {
	// Role is one of user, assistant, system, tool, developer.
	Role string `json:"role,omitempty"`

	// Content of the message. A string or a list of content parts on the wire;
	// the omitzero tag is required so absent content is not serialized.
	Content MessageContent `json:"content,omitzero"`

	Name *string `json:"name,omitempty"`

	// The refusal message generated by the model.
	Refusal string `json:"refusal,omitempty"`

	ToolCallID *string    `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// Text returns the plain-text content of the message. Multi-part content is
// flattened to its text parts joined by newlines.
func (m *Message) Text() string {
	if m.Content.Content != nil {
		return *m.Content.Content
	}

	var parts []string

	for _, part := range m.Content.MultipleContent {
		if part.Type == "text" && part.Text != nil {
			parts = append(parts, *part.Text)
		}
	}

	return strings.Join(parts, "\n")
}

// MessageContent is a string or a list of content parts on the wire.
type MessageContent struct {
	Content         *string              `json:"content,omitempty"`
	MultipleContent []MessageContentPart `json:"multiple_content,omitempty"`
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if len(c.MultipleContent) > 0 {
		return json.Marshal(c.MultipleContent)
	}

	return json.Marshal(c.Content)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var str string

	err := json.Unmarshal(data, &str)
	if err == nil {
		c.Content = &str
		return nil
	}

	var parts []MessageContentPart

	err = json.Unmarshal(data, &parts)
	if err == nil {
		c.MultipleContent = parts
		return nil
	}

	return errors.New("invalid content type")
}

// MessageContentPart represents one typed part of a multi-part message.
type MessageContentPart struct {
	// Type is the type of the content part, e.g. "text", "image_url".
	Type string `json:"type"`

	// Text is the text content, required when type is "text".
	Text *string `json:"text,omitempty"`

	// ImageURL is the image content, required when type is "image_url".
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL with optional detail level.
type ImageURL struct {
	URL string `json:"url"`

	// Any of "auto", "low", "high".
	Detail *string `json:"detail,omitempty"`
}

// ResponseFormat specifies the format of the response.
type ResponseFormat struct {
	// Any of "text", "json_object", "json_schema".
	Type string `json:"type"`

	// JSONSchema is present when Type is "json_schema".
	JSONSchema *JSONSchemaFormat `json:"json_schema,omitempty"`
}

// JSONSchemaFormat carries the schema constraining a structured response.
type JSONSchemaFormat struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

// Response is the unified response model in the OpenAI response format.
// Streamed chunks and full completions share the struct.
type Response struct {
	ID string `json:"id"`

	Choices []Choice `json:"choices"`

	// Object is "chat.completion" or "chat.completion.chunk".
	Object string `json:"object"`

	Created int64 `json:"created"`

	Model string `json:"model"`

	Usage *Usage `json:"usage,omitempty"`

	SystemFingerprint string `json:"system_fingerprint,omitempty"`

	// Error is present if the request to the model service failed.
	Error *ResponseError `json:"error,omitempty"`
}

// AssistantText returns the text content of the first choice's message.
func (r *Response) AssistantText() string {
	if len(r.Choices) == 0 || r.Choices[0].Message == nil {
		return ""
	}

	return r.Choices[0].Message.Text()
}

// Choice represents a choice in the response.
type Choice struct {
	Index int `json:"index"`

	// Message is present on non-streaming responses.
	Message *Message `json:"message,omitempty"`

	// Delta is present on streamed chunks.
	Delta *Message `json:"delta,omitempty"`

	// FinishReason is one of "stop", "length", "content_filter", "tool_calls".
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Usage represents the total token usage of a request.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ResponseError represents an error response.
type ResponseError struct {
	StatusCode int         `json:"-"`
	Detail     ErrorDetail `json:"error"`
}

func (e *ResponseError) Error() string {
	sb := strings.Builder{}
	if e.StatusCode != 0 {
		sb.WriteString(fmt.Sprintf("Request failed: %s, ", http.StatusText(e.StatusCode)))
	}

	if e.Detail.Message != "" {
		sb.WriteString("error: ")
		sb.WriteString(e.Detail.Message)
	}

	if e.Detail.Code != "" {
		sb.WriteString(", code: ")
		sb.WriteString(e.Detail.Code)
	}

	if e.Detail.Type != "" {
		sb.WriteString(", type: ")
		sb.WriteString(e.Detail.Type)
	}

	return sb.String()
}

// ErrorDetail represents error details.
type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
}

// NewInvalidRequestError builds a 400-class error in the OpenAI error shape.
func NewInvalidRequestError(message string) *ResponseError {
	return &ResponseError{
		StatusCode: http.StatusBadRequest,
		Detail: ErrorDetail{
			Message: message,
			Type:    "invalid_request_error",
		},
	}
}
