package llm

import "encoding/json"

// Tool describes a tool the model may call.
type Tool struct {
	// Type is "function" for function tools.
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

// ToolCall is an invocation of a tool emitted by the model.
type ToolCall struct {
	ID       string           `json:"id,omitempty"`
	Index    *int             `json:"index,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the function name and serialized arguments.
type ToolCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolChoice is a string ("none", "auto", "required") or an object naming a
// specific tool on the wire.
type ToolChoice struct {
	Choice *string
	Named  *NamedToolChoice
}

// NamedToolChoice forces the model to call a specific tool.
type NamedToolChoice struct {
	Type     string                 `json:"type"`
	Function NamedToolChoiceFunction `json:"function"`
}

type NamedToolChoiceFunction struct {
	Name string `json:"name"`
}

func (c ToolChoice) MarshalJSON() ([]byte, error) {
	if c.Choice != nil {
		return json.Marshal(c.Choice)
	}

	return json.Marshal(c.Named)
}

func (c *ToolChoice) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		c.Choice = &str
		return nil
	}

	var named NamedToolChoice
	if err := json.Unmarshal(data, &named); err != nil {
		return err
	}

	c.Named = &named

	return nil
}
