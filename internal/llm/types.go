// Package llm provides the canonical message model and the Gemini client.
package llm

import "strings"

// Roles used in the transcript. The Gemini API knows only these two;
// system text travels separately as the system instruction.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is one element of a message. Exactly one field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse carries a tool execution result back to the model.
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

// Content is a single message in the transcript. Messages are immutable
// once appended; ordering defines conversational causality.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Text builds a plain text message.
func Text(role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

// CallContent wraps a function call as a model-role message.
func CallContent(call FunctionCall) Content {
	return Content{Role: RoleModel, Parts: []Part{{FunctionCall: &call}}}
}

// ResponseContent wraps a tool result as a user-role message.
func ResponseContent(name string, response map[string]any) Content {
	return Content{
		Role: RoleUser,
		Parts: []Part{{FunctionResponse: &FunctionResponse{
			Name:     name,
			Response: response,
		}}},
	}
}

// JoinedText concatenates the text parts of a message.
func (c Content) JoinedText() string {
	var b strings.Builder
	for _, p := range c.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// StoredMessage is a message as it may appear in persisted history: either
// canonical (parts) or the legacy flat shape (content string). It exists
// only at ingestion boundaries; everything past Normalize works with Content.
type StoredMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`
}

// Normalize converts a stored message to canonical shape. Canonical input
// passes through unchanged; the legacy {role, content} shape becomes a
// single text part.
func Normalize(m StoredMessage) Content {
	if len(m.Parts) > 0 {
		return Content{Role: m.Role, Parts: m.Parts}
	}
	return Content{Role: m.Role, Parts: []Part{{Text: m.Content}}}
}

// NormalizeHistory converts a stored message slice to canonical shape.
func NormalizeHistory(stored []StoredMessage) []Content {
	if len(stored) == 0 {
		return nil
	}
	out := make([]Content, len(stored))
	for i, m := range stored {
		out[i] = Normalize(m)
	}
	return out
}
