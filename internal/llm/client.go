package llm

import "context"

// Gemini schema type names. Only object and string parameters are used
// by CodeLamp's tool declarations.
const (
	TypeObject = "OBJECT"
	TypeString = "STRING"
)

// Schema describes a tool parameter shape in the wire format the
// backend consumes.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// ToolDeclaration advertises one callable tool to the backend.
type ToolDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// GenerateRequest is one generation round: the full transcript so far,
// the available tools, and the fixed system instruction.
type GenerateRequest struct {
	Contents          []Content
	Tools             []ToolDeclaration
	SystemInstruction string
}

// GenerateResponse is the backend's answer to one round. An empty
// FunctionCalls slice means the text is the final answer.
type GenerateResponse struct {
	Text          string
	FunctionCalls []FunctionCall
}

// Client is the interface the generation loop drives. Implementations
// must be safe for sequential reuse; the loop never calls concurrently.
type Client interface {
	// Generate submits the transcript and returns the complete response.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// GenerateStream submits the transcript and invokes onChunk for each
	// text fragment as it arrives, returning the accumulated response.
	// onChunk may be nil.
	GenerateStream(ctx context.Context, req GenerateRequest, onChunk func(text string)) (*GenerateResponse, error)

	// Ping checks if the backend is reachable with the configured credential.
	Ping(ctx context.Context) error
}
