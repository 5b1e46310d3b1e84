// Package tools defines the tools the model may invoke mid-generation.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codelamp/codelamp/internal/llm"
)

// ErrUnknownTool is returned when the model requests a tool that is not
// registered. This is fatal to the current generation loop.
var ErrUnknownTool = errors.New("unknown tool")

// Tool represents a callable tool. Handlers report domain failures as an
// {error: ...} payload rather than a Go error, so the model can see the
// failure and react in natural language.
type Tool struct {
	Name        string
	Description string
	Parameters  *llm.Schema
	Handler     func(ctx context.Context, ws *Workspace, args map[string]any) map[string]any
}

// Registry holds available tools in registration order.
type Registry struct {
	tools  map[string]*Tool
	order  []string
	market *MarketClient
	logger *slog.Logger
}

// NewRegistry creates a tool registry with the builtin tools.
func NewRegistry(market *MarketClient, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if market == nil {
		market = NewMarketClient(logger)
	}
	r := &Registry{
		tools:  make(map[string]*Tool),
		market: market,
		logger: logger,
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.Register(&Tool{
		Name:        "cryptoPrice",
		Description: "Get current price of a cryptocurrency",
		Parameters: &llm.Schema{
			Type: llm.TypeObject,
			Properties: map[string]*llm.Schema{
				"coinName": {Type: llm.TypeString},
			},
			Required: []string{"coinName"},
		},
		Handler: r.handleCryptoPrice,
	})

	r.Register(&Tool{
		Name:        "getCurrentTime",
		Description: "Help to get current time and date in utc format",
		Handler:     r.handleCurrentTime,
	})

	r.Register(&Tool{
		Name:        "listFiles",
		Description: "List all JavaScript/TypeScript files in a directory. If no directory specified, lists files from the current workspace root.",
		Parameters: &llm.Schema{
			Type: llm.TypeObject,
			Properties: map[string]*llm.Schema{
				"directory": {
					Type:        llm.TypeString,
					Description: "Directory path to scan (relative to workspace or absolute). Leave empty to scan workspace root.",
				},
			},
		},
		Handler: r.handleListFiles,
	})

	r.Register(&Tool{
		Name:        "readFile",
		Description: "Read a file's content from the current workspace. Supports both relative and absolute paths.",
		Parameters: &llm.Schema{
			Type: llm.TypeObject,
			Properties: map[string]*llm.Schema{
				"file_path": {
					Type:        llm.TypeString,
					Description: "Path to the file (relative to workspace root or absolute)",
				},
			},
			Required: []string{"file_path"},
		},
		Handler: r.handleReadFile,
	})

	r.Register(&Tool{
		Name:        "writeFile",
		Description: "Write or update file content in the current workspace. Creates directories if needed.",
		Parameters: &llm.Schema{
			Type: llm.TypeObject,
			Properties: map[string]*llm.Schema{
				"file_path": {
					Type:        llm.TypeString,
					Description: "Path to the file to write (relative to workspace root or absolute)",
				},
				"content": {
					Type:        llm.TypeString,
					Description: "The content to write to the file",
				},
			},
			Required: []string{"file_path", "content"},
		},
		Handler: r.handleWriteFile,
	})
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Declarations returns the tool schemas for the backend, in registration order.
func (r *Registry) Declarations() []llm.ToolDeclaration {
	decls := make([]llm.ToolDeclaration, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		decls = append(decls, llm.ToolDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return decls
}

// Execute runs a tool by name. The workspace is threaded explicitly so two
// sessions with different roots never race on shared state. Returns
// ErrUnknownTool (wrapped) for unregistered names; every other failure is a
// soft {error: ...} payload inside the result.
func (r *Registry) Execute(ctx context.Context, ws *Workspace, name string, args map[string]any) (map[string]any, error) {
	tool := r.tools[name]
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.logger.Debug("executing tool", "tool", name)
	return tool.Handler(ctx, ws, args), nil
}

// errorPayload builds the soft-failure result shape the model sees.
func errorPayload(format string, args ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}

// stringArg extracts a string argument, tolerating absent keys.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
