// Package agent implements the tool-augmented generation loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/codelamp/codelamp/internal/llm"
	"github.com/codelamp/codelamp/internal/tools"
)

// ErrToolLoopExceeded is returned when the backend keeps requesting tool
// calls past the configured round cap without producing a final answer.
var ErrToolLoopExceeded = errors.New("tool loop exceeded maximum rounds")

// DefaultMaxRounds bounds tool-call rounds per turn.
const DefaultMaxRounds = 8

const systemInstruction = `You are CodeLamp - a coding AI assistant.
You help with code review, code generation, bug fixing, and coding assistance.
Keep answers concise unless explicitly asked for details.
Use available tools to help users effectively.`

// Loop drives the generate → execute-tools → generate cycle until the
// backend returns a response with no function calls.
type Loop struct {
	registry  *tools.Registry
	logger    *slog.Logger
	maxRounds int
}

// NewLoop creates a generation loop. maxRounds <= 0 selects DefaultMaxRounds.
func NewLoop(registry *tools.Registry, logger *slog.Logger, maxRounds int) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Loop{
		registry:  registry,
		logger:    logger,
		maxRounds: maxRounds,
	}
}

// Run appends userText to the prior history and loops against the backend
// until a plain-text answer is produced. Tool calls within a round execute
// strictly in the order returned, since later calls may depend on earlier
// side effects. The workspace is threaded into every tool execution.
//
// Text chunks are buffered per round and flushed to onChunk only when the
// round turns out to be the terminal one, so the sink never sees tool-round
// text. onChunk may be nil.
func (l *Loop) Run(ctx context.Context, client llm.Client, history []llm.Content, userText string, ws *tools.Workspace, onChunk func(chunk string)) (string, error) {
	logger := l.logger.With("request_id", uuid.NewString())

	transcript := append(slices.Clone(history), llm.Text(llm.RoleUser, userText))
	decls := l.registry.Declarations()

	logger.Info("generation loop started", "history", len(history), "tools", len(decls))

	for round := 0; ; round++ {
		if round >= l.maxRounds {
			return "", fmt.Errorf("%w (%d)", ErrToolLoopExceeded, l.maxRounds)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		var chunks []string
		resp, err := client.GenerateStream(ctx, llm.GenerateRequest{
			Contents:          transcript,
			Tools:             decls,
			SystemInstruction: systemInstruction,
		}, func(text string) {
			chunks = append(chunks, text)
		})
		if err != nil {
			return "", fmt.Errorf("generate: %w", err)
		}

		if len(resp.FunctionCalls) == 0 {
			if onChunk != nil {
				for _, c := range chunks {
					onChunk(c)
				}
			}
			logger.Info("generation loop completed", "rounds", round+1, "answer_bytes", len(resp.Text))
			return resp.Text, nil
		}

		for _, call := range resp.FunctionCalls {
			logger.Info("executing tool call", "tool", call.Name, "round", round)

			result, err := l.registry.Execute(ctx, ws, call.Name, call.Args)
			if err != nil {
				return "", err
			}

			// The model sees its own call echoed back followed by the
			// result, in the shape the backend protocol expects.
			transcript = append(transcript,
				llm.CallContent(call),
				llm.ResponseContent(call.Name, result),
			)
		}
	}
}
