package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codelamp/codelamp/internal/httpkit"
)

const (
	geminiAPIURL       = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-2.0-flash"
)

// GeminiClient talks to the Gemini generateContent API.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// GeminiOption configures a GeminiClient.
type GeminiOption func(*GeminiClient)

// WithModel overrides the default model.
func WithModel(model string) GeminiOption {
	return func(c *GeminiClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL overrides the API endpoint. Used by tests and proxies.
func WithBaseURL(baseURL string) GeminiOption {
	return func(c *GeminiClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// NewGeminiClient creates a Gemini client. Generation requests can run
// long when the model is reasoning over tool results, so the client has
// no global timeout; ctx deadlines control cancellation. The transport
// still bounds dial and header waits.
func NewGeminiClient(apiKey string, logger *slog.Logger, opts ...GeminiOption) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}

	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	c := &GeminiClient{
		apiKey:  apiKey,
		model:   defaultGeminiModel,
		baseURL: geminiAPIURL,
		logger:  logger.With("provider", "gemini"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Gemini wire types

type geminiRequest struct {
	Contents          []Content    `json:"contents"`
	Tools             []geminiTool `json:"tools,omitempty"`
	SystemInstruction *Content     `json:"systemInstruction,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []ToolDeclaration `json:"functionDeclarations"`
}

type geminiCandidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *GeminiClient) buildRequest(req GenerateRequest) geminiRequest {
	out := geminiRequest{Contents: req.Contents}
	if len(req.Tools) > 0 {
		out.Tools = []geminiTool{{FunctionDeclarations: req.Tools}}
	}
	if req.SystemInstruction != "" {
		out.SystemInstruction = &Content{Parts: []Part{{Text: req.SystemInstruction}}}
	}
	return out
}

func (c *GeminiClient) newHTTPRequest(ctx context.Context, url string, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)
	return httpReq, nil
}

// apiError converts a non-2xx response into an error that keeps the
// backend's own message visible, so callers can tell credential
// failures apart from transport ones.
func apiError(status int, body string) error {
	var parsed geminiErrorBody
	if err := json.Unmarshal([]byte(body), &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Errorf("gemini API error %d %s: %s", status, parsed.Error.Status, parsed.Error.Message)
	}
	return fmt.Errorf("gemini API error %d: %s", status, body)
}

// collectResponse flattens candidate parts into text and function calls.
func collectResponse(candidates []geminiCandidate) *GenerateResponse {
	resp := &GenerateResponse{}
	if len(candidates) == 0 {
		return resp
	}

	var text strings.Builder
	for _, part := range candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			resp.FunctionCalls = append(resp.FunctionCalls, *part.FunctionCall)
		}
	}
	resp.Text = text.String()
	return resp
}

// Generate submits the transcript and returns the complete response.
func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := c.newHTTPRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(httpResp.Body, 4096)

	if httpResp.StatusCode != http.StatusOK {
		return nil, apiError(httpResp.StatusCode, httpkit.ReadErrorBody(httpResp.Body, 8192))
	}

	var parsed geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	resp := collectResponse(parsed.Candidates)
	c.logger.Debug("generate complete",
		"model", c.model,
		"contents", len(req.Contents),
		"function_calls", len(resp.FunctionCalls),
		"duration", time.Since(start).Truncate(time.Millisecond),
	)
	return resp, nil
}

// GenerateStream submits the transcript via the SSE endpoint and invokes
// onChunk for each text fragment. Function calls are accumulated across
// chunks and returned with the final response.
func (c *GeminiClient) GenerateStream(ctx context.Context, req GenerateRequest, onChunk func(text string)) (*GenerateResponse, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.model)
	httpReq, err := c.newHTTPRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(httpResp.Body, 4096)

	if httpResp.StatusCode != http.StatusOK {
		return nil, apiError(httpResp.StatusCode, httpkit.ReadErrorBody(httpResp.Body, 8192))
	}

	resp := &GenerateResponse{}
	var text strings.Builder

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}
		if len(chunk.Candidates) == 0 {
			continue
		}

		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
				if onChunk != nil {
					onChunk(part.Text)
				}
			}
			if part.FunctionCall != nil {
				resp.FunctionCalls = append(resp.FunctionCalls, *part.FunctionCall)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	resp.Text = text.String()
	return resp, nil
}

// Ping checks if the API is reachable with the configured credential.
func (c *GeminiClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(httpResp.Body, 4096)

	if httpResp.StatusCode != http.StatusOK {
		return apiError(httpResp.StatusCode, httpkit.ReadErrorBody(httpResp.Body, 2048))
	}
	return nil
}
