package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGenerateSendsKeyAndParsesText(t *testing.T) {
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"hi "},{"text":"there"}]}}]}`)
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key", discardLogger(), WithBaseURL(srv.URL), WithModel("gemini-2.0-flash"))

	resp, err := c.Generate(context.Background(), GenerateRequest{
		Contents: []Content{Text(RoleUser, "hello")},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("api key header = %q, want test-key", gotKey)
	}
	if want := "/models/gemini-2.0-flash:generateContent"; gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if resp.Text != "hi there" {
		t.Errorf("text = %q, want %q", resp.Text, "hi there")
	}
	if len(resp.FunctionCalls) != 0 {
		t.Errorf("unexpected function calls: %+v", resp.FunctionCalls)
	}
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`)
	}))
	defer srv.Close()

	c := NewGeminiClient("bad-key", discardLogger(), WithBaseURL(srv.URL))

	_, err := c.Generate(context.Background(), GenerateRequest{
		Contents: []Content{Text(RoleUser, "hello")},
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "API key not valid") {
		t.Errorf("error %q should carry the backend message", err)
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error %q should carry the status code", err)
	}
}

func TestGenerateStreamChunksAndCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "alt=sse") {
			t.Errorf("query = %q, want alt=sse", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"chunk1\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"chunk2\"},{\"functionCall\":{\"name\":\"getCurrentTime\",\"args\":{}}}]}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key", discardLogger(), WithBaseURL(srv.URL))

	var chunks []string
	resp, err := c.GenerateStream(context.Background(), GenerateRequest{
		Contents: []Content{Text(RoleUser, "hello")},
	}, func(text string) {
		chunks = append(chunks, text)
	})
	if err != nil {
		t.Fatalf("GenerateStream() error = %v", err)
	}

	if len(chunks) != 2 || chunks[0] != "chunk1" || chunks[1] != "chunk2" {
		t.Errorf("chunks = %v, want [chunk1 chunk2]", chunks)
	}
	if resp.Text != "chunk1chunk2" {
		t.Errorf("accumulated text = %q, want chunk1chunk2", resp.Text)
	}
	if len(resp.FunctionCalls) != 1 || resp.FunctionCalls[0].Name != "getCurrentTime" {
		t.Errorf("function calls = %+v, want one getCurrentTime call", resp.FunctionCalls)
	}
}

func TestGenerateStreamAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"permission denied","status":"PERMISSION_DENIED"}}`)
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key", discardLogger(), WithBaseURL(srv.URL))

	_, err := c.GenerateStream(context.Background(), GenerateRequest{
		Contents: []Content{Text(RoleUser, "hello")},
	}, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "PERMISSION_DENIED") {
		t.Errorf("error %q should carry the backend status", err)
	}
}
