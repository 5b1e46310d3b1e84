package main

import (
	"context"
	"strings"
	"testing"
)

func TestRunVersionText(t *testing.T) {
	var out strings.Builder

	if err := run(context.Background(), &out, &out, []string{"version"}); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
	if !strings.Contains(out.String(), "CodeLamp") {
		t.Errorf("version output missing banner: %q", out.String())
	}
}

func TestRunVersionJSON(t *testing.T) {
	var out strings.Builder

	if err := run(context.Background(), &out, &out, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run(-o json version) error = %v", err)
	}
	if !strings.Contains(out.String(), `"version"`) {
		t.Errorf("json output missing version field: %q", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out strings.Builder

	err := run(context.Background(), &out, &out, []string{"frobnicate"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("error = %v, want unknown command", err)
	}
}

func TestRunUnknownFlag(t *testing.T) {
	var out strings.Builder

	err := run(context.Background(), &out, &out, []string{"-bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown flag") {
		t.Errorf("error = %v, want unknown flag", err)
	}
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	var out strings.Builder

	if err := run(context.Background(), &out, &out, nil); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out.String(), "Usage: codelamp") {
		t.Errorf("usage output missing: %q", out.String())
	}
}

func TestRunAskRequiresQuestion(t *testing.T) {
	var out strings.Builder

	err := run(context.Background(), &out, &out, []string{"ask"})
	if err == nil || !strings.Contains(err.Error(), "usage: codelamp ask") {
		t.Errorf("error = %v, want usage message", err)
	}
}

func TestRunBadOutputFormat(t *testing.T) {
	var out strings.Builder

	err := run(context.Background(), &out, &out, []string{"-o", "xml", "version"})
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("error = %v, want unknown output format", err)
	}
}
