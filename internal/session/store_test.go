package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

// mapKV is an in-memory stand-in for the SQLite store.
type mapKV struct {
	values map[string]string
	getErr error
}

func newMapKV() *mapKV {
	return &mapKV{values: make(map[string]string)}
}

func (m *mapKV) Get(key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mapKV) Set(key, value string) error {
	m.values[key] = value
	return nil
}

func testStore(kv KV) *Store {
	s := NewStore(kv, 0, nil)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestBindingInvariant(t *testing.T) {
	kv := newMapKV()
	s := testStore(kv)

	// Two turns in the same fresh session must land in one archive entry.
	if err := s.PersistTurn("gemini", "first question", "first answer"); err != nil {
		t.Fatal(err)
	}
	if err := s.PersistTurn("gemini", "second question", "second answer"); err != nil {
		t.Fatal(err)
	}

	archive := s.loadArchive("gemini")
	if len(archive) != 1 {
		t.Fatalf("archive entries = %d, want 1", len(archive))
	}
	if len(archive[0].Messages) != 4 {
		t.Errorf("messages = %d, want 4 (two pairs)", len(archive[0].Messages))
	}
}

func TestStartNewBlankWritesNothing(t *testing.T) {
	kv := newMapKV()
	s := testStore(kv)

	s.StartNewBlank()

	if len(kv.values) != 0 {
		t.Errorf("StartNewBlank wrote to the archive: %v", kv.values)
	}
	if got := s.CurrentSession(); len(got) != 0 {
		t.Errorf("live session not empty: %+v", got)
	}
}

func TestNewChatThenTurnCreatesSecondEntry(t *testing.T) {
	s := testStore(newMapKV())

	s.PersistTurn("gemini", "q1", "a1")
	s.StartNewBlank()
	s.PersistTurn("gemini", "q2", "a2")

	archive := s.loadArchive("gemini")
	if len(archive) != 2 {
		t.Fatalf("archive entries = %d, want 2", len(archive))
	}
	if archive[1].Messages[0].Content != "q2" {
		t.Errorf("second entry starts with %q, want q2", archive[1].Messages[0].Content)
	}
}

func TestEvictionKeepsMostRecent(t *testing.T) {
	s := testStore(newMapKV())

	for i := 0; i < 21; i++ {
		s.StartNewBlank()
		if err := s.PersistTurn("gemini", fmt.Sprintf("question %d", i), "answer"); err != nil {
			t.Fatal(err)
		}
	}

	archive := s.loadArchive("gemini")
	if len(archive) != 20 {
		t.Fatalf("archive entries = %d, want 20", len(archive))
	}
	if archive[0].Messages[0].Content != "question 1" {
		t.Errorf("oldest surviving entry = %q, want question 1", archive[0].Messages[0].Content)
	}
	if archive[19].Messages[0].Content != "question 20" {
		t.Errorf("newest entry = %q, want question 20", archive[19].Messages[0].Content)
	}
}

func TestListForDisplayOrderAndPreview(t *testing.T) {
	s := testStore(newMapKV())

	long := strings.Repeat("x", 45)
	s.PersistTurn("gemini", "short question", "a")
	s.StartNewBlank()
	s.PersistTurn("gemini", long, "a")

	display := s.ListForDisplay("gemini")
	if len(display) != 2 {
		t.Fatalf("display entries = %d, want 2", len(display))
	}

	// Most recent first.
	if display[0].Index != 0 || display[0].OriginalIndex != 1 {
		t.Errorf("display[0] indices = (%d, %d), want (0, 1)", display[0].Index, display[0].OriginalIndex)
	}
	if want := strings.Repeat("x", 40) + "..."; display[0].Preview != want {
		t.Errorf("long preview = %q, want %q", display[0].Preview, want)
	}
	if display[1].Preview != "short question" {
		t.Errorf("short preview = %q, want verbatim", display[1].Preview)
	}
	if display[1].Timestamp == "" {
		t.Error("timestamp missing")
	}
}

func TestLoadNormalizesAndRebinds(t *testing.T) {
	kv := newMapKV()
	s := testStore(kv)

	s.PersistTurn("gemini", "q1", "a1")
	s.StartNewBlank()
	s.PersistTurn("gemini", "q2", "a2")

	// Load the older conversation (display index 1 = storage index 0).
	messages, err := s.Load(1, "gemini")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("loaded messages = %d, want 2", len(messages))
	}
	if messages[0].JoinedText() != "q1" {
		t.Errorf("loaded first message = %q, want q1", messages[0].JoinedText())
	}
	if len(messages[0].Parts) != 1 {
		t.Errorf("legacy message not normalized: %+v", messages[0])
	}

	// A turn after loading appends to that entry, not a new one.
	s.PersistTurn("gemini", "q1b", "a1b")
	archive := s.loadArchive("gemini")
	if len(archive) != 2 {
		t.Fatalf("archive entries = %d, want 2", len(archive))
	}
	if len(archive[0].Messages) != 4 {
		t.Errorf("bound entry messages = %d, want 4", len(archive[0].Messages))
	}
	if len(archive[1].Messages) != 2 {
		t.Errorf("other entry messages = %d, want 2", len(archive[1].Messages))
	}
}

func TestLoadOutOfRange(t *testing.T) {
	s := testStore(newMapKV())

	if _, err := s.Load(0, "gemini"); err == nil {
		t.Error("expected an error for an empty archive")
	}
}

func TestDeleteMostRecent(t *testing.T) {
	s := testStore(newMapKV())

	for i := 0; i < 3; i++ {
		s.StartNewBlank()
		s.PersistTurn("gemini", fmt.Sprintf("q%d", i), "a")
	}
	s.AppendTurn("live question", "live answer")

	// Display index 0 is the newest entry, storage index 2.
	if err := s.Delete(0, "gemini"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	archive := s.loadArchive("gemini")
	if len(archive) != 2 {
		t.Fatalf("archive entries = %d, want 2", len(archive))
	}
	for _, conv := range archive {
		if conv.Messages[0].Content == "q2" {
			t.Error("newest entry still present after delete")
		}
	}

	if got := s.CurrentSession(); len(got) != 0 {
		t.Errorf("live session not cleared: %+v", got)
	}

	// The next turn starts a fresh entry.
	s.PersistTurn("gemini", "after delete", "a")
	if archive := s.loadArchive("gemini"); len(archive) != 3 {
		t.Errorf("archive entries = %d, want 3 after fresh turn", len(archive))
	}
}

func TestCorruptArchiveTreatedAsEmpty(t *testing.T) {
	kv := newMapKV()
	kv.values["codelamp_gemini_conversations"] = "{not json"
	s := testStore(kv)

	if got := s.ListForDisplay("gemini"); len(got) != 0 {
		t.Errorf("display entries = %d, want 0 for corrupt archive", len(got))
	}

	// Persisting over a corrupt archive rewrites it cleanly.
	if err := s.PersistTurn("gemini", "q", "a"); err != nil {
		t.Fatal(err)
	}
	var parsed []Conversation
	if err := json.Unmarshal([]byte(kv.values["codelamp_gemini_conversations"]), &parsed); err != nil {
		t.Fatalf("archive not valid JSON after persist: %v", err)
	}
	if len(parsed) != 1 {
		t.Errorf("archive entries = %d, want 1", len(parsed))
	}
}

func TestProvidersIsolated(t *testing.T) {
	kv := newMapKV()
	s := testStore(kv)

	s.PersistTurn("gemini", "gq", "ga")

	if _, ok := kv.values["codelamp_openai_conversations"]; ok {
		t.Error("gemini turn leaked into the openai archive")
	}
	if _, ok := kv.values["codelamp_gemini_conversations"]; !ok {
		t.Error("gemini archive missing")
	}
}

func TestPersistedTimestampIsRFC3339(t *testing.T) {
	s := testStore(newMapKV())
	s.PersistTurn("gemini", "q", "a")

	archive := s.loadArchive("gemini")
	if _, err := time.Parse(time.RFC3339, archive[0].Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", archive[0].Timestamp, err)
	}
}
