package memory

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestMemoryJSONRoundTrip(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	mem := &Memory{
		ID:           "mem_test",
		Kind:         KindFact,
		Content:      &FactContent{Fact: "water is wet"},
		Importance:   0.7,
		Embedding:    []float32{0.1, 0.2, 0.3},
		Metadata:     map[string]any{"source": "unit"},
		Context:      map[string]any{},
		CreatedAt:    created,
		LastAccessed: created,
		LastModified: created,
		AccessCount:  2,
	}

	data, err := json.Marshal(mem)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"type":"fact"`) {
		t.Errorf("kind not serialized under \"type\": %s", data)
	}

	var got Memory
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.ID != mem.ID || got.Kind != mem.Kind {
		t.Errorf("identity mismatch: %s/%s", got.ID, got.Kind)
	}
	fact, ok := got.Content.(*FactContent)
	if !ok {
		t.Fatalf("content decoded as %T", got.Content)
	}
	if fact.Fact != "water is wet" {
		t.Errorf("Fact = %q", fact.Fact)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if got.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", got.AccessCount)
	}
	if len(got.Embedding) != 3 {
		t.Errorf("Embedding length = %d, want 3", len(got.Embedding))
	}
}

func TestMemoryUnmarshalLenientTimestamps(t *testing.T) {
	cases := []struct {
		name     string
		ts       string
		wantZero bool
	}{
		{"rfc3339", `"2025-03-01T12:30:00Z"`, false},
		{"rfc3339 nano", `"2025-03-01T12:30:00.123456789Z"`, false},
		{"naive isoformat", `"2025-03-01T12:30:00.123456"`, false},
		{"garbage", `"not a timestamp"`, true},
		{"empty", `""`, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := `{"id":"mem_x","type":"fact","content":{"fact":"f"},"importance":0.5,"created_at":` + tc.ts + `}`
			var got Memory
			if err := json.Unmarshal([]byte(doc), &got); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if got.CreatedAt.IsZero() != tc.wantZero {
				t.Errorf("CreatedAt = %v, wantZero = %v", got.CreatedAt, tc.wantZero)
			}
		})
	}
}

func TestMemoryClone(t *testing.T) {
	mem := &Memory{
		ID:        "mem_clone",
		Kind:      KindFact,
		Content:   &FactContent{Fact: "original"},
		Embedding: []float32{1, 2},
		Metadata:  map[string]any{"k": "v"},
	}

	clone := mem.Clone()
	clone.Embedding[0] = 99
	clone.Metadata["k"] = "changed"

	if mem.Embedding[0] != 1 {
		t.Error("clone shares embedding with original")
	}
	if mem.Metadata["k"] != "v" {
		t.Error("clone shares metadata with original")
	}
}

func TestParseKindAndTier(t *testing.T) {
	k, err := ParseKind("conversation")
	if err != nil || k != KindConversation {
		t.Errorf("ParseKind(conversation) = %v, %v", k, err)
	}
	if _, err := ParseKind("nope"); err == nil {
		t.Error("expected error for unknown kind")
	}

	tier, err := ParseTier("short_term")
	if err != nil || tier != TierShortTerm {
		t.Errorf("ParseTier(short_term) = %v, %v", tier, err)
	}
	if _, err := ParseTier("medium_term"); err == nil {
		t.Error("expected error for unknown tier")
	}
}
