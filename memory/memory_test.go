package memory

import (
	"testing"
)

func TestTrimHistory(t *testing.T) {
	msgs := []Message{{Content: "a"}, {Content: "b"}, {Content: "c"}}
	if got := TrimHistory(msgs, 0); len(got) != 3 {
		t.Fatalf("max 0 should keep all, got %d", len(got))
	}
	got := TrimHistory(msgs, 2)
	if len(got) != 2 || got[0].Content != "b" || got[1].Content != "c" {
		t.Fatalf("unexpected trim: %+v", got)
	}
	if got := TrimHistory(msgs, 5); len(got) != 3 {
		t.Fatalf("max above length should keep all, got %d", len(got))
	}
}
