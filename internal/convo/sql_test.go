package convo

import (
	"testing"

	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

func TestPostgresPlaceholder(t *testing.T) {
	if got := postgresPlaceholder(1); got != "$1" {
		t.Errorf("postgresPlaceholder(1) = %q, want $1", got)
	}
	if got := postgresPlaceholder(12); got != "$12" {
		t.Errorf("postgresPlaceholder(12) = %q, want $12", got)
	}
}

func TestSQLitePlaceholder(t *testing.T) {
	if got := sqlitePlaceholder(1); got != "?" {
		t.Errorf("sqlitePlaceholder(1) = %q, want ?", got)
	}
	if got := sqlitePlaceholder(7); got != "?" {
		t.Errorf("sqlitePlaceholder(7) = %q, want ?", got)
	}
}

func TestMarshalToolCalls(t *testing.T) {
	v, err := marshalToolCalls(nil)
	if err != nil || v != nil {
		t.Fatalf("marshalToolCalls(nil) = (%v, %v), want (nil, nil)", v, err)
	}

	calls := []chatmodel.ToolCall{
		{ID: "1", Kind: "function", Function: chatmodel.ToolCallFunction{Name: "list_trips", Arguments: "{}"}},
	}
	got, err := marshalToolCalls(calls)
	if err != nil {
		t.Fatalf("marshalToolCalls: %v", err)
	}
	s, ok := got.(string)
	if !ok || s == "" {
		t.Fatalf("marshalToolCalls returned %v, want non-empty string", got)
	}
}

func TestNullIfEmpty(t *testing.T) {
	if got := nullIfEmpty(""); got != nil {
		t.Errorf("nullIfEmpty(\"\") = %v, want nil", got)
	}
	if got := nullIfEmpty("x"); got != "x" {
		t.Errorf("nullIfEmpty(x) = %v, want x", got)
	}
}

func TestSchema_DefinesExpectedTables(t *testing.T) {
	if !contains(Schema, "CREATE TABLE IF NOT EXISTS conversations") {
		t.Error("Schema missing conversations table")
	}
	if !contains(Schema, "CREATE TABLE IF NOT EXISTS messages") {
		t.Error("Schema missing messages table")
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
