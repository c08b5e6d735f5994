package tokens

import (
	"testing"

	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

func TestCount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"single char", "a", 1},
		{"short word", "hello", 1},
		{"longer sentence", "the quick brown fox jumps over the lazy dog", 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count(tt.text); got != tt.want {
				t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestCount_Monotone(t *testing.T) {
	short := Count("hi")
	long := Count("hi there, this is a much longer message with many more words in it")
	if long <= short {
		t.Errorf("expected longer text to have a larger count: short=%d long=%d", short, long)
	}
}

func TestCountMessages_IncludesOverheadAndNames(t *testing.T) {
	msgs := []chatmodel.Message{
		{Role: chatmodel.RoleUser, Content: "hello"},
		{Role: chatmodel.RoleTool, Content: "result", Name: "list_trips"},
	}
	withoutSystem := CountMessages(msgs, "")
	withSystem := CountMessages(msgs, "you are a helpful travel assistant")
	if withSystem <= withoutSystem {
		t.Errorf("expected system prompt to add tokens: without=%d with=%d", withoutSystem, withSystem)
	}

	withToolCall := CountMessages([]chatmodel.Message{
		{Role: chatmodel.RoleAssistant, ToolCalls: []chatmodel.ToolCall{
			{ID: "1", Kind: "function", Function: chatmodel.ToolCallFunction{Name: "list_trips", Arguments: "{}"}},
		}},
	}, "")
	if withToolCall <= primingOverhead {
		t.Errorf("expected tool call to add tokens beyond priming: got %d", withToolCall)
	}
}

func TestCountMessages_Empty(t *testing.T) {
	if got := CountMessages(nil, ""); got != primingOverhead {
		t.Errorf("CountMessages(nil, \"\") = %d, want %d", got, primingOverhead)
	}
}

func TestCountTools(t *testing.T) {
	schemas := []chatmodel.ToolSchema{
		{Name: "list_trips", Description: "List trips", Parameters: []byte(`{"type":"object"}`)},
	}
	if got := CountTools(schemas); got <= 0 {
		t.Errorf("CountTools() = %d, want > 0", got)
	}
	if got := CountTools(nil); got != 0 {
		t.Errorf("CountTools(nil) = %d, want 0", got)
	}
}
