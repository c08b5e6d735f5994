package sanitize

import (
	"testing"
)

func TestMap_SQLInjectionStripped(t *testing.T) {
	res := Map(map[string]any{"name": "bob'; DROP TABLE trips; --"})
	if len(res.ModifiedPaths) == 0 {
		t.Fatal("expected name to be reported as modified")
	}
	if contains(res.PatternTags, "sql.keyword") == false {
		t.Errorf("tags = %v, want sql.keyword present", res.PatternTags)
	}
	if got := res.Data["name"].(string); got == "bob'; DROP TABLE trips; --" {
		t.Errorf("expected string to be modified, got unchanged %q", got)
	}
}

func TestMap_NoSQLOperatorStripped(t *testing.T) {
	res := Map(map[string]any{"filter": "$where: this.password == 'x'"})
	if !contains(res.PatternTags, "nosql.operator") {
		t.Errorf("tags = %v, want nosql.operator", res.PatternTags)
	}
}

func TestMap_CommandMetacharactersStripped(t *testing.T) {
	res := Map(map[string]any{"query": "miami; rm -rf /"})
	if !contains(res.PatternTags, "cmd.dangerous_binary") {
		t.Errorf("tags = %v, want cmd.dangerous_binary", res.PatternTags)
	}
}

func TestMap_PathTraversalStripped(t *testing.T) {
	res := Map(map[string]any{"path": "../../etc/passwd"})
	if !contains(res.PatternTags, "path.traversal") {
		t.Errorf("tags = %v, want path.traversal", res.PatternTags)
	}
}

func TestMap_NonStringPrimitivesPassThroughUnchanged(t *testing.T) {
	input := map[string]any{
		"count":   5,
		"active":  true,
		"missing": nil,
	}
	res := Map(input)
	if len(res.ModifiedPaths) != 0 {
		t.Errorf("modified = %v, want none", res.ModifiedPaths)
	}
	if res.Data["count"] != 5 || res.Data["active"] != true || res.Data["missing"] != nil {
		t.Errorf("non-string primitives were altered: %+v", res.Data)
	}
}

func TestMap_CleanInputUnmodified(t *testing.T) {
	res := Map(map[string]any{"destination": "Lisbon", "nights": 5})
	if len(res.ModifiedPaths) != 0 {
		t.Errorf("modified = %v, want none for clean input", res.ModifiedPaths)
	}
	if len(res.PatternTags) != 0 {
		t.Errorf("tags = %v, want none for clean input", res.PatternTags)
	}
}

func TestMap_NestedMapsAndListsWalked(t *testing.T) {
	res := Map(map[string]any{
		"trip": map[string]any{
			"notes": []any{"fine", "'; DROP TABLE x; --"},
		},
	})
	found := false
	for _, p := range res.ModifiedPaths {
		if p == "trip.notes[1]" {
			found = true
		}
	}
	if !found {
		t.Errorf("modified paths = %v, want trip.notes[1]", res.ModifiedPaths)
	}
}

func TestMap_DoesNotMutateInput(t *testing.T) {
	input := map[string]any{"name": "'; DROP TABLE trips; --"}
	original := input["name"]
	Map(input)
	if input["name"] != original {
		t.Error("Map mutated its input")
	}
}

func TestMap_Idempotent(t *testing.T) {
	first := Map(map[string]any{"q": "1=1 OR something"})
	second := Map(first.Data)
	if len(second.ModifiedPaths) != 0 {
		t.Errorf("second pass modified %v, sanitization should be idempotent", second.ModifiedPaths)
	}
}

func contains(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}
