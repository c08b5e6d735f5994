// Package sanitize strips suspicious substrings from tool arguments before
// they reach schema validation or a handler. It is a pure, stateless
// transform: the same input always yields the same output, modified-path
// list, and detected-pattern-tag list.
package sanitize

import (
	"regexp"
	"strconv"
	"strings"
)

// pattern pairs a detection tag with the regexp it fires on. Order within a
// category does not matter; all patterns in all categories are applied to
// every string leaf.
type pattern struct {
	tag string
	re  *regexp.Regexp
}

var patterns = buildPatterns()

func buildPatterns() []pattern {
	var ps []pattern
	add := func(tag, expr string) {
		ps = append(ps, pattern{tag: tag, re: regexp.MustCompile(expr)})
	}

	// SQL-like keywords and structures.
	add("sql.keyword", `(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE)\b`)
	add("sql.union_select", `(?i)\bUNION\s+SELECT\b`)
	add("sql.comment", `(--|#|/\*[\s\S]*?\*/)`)
	add("sql.tautology", `(?i)\b1\s*=\s*1\b|\bOR\s+1\s*=\s*1\b|\bAND\s+1\s*=\s*1\b`)
	add("sql.quote_escape", `('')|(\\')|(\\")`)
	add("sql.hex_literal", `0x[0-9a-fA-F]+`)
	add("sql.exec_call", `(?i)\bEXEC(UTE)?\s*\(`)
	add("sql.chained_statement", `;\s*\S`)

	// NoSQL operators.
	add("nosql.operator", `\$(where|gt|gte|lt|lte|ne|eq|in|nin|regex|exists|or|and|not|nor)\b`)
	add("nosql.function_call", `\bfunction\s*\(`)
	add("nosql.eval_call", `\beval\s*\(`)

	// Command metacharacters.
	add("cmd.pipe_chain", `[|;&` + "`" + `]`)
	add("cmd.subshell", `\$\([^)]*\)`)
	add("cmd.backtick", "`[^`]*`")
	add("cmd.dangerous_binary", `(?i)\b(rm|chmod|chown|sudo|su|wget|curl|nc|netcat)\b`)
	add("cmd.redirection", `(<<|>>|[<>])`)

	// Path traversal.
	add("path.traversal", `\.\./`)
	add("path.sensitive_unix", `(?i)(^|[\s"'])/(etc|proc|sys|root)(/|$)`)
	add("path.sensitive_windows", `(?i)\b[A-Z]:\\(Windows|System32|Users)\b`)

	return ps
}

// Result is the outcome of sanitizing a single argument map.
type Result struct {
	Data          map[string]any
	ModifiedPaths []string
	PatternTags   []string
}

// Map recursively sanitizes every string leaf in data, returning a new map
// (the input is never mutated), the dotted path of every modified leaf, and
// the set of pattern tags that fired anywhere in the structure.
func Map(data map[string]any) Result {
	tagSet := make(map[string]struct{})
	var modified []string

	out := walkMap(data, "", &modified, tagSet)

	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	return Result{Data: out, ModifiedPaths: modified, PatternTags: tags}
}

func walkMap(m map[string]any, prefix string, modified *[]string, tags map[string]struct{}) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		out[k] = walkValue(v, path, modified, tags)
	}
	return out
}

func walkValue(v any, path string, modified *[]string, tags map[string]struct{}) any {
	switch t := v.(type) {
	case string:
		cleaned, firedTags := cleanString(t)
		if cleaned != t {
			*modified = append(*modified, path)
			for _, tag := range firedTags {
				tags[tag] = struct{}{}
			}
		}
		return cleaned
	case map[string]any:
		return walkMap(t, path, modified, tags)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = walkValue(item, indexPath(path, i), modified, tags)
		}
		return out
	default:
		// numbers, booleans, nil pass through unchanged
		return v
	}
}

func indexPath(prefix string, i int) string {
	return prefix + "[" + strconv.Itoa(i) + "]"
}

func cleanString(s string) (string, []string) {
	var fired []string
	for _, p := range patterns {
		if p.re.MatchString(s) {
			fired = append(fired, p.tag)
			s = p.re.ReplaceAllString(s, "")
		}
	}
	return strings.TrimSpace(s), fired
}
