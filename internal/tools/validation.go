package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache holds compiled schemas keyed by tool name. Tool schemas are
// registered once at startup and never change afterward, so compiling once
// and reusing the *jsonschema.Schema across every call is safe.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// compileSchema compiles and caches the JSON schema for a tool. raw is the
// tool's {required[], properties{...}} descriptor as published in its
// chatmodel.ToolSchema.
func compileSchema(toolName string, raw []byte) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(toolName); ok {
		return cached.(*jsonschema.Schema), nil
	}

	url := "mem://" + toolName + ".json"
	compiler := jsonschema.NewCompiler()
	// Draft 2020-12 treats "format" as annotation-only unless explicitly
	// asserted; tool schemas rely on format: uuid/date as real constraints,
	// so opt in.
	compiler.AssertFormat = true
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", toolName, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", toolName, err)
	}
	schemaCache.Store(toolName, schema)
	return schema, nil
}

// validateArgs validates args against the tool's published schema, if any.
// A tool with no published schema (empty Parameters) skips validation but
// still undergoes sanitization and audit.
func validateArgs(toolName string, rawSchema []byte, args map[string]any) error {
	if len(rawSchema) == 0 {
		return nil
	}
	schema, err := compileSchema(toolName, rawSchema)
	if err != nil {
		return err
	}

	// jsonschema validates against decoded JSON values (map[string]any /
	// []any / float64 / ...); round-trip through json to normalize number
	// types the same way a parsed request body would be.
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args for validation: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("unmarshal args for validation: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
