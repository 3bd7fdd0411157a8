package httpapi

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// compileSchemas loads every embedded request schema, keyed by file name
// without extension.
func compileSchemas() (map[string]*jsonschema.Schema, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		data, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", e.Name(), err)
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		if err := compiler.AddResource(name, strings.NewReader(string(data))); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", e.Name(), err)
		}
		names = append(names, name)
	}

	schemas := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		schemas[name] = schema
	}
	return schemas, nil
}

const maxBodySize = 1 << 20

// decodeValid reads the request body, checks it against the named schema,
// and unmarshals it into dst. On failure it answers 400 and returns false.
func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, schemaName string, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return false
	}

	schema, ok := s.schemas[schemaName]
	if !ok {
		// A missing schema is a wiring bug, not a client error.
		writeError(w, http.StatusInternalServerError, "internal server error")
		return false
	}
	if err := schema.Validate(raw); err != nil {
		msg := "request body failed validation"
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			leaf := ve
			for len(leaf.Causes) > 0 {
				leaf = leaf.Causes[0]
			}
			msg = strings.TrimSpace(fmt.Sprintf("invalid request: %s %s",
				strings.TrimPrefix(leaf.InstanceLocation, "/"), leaf.Message))
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "request body does not match expected shape")
		return false
	}
	return true
}
