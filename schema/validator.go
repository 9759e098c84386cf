package runschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"horse.fit/relabel/internal/langdetect"
)

//go:embed run_request.schema.json
var runRequestSchemaJSON string

// RunRequest is the JSON body accepted by the translate endpoints. All fields
// are optional; absent fields fall back to the configured defaults.
type RunRequest struct {
	TargetLang  string `json:"target_lang,omitempty"`
	Translator  string `json:"translator,omitempty"`
	Detector    string `json:"detector,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
	DryRun      bool   `json:"dry_run,omitempty"`
	Force       bool   `json:"force,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateRunRequest validates and decodes a translate request body. An empty
// body decodes to the zero request.
func ValidateRunRequest(payload json.RawMessage) (*RunRequest, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return &RunRequest{}, nil
	}

	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode request JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize request JSON: %w", err)
	}

	var req RunRequest
	if err := json.Unmarshal(normalized, &req); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}

	if err := validateSemantics(&req); err != nil {
		return nil, err
	}

	return &req, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("run_request.schema.json", strings.NewReader(runRequestSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("run_request.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("request is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("request contains trailing content")
	}

	return value, nil
}

func validateSemantics(req *RunRequest) error {
	if req == nil {
		return fmt.Errorf("request is nil")
	}

	if req.TargetLang != "" {
		normalized := langdetect.NormalizeTag(req.TargetLang)
		if normalized == "" {
			return fmt.Errorf("target_lang is not a valid language tag")
		}
		req.TargetLang = normalized
	}

	req.Translator = strings.ToLower(strings.TrimSpace(req.Translator))
	req.Detector = strings.ToLower(strings.TrimSpace(req.Detector))
	return nil
}
