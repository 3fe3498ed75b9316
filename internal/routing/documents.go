package routing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DocumentKind names a free-form JSON document carried by a Plan.
type DocumentKind string

const (
	DocumentRecordingPolicy    DocumentKind = "recording_policy"
	DocumentComplianceFeatures DocumentKind = "compliance_features"
	DocumentMetadata           DocumentKind = "metadata"
)

var documentSchemas = map[DocumentKind]string{
	DocumentRecordingPolicy: `{
		"type": "object",
		"properties": {
			"enabled":        {"type": "boolean"},
			"mode":           {"enum": ["off", "inbound", "outbound", "all"]},
			"retention_days": {"type": "integer", "minimum": 0, "maximum": 3650},
			"redact_pii":     {"type": "boolean"},
			"consent_prompt": {"type": "boolean"}
		}
	}`,
	DocumentComplianceFeatures: `{
		"type": "object",
		"additionalProperties": {"type": "boolean"}
	}`,
	DocumentMetadata: `{"type": "object"}`,
}

var (
	schemaMu    sync.Mutex
	schemaCache = map[DocumentKind]*jsonschema.Schema{}
)

func documentSchema(kind DocumentKind) (*jsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	if s, ok := schemaCache[kind]; ok {
		return s, nil
	}
	def, ok := documentSchemas[kind]
	if !ok {
		return nil, fmt.Errorf("routing: no schema for document %q", kind)
	}

	url := "memory://routing/documents/" + string(kind) + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader([]byte(def))); err != nil {
		return nil, fmt.Errorf("register schema %s: %w", kind, err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", kind, err)
	}
	schemaCache[kind] = s
	return s, nil
}

// checkDocument appends one violation per schema failure. Empty documents are
// accepted; absence means "use platform defaults".
func checkDocument(vs *Violations, field string, kind DocumentKind, raw json.RawMessage) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return
	}

	var doc any
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		vs.Add(field, CodeInvalidDocument, "document is not valid JSON")
		return
	}

	schema, err := documentSchema(kind)
	if err != nil {
		vs.Add(field, CodeInvalidDocument, err.Error())
		return
	}

	err = schema.Validate(doc)
	if err == nil {
		return
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		vs.Add(field, CodeInvalidDocument, err.Error())
		return
	}
	for _, leaf := range leafCauses(verr) {
		f := field
		if loc := strings.TrimPrefix(leaf.InstanceLocation, "/"); loc != "" {
			f += "." + strings.ReplaceAll(loc, "/", ".")
		}
		vs.Add(f, CodeInvalidDocument, leaf.Message)
	}
}

func leafCauses(e *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return []*jsonschema.ValidationError{e}
	}
	var out []*jsonschema.ValidationError
	for _, c := range e.Causes {
		out = append(out, leafCauses(c)...)
	}
	return out
}
