package jsonschema

import (
	"errors"
	"strings"
	"testing"
)

const walletSchema = `{
	"type": "object",
	"properties": {
		"wallet_id": { "type": "string", "format": "uuid" },
		"balance": { "type": "string" },
		"version": { "type": "integer" }
	},
	"required": ["wallet_id", "balance"]
}`

func TestSchema_Validate(t *testing.T) {
	schema, err := Compile("wallet", walletSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	tests := []struct {
		name      string
		document  string
		wantValid bool
	}{
		{"valid", `{"wallet_id":"00000000-0000-0000-0000-000000000001","balance":"10.00","version":2}`, true},
		{"missing required", `{"wallet_id":"00000000-0000-0000-0000-000000000001"}`, false},
		{"wrong type", `{"wallet_id":"x","balance":"1","version":"two"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate([]byte(tt.document))
			if tt.wantValid && err != nil {
				t.Fatalf("Validate() error = %v, want nil", err)
			}
			if !tt.wantValid {
				var ve ValidationErrors
				if !errors.As(err, &ve) {
					t.Fatalf("Validate() error = %v, want ValidationErrors", err)
				}
				if len(ve) == 0 {
					t.Error("ValidationErrors should not be empty")
				}
			}
		})
	}
}

func TestSchema_ValidateNotJSON(t *testing.T) {
	schema, err := Compile("wallet", walletSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	err = schema.Validate([]byte("upstream connect error"))
	if err == nil || !strings.Contains(err.Error(), "invalid JSON") {
		t.Errorf("Validate() error = %v, want invalid JSON", err)
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	if _, err := Compile("bad", `{"type": 12}`); err == nil {
		t.Error("Compile() expected error for invalid schema")
	}
	if _, err := Compile("bad", `{not json`); err == nil {
		t.Error("Compile() expected error for malformed schema")
	}
}
