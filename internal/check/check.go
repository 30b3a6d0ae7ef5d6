// Package check evaluates named pass/fail predicates against completed
// requests. A failed check is recorded, never returned as an error.
package check

import (
	"fmt"
	"strings"

	"github.com/wesleyorama2/walletprobe/internal/transport"
	"github.com/wesleyorama2/walletprobe/internal/workload"
	"github.com/wesleyorama2/walletprobe/pkg/jsonpath"
	"github.com/wesleyorama2/walletprobe/pkg/jsonschema"
)

// Check is a named predicate. Every configured condition must hold for the
// check to pass; a check with no conditions always passes.
type Check struct {
	Name string `json:"name" yaml:"name"`

	// Operation restricts the check to one operation kind. Empty applies
	// it to every operation.
	Operation workload.Kind `json:"operation,omitempty" yaml:"operation,omitempty"`

	// Status lists the accepted status codes.
	Status []int `json:"status,omitempty" yaml:"status,omitempty"`

	// JSONPath must exist in the response body. With Equals set, its value
	// must also equal Equals.
	JSONPath string  `json:"jsonPath,omitempty" yaml:"jsonPath,omitempty"`
	Equals   *string `json:"equals,omitempty" yaml:"equals,omitempty"`

	// Schema is a built-in schema name or an inline JSON Schema document.
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Result is the outcome of one check against one response.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

type compiled struct {
	Check
	status map[int]struct{}
	schema *jsonschema.Schema
}

// Verifier applies a fixed check set. Schemas are compiled once at
// construction, so Verify is safe for concurrent use.
type Verifier struct {
	checks []compiled
}

// NewVerifier compiles checks. It fails on unnamed checks, duplicate names,
// unknown operation kinds, invalid paths and invalid schemas.
func NewVerifier(checks []Check) (*Verifier, error) {
	v := &Verifier{checks: make([]compiled, 0, len(checks))}
	seen := make(map[string]struct{}, len(checks))

	for i, c := range checks {
		if c.Name == "" {
			return nil, fmt.Errorf("checks[%d]: name is required", i)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("checks[%d]: duplicate check name %q", i, c.Name)
		}
		seen[c.Name] = struct{}{}

		switch c.Operation {
		case "", workload.KindCreateWallet, workload.KindTransfer, workload.KindReadBalance:
		default:
			return nil, fmt.Errorf("checks[%d] %q: unknown operation %q", i, c.Name, c.Operation)
		}
		if c.Equals != nil && c.JSONPath == "" {
			return nil, fmt.Errorf("checks[%d] %q: equals requires jsonPath", i, c.Name)
		}
		if c.JSONPath != "" && !jsonpath.ValidPath(c.JSONPath) {
			return nil, fmt.Errorf("checks[%d] %q: invalid jsonPath %q", i, c.Name, c.JSONPath)
		}

		cc := compiled{Check: c}
		if len(c.Status) > 0 {
			cc.status = make(map[int]struct{}, len(c.Status))
			for _, s := range c.Status {
				if s < 100 || s > 599 {
					return nil, fmt.Errorf("checks[%d] %q: invalid status %d", i, c.Name, s)
				}
				cc.status[s] = struct{}{}
			}
		}
		if c.Schema != "" {
			schema, err := compileSchema(c.Name, c.Schema)
			if err != nil {
				return nil, fmt.Errorf("checks[%d] %q: %w", i, c.Name, err)
			}
			cc.schema = schema
		}
		v.checks = append(v.checks, cc)
	}

	return v, nil
}

func compileSchema(name, schema string) (*jsonschema.Schema, error) {
	if builtin, ok := builtinSchemas[schema]; ok {
		return jsonschema.Compile(schema, builtin)
	}
	if !strings.HasPrefix(strings.TrimSpace(schema), "{") {
		return nil, fmt.Errorf("unknown schema %q (built-in: %s)", schema, strings.Join(BuiltinSchemas(), ", "))
	}
	return jsonschema.Compile(sanitize(name), schema)
}

// sanitize turns a check name into a usable schema resource name.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

// Len returns the number of configured checks.
func (v *Verifier) Len() int {
	return len(v.checks)
}

// Names returns the configured check names in order.
func (v *Verifier) Names() []string {
	names := make([]string, len(v.checks))
	for i, c := range v.checks {
		names[i] = c.Name
	}
	return names
}

// Verify evaluates every check that applies to kind. A transport failure
// fails every applicable check.
func (v *Verifier) Verify(kind workload.Kind, res *transport.Result) []Result {
	if len(v.checks) == 0 {
		return nil
	}

	results := make([]Result, 0, len(v.checks))
	for i := range v.checks {
		c := &v.checks[i]
		if c.Operation != "" && c.Operation != kind {
			continue
		}
		r := Result{Name: c.Name, Passed: true}
		if err := c.eval(res); err != nil {
			r.Passed, r.Reason = false, err.Error()
		}
		results = append(results, r)
	}
	return results
}

// eval returns nil when every condition holds, otherwise the first failure.
func (c *compiled) eval(res *transport.Result) error {
	if res == nil {
		return fmt.Errorf("no response")
	}
	if res.Failed() {
		return fmt.Errorf("request failed: %w", res.Err)
	}
	if c.status != nil {
		if _, ok := c.status[res.StatusCode]; !ok {
			return fmt.Errorf("unexpected status %d", res.StatusCode)
		}
	}
	if c.JSONPath != "" {
		value, err := jsonpath.Extract(res.Body, c.JSONPath)
		if err != nil {
			return err
		}
		if c.Equals != nil && value != *c.Equals {
			return fmt.Errorf("%s is %q, want %q", c.JSONPath, value, *c.Equals)
		}
	}
	if c.schema != nil {
		if err := c.schema.Validate(res.Body); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}
