package validator

// =============================================================================
// CRASH EARLY, CRASH LOUD
// =============================================================================
//
// The CUE schema is the contract between the indexer and the policy engine.
// If a fact row gains a field or a status string drifts, the rego rules
// would silently see `undefined` and stop firing. Validation turns that into
// an immediate error naming the offending field.
//
// When validation fails, fix the producer (extractor, graph, facts) rather
// than widening schema.cue.
// =============================================================================

import (
	"embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaFS embed.FS

// contract is a compiled schema plus the definition values are checked against.
type contract struct {
	ctx        *cue.Context
	schema     cue.Value
	definition string
	what       string
}

func newContract(definition, what string) (*contract, error) {
	ctx := cuecontext.New()

	schemaBytes, err := schemaFS.ReadFile("schema.cue")
	if err != nil {
		return nil, fmt.Errorf("loading embedded schema: %w", err)
	}

	schema := ctx.CompileBytes(schemaBytes)
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling schema: %w", schema.Err())
	}

	if def := schema.LookupPath(cue.ParsePath(definition)); def.Err() != nil {
		return nil, fmt.Errorf("looking up %s definition: %w", definition, def.Err())
	}

	return &contract{ctx: ctx, schema: schema, definition: definition, what: what}, nil
}

func (c *contract) unify(data interface{}) (cue.Value, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return cue.Value{}, fmt.Errorf("marshaling %s to JSON: %w", c.what, err)
	}
	return c.unifyJSON(jsonBytes)
}

func (c *contract) unifyJSON(jsonBytes []byte) (cue.Value, error) {
	dataValue := c.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return cue.Value{}, fmt.Errorf("compiling %s as CUE: %w", c.what, dataValue.Err())
	}
	def := c.schema.LookupPath(cue.ParsePath(c.definition))
	return def.Unify(dataValue), nil
}

func (c *contract) validate(data interface{}) error {
	unified, err := c.unify(data)
	if err != nil {
		return err
	}
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("%s schema validation failed: %w", c.what, err)
	}
	return nil
}

func (c *contract) validateJSON(jsonBytes []byte) error {
	unified, err := c.unifyJSON(jsonBytes)
	if err != nil {
		return err
	}
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("%s schema validation failed: %w", c.what, err)
	}
	return nil
}

func (c *contract) errors(data interface{}) []string {
	unified, err := c.unify(data)
	if err != nil {
		return []string{err.Error()}
	}
	err = unified.Validate()
	if err == nil {
		return nil
	}

	var errs []string
	for _, e := range errors.Errors(err) {
		errs = append(errs, e.Error())
	}
	return errs
}

// Validator validates policy input against the #Input definition.
// If the data doesn't match the schema, evaluation must not proceed.
type Validator struct {
	c *contract
}

// New creates a new Validator with the embedded CUE schema
func New() (*Validator, error) {
	c, err := newContract("#Input", "input")
	if err != nil {
		return nil, err
	}
	return &Validator{c: c}, nil
}

// Validate checks that the input data conforms to the CUE schema.
// Returns nil if valid, or a detailed error explaining what failed.
func (v *Validator) Validate(data interface{}) error {
	return v.c.validate(data)
}

// ValidateJSON validates JSON bytes directly against the schema
func (v *Validator) ValidateJSON(jsonBytes []byte) error {
	return v.c.validateJSON(jsonBytes)
}

// ValidationErrors returns detailed information about all validation errors
func (v *Validator) ValidationErrors(data interface{}) []string {
	return v.c.errors(data)
}

// FactsValidator validates relational fact tables against #FactTables.
type FactsValidator struct {
	c *contract
}

// NewFactsValidator creates a validator for relational fact tables.
func NewFactsValidator() (*FactsValidator, error) {
	c, err := newContract("#FactTables", "facts")
	if err != nil {
		return nil, err
	}
	return &FactsValidator{c: c}, nil
}

// Validate checks that the fact tables conform to the facts schema.
func (v *FactsValidator) Validate(data interface{}) error {
	return v.c.validate(data)
}

// ValidateJSON validates a serialized fact table export.
func (v *FactsValidator) ValidateJSON(jsonBytes []byte) error {
	return v.c.validateJSON(jsonBytes)
}

// OutputValidator validates the JSON analysis report against #Report.
type OutputValidator struct {
	c *contract
}

// NewOutputValidator creates a validator for analysis reports
func NewOutputValidator() (*OutputValidator, error) {
	c, err := newContract("#Report", "output")
	if err != nil {
		return nil, err
	}
	return &OutputValidator{c: c}, nil
}

// Validate checks that the report conforms to the output schema
func (v *OutputValidator) Validate(data interface{}) error {
	return v.c.validate(data)
}

// ValidateJSON validates report JSON as printed by --json.
func (v *OutputValidator) ValidateJSON(jsonBytes []byte) error {
	return v.c.validateJSON(jsonBytes)
}
