package bashtool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	jsonschemav5 "github.com/santhosh-tekuri/jsonschema/v5"
)

// CallParams is the wire shape of a Bash tool call (spec §6 "Tool schema
// presented to the LLM"): one required command string and an optional
// restart flag.
type CallParams struct {
	Command string `json:"command" jsonschema:"required,description=The command to execute; must be non-interactive and chainable with && or ;"`
	Restart bool   `json:"restart,omitempty" jsonschema:"description=When true kill the current shell and spawn a fresh one before running,default=false"`
}

// schemaDoc is the generated JSON Schema for CallParams, built once at
// package init and reused both for the schema advertised to the model and
// for validating inbound calls.
var schemaDoc = jsonschema.Reflect(&CallParams{})

var compiledSchema *jsonschemav5.Schema

func init() {
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		panic(fmt.Sprintf("bashtool: failed to marshal generated schema: %v", err))
	}

	compiler := jsonschemav5.NewCompiler()
	if err := compiler.AddResource("bash-call-params.json", mustDecode(raw)); err != nil {
		panic(fmt.Sprintf("bashtool: failed to register schema resource: %v", err))
	}
	compiledSchema, err = compiler.Compile("bash-call-params.json")
	if err != nil {
		panic(fmt.Sprintf("bashtool: failed to compile schema: %v", err))
	}
}

func mustDecode(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		panic(fmt.Sprintf("bashtool: failed to decode generated schema: %v", err))
	}
	return v
}

// Schema returns the JSON Schema document advertised to the LLM for the
// Bash tool's single parameter object.
func Schema() ([]byte, error) {
	return json.Marshal(schemaDoc)
}

// ValidateParams validates raw against the generated schema before it is
// unmarshaled into CallParams, catching malformed calls (missing command,
// wrong types) with a schema-shaped error rather than a generic JSON one.
func ValidateParams(raw json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("bashtool: invalid JSON params: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("bashtool: params failed schema validation: %w", err)
	}
	return nil
}
