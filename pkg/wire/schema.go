package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// requestSchema is the structural contract for incoming request
// envelopes. The endpoint validates against it before touching the
// payload, fail-closed: a request that does not validate is rejected at
// the transport level and never reaches the operation model.
const requestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "version", "target", "kind"],
  "properties": {
    "id": {"type": "string", "minLength": 1, "maxLength": 128},
    "version": {"type": "string", "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+"},
    "target": {"type": "string", "minLength": 1, "maxLength": 256},
    "kind": {"type": "string", "enum": ["create", "fetch", "update", "insert", "delete", "execute", "event"]},
    "args": {}
  },
  "additionalProperties": false
}`

var compiledRequestSchema = jsonschema.MustCompileString("request.schema.json", requestSchema)

// ValidateRequest checks raw envelope bytes against the request schema.
func ValidateRequest(data []byte) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("wire: envelope is not valid JSON: %w", err)
	}
	if err := compiledRequestSchema.Validate(doc); err != nil {
		return fmt.Errorf("wire: envelope rejected by schema: %w", err)
	}
	return nil
}
