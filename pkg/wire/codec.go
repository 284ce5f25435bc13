package wire

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// DecodeError is a structured decode fault: the payload did not match the
// declared shapes. It is never a silent default substitution; ordinal
// payloads validate the slot count before any position is assigned.
type DecodeError struct {
	Format Format
	Detail string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wire: %s decode: %s", e.Format, e.Detail)
}

// EncodeArgs renders values against their declared shapes in the given
// format. The value count must match the shape count exactly.
func EncodeArgs(f Format, shapes []Shape, values []any) (json.RawMessage, error) {
	if len(values) != len(shapes) {
		return nil, fmt.Errorf("wire: encode: %d values for %d declared shapes", len(values), len(shapes))
	}
	switch f {
	case FormatNamed:
		obj := make(map[string]any, len(shapes))
		for i, s := range shapes {
			obj[s.Name] = values[i]
		}
		return json.Marshal(obj)
	default:
		if values == nil {
			values = []any{}
		}
		return json.Marshal(values)
	}
}

// DecodeArgs parses a payload against the declared shapes and returns the
// decoded values in declaration order. A nil payload is treated as the
// empty payload for the format.
func DecodeArgs(f Format, shapes []Shape, data json.RawMessage) ([]any, error) {
	if len(data) == 0 {
		if f == FormatNamed {
			data = json.RawMessage(`{}`)
		} else {
			data = json.RawMessage(`[]`)
		}
	}
	if f == FormatNamed {
		return decodeNamed(shapes, data)
	}
	return decodeOrdinal(shapes, data)
}

func decodeOrdinal(shapes []Shape, data json.RawMessage) ([]any, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Format: FormatOrdinal, Detail: "payload is not a JSON array"}
	}
	if len(raw) != len(shapes) {
		return nil, &DecodeError{
			Format: FormatOrdinal,
			Detail: fmt.Sprintf("argument count mismatch: declared %d, received %d", len(shapes), len(raw)),
		}
	}
	values := make([]any, len(shapes))
	for i, s := range shapes {
		v, err := decodeValue(s, raw[i])
		if err != nil {
			return nil, &DecodeError{
				Format: FormatOrdinal,
				Detail: fmt.Sprintf("argument %d (%s): %v", i, s.Name, err),
			}
		}
		values[i] = v
	}
	return values, nil
}

func decodeNamed(shapes []Shape, data json.RawMessage) ([]any, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Format: FormatNamed, Detail: "payload is not a JSON object"}
	}
	values := make([]any, len(shapes))
	for i, s := range shapes {
		field, ok := raw[s.Name]
		if !ok {
			if !s.Optional {
				return nil, &DecodeError{
					Format: FormatNamed,
					Detail: fmt.Sprintf("missing required argument %q", s.Name),
				}
			}
			values[i] = s.zero()
			continue
		}
		v, err := decodeValue(s, field)
		if err != nil {
			return nil, &DecodeError{
				Format: FormatNamed,
				Detail: fmt.Sprintf("argument %q: %v", s.Name, err),
			}
		}
		values[i] = v
	}
	// Unknown names in raw are ignored: additive changes on the encoder
	// side must not break older decoders.
	return values, nil
}

func decodeValue(s Shape, data json.RawMessage) (any, error) {
	ptr := reflect.New(s.Type)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

// EncodeResult renders a single result value, or an empty payload when
// the operation returns nothing. Results reuse the argument codec so the
// same path decodes both directions.
func EncodeResult(f Format, shapes []Shape, value any) (json.RawMessage, error) {
	if len(shapes) == 0 {
		return EncodeArgs(f, nil, nil)
	}
	return EncodeArgs(f, shapes, []any{value})
}

// DecodeResult parses a result payload; it returns nil for operations
// declared without a result.
func DecodeResult(f Format, shapes []Shape, data json.RawMessage) (any, error) {
	values, err := DecodeArgs(f, shapes, data)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}
