package model

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// ValueKind discriminates the payload variants a store value can carry
type ValueKind string

const (
	// ValueText is a plain text payload stored as-is
	ValueText ValueKind = "text"
	// ValueObject is a structured payload stored as canonical JSON
	ValueObject ValueKind = "object"
	// ValueBinaryRef is a reference (URL or object key) to binary content
	// kept outside the store
	ValueBinaryRef ValueKind = "binary_ref"
)

// Value is the tagged union for payloads held by the key/value store.
// The original dynamic payloads (arbitrary JSON-able content) are
// represented explicitly so callers get exhaustiveness instead of runtime
// type inspection.
type Value struct {
	kind   ValueKind
	text   string
	object json.RawMessage
	ref    string
}

const binaryRefField = "$binary_ref"

// Text creates a plain text Value
func Text(s string) Value {
	return Value{kind: ValueText, text: s}
}

// Object creates a structured Value by marshalling v to canonical JSON
func Object(v any) (Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Value{}, goerr.Wrap(err, "failed to marshal object value")
	}
	return Value{kind: ValueObject, object: raw}, nil
}

// RawObject creates a structured Value from pre-marshalled JSON
func RawObject(raw json.RawMessage) Value {
	return Value{kind: ValueObject, object: raw}
}

// BinaryRef creates a Value referencing external binary content
func BinaryRef(ref string) Value {
	return Value{kind: ValueBinaryRef, ref: ref}
}

// Kind returns the discriminator of the union
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsZero reports whether the value is the zero Value (absent)
func (v Value) IsZero() bool {
	return v.kind == ""
}

// Text returns the textual payload. For object values it returns the
// serialized JSON, for binary references the reference itself, so it is
// always safe to use for display or substring matching.
func (v Value) Text() string {
	switch v.kind {
	case ValueObject:
		return string(v.object)
	case ValueBinaryRef:
		return v.ref
	default:
		return v.text
	}
}

// Ref returns the binary reference, or empty for other kinds
func (v Value) Ref() string {
	if v.kind == ValueBinaryRef {
		return v.ref
	}
	return ""
}

// Decode unmarshals an object value into out
func (v Value) Decode(out any) error {
	if v.kind != ValueObject {
		return goerr.New("value is not an object", goerr.V("kind", v.kind))
	}
	if err := json.Unmarshal(v.object, out); err != nil {
		return goerr.Wrap(err, "failed to decode object value")
	}
	return nil
}

// Encode serializes the value to its wire form: text is stored as-is,
// objects as canonical JSON, binary references as a one-field JSON object.
// The same accessor therefore works for structured and scalar values.
func (v Value) Encode() string {
	switch v.kind {
	case ValueObject:
		return string(v.object)
	case ValueBinaryRef:
		raw, _ := json.Marshal(map[string]string{binaryRefField: v.ref})
		return string(raw)
	default:
		return v.text
	}
}

// DecodeWire reconstructs a Value from its wire form. Only JSON objects
// and arrays are recognized as structured values; anything that fails
// structured decoding is returned as raw text. This is the documented
// forward-compatibility fallback, not an error: producers writing plain
// strings must stay readable. A consequence is that scalar JSON (numbers,
// booleans) round-trips as text.
func DecodeWire(s string) Value {
	trimmed := firstByte(s)
	if trimmed != '{' && trimmed != '[' {
		return Text(s)
	}
	if !json.Valid([]byte(s)) {
		return Text(s)
	}
	if trimmed == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(s), &fields); err == nil {
			if raw, ok := fields[binaryRefField]; ok && len(fields) == 1 {
				var ref string
				if err := json.Unmarshal(raw, &ref); err == nil {
					return BinaryRef(ref)
				}
			}
		}
	}
	return RawObject(json.RawMessage(s))
}

func firstByte(s string) byte {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return s[i]
		}
	}
	return 0
}
