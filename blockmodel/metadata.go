package blockmodel

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/janelia-flyem/bgrid/bgrid"
)

// Metadata keys with typed fields.  Any other key passes through in Extra.
const (
	keyCalculated = "calculated_attributes"
	keySchema     = "schema"
	keyProfile    = "profile"
)

// Calculated is a named expression over other attributes.
type Calculated struct {
	Name       string
	Expression string
}

// CalculatedAttributes keeps definitions in insertion order.  It encodes as a
// JSON object of name to expression.
type CalculatedAttributes []Calculated

// Get returns the expression for a name.
func (c CalculatedAttributes) Get(name string) (string, bool) {
	for _, calc := range c {
		if calc.Name == name {
			return calc.Expression, true
		}
	}
	return "", false
}

// Names returns the defined names in order.
func (c CalculatedAttributes) Names() []string {
	names := make([]string, len(c))
	for i, calc := range c {
		names[i] = calc.Name
	}
	return names
}

func (c CalculatedAttributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, calc := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(calc.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(calc.Expression)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *CalculatedAttributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("calculated attributes must be a JSON object: %w", bgrid.ErrValue)
	}
	var out CalculatedAttributes
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var expr string
		if err := dec.Decode(&expr); err != nil {
			return fmt.Errorf("calculated attribute %q: %v: %w", name, err, bgrid.ErrValue)
		}
		out = append(out, Calculated{Name: name, Expression: expr})
	}
	*c = out
	return nil
}

// Metadata is the typed metadata record of a grid element.
type Metadata struct {
	CalculatedAttributes CalculatedAttributes

	// Schema is an opaque persisted schema document.
	Schema json.RawMessage

	// Profile is an opaque persisted profile document.
	Profile json.RawMessage

	// Extra holds unknown keys unchanged.
	Extra map[string]json.RawMessage
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	if len(m.CalculatedAttributes) != 0 {
		calc, err := m.CalculatedAttributes.MarshalJSON()
		if err != nil {
			return nil, err
		}
		out[keyCalculated] = calc
	}
	if len(m.Schema) != 0 {
		out[keySchema] = m.Schema
	}
	if len(m.Profile) != 0 {
		out[keyProfile] = m.Profile
	}
	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Metadata{}
	for k, v := range raw {
		switch k {
		case keyCalculated:
			if err := m.CalculatedAttributes.UnmarshalJSON(v); err != nil {
				return err
			}
		case keySchema:
			m.Schema = v
		case keyProfile:
			m.Profile = v
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]json.RawMessage)
			}
			m.Extra[k] = v
		}
	}
	return nil
}
