/*
Package schema validates tables against a JSON Schema describing one row.

Each row of a table, including its x, y, z (and dx, dy, dz) index levels, is
presented to the validator as a JSON object.  Column properties may carry
extension keywords that prepare the table before validation:

	x-alias        the column may arrive under this name and is renamed
	x-calculation  the column is computed from an expression of other columns
	x-decimals     numeric values are rounded to this many decimals
	x-dtype        the column is coerced to "float", "int", "Int" or "category"

A minimal schema:

	{
	  "title": "Resource model",
	  "description": "Grades for the 2024 estimate",
	  "type": "object",
	  "required": ["au"],
	  "properties": {
	    "au": {"type": "number", "minimum": 0, "x-alias": "gold", "x-decimals": 2},
	    "rock": {"type": "string", "enum": ["granite", "schist"], "x-dtype": "category"}
	  }
	}
*/
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/janelia-flyem/bgrid/bgrid"
)

// Column extension keywords.
const (
	KeyAlias       = "x-alias"
	KeyCalculation = "x-calculation"
	KeyDecimals    = "x-decimals"
	KeyDType       = "x-dtype"
)

// Target types for x-dtype.
const (
	DTypeFloat       = "float"
	DTypeInt         = "int"
	DTypeNullableInt = "Int"
	DTypeCategory    = "category"
)

// Column is a property of the row schema with its extension keywords.
type Column struct {
	Name        string
	Description string
	Alias       string
	Calculation string
	DType       string
	Decimals    *int

	raw json.RawMessage
}

// Schema is a compiled row schema.
type Schema struct {
	Title       string
	Description string
	Required    []string

	// Columns in document order.
	Columns []Column

	raw      []byte
	compiled *jsonschema.Schema
}

type document struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Required    []string        `json:"required"`
	Properties  json.RawMessage `json:"properties"`
}

// Parse compiles a JSON Schema document.
func Parse(data []byte) (*Schema, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("bad schema document: %v: %w", err, bgrid.ErrValue)
	}
	cols, err := parseProperties(doc.Properties)
	if err != nil {
		return nil, err
	}
	compiled, err := jsonschema.CompileString("schema.json", string(data))
	if err != nil {
		return nil, fmt.Errorf("unable to compile schema: %v: %w", err, bgrid.ErrValue)
	}
	return &Schema{
		Title:       doc.Title,
		Description: doc.Description,
		Required:    doc.Required,
		Columns:     cols,
		raw:         append([]byte(nil), data...),
		compiled:    compiled,
	}, nil
}

// ReadFile parses a schema file.
func ReadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// parseProperties reads the properties object keeping document order.
func parseProperties(props json.RawMessage) ([]Column, error) {
	if len(props) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(props))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("schema properties: %v: %w", err, bgrid.ErrValue)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("schema properties must be an object: %w", bgrid.ErrValue)
	}
	var cols []Column
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("schema properties: %v: %w", err, bgrid.ErrValue)
		}
		name, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("schema property %q: %v: %w", name, err, bgrid.ErrValue)
		}
		var ext struct {
			Description string `json:"description"`
			Alias       string `json:"x-alias"`
			Calculation string `json:"x-calculation"`
			DType       string `json:"x-dtype"`
			Decimals    *int   `json:"x-decimals"`
		}
		if err := json.Unmarshal(raw, &ext); err != nil {
			return nil, fmt.Errorf("schema property %q: %v: %w", name, err, bgrid.ErrValue)
		}
		switch ext.DType {
		case "", DTypeFloat, DTypeInt, DTypeNullableInt, DTypeCategory:
		default:
			return nil, fmt.Errorf("schema property %q has unknown %s %q: %w", name, KeyDType, ext.DType, bgrid.ErrValue)
		}
		if ext.Decimals != nil && *ext.Decimals < 0 {
			return nil, fmt.Errorf("schema property %q has negative %s: %w", name, KeyDecimals, bgrid.ErrValue)
		}
		cols = append(cols, Column{
			Name:        name,
			Description: ext.Description,
			Alias:       ext.Alias,
			Calculation: ext.Calculation,
			DType:       ext.DType,
			Decimals:    ext.Decimals,
			raw:         raw,
		})
	}
	return cols, nil
}

// Bytes returns the schema document as given to Parse.
func (s *Schema) Bytes() []byte {
	return append([]byte(nil), s.raw...)
}

// Summary returns "title: description", or whichever of the two is set.
func (s *Schema) Summary() string {
	switch {
	case s.Title != "" && s.Description != "":
		return s.Title + ": " + s.Description
	case s.Title != "":
		return s.Title
	default:
		return s.Description
	}
}

// Column returns the named column definition.
func (s *Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Calculations returns the columns defined by x-calculation.
func (s *Schema) Calculations() []Column {
	var out []Column
	for _, c := range s.Columns {
		if c.Calculation != "" {
			out = append(out, c)
		}
	}
	return out
}

// Subset returns a schema restricted to the named properties.  Only the
// required names among them stay required.
func (s *Schema) Subset(names ...string) (*Schema, error) {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":"object","properties":{`)
	first := true
	for _, c := range s.Columns {
		if !keep[c.Name] {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(c.Name)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(c.raw)
	}
	buf.WriteString(`}`)
	var required []string
	for _, r := range s.Required {
		if keep[r] {
			required = append(required, r)
		}
	}
	if len(required) != 0 {
		req, _ := json.Marshal(required)
		buf.WriteString(`,"required":`)
		buf.Write(req)
	}
	buf.WriteString(`}`)
	return Parse(buf.Bytes())
}
