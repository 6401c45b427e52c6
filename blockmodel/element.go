/*
Package blockmodel converts between tables and grid elements, the persisted
form of a block model.

An element carries its geometry, one attribute array per stored column in C
order, and metadata holding calculated attribute definitions and an optional
schema.  TableToGrid and GridToTable are pure conversions; persistence is the
job of package storage.
*/
package blockmodel

import (
	"fmt"
	"strings"

	"github.com/janelia-flyem/bgrid/attribute"
	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/expr"
	"github.com/janelia-flyem/bgrid/geometry"
)

// CompositeSeparator joins a composite name and a member name.
const CompositeSeparator = "."

// Element is a named block model ready to persist.
type Element struct {
	Name        string
	Description string
	Geometry    geometry.Geometry
	Attributes  []*attribute.Attribute
	Metadata    Metadata
}

// Kind returns the geometry variant.
func (e *Element) Kind() geometry.Kind {
	return e.Geometry.Kind()
}

// SplitName splits "parent.child" into its composite and member names.  The
// composite is empty for a top-level element.
func SplitName(name string) (composite, member string) {
	if i := strings.LastIndex(name, CompositeSeparator); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// Attribute returns a stored attribute by name.
func (e *Element) Attribute(name string) (*attribute.Attribute, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// StoredNames returns stored attribute names in order.
func (e *Element) StoredNames() []string {
	names := make([]string, len(e.Attributes))
	for i, a := range e.Attributes {
		names[i] = a.Name
	}
	return names
}

// AvailableNames returns stored then calculated attribute names.
func (e *Element) AvailableNames() []string {
	return append(e.StoredNames(), e.Metadata.CalculatedAttributes.Names()...)
}

// Validate checks every attribute matches the cell count.
func (e *Element) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("element has no name: %w", bgrid.ErrValue)
	}
	if e.Geometry == nil {
		return fmt.Errorf("element %q has no geometry: %w", e.Name, bgrid.ErrValue)
	}
	n := e.Geometry.NumCells()
	seen := make(map[string]bool, len(e.Attributes))
	for _, a := range e.Attributes {
		if a.Len() != n {
			return fmt.Errorf("element %q attribute %q has %d values for %d cells: %w", e.Name, a.Name, a.Len(), n, bgrid.ErrData)
		}
		if seen[a.Name] {
			return fmt.Errorf("element %q attribute %q: %w", e.Name, a.Name, bgrid.ErrAlreadyExists)
		}
		seen[a.Name] = true
	}
	return nil
}

// SetAttribute adds or, if overwrite is set, replaces a stored attribute.
func (e *Element) SetAttribute(a *attribute.Attribute, overwrite bool) error {
	if n := e.Geometry.NumCells(); a.Len() != n {
		return fmt.Errorf("attribute %q has %d values for %d cells: %w", a.Name, a.Len(), n, bgrid.ErrValue)
	}
	if _, found := e.Metadata.CalculatedAttributes.Get(a.Name); found {
		return fmt.Errorf("attribute %q is calculated: %w", a.Name, bgrid.ErrAlreadyExists)
	}
	for i, old := range e.Attributes {
		if old.Name == a.Name {
			if !overwrite {
				return fmt.Errorf("attribute %q: %w", a.Name, bgrid.ErrAlreadyExists)
			}
			e.Attributes[i] = a
			return nil
		}
	}
	e.Attributes = append(e.Attributes, a)
	return nil
}

// RemoveAttribute deletes a stored or calculated attribute.
func (e *Element) RemoveAttribute(name string) error {
	for i, a := range e.Attributes {
		if a.Name == name {
			e.Attributes = append(e.Attributes[:i:i], e.Attributes[i+1:]...)
			return nil
		}
	}
	calcs := e.Metadata.CalculatedAttributes
	for i, c := range calcs {
		if c.Name == name {
			e.Metadata.CalculatedAttributes = append(calcs[:i:i], calcs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("attribute %q in element %q: %w", name, e.Name, bgrid.ErrNotFound)
}

// AddCalculated records calculated attribute definitions after checking they
// parse, resolve and are acyclic.  Existing definitions with the same name are
// replaced.  On error the element is unchanged.
func (e *Element) AddCalculated(defs ...Calculated) error {
	prev := e.Metadata.CalculatedAttributes
	calcs := append(CalculatedAttributes(nil), prev...)
	for _, def := range defs {
		if _, stored := e.Attribute(def.Name); stored {
			return fmt.Errorf("calculated attribute %q shadows a stored attribute: %w", def.Name, bgrid.ErrAlreadyExists)
		}
		if _, err := expr.Parse(def.Expression); err != nil {
			return err
		}
		replaced := false
		for i, c := range calcs {
			if c.Name == def.Name {
				calcs[i] = def
				replaced = true
			}
		}
		if !replaced {
			calcs = append(calcs, def)
		}
	}
	e.Metadata.CalculatedAttributes = calcs
	if err := newResolver(e).check(calcs.Names()); err != nil {
		e.Metadata.CalculatedAttributes = prev
		return err
	}
	return nil
}
