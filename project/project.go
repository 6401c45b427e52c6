/*
Package project manages the block models of one store: it validates and
converts tables on write, decodes elements on read, and records every change
in the project changelog.

Element names may be composite, "parent.child", grouping members under a
parent that is only a naming convention.
*/
package project

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/janelia-flyem/bgrid/attribute"
	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/blockmodel"
	"github.com/janelia-flyem/bgrid/geometry"
	"github.com/janelia-flyem/bgrid/schema"
	"github.com/janelia-flyem/bgrid/storage"
	"github.com/janelia-flyem/bgrid/table"
)

// Project wraps a store for one user.
type Project struct {
	store     storage.Store
	user      string
	publisher storage.Publisher

	// mu serializes read-modify-write of elements and the changelog.  It is
	// shared by the views returned from As.
	mu *sync.Mutex
}

// Option configures a Project.
type Option func(*Project)

// WithPublisher sends every change message to p as well as the changelog.
func WithPublisher(p storage.Publisher) Option {
	return func(proj *Project) {
		proj.publisher = p
	}
}

// Open returns a project over the store, recording its creation if the store
// has no changelog yet.
func Open(ctx context.Context, store storage.Store, user string, opts ...Option) (*Project, error) {
	p := &Project{store: store, user: user, mu: new(sync.Mutex)}
	for _, opt := range opts {
		opt(p)
	}
	md, err := store.Project(ctx)
	if err != nil {
		return nil, err
	}
	if len(md.Changelog) == 0 {
		if err := p.logChange(ctx, "", storage.ActionCreate, "Project created"); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// As returns a view of the project that records changes under another user.
func (p *Project) As(user string) *Project {
	if user == "" || user == p.user {
		return p
	}
	view := *p
	view.user = user
	return &view
}

// User returns the name recorded in change messages.
func (p *Project) User() string {
	return p.user
}

// Store returns the underlying store.
func (p *Project) Store() storage.Store {
	return p.store
}

func (p *Project) logChange(ctx context.Context, element string, action storage.Action, description string) error {
	msg := storage.NewChangeMessage(element, p.user, action, description)
	md, err := p.store.Project(ctx)
	if err != nil {
		return err
	}
	md.Changelog = append(md.Changelog, msg)
	if err := p.store.PutProject(ctx, md); err != nil {
		return err
	}
	if p.publisher != nil {
		if err := p.publisher.Publish(msg); err != nil {
			bgrid.Errorf("Unable to publish change to %q: %v\n", element, err)
		}
	}
	return nil
}

// Changelog returns all change messages in order.
func (p *Project) Changelog(ctx context.Context) ([]storage.ChangeMessage, error) {
	md, err := p.store.Project(ctx)
	if err != nil {
		return nil, err
	}
	return md.Changelog, nil
}

// CheckName verifies a possibly composite element name has no empty parts.
func CheckName(name string) error {
	for _, part := range strings.Split(name, blockmodel.CompositeSeparator) {
		if strings.TrimSpace(part) == "" {
			return fmt.Errorf("bad element name %q: %w", name, bgrid.ErrValue)
		}
	}
	return nil
}

// WriteOptions control WriteBlockModel.
type WriteOptions struct {
	// Schema validates and preprocesses the table before conversion and is
	// persisted with the element.
	Schema *schema.Schema

	AllowOverwrite bool

	// Kind defaults to Tensor if the table index carries dx, dy, dz and
	// Regular otherwise.
	Kind geometry.Kind

	// Description defaults to the schema summary.
	Description string
}

// WriteBlockModel converts a table and stores it.  Columns the schema defines
// by x-calculation are stored as calculated attributes instead of values.
func (p *Project) WriteBlockModel(ctx context.Context, t *table.Table, name string, opts WriteOptions) (*blockmodel.Element, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	tlog := bgrid.NewTimeLog()
	var calcs []blockmodel.Calculated
	if opts.Schema != nil {
		bgrid.Infof("Validating %d rows for %q\n", t.Len(), name)
		validated, err := opts.Schema.Validate(t)
		if err != nil {
			return nil, fmt.Errorf("block model %q: %w", name, err)
		}
		for _, c := range opts.Schema.Calculations() {
			if err := validated.DropColumn(c.Name); err != nil {
				return nil, err
			}
			calcs = append(calcs, blockmodel.Calculated{Name: c.Name, Expression: c.Calculation})
		}
		t = validated
	}

	kind := opts.Kind
	if kind == 0 {
		kind = geometry.Regular
		if t.Index.IsTensor() {
			kind = geometry.Tensor
		}
	}
	el, err := blockmodel.TableToGrid(t, name, kind)
	if err != nil {
		return nil, err
	}
	el.Description = opts.Description
	if opts.Schema != nil {
		el.Metadata.Schema = opts.Schema.Bytes()
		if el.Description == "" {
			el.Description = opts.Schema.Summary()
		}
		if len(calcs) != 0 {
			if err := el.AddCalculated(calcs...); err != nil {
				return nil, fmt.Errorf("block model %q: %w", name, err)
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.PutElement(ctx, el, opts.AllowOverwrite); err != nil {
		return nil, err
	}
	if err := p.logChange(ctx, name, storage.ActionCreate, "BlockModel written"); err != nil {
		return nil, err
	}
	tlog.Infof("Wrote %s %q with %d cells, %d attributes\n", kind, name, el.Geometry.NumCells(), len(el.Attributes))
	return el, nil
}

// ReadBlockModel decodes a stored element into a table.
func (p *Project) ReadBlockModel(ctx context.Context, name string, opts blockmodel.ReadOptions) (*table.Table, error) {
	el, err := p.store.GetElement(ctx, name)
	if err != nil {
		return nil, err
	}
	return blockmodel.GridToTable(el, opts)
}

// ReadBlockModels joins congruent elements into one table.
func (p *Project) ReadBlockModels(ctx context.Context, reqs []blockmodel.Request, query string) (*table.Table, error) {
	return blockmodel.ReadMany(ctx, p.store, reqs, query)
}

// DeleteBlockModel removes an element.
func (p *Project) DeleteBlockModel(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.DeleteElement(ctx, name); err != nil {
		return err
	}
	return p.logChange(ctx, name, storage.ActionDelete, "BlockModel deleted")
}

// modify applies f to a stored element and writes it back with a changelog
// entry.  The element profile is dropped since values may have changed.
func (p *Project) modify(ctx context.Context, name string, action storage.Action, description string, f func(*blockmodel.Element) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.store.GetElement(ctx, name)
	if err != nil {
		return err
	}
	if err := f(el); err != nil {
		return err
	}
	el.Metadata.Profile = nil
	if err := p.store.PutElement(ctx, el, true); err != nil {
		return err
	}
	return p.logChange(ctx, name, action, description)
}

// WriteAttribute stores a column, in C order, as an attribute of an element.
// If the element has a schema describing the column, the column is validated
// and preprocessed first.
func (p *Project) WriteAttribute(ctx context.Context, name string, col table.Series, overwrite bool) error {
	description := fmt.Sprintf("Attribute [%s] written", col.Name())
	return p.modify(ctx, name, storage.ActionUpdate, description, func(el *blockmodel.Element) error {
		if len(el.Metadata.Schema) != 0 {
			validated, err := validateColumn(el, col)
			if err != nil {
				return err
			}
			col = validated
		}
		a, err := attribute.FromSeries(col)
		if err != nil {
			return err
		}
		return el.SetAttribute(a, overwrite)
	})
}

func validateColumn(el *blockmodel.Element, col table.Series) (table.Series, error) {
	sch, err := schema.Parse(el.Metadata.Schema)
	if err != nil {
		return nil, fmt.Errorf("element %q schema: %w", el.Name, err)
	}
	if _, described := sch.Column(col.Name()); !described {
		return col, nil
	}
	sub, err := sch.Subset(col.Name())
	if err != nil {
		return nil, err
	}
	t, err := table.New(el.Geometry.RowIndex(), col)
	if err != nil {
		return nil, err
	}
	validated, err := sub.Validate(t)
	if err != nil {
		return nil, fmt.Errorf("attribute %q: %w", col.Name(), err)
	}
	out, _ := validated.Column(col.Name())
	return out, nil
}

// DeleteAttribute removes a stored or calculated attribute.
func (p *Project) DeleteAttribute(ctx context.Context, name, attr string) error {
	return p.modify(ctx, name, storage.ActionDelete, attr+" deleted", func(el *blockmodel.Element) error {
		return el.RemoveAttribute(attr)
	})
}

// AddCalculatedAttributes records expressions evaluated on read.
func (p *Project) AddCalculatedAttributes(ctx context.Context, name string, defs ...blockmodel.Calculated) error {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	description := fmt.Sprintf("Calculated attributes [%s] added", strings.Join(names, ", "))
	return p.modify(ctx, name, storage.ActionUpdate, description, func(el *blockmodel.Element) error {
		return el.AddCalculated(defs...)
	})
}

// WriteSchema validates the stored attributes against a schema and persists
// it with the element, setting the description to the schema summary.
func (p *Project) WriteSchema(ctx context.Context, name string, s *schema.Schema) error {
	return p.modify(ctx, name, storage.ActionUpdate, "Schema written", func(el *blockmodel.Element) error {
		t, err := blockmodel.GridToTable(el, blockmodel.ReadOptions{Attributes: el.StoredNames()})
		if err != nil {
			return err
		}
		if _, err := s.Validate(t); err != nil {
			return fmt.Errorf("block model %q: %w", name, err)
		}
		el.Metadata.Schema = s.Bytes()
		if summary := s.Summary(); summary != "" {
			el.Description = summary
		}
		return nil
	})
}

// ElementTypes returns the kind of every element.
func (p *Project) ElementTypes(ctx context.Context) (map[string]geometry.Kind, error) {
	infos, err := p.store.ListElements(ctx)
	if err != nil {
		return nil, err
	}
	kinds := make(map[string]geometry.Kind, len(infos))
	for _, info := range infos {
		kinds[info.Name] = info.Kind
	}
	return kinds, nil
}

// BlockModelAttributes returns stored then calculated attribute names.
func (p *Project) BlockModelAttributes(ctx context.Context, name string) ([]string, error) {
	el, err := p.store.GetElement(ctx, name)
	if err != nil {
		return nil, err
	}
	return el.AvailableNames(), nil
}

// Geometry returns the geometry of an element.
func (p *Project) Geometry(ctx context.Context, name string) (geometry.Geometry, error) {
	el, err := p.store.GetElement(ctx, name)
	if err != nil {
		return nil, err
	}
	return el.Geometry, nil
}

// Children returns the full names of the members of a composite, sorted.
func (p *Project) Children(ctx context.Context, parent string) ([]string, error) {
	infos, err := p.store.ListElements(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, info := range infos {
		if composite, _ := blockmodel.SplitName(info.Name); composite == parent {
			names = append(names, info.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}
