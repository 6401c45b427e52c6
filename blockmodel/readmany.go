package blockmodel

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/geometry"
	"github.com/janelia-flyem/bgrid/table"
)

// Getter fetches elements by name.
type Getter interface {
	GetElement(ctx context.Context, name string) (*Element, error)
}

// Request names an element and the attributes to read from it.  Nil
// Attributes means all.
type Request struct {
	Name       string
	Attributes []string
}

// ReadMany decodes several elements in parallel and joins their columns into
// one table.  Every element must have a congruent geometry.  A query is
// applied to the joined columns.
func ReadMany(ctx context.Context, g Getter, reqs []Request, query string) (*table.Table, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("no block models requested: %w", bgrid.ErrValue)
	}
	tables := make([]*table.Table, len(reqs))
	geoms := make([]geometry.Geometry, len(reqs))

	eg, ctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		eg.Go(func() error {
			el, err := g.GetElement(ctx, req.Name)
			if err != nil {
				return err
			}
			t, err := GridToTable(el, ReadOptions{Attributes: req.Attributes})
			if err != nil {
				return err
			}
			tables[i], geoms[i] = t, el.Geometry
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	merged := tables[0]
	for i := 1; i < len(reqs); i++ {
		if !geometry.Congruent(geoms[0], geoms[i]) {
			return nil, fmt.Errorf("block model %q is not congruent with %q: %w", reqs[i].Name, reqs[0].Name, bgrid.ErrValue)
		}
		for _, col := range tables[i].Columns() {
			if err := merged.AddColumn(col); err != nil {
				return nil, fmt.Errorf("joining %q: %v: %w", reqs[i].Name, err, bgrid.ErrValue)
			}
		}
	}
	if query != "" {
		return FilterTable(merged, query)
	}
	return merged, nil
}
