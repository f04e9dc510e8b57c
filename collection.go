package qualia

import (
	"context"
	"fmt"

	"github.com/pianohacker/qualia/query"
)

// Collection is the result of a Query: a lazy, single-pass cursor over
// matching object ids. Iterating does not pin storage — each Next re-enters
// the index rather than holding rows open across calls.
type Collection struct {
	store *Store
	ids   []int64
	pos   int
}

// Query parses raw and returns a Collection over every object it matches.
// An empty query matches every object currently in the store. Clauses
// conjoin: Query("a: 1, b: 2") returns exactly the intersection of
// Query("a: 1") and Query("b: 2").
func (s *Store) Query(raw string) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	q, err := query.Parse(raw)
	if err != nil {
		return nil, err
	}

	plan, err := compileQuery(q)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	ctx := context.Background()

	rows, err := s.tx.QueryContext(ctx, plan.sql, plan.args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", wrapIo(err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("query: %w", wrapIo(err))
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query: %w", wrapIo(err))
	}

	return &Collection{store: s, ids: ids}, nil
}

// Count reports the number of matching objects.
func (c *Collection) Count() int {
	return len(c.ids)
}

// Next advances the cursor and returns the next matching object. The
// second return is false once the cursor is exhausted, with a zero Object
// and nil error.
func (c *Collection) Next() (Object, bool, error) {
	if c.pos >= len(c.ids) {
		return Object{}, false, nil
	}

	id := c.ids[c.pos]
	c.pos++

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	if err := c.store.checkOpen(); err != nil {
		return Object{}, false, err
	}

	props, err := c.store.getProperties(id)
	if err != nil {
		return Object{}, false, err
	}

	return Object{ID: id, Properties: props}, true, nil
}

// One returns the single matching object. It fails with ErrNotUnique unless
// the result set has exactly one member.
func (c *Collection) One() (Object, error) {
	if c.Count() != 1 {
		return Object{}, fmt.Errorf("one: %w: %d objects match", ErrNotUnique, c.Count())
	}

	c.pos = 0

	obj, ok, err := c.Next()
	if err != nil {
		return Object{}, err
	}
	if !ok {
		return Object{}, fmt.Errorf("one: %w", ErrNotUnique)
	}

	return obj, nil
}

// Iter materializes the full result set, in the same order Next would
// produce it.
func (c *Collection) Iter() ([]Object, error) {
	c.pos = 0

	objs := make([]Object, 0, len(c.ids))
	for {
		obj, ok, err := c.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		objs = append(objs, obj)
	}

	return objs, nil
}

// OneAs projects Collection's single matching object through b. It fails
// with ErrNotUnique unless exactly one object matches.
func OneAs[T any](c *Collection, b *Shape[T]) (T, error) {
	var zero T

	obj, err := c.One()
	if err != nil {
		return zero, err
	}

	return b.FromProperties(obj.ID, obj.Properties)
}

// IterAs projects every matching object through b.
func IterAs[T any](c *Collection, b *Shape[T]) ([]T, error) {
	objs, err := c.Iter()
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(objs))
	for _, obj := range objs {
		v, err := b.FromProperties(obj.ID, obj.Properties)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	return out, nil
}
