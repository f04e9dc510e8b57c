package qualia

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pianohacker/qualia/field"
)

// Properties is an object's property bag: a mapping from property name to
// one or more Field Values. A name with zero values is equivalent to the
// name being absent.
type Properties map[string][]field.Value

// Object is a single result from a Collection: an object id paired with its
// property bag.
type Object struct {
	ID         int64
	Properties Properties
}

// storedValue is a Field Value flattened to the columns properties actually
// persists: the encoded scalar plus whichever range-queryable key applies.
type storedValue struct {
	Encoded    field.Encoded
	NumericKey sql.NullInt64
	DateKey    sql.NullInt64
}

func toStored(v field.Value) (storedValue, error) {
	enc, err := field.Encode(v)
	if err != nil {
		return storedValue{}, err
	}

	sv := storedValue{Encoded: enc}

	if nk, ok := field.NumericKey(v); ok {
		if v.Kind() == field.Date {
			sv.DateKey = sql.NullInt64{Int64: nk, Valid: true}
		} else {
			sv.NumericKey = sql.NullInt64{Int64: nk, Valid: true}
		}
	}

	return sv, nil
}

func encodeValues(values []field.Value) ([]field.Encoded, error) {
	encoded := make([]field.Encoded, len(values))
	for i, v := range values {
		enc, err := field.Encode(v)
		if err != nil {
			return nil, err
		}
		encoded[i] = enc
	}
	return encoded, nil
}

// Add inserts a new object with the given properties and records its
// inverse (a plain delete) in the pending checkpoint. The assigned id is
// strictly greater than every id ever assigned by this store.
func (s *Store) Add(properties Properties) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	ctx := context.Background()
	id := s.nextID

	if _, err := s.tx.ExecContext(ctx, `INSERT INTO objects (object_id) VALUES (?)`, id); err != nil {
		return 0, fmt.Errorf("add: %w", wrapIo(err))
	}

	for name, values := range properties {
		if len(values) == 0 {
			continue
		}

		stored := make([]storedValue, 0, len(values))
		for _, v := range values {
			sv, err := toStored(v)
			if err != nil {
				_ = s.tx.Rollback()
				s.tx = nil
				return 0, fmt.Errorf("add: property %q: %w", name, err)
			}
			stored = append(stored, sv)
		}

		if err := s.insertPropertyRows(ctx, id, name, stored); err != nil {
			_ = s.tx.Rollback()
			s.tx = nil
			return 0, fmt.Errorf("add: %w", err)
		}
	}

	if err := s.persistNextObjectID(ctx, id+1); err != nil {
		_ = s.tx.Rollback()
		s.tx = nil
		return 0, fmt.Errorf("add: %w", err)
	}

	s.nextID++
	s.recordInverse(invOp{Kind: invDelete, ID: id})

	return id, nil
}

// Delete removes every property and index entry for id and records a full
// snapshot inverse. Deleting a missing id fails with ErrNotFound and
// records no checkpoint.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	ctx := context.Background()

	exists, err := s.objectExists(ctx, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if !exists {
		return fmt.Errorf("delete: object %d: %w", id, ErrNotFound)
	}

	snapshot, err := s.readEncodedObject(ctx, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	if err := s.deleteObjectRows(ctx, id); err != nil {
		_ = s.tx.Rollback()
		s.tx = nil
		return fmt.Errorf("delete: %w", err)
	}

	s.recordInverse(invOp{Kind: invInsert, ID: id, Properties: snapshot})

	return nil
}

// Set replaces all values for name on id and records the prior values as
// the inverse. Passing an empty value slice removes the property entirely.
// Referencing a missing id fails with ErrNotFound.
func (s *Store) Set(id int64, name string, values []field.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	ctx := context.Background()

	exists, err := s.objectExists(ctx, id)
	if err != nil {
		return fmt.Errorf("set: %w", err)
	}
	if !exists {
		return fmt.Errorf("set: object %d: %w", id, ErrNotFound)
	}

	encoded, err := encodeValues(values)
	if err != nil {
		return fmt.Errorf("set: %w", err)
	}

	if err := s.setProperty(ctx, id, name, encoded); err != nil {
		return fmt.Errorf("set: %w", err)
	}

	return nil
}

// Rename moves the values under oldName to newName on id, recorded as a
// pair of set inverses (one clearing oldName, one populating newName).
// Referencing a missing id fails with ErrNotFound. Any values newName already
// had are replaced; if oldName is absent, newName ends up absent too.
func (s *Store) Rename(id int64, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	ctx := context.Background()

	exists, err := s.objectExists(ctx, id)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	if !exists {
		return fmt.Errorf("rename: object %d: %w", id, ErrNotFound)
	}

	moving, err := s.readEncodedProperty(ctx, id, oldName)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	if err := s.setProperty(ctx, id, oldName, nil); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	if err := s.setProperty(ctx, id, newName, moving); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}

// Get returns id's current property bag, or ErrNotFound.
func (s *Store) Get(id int64) (Properties, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	return s.getProperties(id)
}

// getProperties is Get's body without the Store lock, shared with
// Collection.Next which takes the lock itself per call.
func (s *Store) getProperties(id int64) (Properties, error) {
	ctx := context.Background()

	exists, err := s.objectExists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("get: object %d: %w", id, ErrNotFound)
	}

	encoded, err := s.readEncodedObject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}

	return decodeProperties(encoded)
}

func decodeProperties(encoded map[string][]field.Encoded) (Properties, error) {
	props := make(Properties, len(encoded))
	for name, values := range encoded {
		decoded := make([]field.Value, len(values))
		for i, enc := range values {
			v, err := field.Decode(enc)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			decoded[i] = v
		}
		props[name] = decoded
	}
	return props, nil
}

// setProperty replaces name's rows on id with newValues, recording the
// prior values as an invSet inverse. It is the single path both Set and
// Rename use, so both produce the same kind of checkpoint entry.
func (s *Store) setProperty(ctx context.Context, id int64, name string, newValues []field.Encoded) error {
	old, err := s.readEncodedProperty(ctx, id, name)
	if err != nil {
		return err
	}

	if err := s.setPropertyRows(ctx, id, name, newValues); err != nil {
		_ = s.tx.Rollback()
		s.tx = nil
		return err
	}

	s.recordInverse(invOp{Kind: invSet, ID: id, Name: name, Values: old})

	return nil
}

func (s *Store) objectExists(ctx context.Context, id int64) (bool, error) {
	var dummy int
	err := s.tx.QueryRowContext(ctx, `SELECT 1 FROM objects WHERE object_id = ?`, id).Scan(&dummy)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("check object %d: %w", id, wrapIo(err))
	default:
		return true, nil
	}
}

func (s *Store) readEncodedProperty(ctx context.Context, id int64, name string) ([]field.Encoded, error) {
	rows, err := s.tx.QueryContext(ctx,
		`SELECT value_tag, value_text, value_int FROM properties
		 WHERE object_id = ? AND name = ? ORDER BY rowid`,
		id, name,
	)
	if err != nil {
		return nil, fmt.Errorf("read property %q on object %d: %w", name, id, wrapIo(err))
	}
	defer rows.Close()

	var values []field.Encoded
	for rows.Next() {
		enc, err := scanEncoded(rows)
		if err != nil {
			return nil, fmt.Errorf("read property %q on object %d: %w", name, id, wrapIo(err))
		}
		values = append(values, enc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read property %q on object %d: %w", name, id, wrapIo(err))
	}

	return values, nil
}

func (s *Store) readEncodedObject(ctx context.Context, id int64) (map[string][]field.Encoded, error) {
	rows, err := s.tx.QueryContext(ctx,
		`SELECT name, value_tag, value_text, value_int FROM properties
		 WHERE object_id = ? ORDER BY rowid`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("read object %d: %w", id, wrapIo(err))
	}
	defer rows.Close()

	props := map[string][]field.Encoded{}
	for rows.Next() {
		var name string
		var tag string
		var text sql.NullString
		var integer sql.NullInt64
		if err := rows.Scan(&name, &tag, &text, &integer); err != nil {
			return nil, fmt.Errorf("read object %d: %w", id, wrapIo(err))
		}

		enc := field.Encoded{Tag: field.Tag(tag[0])}
		if text.Valid {
			enc.Text = text.String
		}
		if integer.Valid {
			enc.Integer = integer.Int64
		}

		props[name] = append(props[name], enc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read object %d: %w", id, wrapIo(err))
	}

	return props, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEncoded(r rowScanner) (field.Encoded, error) {
	var tag string
	var text sql.NullString
	var integer sql.NullInt64
	if err := r.Scan(&tag, &text, &integer); err != nil {
		return field.Encoded{}, err
	}

	enc := field.Encoded{Tag: field.Tag(tag[0])}
	if text.Valid {
		enc.Text = text.String
	}
	if integer.Valid {
		enc.Integer = integer.Int64
	}

	return enc, nil
}

// insertPropertyRows writes one properties row and, for phrase values, one
// tokens row per token, for every value of name on id.
func (s *Store) insertPropertyRows(ctx context.Context, id int64, name string, stored []storedValue) error {
	for _, sv := range stored {
		var text sql.NullString
		var integer sql.NullInt64

		switch sv.Encoded.Tag {
		case field.TagPhrase, field.TagDate:
			text = sql.NullString{String: sv.Encoded.Text, Valid: true}
		case field.TagInteger, field.TagObjectID:
			integer = sql.NullInt64{Int64: sv.Encoded.Integer, Valid: true}
		}

		_, err := s.tx.ExecContext(ctx, `
			INSERT INTO properties (object_id, name, value_tag, value_text, value_int, numeric_key, date_key)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, name, string(sv.Encoded.Tag), text, integer, sv.NumericKey, sv.DateKey,
		)
		if err != nil {
			return fmt.Errorf("insert property %q on object %d: %w", name, id, wrapIo(err))
		}

		if sv.Encoded.Tag == field.TagPhrase {
			for _, tok := range field.Tokenize(sv.Encoded.Text) {
				_, err := s.tx.ExecContext(ctx,
					`INSERT INTO tokens (object_id, name, token) VALUES (?, ?, ?)`,
					id, name, tok,
				)
				if err != nil {
					return fmt.Errorf("insert token for property %q on object %d: %w", name, id, wrapIo(err))
				}
			}
		}
	}

	return nil
}

// insertEncodedPropertyRows is insertPropertyRows for values already in
// their persisted Encoded form (the checkpoint journal's snapshot
// representation), recomputing the numeric/date keys by decoding.
func (s *Store) insertEncodedPropertyRows(ctx context.Context, id int64, name string, values []field.Encoded) error {
	stored := make([]storedValue, 0, len(values))
	for _, enc := range values {
		v, err := field.Decode(enc)
		if err != nil {
			return fmt.Errorf("%w: restoring property %q on object %d: %v", ErrCorruptData, name, id, err)
		}
		sv, err := toStored(v)
		if err != nil {
			return fmt.Errorf("restoring property %q on object %d: %w", name, id, err)
		}
		stored = append(stored, sv)
	}

	return s.insertPropertyRows(ctx, id, name, stored)
}

func (s *Store) deletePropertyRows(ctx context.Context, id int64, name string) error {
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM tokens WHERE object_id = ? AND name = ?`, id, name); err != nil {
		return fmt.Errorf("clear tokens for property %q on object %d: %w", name, id, wrapIo(err))
	}
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM properties WHERE object_id = ? AND name = ?`, id, name); err != nil {
		return fmt.Errorf("clear property %q on object %d: %w", name, id, wrapIo(err))
	}
	return nil
}

// setPropertyRows clears whatever rows name currently has on id and
// reinserts values in their place; an empty values removes the property.
func (s *Store) setPropertyRows(ctx context.Context, id int64, name string, values []field.Encoded) error {
	if err := s.deletePropertyRows(ctx, id, name); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	return s.insertEncodedPropertyRows(ctx, id, name, values)
}

func (s *Store) deleteObjectRows(ctx context.Context, id int64) error {
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM tokens WHERE object_id = ?`, id); err != nil {
		return fmt.Errorf("delete tokens for object %d: %w", id, wrapIo(err))
	}
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM properties WHERE object_id = ?`, id); err != nil {
		return fmt.Errorf("delete properties for object %d: %w", id, wrapIo(err))
	}
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM objects WHERE object_id = ?`, id); err != nil {
		return fmt.Errorf("delete object %d: %w", id, wrapIo(err))
	}
	return nil
}

func (s *Store) insertObjectRows(ctx context.Context, id int64, props map[string][]field.Encoded) error {
	if _, err := s.tx.ExecContext(ctx, `INSERT INTO objects (object_id) VALUES (?)`, id); err != nil {
		return fmt.Errorf("reinsert object %d: %w", id, wrapIo(err))
	}

	for name, values := range props {
		if err := s.insertEncodedPropertyRows(ctx, id, name, values); err != nil {
			return err
		}
	}

	return nil
}
