package qualia

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pianohacker/qualia/field"
)

// invKind tags the variant of a single primitive inverse recorded in the
// checkpoint journal.
type invKind int

const (
	// invDelete inverts an add: delete the whole object. No snapshot is
	// needed since the object's id alone is enough to remove it.
	invDelete invKind = iota

	// invInsert inverts a delete: reinsert the object from a full
	// property-bag snapshot taken at delete time.
	invInsert

	// invSet inverts a set (or one half of a rename): restore a single
	// property's values to what they were immediately before the set.
	invSet
)

// invOp is one primitive inverse. Only the fields matching Kind are
// meaningful: invDelete uses only ID; invInsert uses ID and Properties;
// invSet uses ID, Name and Values.
type invOp struct {
	Kind invKind
	ID   int64

	Name   string
	Values []field.Encoded

	Properties map[string][]field.Encoded
}

// checkpointBody is the JSON form persisted in checkpoints.body.
type checkpointBody struct {
	Ops []invOp
}

func (s *Store) recordInverse(op invOp) {
	s.pending = append(s.pending, op)
}

// Commit seals the pending checkpoint onto the journal stack and opens a
// fresh transaction for subsequent mutations. It is a no-op if nothing is
// pending.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	if len(s.pending) == 0 {
		return nil
	}

	ctx := context.Background()

	body, err := json.Marshal(checkpointBody{Ops: s.pending})
	if err != nil {
		return fmt.Errorf("commit: encode checkpoint: %w", err)
	}

	if _, err := s.tx.ExecContext(ctx, `INSERT INTO checkpoints (body) VALUES (?)`, body); err != nil {
		_ = s.tx.Rollback()
		s.tx = nil
		return fmt.Errorf("commit: write checkpoint: %w", wrapIo(err))
	}

	if err := s.tx.Commit(); err != nil {
		s.tx = nil
		return fmt.Errorf("commit: %w", wrapIo(err))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.tx = nil
		return fmt.Errorf("commit: begin next transaction: %w", wrapIo(err))
	}

	s.tx = tx
	s.pending = nil

	return nil
}

// Undo pops the most recently sealed checkpoint and applies its inverses, in
// reverse order, as a single atomic batch. Undo does not itself record a new
// checkpoint. An empty journal makes Undo a silent no-op.
func (s *Store) Undo() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	ctx := context.Background()

	var seq int64
	var body []byte

	err := s.tx.QueryRowContext(ctx,
		`SELECT seq, body FROM checkpoints ORDER BY seq DESC LIMIT 1`,
	).Scan(&seq, &body)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("undo: read checkpoint: %w", wrapIo(err))
	}

	var cp checkpointBody
	if err := json.Unmarshal(body, &cp); err != nil {
		return fmt.Errorf("undo: %w: decode checkpoint: %v", ErrCorruptData, err)
	}

	for i := len(cp.Ops) - 1; i >= 0; i-- {
		if err := s.applyInverse(ctx, cp.Ops[i]); err != nil {
			_ = s.tx.Rollback()
			s.tx = nil
			return fmt.Errorf("undo: %w", err)
		}
	}

	if _, err := s.tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE seq = ?`, seq); err != nil {
		_ = s.tx.Rollback()
		s.tx = nil
		return fmt.Errorf("undo: remove checkpoint: %w", wrapIo(err))
	}

	if err := s.tx.Commit(); err != nil {
		s.tx = nil
		return fmt.Errorf("undo: %w", wrapIo(err))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.tx = nil
		return fmt.Errorf("undo: begin next transaction: %w", wrapIo(err))
	}

	s.tx = tx

	return nil
}

func (s *Store) applyInverse(ctx context.Context, op invOp) error {
	switch op.Kind {
	case invDelete:
		return s.deleteObjectRows(ctx, op.ID)
	case invInsert:
		return s.insertObjectRows(ctx, op.ID, op.Properties)
	case invSet:
		return s.setPropertyRows(ctx, op.ID, op.Name, op.Values)
	default:
		return fmt.Errorf("%w: unknown inverse op kind %d", ErrCorruptData, op.Kind)
	}
}
