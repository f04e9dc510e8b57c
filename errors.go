package qualia

import (
	"errors"
	"fmt"

	"github.com/pianohacker/qualia/field"
	"github.com/pianohacker/qualia/internal/schema"
	"github.com/pianohacker/qualia/internal/storelock"
	"github.com/pianohacker/qualia/query"
)

// ErrNotFound reports an operation that references a missing object id or
// property.
var ErrNotFound = errors.New("not found")

// ErrNotUnique reports a single-result accessor (One/OneAs) run against a
// result set whose size is not exactly 1.
var ErrNotUnique = errors.New("not unique")

// ErrTypeMismatch reports a shape projection encountering a stored variant
// that does not match the declared field type. Queries do not return it: a
// predicate on a field whose values are of another variant matches no rows
// of that field (integer and date equality also match the literal as a
// phrase token).
var ErrTypeMismatch = errors.New("type mismatch")

// ErrCorruptData re-exports field.ErrCorruptData: decoding a stored value
// failed its tag check. The same sentinel value is used throughout, so
// errors.Is works across package boundaries.
var ErrCorruptData = field.ErrCorruptData

// ErrSchemaMismatch re-exports internal/schema's sentinel: the store file
// carries an unrecognized schema_version stamp.
var ErrSchemaMismatch = schema.ErrSchemaMismatch

// ErrBusy re-exports internal/storelock's sentinel: another Store already
// holds the exclusive lock on this file.
var ErrBusy = storelock.ErrBusy

// ErrIo reports a transient or permanent failure of the backing store that
// is not itself a schema or lock condition.
var ErrIo = errors.New("io error")

// wrapIo attaches ErrIo to a raw driver/backing-store error so
// errors.Is(result, ErrIo) holds, while keeping the original error visible
// in the message.
func wrapIo(err error) error {
	return fmt.Errorf("%w: %v", ErrIo, err)
}

// ParseError reports malformed query text, with a byte offset into the raw
// query string where possible. It is an alias of query.ParseError so the
// same value produced by the parser can be matched with errors.As against
// either name.
type ParseError = query.ParseError
