package field

import (
	"errors"
	"fmt"
)

// ErrCorruptData reports a stored Field Value whose tag byte is unknown or
// whose date payload does not parse.
// Callers should use errors.Is(err, ErrCorruptData).
var ErrCorruptData = errors.New("corrupt data")

// Tag is the single-byte variant discriminator written alongside a Field
// Value's payload in the row store and the checkpoint journal.
type Tag byte

// Tag values, stable across releases: the persisted layout depends on these
// exact numbers never changing meaning.
const (
	TagPhrase   Tag = 'P'
	TagInteger  Tag = 'I'
	TagObjectID Tag = 'O'
	TagDate     Tag = 'D'
)

func tagFor(k Kind) (Tag, error) {
	switch k {
	case Phrase:
		return TagPhrase, nil
	case Integer:
		return TagInteger, nil
	case ObjectID:
		return TagObjectID, nil
	case Date:
		return TagDate, nil
	default:
		return 0, fmt.Errorf("encode: %w: unknown kind %d", ErrCorruptData, k)
	}
}

// Encoded is a Field Value flattened to the scalar columns the row store and
// journal persist: a tag byte, a string payload (phrases and encoded dates),
// and a numeric payload (integers and object ids).
type Encoded struct {
	Tag     Tag
	Text    string
	Integer int64
}

// Encode losslessly flattens v for storage.
func Encode(v Value) (Encoded, error) {
	tag, err := tagFor(v.kind)
	if err != nil {
		return Encoded{}, err
	}

	switch v.kind {
	case Phrase:
		return Encoded{Tag: tag, Text: v.phrase}, nil
	case Integer, ObjectID:
		return Encoded{Tag: tag, Integer: v.integer}, nil
	case Date:
		return Encoded{Tag: tag, Text: v.day.String()}, nil
	default:
		return Encoded{}, fmt.Errorf("encode: %w: unknown kind %d", ErrCorruptData, v.kind)
	}
}

// Decode reconstructs a Value from its encoded form. An unrecognized tag, or
// a date payload that is not a valid YYYY-MM-DD date, fails with
// [ErrCorruptData]; these are the only ways Decode can fail.
func Decode(e Encoded) (Value, error) {
	switch e.Tag {
	case TagPhrase:
		return NewPhrase(e.Text), nil
	case TagInteger:
		return NewInteger(e.Integer), nil
	case TagObjectID:
		return NewObjectID(e.Integer), nil
	case TagDate:
		d, err := ParseDay(e.Text)
		if err != nil {
			return Value{}, fmt.Errorf("decode: %w: %v", ErrCorruptData, err)
		}

		return NewDate(d), nil
	default:
		return Value{}, fmt.Errorf("decode: %w: unknown tag %q", ErrCorruptData, e.Tag)
	}
}

// NumericKey returns the sortable numeric key used for the integer/date range
// index, and ok=false for values with no natural numeric ordering (phrases).
func NumericKey(v Value) (int64, bool) {
	switch v.kind {
	case Integer, ObjectID:
		return v.integer, true
	case Date:
		return int64(v.day.Year)*10000 + int64(v.day.Month)*100 + int64(v.day.Day), true
	default:
		return 0, false
	}
}
