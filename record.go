// Package storagelru provides the record format and shared types for a caching
// layer built on top of an arbitrary key-value storage backend.
package storagelru

import (
	"bytes"
	"errors"
	"strconv"
)

// CurrentVersion is the version tag written into every record header.
const CurrentVersion = "1"

// DefaultPriority is the eviction priority given to items stored without one.
const DefaultPriority = 3

const (
	headerOpen  = '['
	headerClose = ']'
	headerSep   = ":"
	fieldCount  = 6
)

var (
	// ErrInvalidMeta is returned by Format when the metadata violates the
	// positivity invariants.
	ErrInvalidMeta = errors.New("invalid meta")

	// ErrMissingMeta is returned by Parse when the record has no header.
	ErrMissingMeta = errors.New("missing meta")

	// ErrFieldCount is returned by Parse when the header does not hold
	// exactly six fields.
	ErrFieldCount = errors.New("invalid number of meta fields")

	// ErrInvalidFields is returned by Parse when a header field is not a
	// number or violates an invariant.
	ErrInvalidFields = errors.New("invalid meta fields")
)

// Meta is the per-item metadata embedded in front of every stored value.
// All timestamps are unix seconds.
type Meta struct {
	Version  string
	Access   int64
	Expires  int64
	MaxAge   int64
	Stale    int64
	Priority int
	// Size is the length of the serialized record as stored. It is filled
	// in by Parse and ignored by Format.
	Size int
}

// Valid reports whether m satisfies the invariants required to be written.
func (m Meta) Valid() bool {
	return m.Access > 0 && m.Expires > 0 && m.MaxAge > 0 && m.Stale >= 0 && m.Priority > 0
}

// IsExpired reports whether the max-age window has passed at now.
func (m Meta) IsExpired(now int64) bool {
	return now >= m.Expires
}

// IsTrulyStale reports whether both the max-age and the
// stale-while-revalidate windows have passed at now.
func (m Meta) IsTrulyStale(now int64) bool {
	return now >= m.Expires+m.Stale
}

// Format serializes meta and value into a single record.
// Format: [version:access:expires:maxAge:stale:priority]VALUE
// The value is written verbatim; the header ends at the first ']'.
func Format(meta Meta, value []byte) ([]byte, error) {
	if !meta.Valid() {
		return nil, ErrInvalidMeta
	}

	buf := make([]byte, 0, len(value)+48)
	buf = append(buf, headerOpen)
	buf = append(buf, CurrentVersion...)
	for _, n := range []int64{meta.Access, meta.Expires, meta.MaxAge, meta.Stale, int64(meta.Priority)} {
		buf = append(buf, headerSep...)
		buf = strconv.AppendInt(buf, n, 10)
	}
	buf = append(buf, headerClose)
	buf = append(buf, value...)
	return buf, nil
}

// Parse splits a record produced by Format into its metadata and value.
// The returned value aliases raw.
func Parse(raw []byte) (Meta, []byte, error) {
	pos := bytes.IndexByte(raw, headerClose)
	if pos <= 0 {
		return Meta{}, nil, ErrMissingMeta
	}

	fields := bytes.Split(raw[1:pos], []byte(headerSep))
	if len(fields) != fieldCount {
		return Meta{}, nil, ErrFieldCount
	}

	var nums [fieldCount - 1]int64
	for i, f := range fields[1:] {
		n, err := strconv.ParseInt(string(f), 10, 64)
		if err != nil {
			return Meta{}, nil, ErrInvalidFields
		}
		nums[i] = n
	}

	meta := Meta{
		Version:  string(fields[0]),
		Access:   nums[0],
		Expires:  nums[1],
		MaxAge:   nums[2],
		Stale:    nums[3],
		Priority: int(nums[4]),
		Size:     len(raw),
	}
	if !meta.Valid() {
		return Meta{}, nil, ErrInvalidFields
	}

	return meta, raw[pos+1:], nil
}
