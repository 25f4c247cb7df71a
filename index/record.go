package index

import (
	storagelru "github.com/wolfeidau/storage-lru"
)

// Record is the indexed metadata for one stored item. Records are values:
// the index replaces them wholesale on update and never hands out pointers.
type Record struct {
	// Key is the backend key, prefix included.
	Key string
	storagelru.Meta
	// Bad marks a stored value that could not be parsed. Only Key and Size
	// are meaningful on a bad record.
	Bad bool
}

// RecordFor builds the record for a raw stored value. A value that does not
// parse yields a bad record instead of an error.
func RecordFor(key string, raw []byte) Record {
	meta, _, err := storagelru.Parse(raw)
	if err != nil {
		return Record{Key: key, Bad: true, Meta: storagelru.Meta{Size: len(raw)}}
	}
	return Record{Key: key, Meta: meta}
}

// Patch lists the fields an update changes. Nil fields keep their current
// value.
type Patch struct {
	Access   *int64
	Expires  *int64
	MaxAge   *int64
	Stale    *int64
	Priority *int
	Size     *int
}

// PatchFromMeta returns a patch that overwrites every field with those in m.
func PatchFromMeta(m storagelru.Meta) Patch {
	return Patch{
		Access:   &m.Access,
		Expires:  &m.Expires,
		MaxAge:   &m.MaxAge,
		Stale:    &m.Stale,
		Priority: &m.Priority,
		Size:     &m.Size,
	}
}

// AccessPatch returns a patch that only moves the access time.
func AccessPatch(access int64) Patch {
	return Patch{Access: &access}
}

// apply returns a copy of r with the patch merged in. The result is no longer
// bad.
func (p Patch) apply(r Record) Record {
	if p.Access != nil {
		r.Access = *p.Access
	}
	if p.Expires != nil {
		r.Expires = *p.Expires
	}
	if p.MaxAge != nil {
		r.MaxAge = *p.MaxAge
	}
	if p.Stale != nil {
		r.Stale = *p.Stale
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.Size != nil {
		r.Size = *p.Size
	}
	if r.Version == "" {
		r.Version = storagelru.CurrentVersion
	}
	r.Bad = false
	return r
}
