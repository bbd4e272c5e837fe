// Copyright ©2021 The htsforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sam

import (
	"bytes"
	"errors"
	"fmt"
)

// tagPair is a header line tag and its text value.
type tagPair struct {
	tag   Tag
	value string
}

// ReadGroup represents a sequencing read group. Tags other than ID are
// held as text and rendered in the order they were set.
type ReadGroup struct {
	id   int32
	name string
	tags []tagPair
}

// NewReadGroup returns a ReadGroup with the given unique name.
func NewReadGroup(name string) (*ReadGroup, error) {
	if name == "" {
		return nil, errors.New("sam: no read group name provided")
	}
	return &ReadGroup{
		id:   -1, // Set when added to a Header.
		name: name,
	}, nil
}

// ID returns the header ID for the ReadGroup.
func (r *ReadGroup) ID() int {
	if r == nil {
		return -1
	}
	return int(r.id)
}

// Name returns the read group's name.
func (r *ReadGroup) Name() string {
	if r == nil {
		return "*"
	}
	return r.name
}

// Get returns the string value associated with the given read group line
// tag. If the tag is not present the empty string is returned.
func (r *ReadGroup) Get(t Tag) string {
	if t == idTag {
		return r.Name()
	}
	for _, tp := range r.tags {
		if t == tp.tag {
			return tp.value
		}
	}
	return ""
}

// Set sets the value associated with the given read group line tag to
// the specified value. If value is the empty string the tag is deleted.
func (r *ReadGroup) Set(t Tag, value string) error {
	if t == idTag {
		if value == "" {
			return errors.New("sam: no read group name provided")
		}
		r.name = value
		return nil
	}
	if value == "" {
		for i, tp := range r.tags {
			if t == tp.tag {
				copy(r.tags[i:], r.tags[i+1:])
				r.tags = r.tags[:len(r.tags)-1]
				return nil
			}
		}
		return nil
	}
	for i, tp := range r.tags {
		if t == tp.tag {
			r.tags[i].value = value
			return nil
		}
	}
	r.tags = append(r.tags, tagPair{tag: t, value: value})
	return nil
}

// Clone returns a deep copy of the ReadGroup.
func (r *ReadGroup) Clone() *ReadGroup {
	if r == nil {
		return nil
	}
	cr := *r
	cr.id = -1
	cr.tags = make([]tagPair, len(r.tags))
	copy(cr.tags, r.tags)
	return &cr
}

// String returns a string representation of the read group according to
// the SAM specification section 1.3.
func (r *ReadGroup) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "@RG\tID:%s", r.name)
	for _, tp := range r.tags {
		fmt.Fprintf(&buf, "\t%s:%s", tp.tag, tp.value)
	}
	return buf.String()
}
