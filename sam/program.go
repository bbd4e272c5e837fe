// Copyright ©2021 The htsforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sam

import (
	"bytes"
	"errors"
	"fmt"
)

// Program represents a SAM program. Tags other than ID are held as text
// and rendered in the order they were set.
type Program struct {
	id   int32
	uid  string
	tags []tagPair
}

// NewProgram returns a Program with the given unique ID.
func NewProgram(uid string) (*Program, error) {
	if uid == "" {
		return nil, errors.New("sam: no program id provided")
	}
	return &Program{
		id:  -1, // Set when added to a Header.
		uid: uid,
	}, nil
}

// ID returns the header ID for the Program.
func (p *Program) ID() int {
	if p == nil {
		return -1
	}
	return int(p.id)
}

// UID returns the unique program ID for the program.
func (p *Program) UID() string {
	if p == nil {
		return ""
	}
	return p.uid
}

// Name returns the program's name, the PN tag value.
func (p *Program) Name() string { return p.Get(programNameTag) }

// Get returns the string value associated with the given program line
// tag. If the tag is not present the empty string is returned.
func (p *Program) Get(t Tag) string {
	if p == nil {
		return ""
	}
	if t == idTag {
		return p.uid
	}
	for _, tp := range p.tags {
		if t == tp.tag {
			return tp.value
		}
	}
	return ""
}

// Set sets the value associated with the given program line tag to the
// specified value. If value is the empty string the tag is deleted.
func (p *Program) Set(t Tag, value string) error {
	if t == idTag {
		if value == "" {
			return errors.New("sam: no program id provided")
		}
		p.uid = value
		return nil
	}
	if value == "" {
		for i, tp := range p.tags {
			if t == tp.tag {
				copy(p.tags[i:], p.tags[i+1:])
				p.tags = p.tags[:len(p.tags)-1]
				return nil
			}
		}
		return nil
	}
	for i, tp := range p.tags {
		if t == tp.tag {
			p.tags[i].value = value
			return nil
		}
	}
	p.tags = append(p.tags, tagPair{tag: t, value: value})
	return nil
}

// Clone returns a deep copy of the Program.
func (p *Program) Clone() *Program {
	if p == nil {
		return nil
	}
	cp := *p
	cp.id = -1
	cp.tags = make([]tagPair, len(p.tags))
	copy(cp.tags, p.tags)
	return &cp
}

// String returns a string representation of the program according to the
// SAM specification section 1.3.
func (p *Program) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "@PG\tID:%s", p.uid)
	for _, tp := range p.tags {
		fmt.Fprintf(&buf, "\t%s:%s", tp.tag, tp.value)
	}
	return buf.String()
}
