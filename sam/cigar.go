// Copyright ©2021 The htsforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sam

import (
	"bytes"
	"errors"
	"fmt"
)

// A Cigar represents a CIGAR string.
type Cigar []CigarOp

// IsValid returns whether the CIGAR string is valid for a record of the
// given sequence length. Validity is defined by the sum of query consuming
// operations matching the length, clipping operations only being located
// at the ends of the alignment and hard clipping only being outside
// soft clipping.
func (c Cigar) IsValid(length int) bool {
	var start int
	for i, co := range c {
		ct := co.Type()
		if ct == CigarHardClipped && i != 0 && i != len(c)-1 {
			return false
		}
		if ct == CigarSoftClipped && i != start && i != len(c)-1 {
			if c[len(c)-1].Type() != CigarHardClipped || i != len(c)-2 {
				return false
			}
		}
		switch ct {
		case CigarHardClipped:
			start = i + 1
		case CigarSoftClipped:
			start = i + 1
			length -= co.Len()
		default:
			length -= co.Len() * ct.Consumes().Query
		}
	}
	return length == 0
}

// String returns the CIGAR string representation of the Cigar.
func (c Cigar) String() string {
	if len(c) == 0 {
		return "*"
	}
	var b bytes.Buffer
	for _, co := range c {
		fmt.Fprint(&b, co)
	}
	return b.String()
}

// Lengths returns the number of reference and read consumed bases described
// by the Cigar.
func (c Cigar) Lengths() (ref, read int) {
	for _, co := range c {
		con := co.Type().Consumes()
		ref += co.Len() * con.Reference
		read += co.Len() * con.Query
	}
	return ref, read
}

// SoftClips returns the number of soft clipped bases at the left and
// right ends of the alignment described by the Cigar. Hard clipping
// outside the soft clips is ignored.
func (c Cigar) SoftClips() (left, right int) {
	ops := c
	if len(ops) != 0 && ops[0].Type() == CigarHardClipped {
		ops = ops[1:]
	}
	if len(ops) != 0 && ops[len(ops)-1].Type() == CigarHardClipped {
		ops = ops[:len(ops)-1]
	}
	if len(ops) != 0 && ops[0].Type() == CigarSoftClipped {
		left = ops[0].Len()
	}
	if len(ops) > 1 && ops[len(ops)-1].Type() == CigarSoftClipped {
		right = ops[len(ops)-1].Len()
	}
	return left, right
}

// A CigarOp is a single CIGAR operation, packing an operation length and
// type into a single uint32 as described in the BAM specification.
type CigarOp uint32

// NewCigarOp returns a CigarOp with the given type and length. NewCigarOp
// panics if length is negative or greater than 2^28-1.
func NewCigarOp(t CigarOpType, n int) CigarOp {
	if uint64(n) > 1<<28-1 {
		panic("sam: illegal CIGAR op length")
	}
	return CigarOp(t) | (CigarOp(n) << 4)
}

// Type returns the type of the CIGAR operation for the CigarOp.
func (co CigarOp) Type() CigarOpType { return CigarOpType(co & 0xf) }

// Len returns the number of positions affected by the CigarOp CIGAR operation.
func (co CigarOp) Len() int { return int(co >> 4) }

// String returns the string representation of the CigarOp.
func (co CigarOp) String() string { return fmt.Sprintf("%d%s", co.Len(), co.Type()) }

// A CigarOpType represents the type of operation described by a CigarOp.
type CigarOpType byte

const (
	CigarMatch       CigarOpType = iota // Alignment match (can be a sequence match or mismatch).
	CigarInsertion                      // Insertion to the reference.
	CigarDeletion                       // Deletion from the reference.
	CigarSkipped                        // Skipped region from the reference.
	CigarSoftClipped                    // Soft clipping (clipped sequences present in SEQ).
	CigarHardClipped                    // Hard clipping (clipped sequences NOT present in SEQ).
	CigarPadded                         // Padding (silent deletion from padded reference).
	CigarEqual                          // Sequence match.
	CigarMismatch                       // Sequence mismatch.
	lastCigar
)

var cigarOps = []byte("MIDNSHP=X*")

// Consumes returns the CIGAR operation alignment consumption characteristics
// for the CigarOpType.
//
// The Consume values for each of the CigarOpTypes is as follows:
//
//	                    Query  Reference
//	CigarMatch            1        1
//	CigarInsertion        1        0
//	CigarDeletion         0        1
//	CigarSkipped          0        1
//	CigarSoftClipped      1        0
//	CigarHardClipped      0        0
//	CigarPadded           0        0
//	CigarEqual            1        1
//	CigarMismatch         1        1
func (ct CigarOpType) Consumes() Consume { return consume[ct] }

// String returns the string representation of a CigarOpType.
func (ct CigarOpType) String() string {
	if ct >= lastCigar {
		panic("sam: unknown CIGAR operation")
	}
	return string(cigarOps[ct : ct+1])
}

// A Consume describes how CIGAR operations consume alignment bases.
type Consume struct {
	Query, Reference int
}

var consume = []Consume{
	CigarMatch:       {Query: 1, Reference: 1},
	CigarInsertion:   {Query: 1, Reference: 0},
	CigarDeletion:    {Query: 0, Reference: 1},
	CigarSkipped:     {Query: 0, Reference: 1},
	CigarSoftClipped: {Query: 1, Reference: 0},
	CigarHardClipped: {Query: 0, Reference: 0},
	CigarPadded:      {Query: 0, Reference: 0},
	CigarEqual:       {Query: 1, Reference: 1},
	CigarMismatch:    {Query: 1, Reference: 1},
	lastCigar:        {},
}

var cigarOpTypeLookup [256]CigarOpType

func init() {
	for i := range cigarOpTypeLookup {
		cigarOpTypeLookup[i] = lastCigar
	}
	for op, c := range cigarOps[:len(cigarOps)-1] {
		cigarOpTypeLookup[c] = CigarOpType(op)
	}
}

// ParseCigar returns a Cigar parsed from the provided byte slice.
// ParseCigar returns nil if the byte slice is "*".
func ParseCigar(b []byte) (Cigar, error) {
	if len(b) == 1 && b[0] == '*' {
		return nil, nil
	}
	var (
		c   Cigar
		op  CigarOpType
		n   int
		err error
	)
	for i := 0; i < len(b); i++ {
		for n = 0; i < len(b) && b[i] >= '0' && b[i] <= '9'; i++ {
			n *= 10
			n += int(b[i] - '0')
			if n > 1<<28-1 {
				return nil, errors.New("sam: CIGAR op length out of range")
			}
		}
		if i == len(b) {
			return nil, errors.New("sam: unexpected end of CIGAR string")
		}
		op = cigarOpTypeLookup[b[i]]
		if op == lastCigar {
			return nil, fmt.Errorf("sam: failed to parse CIGAR string %q: unknown operation %q", b, b[i])
		}
		c = append(c, NewCigarOp(op, n))
	}
	return c, err
}
