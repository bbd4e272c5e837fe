// Copyright ©2021 The htsforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"encoding/binary"
	"math"

	"github.com/htsforge/hts/sam"
)

// bamRecordFixed is the fixed portion of an alignment record as laid
// out on the wire, preceding the variable length data.
type bamRecordFixed struct {
	blockSize int32
	refID     int32
	pos       int32
	nLen      uint8
	mapQ      uint8
	bin       uint16
	nCigar    uint16
	flags     uint16
	lSeq      int32
	nextRefID int32
	nextPos   int32
	tLen      int32
}

var (
	lenFieldSize      = binary.Size(bamRecordFixed{}.blockSize)
	bamFixedRemainder = binary.Size(bamRecordFixed{}) - lenFieldSize
)

// cgTag is the auxiliary tag holding the textual CIGAR of an alignment
// whose operation count overflows the 16 bit n_cigar_op field.
var cgTag = sam.NewTag("CG")

// maxCigarOps is the greatest operation count representable in
// n_cigar_op.
const maxCigarOps = 1<<16 - 1

type buffer struct {
	data []byte
	err  error
}

func (b *buffer) len() int { return len(b.data) }

func (b *buffer) bytes(n int) []byte {
	if b.err != nil {
		return nil
	}
	if n < 0 || n > len(b.data) {
		b.err = formatErrorf("truncated record")
		return nil
	}
	s := b.data[:n]
	b.data = b.data[n:]
	return s
}

func (b *buffer) discard(n int) {
	b.bytes(n)
}

func (b *buffer) readUint8() uint8 {
	s := b.bytes(1)
	if s == nil {
		return 0
	}
	return s[0]
}

func (b *buffer) readUint16() uint16 {
	s := b.bytes(2)
	if s == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(s)
}

func (b *buffer) readInt32() int32 {
	return int32(b.readUint32())
}

func (b *buffer) readUint32() uint32 {
	s := b.bytes(4)
	if s == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(s)
}

// unmarshalRecord fills rec from the wire representation in data, which
// holds a complete record without its leading block_size field. The
// variable length sections are parsed according to omit. All parsed
// data is copied so rec does not alias data.
func unmarshalRecord(h *sam.Header, data []byte, omit int, rec *sam.Record) error {
	b := buffer{data: data}

	refID := int(b.readInt32())
	rec.Pos = int(b.readInt32())
	nLen := int(b.readUint8())
	rec.MapQ = b.readUint8()
	b.discard(2) // The bin field is advisory and recalculated on write.
	nCigar := int(b.readUint16())
	rec.Flags = sam.Flags(b.readUint16())
	lSeq := int(b.readInt32())
	nextRefID := int(b.readInt32())
	rec.MatePos = int(b.readInt32())
	rec.TempLen = int(b.readInt32())
	if b.err != nil {
		return b.err
	}

	if nLen < 2 {
		return formatErrorf("invalid read name length")
	}
	if lSeq < 0 || nCigar < 0 {
		return formatErrorf("invalid field length")
	}
	if b.len()-nLen-nCigar*4-(lSeq+1)/2-lSeq < 0 {
		return formatErrorf("invalid block size")
	}

	var err error
	rec.Ref, err = referenceForID(h, refID)
	if err != nil {
		return err
	}
	if nextRefID == refID {
		rec.MateRef = rec.Ref
	} else {
		rec.MateRef, err = referenceForID(h, nextRefID)
		if err != nil {
			return err
		}
	}

	if omit >= AllVariableLengthData {
		rec.Name = ""
		rec.Cigar = nil
		rec.Seq = sam.Seq{}
		rec.Qual = nil
		rec.AuxFields = nil
		return nil
	}

	name := b.bytes(nLen)
	if b.err != nil {
		return b.err
	}
	if name[nLen-1] != 0 {
		return formatErrorf("read name not NUL terminated")
	}
	rec.Name = string(name[:nLen-1])
	if rec.Name == "*" {
		rec.Name = ""
	}

	rec.Cigar, err = readCigarOps(b.bytes(nCigar * 4))
	if err != nil {
		return err
	}

	seq := b.bytes((lSeq + 1) / 2)
	if b.err != nil {
		return b.err
	}
	doublets := make([]sam.Doublet, len(seq))
	for i, d := range seq {
		doublets[i] = sam.Doublet(d)
	}
	rec.Seq = sam.Seq{Length: lSeq, Seq: doublets}

	qual := b.bytes(lSeq)
	if b.err != nil {
		return b.err
	}
	rec.Qual = copyQual(qual)

	if omit >= AuxTags {
		rec.AuxFields = nil
		return maybeRecoverCigar(rec, omit)
	}
	rec.AuxFields, err = parseAux(b.bytes(b.len()))
	if err != nil {
		return err
	}

	return maybeRecoverCigar(rec, omit)
}

func referenceForID(h *sam.Header, id int) (*sam.Reference, error) {
	if id == -1 {
		return nil, nil
	}
	if id < 0 || id >= len(h.Refs()) {
		return nil, formatErrorf("reference id out of range: %d", id)
	}
	return h.Refs()[id], nil
}

func readCigarOps(b []byte) (sam.Cigar, error) {
	if len(b) == 0 {
		return nil, nil
	}
	cigar := make(sam.Cigar, len(b)/4)
	for i := range cigar {
		co := sam.CigarOp(binary.LittleEndian.Uint32(b[i*4:]))
		if co.Type() > sam.CigarMismatch {
			return nil, formatErrorf("invalid cigar operation: %#x", uint32(co)&0xf)
		}
		cigar[i] = co
	}
	return cigar, nil
}

// copyQual copies the wire quality string, mapping an absent quality
// string, all bytes 0xff, to nil.
func copyQual(q []byte) []byte {
	if len(q) == 0 {
		return nil
	}
	missing := true
	for _, v := range q {
		if v != 0xff {
			missing = false
			break
		}
	}
	if missing {
		return nil
	}
	return append([]byte(nil), q...)
}

// maybeRecoverCigar replaces the placeholder CIGAR of a record whose
// true CIGAR was stored in a CG tag because its operation count does
// not fit in n_cigar_op. The placeholder is a soft clip covering the
// whole sequence followed by a reference skip.
func maybeRecoverCigar(rec *sam.Record, omit int) error {
	if rec.Seq.Length == 0 || len(rec.Cigar) == 0 {
		return nil
	}
	if left, _ := rec.Cigar.SoftClips(); left != rec.Seq.Length {
		return nil
	}
	if omit != None {
		return formatErrorf("cannot recover cigar: variable length data omitted")
	}
	cg, ok := rec.AuxFields.Get(cgTag)
	if !ok {
		return formatErrorf("no CG tag for overlong cigar")
	}
	text, ok := cg.Value.(string)
	if !ok {
		return formatErrorf("invalid CG tag type: %c", cg.Type())
	}
	cigar, err := sam.ParseCigar([]byte(text))
	if err != nil {
		return err
	}
	rec.Cigar = cigar
	fields := make(sam.AuxFields, 0, len(rec.AuxFields)-1)
	for _, a := range rec.AuxFields {
		if a.Tag != cgTag {
			fields = append(fields, a)
		}
	}
	if len(fields) == 0 {
		fields = nil
	}
	rec.AuxFields = fields
	return nil
}

// jumps defines the size of the auxiliary data value for each value
// type. Negative values indicate variable length data.
var jumps = [256]int{
	'A': 1,
	'c': 1, 'C': 1,
	's': 2, 'S': 2,
	'i': 4, 'I': 4,
	'f': 4,
	'Z': -1, 'H': -1,
	'B': -1,
}

func parseAux(aux []byte) (sam.AuxFields, error) {
	if len(aux) == 0 {
		return nil, nil
	}
	var fields sam.AuxFields
	for i := 0; i < len(aux); {
		if i+3 > len(aux) {
			return nil, formatErrorf("truncated aux data")
		}
		t := sam.Tag{aux[i], aux[i+1]}
		typ := aux[i+2]
		i += 3
		switch j := jumps[typ]; {
		case j > 0:
			if i+j > len(aux) {
				return nil, formatErrorf("truncated aux data")
			}
			v, err := fixedAuxValue(typ, aux[i:i+j])
			if err != nil {
				return nil, err
			}
			fields = append(fields, sam.Aux{Tag: t, Value: v})
			i += j
		case j < 0:
			n, v, err := variableAuxValue(typ, aux[i:])
			if err != nil {
				return nil, err
			}
			fields = append(fields, sam.Aux{Tag: t, Value: v})
			i += n
		default:
			return nil, formatErrorf("invalid aux data field type: %c", typ)
		}
	}
	return fields, nil
}

func fixedAuxValue(typ byte, b []byte) (interface{}, error) {
	switch typ {
	case 'A':
		return b[0], nil
	case 'c':
		return int32(int8(b[0])), nil
	case 'C':
		return int32(b[0]), nil
	case 's':
		return int32(int16(binary.LittleEndian.Uint16(b))), nil
	case 'S':
		return int32(binary.LittleEndian.Uint16(b)), nil
	case 'i':
		return int32(binary.LittleEndian.Uint32(b)), nil
	case 'I':
		u := binary.LittleEndian.Uint32(b)
		if u <= math.MaxInt32 {
			return int32(u), nil
		}
		return u, nil
	case 'f':
		return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
	}
	return nil, formatErrorf("invalid aux data field type: %c", typ)
}

func variableAuxValue(typ byte, b []byte) (n int, v interface{}, err error) {
	switch typ {
	case 'Z', 'H':
		var value []byte
		for _, c := range b {
			n++
			if c == 0 {
				break
			}
			value = append(value, c)
		}
		if n == 0 || b[n-1] != 0 {
			return 0, nil, formatErrorf("aux data string not NUL terminated")
		}
		if typ == 'Z' {
			return n, string(value), nil
		}
		h, err := decodeHexAux(value)
		if err != nil {
			return 0, nil, err
		}
		return n, h, nil
	case 'B':
		if len(b) < 5 {
			return 0, nil, formatErrorf("truncated aux data")
		}
		sub := b[0]
		count := int(int32(binary.LittleEndian.Uint32(b[1:5])))
		if count < 0 {
			return 0, nil, formatErrorf("invalid aux array length")
		}
		j := jumps[sub]
		if j <= 0 || sub == 'A' {
			return 0, nil, formatErrorf("invalid aux array subtype: %c", sub)
		}
		if 5+count*j > len(b) {
			return 0, nil, formatErrorf("truncated aux data")
		}
		v, err := arrayAuxValue(sub, count, b[5:5+count*j])
		if err != nil {
			return 0, nil, err
		}
		return 5 + count*j, v, nil
	}
	return 0, nil, formatErrorf("invalid aux data field type: %c", typ)
}

func decodeHexAux(text []byte) (sam.Hex, error) {
	if len(text)%2 != 0 {
		return nil, formatErrorf("invalid hex data length")
	}
	h := make(sam.Hex, len(text)/2)
	for i := range h {
		hi, ok1 := hexNibble(text[2*i])
		lo, ok2 := hexNibble(text[2*i+1])
		if !ok1 || !ok2 {
			return nil, formatErrorf("invalid hex data")
		}
		h[i] = hi<<4 | lo
	}
	return h, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func arrayAuxValue(sub byte, count int, b []byte) (interface{}, error) {
	switch sub {
	case 'c':
		a := make([]int8, count)
		for i := range a {
			a[i] = int8(b[i])
		}
		return a, nil
	case 'C':
		return append([]uint8(nil), b...), nil
	case 's':
		a := make([]int16, count)
		for i := range a {
			a[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
		}
		return a, nil
	case 'S':
		a := make([]uint16, count)
		for i := range a {
			a[i] = binary.LittleEndian.Uint16(b[2*i:])
		}
		return a, nil
	case 'i':
		a := make([]int32, count)
		for i := range a {
			a[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
		}
		return a, nil
	case 'I':
		a := make([]uint32, count)
		for i := range a {
			a[i] = binary.LittleEndian.Uint32(b[4*i:])
		}
		return a, nil
	case 'f':
		a := make([]float32, count)
		for i := range a {
			a[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
		return a, nil
	}
	return nil, formatErrorf("invalid aux array subtype: %c", sub)
}
