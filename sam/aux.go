// Copyright ©2021 The htsforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sam

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// A Tag represents an auxiliary or header tag label.
type Tag [2]byte

var (
	headerTag       = Tag{'H', 'D'}
	versionTag      = Tag{'V', 'N'}
	sortOrderTag    = Tag{'S', 'O'}
	groupOrderTag   = Tag{'G', 'O'}
	refDictTag      = Tag{'S', 'Q'}
	refNameTag      = Tag{'S', 'N'}
	refLengthTag    = Tag{'L', 'N'}
	assemblyIDTag   = Tag{'A', 'S'}
	md5Tag          = Tag{'M', '5'}
	speciesTag      = Tag{'S', 'P'}
	uriTag          = Tag{'U', 'R'}
	readGroupTag    = Tag{'R', 'G'}
	centerTag       = Tag{'C', 'N'}
	descriptionTag  = Tag{'D', 'S'}
	dateTag         = Tag{'D', 'T'}
	flowOrderTag    = Tag{'F', 'O'}
	keySequenceTag  = Tag{'K', 'S'}
	libraryTag      = Tag{'L', 'B'}
	insertSizeTag   = Tag{'P', 'I'}
	platformTag     = Tag{'P', 'L'}
	platformUnitTag = Tag{'P', 'U'}
	sampleTag       = Tag{'S', 'M'}
	programTag      = Tag{'P', 'G'}
	idTag           = Tag{'I', 'D'}
	programNameTag  = Tag{'P', 'N'}
	commandLineTag  = Tag{'C', 'L'}
	previousProgTag = Tag{'P', 'P'}
	commentTag      = Tag{'C', 'O'}
)

// NewTag returns a Tag from the tag string. It panics if len(tag) != 2.
func NewTag(tag string) Tag {
	var t Tag
	if copy(t[:], tag) != 2 {
		panic("sam: illegal tag length")
	}
	return t
}

// String returns a string representation of a Tag.
func (t Tag) String() string { return string(t[:]) }

// A Hex is a byte sequence held by an 'H' typed auxiliary field. It is
// rendered as a hex string with an even number of digits.
type Hex []byte

// String returns the hex string representation of the receiver.
func (h Hex) String() string { return strings.ToUpper(hex.EncodeToString(h)) }

// An Aux represents an auxiliary data field from an alignment record.
// The concrete type of Value determines the field's type code:
//
//	A - byte
//	i - int32 or uint32
//	f - float32
//	Z - string
//	H - Hex
//	B - []int8, []uint8, []int16, []uint16, []int32, []uint32 or []float32
//
// Integer scalars are carried as int32 where the value is representable,
// and as uint32 otherwise. The width used to store an integer scalar on
// encoding is chosen from the value, not from the type it was read with.
type Aux struct {
	Tag   Tag
	Value interface{}
}

// NewAux returns a new Aux with the given tag and value. Signed and
// unsigned integer values of any width are accepted and normalised to
// int32, or to uint32 where the value exceeds MaxInt32. Values outside
// [MinInt32, MaxUint32] are rejected, as are dynamic types not listed
// in the Aux documentation.
func NewAux(t Tag, value interface{}) (Aux, error) {
	switch v := value.(type) {
	case byte, int32, uint32, float32, string, Hex,
		[]int8, []uint8, []int16, []uint16, []int32, []uint32, []float32:
		return Aux{Tag: t, Value: v}, nil
	case int8:
		return Aux{Tag: t, Value: int32(v)}, nil
	case int16:
		return Aux{Tag: t, Value: int32(v)}, nil
	case int:
		return newIntAux(t, int64(v))
	case int64:
		return newIntAux(t, v)
	case uint16:
		return Aux{Tag: t, Value: int32(v)}, nil
	case uint:
		return newUintAux(t, uint64(v))
	case uint64:
		return newUintAux(t, v)
	default:
		return Aux{}, fmt.Errorf("sam: unsupported dynamic type %T for aux field", value)
	}
}

func newIntAux(t Tag, v int64) (Aux, error) {
	switch {
	case math.MinInt32 <= v && v <= math.MaxInt32:
		return Aux{Tag: t, Value: int32(v)}, nil
	case v <= math.MaxUint32:
		return Aux{Tag: t, Value: uint32(v)}, nil
	}
	return Aux{}, fmt.Errorf("sam: integer value out of range: %d", v)
}

func newUintAux(t Tag, v uint64) (Aux, error) {
	switch {
	case v <= math.MaxInt32:
		return Aux{Tag: t, Value: int32(v)}, nil
	case v <= math.MaxUint32:
		return Aux{Tag: t, Value: uint32(v)}, nil
	}
	return Aux{}, fmt.Errorf("sam: unsigned integer value out of range: %d", v)
}

// Type returns the type character of the auxiliary field as used in the
// text representation. Returned values are in {'A', 'i', 'f', 'Z', 'H', 'B'},
// or zero if the value has an unsupported dynamic type.
func (a Aux) Type() byte {
	switch a.Value.(type) {
	case byte:
		return 'A'
	case int32, uint32:
		return 'i'
	case float32:
		return 'f'
	case string:
		return 'Z'
	case Hex:
		return 'H'
	case []int8, []uint8, []int16, []uint16, []int32, []uint32, []float32:
		return 'B'
	}
	return 0
}

// ArrayType returns the element type character for a 'B' typed field.
// Returned values are in {'c', 'C', 's', 'S', 'i', 'I', 'f'}, or zero if
// the value is not an array.
func (a Aux) ArrayType() byte {
	switch a.Value.(type) {
	case []int8:
		return 'c'
	case []uint8:
		return 'C'
	case []int16:
		return 's'
	case []uint16:
		return 'S'
	case []int32:
		return 'i'
	case []uint32:
		return 'I'
	case []float32:
		return 'f'
	}
	return 0
}

// String returns the text representation of the auxiliary field in the
// form "TAG:TYPE:VALUE".
func (a Aux) String() string {
	switch v := a.Value.(type) {
	case byte:
		return fmt.Sprintf("%s:A:%c", a.Tag, v)
	case Hex:
		return fmt.Sprintf("%s:H:%s", a.Tag, v)
	case string:
		return fmt.Sprintf("%s:Z:%s", a.Tag, v)
	case []int8, []uint8, []int16, []uint16, []int32, []uint32, []float32:
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "%s:B:%c", a.Tag, a.ArrayType())
		switch v := v.(type) {
		case []int8:
			for _, e := range v {
				fmt.Fprintf(&buf, ",%d", e)
			}
		case []uint8:
			for _, e := range v {
				fmt.Fprintf(&buf, ",%d", e)
			}
		case []int16:
			for _, e := range v {
				fmt.Fprintf(&buf, ",%d", e)
			}
		case []uint16:
			for _, e := range v {
				fmt.Fprintf(&buf, ",%d", e)
			}
		case []int32:
			for _, e := range v {
				fmt.Fprintf(&buf, ",%d", e)
			}
		case []uint32:
			for _, e := range v {
				fmt.Fprintf(&buf, ",%d", e)
			}
		case []float32:
			for _, e := range v {
				fmt.Fprintf(&buf, ",%s", formatFloat(e))
			}
		}
		return buf.String()
	case float32:
		return fmt.Sprintf("%s:f:%s", a.Tag, formatFloat(v))
	default:
		return fmt.Sprintf("%s:%c:%v", a.Tag, a.Type(), v)
	}
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

// ParseAux returns an Aux parsed from the given text in the form
// "TAG:TYPE:VALUE".
func ParseAux(text []byte) (Aux, error) {
	tf := bytes.SplitN(text, []byte{':'}, 3)
	if len(tf) != 3 || len(tf[0]) != 2 || len(tf[1]) != 1 {
		return Aux{}, fmt.Errorf("sam: invalid aux field: %q", text)
	}
	t := Tag{tf[0][0], tf[0][1]}
	switch typ := tf[1][0]; typ {
	case 'A':
		if len(tf[2]) != 1 {
			return Aux{}, fmt.Errorf("sam: invalid aux field: %q", text)
		}
		return Aux{Tag: t, Value: tf[2][0]}, nil
	case 'i':
		i, err := strconv.ParseInt(string(tf[2]), 10, 64)
		if err != nil {
			return Aux{}, fmt.Errorf("sam: invalid aux field: %v", err)
		}
		return newIntAux(t, i)
	case 'f':
		f, err := strconv.ParseFloat(string(tf[2]), 32)
		if err != nil {
			return Aux{}, fmt.Errorf("sam: invalid aux field: %v", err)
		}
		return Aux{Tag: t, Value: float32(f)}, nil
	case 'Z':
		return Aux{Tag: t, Value: string(tf[2])}, nil
	case 'H':
		if len(tf[2])&1 != 0 {
			return Aux{}, fmt.Errorf("sam: invalid aux field: %q: uneven number of hex digits", text)
		}
		b := make(Hex, hex.DecodedLen(len(tf[2])))
		_, err := hex.Decode(b, tf[2])
		if err != nil {
			return Aux{}, fmt.Errorf("sam: invalid aux field: %v", err)
		}
		return Aux{Tag: t, Value: b}, nil
	case 'B':
		return parseArrayAux(t, tf[2], text)
	default:
		return Aux{}, fmt.Errorf("sam: invalid aux field: %q", text)
	}
}

func parseArrayAux(t Tag, text, field []byte) (Aux, error) {
	if len(text) == 0 || (len(text) > 1 && text[1] != ',') {
		return Aux{}, fmt.Errorf("sam: invalid aux field: %q", field)
	}
	var nf [][]byte
	if len(text) > 1 {
		nf = bytes.Split(text[2:], []byte{','})
	}
	var value interface{}
	switch text[0] {
	case 'c':
		a := make([]int8, len(nf))
		for i, n := range nf {
			v, err := strconv.ParseInt(string(n), 10, 8)
			if err != nil {
				return Aux{}, fmt.Errorf("sam: invalid aux field: %v", err)
			}
			a[i] = int8(v)
		}
		value = a
	case 'C':
		a := make([]uint8, len(nf))
		for i, n := range nf {
			v, err := strconv.ParseUint(string(n), 10, 8)
			if err != nil {
				return Aux{}, fmt.Errorf("sam: invalid aux field: %v", err)
			}
			a[i] = uint8(v)
		}
		value = a
	case 's':
		a := make([]int16, len(nf))
		for i, n := range nf {
			v, err := strconv.ParseInt(string(n), 10, 16)
			if err != nil {
				return Aux{}, fmt.Errorf("sam: invalid aux field: %v", err)
			}
			a[i] = int16(v)
		}
		value = a
	case 'S':
		a := make([]uint16, len(nf))
		for i, n := range nf {
			v, err := strconv.ParseUint(string(n), 10, 16)
			if err != nil {
				return Aux{}, fmt.Errorf("sam: invalid aux field: %v", err)
			}
			a[i] = uint16(v)
		}
		value = a
	case 'i':
		a := make([]int32, len(nf))
		for i, n := range nf {
			v, err := strconv.ParseInt(string(n), 10, 32)
			if err != nil {
				return Aux{}, fmt.Errorf("sam: invalid aux field: %v", err)
			}
			a[i] = int32(v)
		}
		value = a
	case 'I':
		a := make([]uint32, len(nf))
		for i, n := range nf {
			v, err := strconv.ParseUint(string(n), 10, 32)
			if err != nil {
				return Aux{}, fmt.Errorf("sam: invalid aux field: %v", err)
			}
			a[i] = uint32(v)
		}
		value = a
	case 'f':
		a := make([]float32, len(nf))
		for i, n := range nf {
			f, err := strconv.ParseFloat(string(n), 32)
			if err != nil {
				return Aux{}, fmt.Errorf("sam: invalid aux field: %v", err)
			}
			a[i] = float32(f)
		}
		value = a
	default:
		return Aux{}, fmt.Errorf("sam: invalid aux field: %q", field)
	}
	return Aux{Tag: t, Value: value}, nil
}

// AuxFields is an ordered set of auxiliary fields.
type AuxFields []Aux

// Get returns the auxiliary field identified by the given tag and whether
// a field with the tag was present.
func (a AuxFields) Get(tag Tag) (Aux, bool) {
	for _, f := range a {
		if f.Tag == tag {
			return f, true
		}
	}
	return Aux{}, false
}
