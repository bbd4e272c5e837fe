// Copyright ©2021 The htsforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sam

import (
	"bytes"
	"io"
	"testing"

	"gopkg.in/check.v1"
)

func Test(t *testing.T) { check.TestingT(t) }

type S struct{}

var _ = check.Suite(&S{})

func mustAux(a Aux, err error) Aux {
	if err != nil {
		panic(err)
	}
	return a
}

var specExamples = struct {
	ref      string
	data     []byte
	header   Header
	records  []*Record
	cigars   []string
	readEnds []int
}{
	ref: "AGCATGTTAGATAAGATAGCTGTGCTAGTAGGCAGTCAGCGCCAT",
	data: []byte(`@HD	VN:1.6	SO:coordinate
@SQ	SN:ref	LN:45
r001	99	ref	7	30	8M2I4M1D3M	=	37	39	TTAGATAAAGGATACTG	*
r002	0	ref	9	30	3S6M1P1I4M	*	0	0	AAAAGATAAGGATA	*
r003	0	ref	9	30	5S6M	*	0	0	GCCTAAGCTAA	*	SA:Z:ref,29,-,6H5M,17,0;
r004	0	ref	16	30	6M14N5M	*	0	0	ATAGCTTCAGC	*
r003	2064	ref	29	17	6H5M	*	0	0	TAGGC	*	SA:Z:ref,9,+,5S6M,30,1;
r001	147	ref	37	30	9M	=	7	-39	CAGCGGCAT	*	NM:i:1
`),
	header: Header{
		Version:    "1.6",
		SortOrder:  Coordinate,
		GroupOrder: GroupUnspecified,
	},
	records: []*Record{
		{
			Name: "r001",
			Pos:  6,
			MapQ: 30,
			Cigar: Cigar{
				NewCigarOp(CigarMatch, 8),
				NewCigarOp(CigarInsertion, 2),
				NewCigarOp(CigarMatch, 4),
				NewCigarOp(CigarDeletion, 1),
				NewCigarOp(CigarMatch, 3),
			},
			Flags:   Paired | ProperPair | MateReverse | Read1,
			MatePos: 36,
			TempLen: 39,
			Seq:     NewSeq([]byte("TTAGATAAAGGATACTG")),
			Qual:    []uint8{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		},
		{
			Name: "r002",
			Pos:  8,
			MapQ: 30,
			Cigar: Cigar{
				NewCigarOp(CigarSoftClipped, 3),
				NewCigarOp(CigarMatch, 6),
				NewCigarOp(CigarPadded, 1),
				NewCigarOp(CigarInsertion, 1),
				NewCigarOp(CigarMatch, 4),
			},
			MatePos: -1,
			TempLen: 0,
			Seq:     NewSeq([]byte("AAAAGATAAGGATA")),
			Qual:    []uint8{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		},
		{
			Name: "r003",
			Pos:  8,
			MapQ: 30,
			Cigar: Cigar{
				NewCigarOp(CigarSoftClipped, 5),
				NewCigarOp(CigarMatch, 6),
			},
			MatePos: -1,
			TempLen: 0,
			Seq:     NewSeq([]byte("GCCTAAGCTAA")),
			Qual:    []uint8{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			AuxFields: []Aux{
				mustAux(NewAux(NewTag("SA"), "ref,29,-,6H5M,17,0;")),
			},
		},
		{
			Name: "r004",
			Pos:  15,
			MapQ: 30,
			Cigar: Cigar{
				NewCigarOp(CigarMatch, 6),
				NewCigarOp(CigarSkipped, 14),
				NewCigarOp(CigarMatch, 5),
			},
			MatePos: -1,
			TempLen: 0,
			Seq:     NewSeq([]byte("ATAGCTTCAGC")),
			Qual:    []uint8{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		},
		{
			Name: "r003",
			Pos:  28,
			MapQ: 17,
			Cigar: Cigar{
				NewCigarOp(CigarHardClipped, 6),
				NewCigarOp(CigarMatch, 5),
			},
			Flags:   Reverse | Supplementary,
			MatePos: -1,
			TempLen: 0,
			Seq:     NewSeq([]byte("TAGGC")),
			Qual:    []uint8{0xff, 0xff, 0xff, 0xff, 0xff},
			AuxFields: []Aux{
				mustAux(NewAux(NewTag("SA"), "ref,9,+,5S6M,30,1;")),
			},
		},
		{
			Name: "r001",
			Pos:  36,
			MapQ: 30,
			Cigar: Cigar{
				NewCigarOp(CigarMatch, 9),
			},
			Flags:   Paired | ProperPair | Reverse | Read2,
			MatePos: 6,
			TempLen: -39,
			Seq:     NewSeq([]byte("CAGCGGCAT")),
			Qual:    []uint8{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			AuxFields: []Aux{
				mustAux(NewAux(NewTag("NM"), uint(1))),
			},
		},
	},
	cigars: []string{
		"8M2I4M1D3M",
		"3S6M1P1I4M",
		"5S6M",
		"6M14N5M",
		"6H5M",
		"9M",
	},
	// These coordinates are all open (and zero-based) so that
	// a slice of the reference doesn't need any alteration.
	readEnds: []int{
		22,
		18,
		14,
		40,
		33,
		45,
	},
}

func (s *S) TestSpecExamples(c *check.C) {
	sr, err := NewReader(bytes.NewReader(specExamples.data))
	c.Assert(err, check.Equals, nil)
	h := sr.Header()
	c.Check(h.Version, check.Equals, specExamples.header.Version)
	c.Check(h.SortOrder, check.Equals, specExamples.header.SortOrder)
	c.Check(h.GroupOrder, check.Equals, specExamples.header.GroupOrder)

	var buf bytes.Buffer
	sw, err := NewWriter(&buf, h, FlagDecimal)
	c.Assert(err, check.Equals, nil)
	for i, expect := range specExamples.records {
		r, err := sr.Read()
		if err != nil {
			c.Errorf("unexpected early error: %v", err)
			continue
		}
		c.Check(r.Name, check.Equals, expect.Name)
		c.Check(r.Pos, check.Equals, expect.Pos) // Zero-based here.
		c.Check(r.Flags, check.Equals, expect.Flags)
		if r.Flags&Unmapped == 0 {
			c.Check(r.Ref, check.Not(check.Equals), nil)
			if r.Ref != nil {
				c.Check(r.Ref.Name(), check.Equals, h.Refs()[0].Name())
			}
		} else {
			c.Check(r.Ref, check.Equals, nil)
		}
		c.Check(r.MatePos, check.Equals, expect.MatePos) // Zero-based here.
		c.Check(r.Cigar, check.DeepEquals, expect.Cigar)
		c.Check(r.Cigar.IsValid(r.Seq.Length), check.Equals, true)
		c.Check(r.TempLen, check.Equals, expect.TempLen)
		c.Check(r.Seq, check.DeepEquals, expect.Seq, check.Commentf("got:%q expected:%q", r.Seq.Expand(), expect.Seq.Expand()))
		c.Check(r.Qual, check.DeepEquals, expect.Qual) // No valid qualities here.
		c.Check(r.End(), check.Equals, specExamples.readEnds[i], check.Commentf("unexpected end position for %q at %v, got:%d expected:%d", r.Name, r.Pos, r.End(), specExamples.readEnds[i]))
		c.Check(r.AuxFields, check.DeepEquals, expect.AuxFields)

		parsedCigar, err := ParseCigar([]byte(specExamples.cigars[i]))
		c.Check(err, check.Equals, nil)
		c.Check(parsedCigar, check.DeepEquals, expect.Cigar)

		// In all the examples the last base of the read and the last
		// base of the ref are valid, so we can check this.
		expSeq := r.Seq.Expand()
		c.Check(specExamples.ref[r.End()-1], check.Equals, expSeq[len(expSeq)-1])

		// Test round trip.
		err = sw.Write(r)
		c.Check(err, check.Equals, nil)
		b, err := r.MarshalText()
		c.Check(err, check.Equals, nil)
		var nr Record
		c.Check(nr.UnmarshalSAM(sr.Header(), b), check.Equals, nil)
		c.Check(&nr, check.DeepEquals, r)
	}
	_, err = sr.Read()
	c.Check(err, check.Equals, io.EOF)
	c.Check(buf.String(), check.DeepEquals, string(specExamples.data))
}

func (s *S) TestCloneHeader(c *check.C) {
	sr, err := NewReader(bytes.NewReader(specExamples.data))
	c.Assert(err, check.Equals, nil)
	h := sr.Header()
	c.Check(h, check.DeepEquals, h.Clone())
}

func (s *S) TestIterator(c *check.C) {
	sr, err := NewReader(bytes.NewReader(specExamples.data))
	c.Assert(err, check.Equals, nil)
	i := NewIterator(sr)
	var n int
	for i.Next() {
		c.Check(i.Record(), check.Not(check.IsNil))
		n++
	}
	c.Check(i.Error(), check.Equals, nil)
	c.Check(n, check.Equals, len(specExamples.records))
}

var endTests = []struct {
	cigar Cigar
	end   int
}{
	{
		cigar: nil,
		end:   0,
	},
	{
		cigar: Cigar{
			NewCigarOp(CigarMatch, 3),
			NewCigarOp(CigarHardClipped, 10),
		},
		end: 3,
	},
	{
		cigar: Cigar{
			NewCigarOp(CigarMatch, 3),
			NewCigarOp(CigarSkipped, 10),
		},
		end: 13,
	},
	{
		cigar: Cigar{
			NewCigarOp(CigarSkipped, 10),
			NewCigarOp(CigarMatch, 3),
		},
		end: 13,
	},
	{
		cigar: Cigar{
			NewCigarOp(CigarMatch, 3),
			NewCigarOp(CigarSoftClipped, 10),
			NewCigarOp(CigarHardClipped, 10),
		},
		end: 3,
	},
}

func (s *S) TestEnd(c *check.C) {
	for _, test := range endTests {
		c.Check((&Record{Cigar: test.cigar}).End(), check.Equals, test.end)
	}
}

var softClipTests = []struct {
	cigar       Cigar
	left, right int
}{
	{
		cigar: nil,
	},
	{
		cigar: Cigar{
			NewCigarOp(CigarSoftClipped, 2),
			NewCigarOp(CigarMatch, 10),
			NewCigarOp(CigarSoftClipped, 3),
		},
		left: 2, right: 3,
	},
	{
		cigar: Cigar{
			NewCigarOp(CigarHardClipped, 5),
			NewCigarOp(CigarSoftClipped, 2),
			NewCigarOp(CigarMatch, 10),
			NewCigarOp(CigarSoftClipped, 3),
			NewCigarOp(CigarHardClipped, 7),
		},
		left: 2, right: 3,
	},
	{
		cigar: Cigar{
			NewCigarOp(CigarMatch, 10),
			NewCigarOp(CigarSoftClipped, 3),
		},
		left: 0, right: 3,
	},
	{
		cigar: Cigar{
			NewCigarOp(CigarSoftClipped, 4),
			NewCigarOp(CigarSkipped, 3),
		},
		left: 4, right: 0,
	},
}

func (s *S) TestSoftClips(c *check.C) {
	for _, test := range softClipTests {
		left, right := test.cigar.SoftClips()
		c.Check(left, check.Equals, test.left, check.Commentf("cigar:%v", test.cigar))
		c.Check(right, check.Equals, test.right, check.Commentf("cigar:%v", test.cigar))
	}
}

var cigarLengthTests = []struct {
	cigar     string
	ref, read int
}{
	{cigar: "4S3N", ref: 3, read: 4},
	{cigar: "1S1M1D1M1I", ref: 3, read: 4},
	{cigar: "8M2I4M1D3M", ref: 16, read: 17},
	{cigar: "6H5M", ref: 5, read: 5},
}

func (s *S) TestCigarLengths(c *check.C) {
	for _, test := range cigarLengthTests {
		cigar, err := ParseCigar([]byte(test.cigar))
		c.Assert(err, check.Equals, nil)
		ref, read := cigar.Lengths()
		c.Check(ref, check.Equals, test.ref, check.Commentf("cigar:%s", test.cigar))
		c.Check(read, check.Equals, test.read, check.Commentf("cigar:%s", test.cigar))
		c.Check(cigar.String(), check.Equals, test.cigar)
	}
}

func (s *S) TestParseCigarErrors(c *check.C) {
	for _, text := range []string{
		"10Z",
		"M",
		"300000000000M",
	} {
		_, err := ParseCigar([]byte(text))
		c.Check(err, check.Not(check.IsNil), check.Commentf("cigar:%q", text))
	}
	cigar, err := ParseCigar([]byte("*"))
	c.Check(err, check.Equals, nil)
	c.Check(cigar, check.IsNil)
}

var auxTests = []struct {
	text  string
	value interface{}
}{
	{text: "XX:A:z", value: byte('z')},
	{text: "XX:i:2", value: int32(2)},
	{text: "XX:i:-7", value: int32(-7)},
	{text: "XX:i:294967296", value: int32(294967296)},
	{text: "XX:i:3294967296", value: uint32(3294967296)},
	{text: "XX:f:3.5", value: float32(3.5)},
	{text: "XX:Z:lorem", value: "lorem"},
	{text: "XX:H:1AE301", value: Hex{0x1a, 0xe3, 0x01}},
	{text: "XX:B:c,-1,2", value: []int8{-1, 2}},
	{text: "XX:B:S,3,4", value: []uint16{3, 4}},
	{text: "XX:B:f,3.5,0.1,43.8", value: []float32{3.5, 0.1, 43.8}},
}

func (s *S) TestAuxParseRoundTrip(c *check.C) {
	for _, test := range auxTests {
		a, err := ParseAux([]byte(test.text))
		c.Assert(err, check.Equals, nil, check.Commentf("aux:%q", test.text))
		c.Check(a.Value, check.DeepEquals, test.value)
		c.Check(a.String(), check.Equals, test.text)
	}
}

func (s *S) TestNewAuxNormalisation(c *check.C) {
	for _, test := range []struct {
		value interface{}
		want  interface{}
	}{
		{value: int8(-1), want: int32(-1)},
		{value: uint16(200), want: int32(200)},
		{value: int64(294967296), want: int32(294967296)},
		{value: uint64(3294967296), want: uint32(3294967296)},
		{value: uint(7), want: int32(7)},
	} {
		a, err := NewAux(NewTag("XX"), test.value)
		c.Assert(err, check.Equals, nil)
		c.Check(a.Value, check.Equals, test.want, check.Commentf("value:%v (%T)", test.value, test.value))
	}

	for _, value := range []interface{}{
		int64(1) << 33,
		uint64(1) << 33,
		complex64(1),
	} {
		_, err := NewAux(NewTag("XX"), value)
		c.Check(err, check.Not(check.IsNil), check.Commentf("value:%v (%T)", value, value))
	}
}

func (s *S) TestAuxFieldsGet(c *check.C) {
	fields := AuxFields{
		mustAux(NewAux(NewTag("AS"), 2)),
		mustAux(NewAux(NewTag("NM"), 7)),
	}
	a, ok := fields.Get(NewTag("NM"))
	c.Check(ok, check.Equals, true)
	c.Check(a.Value, check.Equals, int32(7))
	_, ok = fields.Get(NewTag("CG"))
	c.Check(ok, check.Equals, false)
}

func (s *S) TestFlagString(c *check.C) {
	for _, test := range []struct {
		flags Flags
		want  string
	}{
		{flags: 0, want: "------------"},
		{flags: Paired | ProperPair | MateReverse | Read1, want: "pP---R1-----"},
		{flags: Reverse | Supplementary, want: "----r------S"},
		{flags: Unmapped, want: "--u---------"},
	} {
		c.Check(test.flags.String(), check.Equals, test.want)
	}
}

func (s *S) TestSeq(c *check.C) {
	for _, text := range []string{
		"",
		"A",
		"ACGT",
		"ACMGRSVTWYHKDBN",
	} {
		ns := NewSeq([]byte(text))
		c.Check(ns.Length, check.Equals, len(text))
		c.Check(string(ns.Expand()), check.Equals, text)
		for i := range text {
			c.Check(ns.At(i), check.Equals, text[i])
		}
	}
	c.Check(NewSeq([]byte("ACGT")).Seq, check.DeepEquals, []Doublet{0x12, 0x48})
}

func (s *S) TestAlignedSeq(c *check.C) {
	r := &Record{
		Cigar: Cigar{
			NewCigarOp(CigarSoftClipped, 2),
			NewCigarOp(CigarMatch, 4),
			NewCigarOp(CigarSoftClipped, 1),
		},
		Seq:  NewSeq([]byte("TTACGTG")),
		Qual: []byte{1, 2, 3, 4, 5, 6, 7},
	}
	c.Check(string(r.AlignedSeq()), check.Equals, "ACGT")
	c.Check(r.AlignedQual(), check.DeepEquals, []byte{3, 4, 5, 6})
	r.Qual = nil
	c.Check(r.AlignedQual(), check.IsNil)
}

func (s *S) TestHeaderMerge(c *check.C) {
	h, err := NewHeader(nil, nil)
	c.Assert(err, check.Equals, nil)

	ref, err := NewReference("ref", "", "", 45, nil, nil)
	c.Assert(err, check.Equals, nil)
	c.Assert(h.AddReference(ref), check.Equals, nil)
	c.Check(ref.ID(), check.Equals, 0)

	// Adding an equivalent unregistered reference unifies it with
	// the existing entry.
	dup, err := NewReference("ref", "", "", 45, nil, nil)
	c.Assert(err, check.Equals, nil)
	c.Check(h.AddReference(dup), check.Equals, nil)
	c.Check(len(h.Refs()), check.Equals, 1)

	clash, err := NewReference("ref", "", "", 1000, nil, nil)
	c.Assert(err, check.Equals, nil)
	c.Check(h.AddReference(clash), check.Not(check.IsNil))
}

func (s *S) TestHeaderRoundTrip(c *check.C) {
	for _, text := range []string{
		"",
		"@HD\tVN:1.6\n",
		"@HD\tVN:1.6\n@SQ\tSN:ref\tLN:34\n",
		"@HD\tVN:1.6\tSO:coordinate\n@SQ\tSN:ref\tLN:34\tAS:GRCh38\n@RG\tID:rg0\tSM:sample\n@PG\tID:aln\tPN:aligner\n@CO\tfree text\n",
	} {
		h, err := NewHeader([]byte(text), nil)
		c.Assert(err, check.Equals, nil, check.Commentf("header:%q", text))
		b, err := h.MarshalText()
		c.Check(err, check.Equals, nil)
		c.Check(string(b), check.Equals, text)
	}
}

func (s *S) TestRecordString(c *check.C) {
	r := specExamples.records[2]
	r.Ref, _ = NewReference("ref", "", "", 45, nil, nil)
	b, err := r.MarshalText()
	c.Assert(err, check.Equals, nil)
	c.Check(string(b), check.Equals, "r003\t0\tref\t9\t30\t5S6M\t*\t0\t0\tGCCTAAGCTAA\t*\tSA:Z:ref,29,-,6H5M,17,0;")
	r.Ref = nil
}
