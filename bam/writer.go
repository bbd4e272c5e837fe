// Copyright ©2021 The htsforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/htsforge/hts/bgzf"
	"github.com/htsforge/hts/sam"
)

// Writer implements BAM data writing.
type Writer struct {
	h *sam.Header

	bg  *bgzf.Writer
	buf []byte
}

// NewWriter returns a new Writer using the given SAM header. Write
// concurrency is set to wc.
func NewWriter(w io.Writer, h *sam.Header, wc int) (*Writer, error) {
	return NewWriterLevel(w, h, gzip.DefaultCompression, wc)
}

func makeWriter(w io.Writer, level, wc int) *bgzf.Writer {
	if bw, ok := w.(*bgzf.Writer); ok {
		return bw
	}
	return bgzf.NewWriterLevel(w, level, wc)
}

// NewWriterLevel returns a new Writer using the given SAM header. Write
// concurrency is set to wc and compression level is set to level. Valid
// values for level are described in the compress/gzip documentation.
func NewWriterLevel(w io.Writer, h *sam.Header, level, wc int) (*Writer, error) {
	bw := &Writer{
		h:  h,
		bg: makeWriter(w, level, wc),
	}

	err := encodeHeader(bw.bg, h)
	if err != nil {
		return nil, err
	}
	err = bw.bg.Flush()
	if err != nil {
		return nil, err
	}
	err = bw.bg.Wait()
	if err != nil {
		return nil, err
	}
	return bw, nil
}

// Write writes r to the BAM stream.
func (bw *Writer) Write(r *sam.Record) error {
	err := bw.marshalRecord(r)
	if err != nil {
		return err
	}
	_, err = bw.bg.Write(bw.buf)
	return err
}

// marshalRecord fills the Writer's buffer with the wire representation
// of r, including the leading block_size field.
func (bw *Writer) marshalRecord(r *sam.Record) error {
	if len(r.Name) > 254 {
		return formatErrorf("name too long")
	}
	if r.Qual != nil && len(r.Qual) != r.Seq.Length {
		return formatErrorf("sequence and quality length mismatch: %d != %d", r.Seq.Length, len(r.Qual))
	}
	if r.Pos < -1 || r.MatePos < -1 {
		return formatErrorf("position out of range")
	}

	cigar := r.Cigar
	aux := r.AuxFields
	refLen, _ := cigar.Lengths()
	if len(cigar) > maxCigarOps {
		// The real cigar moves to a CG tag and a placeholder takes
		// its place in the cigar field.
		cg, err := sam.NewAux(cgTag, cigar.String())
		if err != nil {
			return err
		}
		aux = append(aux[:len(aux):len(aux)], cg)
		cigar = sam.Cigar{
			sam.NewCigarOp(sam.CigarSoftClipped, r.Seq.Length),
			sam.NewCigarOp(sam.CigarSkipped, refLen),
		}
	}

	tags, err := appendAux(nil, aux)
	if err != nil {
		return err
	}

	name := r.Name
	if name == "" {
		name = "*"
	}

	recLen := bamFixedRemainder +
		len(name) + 1 + // Null terminated.
		len(cigar)*4 +
		len(r.Seq.Seq) +
		r.Seq.Length +
		len(tags)
	bw.buf = bw.buf[:0]

	wb := &errWriter{buf: &bw.buf}
	bin := binaryWriter{w: wb}

	// Write record header data.
	bin.writeInt32(int32(recLen))
	bin.writeInt32(int32(refIDFor(r.Ref)))
	bin.writeInt32(int32(r.Pos))
	bin.writeUint8(uint8(len(name) + 1))
	bin.writeUint8(r.MapQ)
	bin.writeUint16(reg2bin(r.Pos, r.Pos+refLen))
	bin.writeUint16(uint16(len(cigar)))
	bin.writeUint16(uint16(r.Flags))
	bin.writeInt32(int32(r.Seq.Length))
	bin.writeInt32(int32(refIDFor(r.MateRef)))
	bin.writeInt32(int32(r.MatePos))
	bin.writeInt32(int32(r.TempLen))

	// Write variable length data.
	wb.WriteString(name)
	wb.WriteByte(0)
	for _, co := range cigar {
		bin.writeUint32(uint32(co))
	}
	for _, d := range r.Seq.Seq {
		wb.WriteByte(byte(d))
	}
	if r.Qual != nil {
		wb.Write(r.Qual)
	} else {
		for i := 0; i < r.Seq.Length; i++ {
			wb.WriteByte(0xff)
		}
	}
	wb.Write(tags)
	return wb.err
}

func refIDFor(r *sam.Reference) int {
	if r == nil {
		return -1
	}
	return r.ID()
}

// Close closes the writer.
func (bw *Writer) Close() error {
	return bw.bg.Close()
}

type errWriter struct {
	buf *[]byte
	err error
}

func (w *errWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

func (w *errWriter) WriteString(s string) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	*w.buf = append(*w.buf, s...)
	return len(s), nil
}

func (w *errWriter) WriteByte(b byte) error {
	if w.err != nil {
		return w.err
	}
	*w.buf = append(*w.buf, b)
	return nil
}

type binaryWriter struct {
	w   *errWriter
	buf [4]byte
}

func (w *binaryWriter) writeUint8(v uint8) {
	w.w.WriteByte(v)
}

func (w *binaryWriter) writeUint16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	w.w.Write(w.buf[:2])
}

func (w *binaryWriter) writeInt32(v int32) {
	binary.LittleEndian.PutUint32(w.buf[:4], uint32(v))
	w.w.Write(w.buf[:4])
}

func (w *binaryWriter) writeUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.w.Write(w.buf[:4])
}

// appendAux appends the wire representation of the given auxiliary
// fields to buf. Scalar integers are stored in the smallest wire type
// holding their value. Array element types are written unaltered.
func appendAux(buf []byte, aux sam.AuxFields) ([]byte, error) {
	var err error
	for _, a := range aux {
		buf, err = appendAuxField(buf, a)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendAuxField(buf []byte, a sam.Aux) ([]byte, error) {
	buf = append(buf, a.Tag[0], a.Tag[1])
	switch v := a.Value.(type) {
	case byte:
		return append(buf, 'A', v), nil
	case int32:
		return appendIntAux(buf, v), nil
	case uint32:
		return appendUintAux(buf, v), nil
	case float32:
		buf = append(buf, 'f')
		return appendUint32(buf, math.Float32bits(v)), nil
	case string:
		buf = append(buf, 'Z')
		buf = append(buf, v...)
		return append(buf, 0), nil
	case sam.Hex:
		buf = append(buf, 'H')
		buf = append(buf, strings.ToUpper(hex.EncodeToString(v))...)
		return append(buf, 0), nil
	case []int8:
		buf = appendArrayHeader(buf, 'c', len(v))
		for _, e := range v {
			buf = append(buf, byte(e))
		}
		return buf, nil
	case []uint8:
		buf = appendArrayHeader(buf, 'C', len(v))
		return append(buf, v...), nil
	case []int16:
		buf = appendArrayHeader(buf, 's', len(v))
		for _, e := range v {
			buf = appendUint16(buf, uint16(e))
		}
		return buf, nil
	case []uint16:
		buf = appendArrayHeader(buf, 'S', len(v))
		for _, e := range v {
			buf = appendUint16(buf, e)
		}
		return buf, nil
	case []int32:
		buf = appendArrayHeader(buf, 'i', len(v))
		for _, e := range v {
			buf = appendUint32(buf, uint32(e))
		}
		return buf, nil
	case []uint32:
		buf = appendArrayHeader(buf, 'I', len(v))
		for _, e := range v {
			buf = appendUint32(buf, e)
		}
		return buf, nil
	case []float32:
		buf = appendArrayHeader(buf, 'f', len(v))
		for _, e := range v {
			buf = appendUint32(buf, math.Float32bits(e))
		}
		return buf, nil
	}
	return nil, errors.Errorf("bam: unknown aux value type: %T", a.Value)
}

func appendIntAux(buf []byte, v int32) []byte {
	switch {
	case v >= 0:
		switch {
		case v <= math.MaxUint8:
			return append(buf, 'C', byte(v))
		case v <= math.MaxUint16:
			return appendUint16(append(buf, 'S'), uint16(v))
		}
	case v >= math.MinInt8:
		return append(buf, 'c', byte(int8(v)))
	case v >= math.MinInt16:
		return appendUint16(append(buf, 's'), uint16(int16(v)))
	}
	return appendUint32(append(buf, 'i'), uint32(v))
}

func appendUintAux(buf []byte, v uint32) []byte {
	switch {
	case v <= math.MaxUint8:
		return append(buf, 'C', byte(v))
	case v <= math.MaxUint16:
		return appendUint16(append(buf, 'S'), uint16(v))
	}
	return appendUint32(append(buf, 'I'), v)
}

func appendArrayHeader(buf []byte, sub byte, n int) []byte {
	return appendUint32(append(buf, 'B', sub), uint32(n))
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
