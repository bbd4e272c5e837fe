// Copyright ©2021 The htsforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bgzf

import (
	"bufio"
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// An Offset is a virtual offset into a BGZF stream. File is the offset
// of the gzip member holding the addressed byte and Block is the offset
// of the byte within the uncompressed member data.
type Offset struct {
	File  int64
	Block uint16
}

// A Chunk is a region of a BGZF stream bounded by a pair of virtual
// offsets.
type Chunk struct {
	Begin Offset
	End   Offset
}

// Reader implements BGZF decompression. The gzip.Header fields reflect
// the header of the gzip member most recently entered by a Read or Seek.
type Reader struct {
	gzip.Header
	r io.Reader

	chunk Chunk

	block *blockReader

	err error
}

// NewReader returns a new Reader, reading from the given io.Reader. The
// first block header is read eagerly so that a stream that is not BGZF
// is rejected at construction.
func NewReader(r io.Reader) (*Reader, error) {
	b, err := newBlockReader(r)
	if err != nil {
		return nil, err
	}
	bg := &Reader{
		Header: b.gz.Header,
		r:      r,
		block:  b,
	}
	return bg, nil
}

type blockReader struct {
	cr *countReader
	gz *gzip.Reader

	decompressed *block
}

func newBlockReader(r io.Reader) (*blockReader, error) {
	cr := makeReader(r)
	gz, err := gzip.NewReader(cr)
	if err != nil {
		return nil, err
	}
	if expectedBlockSize(gz.Header) < 0 {
		return nil, ErrNoBlockSize
	}
	return &blockReader{cr: cr, gz: gz}, nil
}

// reset advances the blockReader to the next gzip member, or to the
// member at offset off of r when r is non-nil, and fills the
// decompressed block with the member data.
func (b *blockReader) reset(r io.Reader, off int64) (gzip.Header, error) {
	isNewBlock := b.decompressed == nil
	if isNewBlock {
		b.decompressed = &block{}
	}

	if r != nil {
		switch cr := b.cr.r.(type) {
		case reseter:
			cr.Reset(r)
		default:
			b.cr = makeReader(r)
		}
		b.cr.n = off
	} else if isNewBlock {
		// The first member's header was consumed at construction,
		// so the held gzip.Reader is already positioned.
		b.decompressed.setBase(0)
		return b.gz.Header, b.fill()
	}

	b.decompressed.setBase(b.cr.n)

	err := b.gz.Reset(b.cr)
	if err == nil && expectedBlockSize(b.gz.Header) < 0 {
		err = ErrNoBlockSize
	}
	if err != nil {
		return b.gz.Header, err
	}

	return b.gz.Header, b.fill()
}

func (b *blockReader) fill() error {
	b.gz.Multistream(false)
	_, err := b.decompressed.readFrom(b.gz)
	return err
}

// block holds the uncompressed data of a single gzip member.
type block struct {
	base  int64
	chunk Chunk

	buf  *bytes.Reader
	data [MaxBlockSize]byte
}

func (b *block) Read(p []byte) (int, error) {
	n, err := b.buf.Read(p)
	b.chunk.End.Block += uint16(n)
	return n, err
}

func (b *block) readFrom(r io.Reader) (int64, error) {
	buf := bytes.NewBuffer(b.data[:0])
	n, err := io.Copy(buf, r)
	if err != nil {
		return n, err
	}
	b.buf = bytes.NewReader(buf.Bytes())
	return n, nil
}

func (b *block) seek(offset int64) error {
	_, err := b.buf.Seek(offset, io.SeekStart)
	if err == nil {
		b.chunk.Begin.Block = uint16(offset)
		b.chunk.End.Block = uint16(offset)
	}
	return err
}

func (b *block) len() int {
	if b.buf == nil {
		return 0
	}
	return b.buf.Len()
}

func (b *block) setBase(n int64) {
	b.base = n
	b.chunk = Chunk{Begin: Offset{File: n}, End: Offset{File: n}}
}

func (b *block) beginTx() { b.chunk.Begin = b.chunk.End }

func makeReader(r io.Reader) *countReader {
	switch r := r.(type) {
	case *countReader:
		panic("bgzf: illegal use of internal type")
	case flate.Reader:
		return &countReader{r: r}
	default:
		return &countReader{r: bufio.NewReader(r)}
	}
}

type reseter interface {
	Reset(io.Reader)
}

// countReader tracks the file offset of the underlying reader so that
// block base offsets can be recorded.
type countReader struct {
	r flate.Reader
	n int64
}

func (r *countReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *countReader) ReadByte() (byte, error) {
	b, err := r.r.ReadByte()
	r.n++
	return b, err
}

// Seek performs a seek to the given virtual offset. The underlying
// reader must be an io.ReadSeeker.
func (bg *Reader) Seek(off Offset) error {
	rs, ok := bg.r.(io.ReadSeeker)
	if !ok {
		return ErrNotASeeker
	}
	_, bg.err = rs.Seek(off.File, io.SeekStart)
	if bg.err != nil {
		return bg.err
	}
	var h gzip.Header
	h, bg.err = bg.block.reset(bg.r, off.File)
	if bg.err != nil {
		return bg.err
	}
	bg.Header = h

	if off.Block > 0 {
		bg.err = bg.block.decompressed.seek(int64(off.Block))
	}

	return bg.err
}

// LastChunk returns the virtual offset interval of the last successful
// Read.
func (bg *Reader) LastChunk() Chunk { return bg.chunk }

// Close closes the Reader. It does not close the underlying io.Reader.
func (bg *Reader) Close() error {
	return bg.block.gz.Close()
}

// Read implements the io.Reader interface. Reads transparently cross
// gzip member boundaries.
func (bg *Reader) Read(p []byte) (int, error) {
	if bg.err != nil {
		return 0, bg.err
	}
	var h gzip.Header

	if bg.block.decompressed != nil {
		bg.block.decompressed.beginTx()
	}

	if bg.block.decompressed == nil || bg.block.decompressed.len() == 0 {
		h, bg.err = bg.block.reset(nil, 0)
		if bg.err != nil {
			return 0, bg.err
		}
		bg.Header = h
	}

	var n int
	for n < len(p) && bg.err == nil {
		var _n int
		_n, bg.err = bg.block.decompressed.Read(p[n:])
		if _n > 0 {
			bg.chunk = bg.block.decompressed.chunk
		}
		n += _n
		if bg.err == io.EOF {
			if n == len(p) {
				bg.err = nil
				break
			}

			h, bg.err = bg.block.reset(nil, 0)
			if bg.err != nil {
				break
			}
			bg.Header = h
		}
	}

	return n, bg.err
}

func expectedBlockSize(h gzip.Header) int {
	i := bytes.Index(h.Extra, bgzfExtraPrefix)
	if i < 0 || i+5 >= len(h.Extra) {
		return -1
	}
	return (int(h.Extra[i+4]) | int(h.Extra[i+5])<<8) + 1
}
