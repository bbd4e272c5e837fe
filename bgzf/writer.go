// Copyright ©2021 The htsforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bgzf

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
)

// bgzfFrameHeader is a gzip member header with FEXTRA set and a BC
// subfield whose BSIZE bytes are patched once the compressed length
// is known.
var bgzfFrameHeader = [18]byte{
	0x1f, 0x8b, // Magic.
	8,          // Deflate.
	4,          // FEXTRA.
	0, 0, 0, 0, // MTIME.
	0,    // XFL.
	0xff, // OS unknown.
	6, 0, // XLEN.
	'B', 'C', 2, 0, // BC subfield, SLEN=2.
	0, 0, // BSIZE placeholder.
}

// Writer implements BGZF compression. Each input block of at most
// BlockSize bytes is deflated into its own gzip member. Blocks are
// compressed by a pool of worker goroutines and written out in input
// order. Writer methods must not be called concurrently.
type Writer struct {
	w     io.Writer
	level int

	buf []byte // Current input block being filled.

	jobs  chan *writeJob
	order chan chan writeResult

	pending    sync.WaitGroup // Blocks queued but not yet written.
	workers    sync.WaitGroup
	writerDone chan struct{}

	closed bool

	mu  sync.Mutex
	err error
}

type writeJob struct {
	data []byte
	res  chan writeResult
}

type writeResult struct {
	frame []byte
	err   error
}

// NewWriter returns a Writer compressing at the default level, using
// wc concurrent compression workers.
func NewWriter(w io.Writer, wc int) *Writer {
	return NewWriterLevel(w, flate.DefaultCompression, wc)
}

// NewWriterLevel returns a Writer compressing at the given deflate
// level, using wc concurrent compression workers.
func NewWriterLevel(w io.Writer, level, wc int) *Writer {
	if wc < 1 {
		wc = 1
	}
	bg := &Writer{
		w:          w,
		level:      level,
		jobs:       make(chan *writeJob, wc),
		order:      make(chan chan writeResult, 2*wc),
		writerDone: make(chan struct{}),
	}
	for i := 0; i < wc; i++ {
		bg.workers.Add(1)
		go bg.compressLoop()
	}
	go bg.writeLoop()
	return bg
}

func (bg *Writer) compressLoop() {
	defer bg.workers.Done()
	var c compressor
	for j := range bg.jobs {
		frame, err := c.deflate(j.data, bg.level)
		j.res <- writeResult{frame: frame, err: err}
	}
}

// compressor holds per-worker deflate state so that the flate.Writer is
// reused across blocks.
type compressor struct {
	fw  *flate.Writer
	buf bytes.Buffer
}

func (c *compressor) deflate(data []byte, level int) ([]byte, error) {
	c.buf.Reset()
	c.buf.Write(bgzfFrameHeader[:])
	if c.fw == nil {
		var err error
		c.fw, err = flate.NewWriter(&c.buf, level)
		if err != nil {
			return nil, err
		}
	} else {
		c.fw.Reset(&c.buf)
	}
	if _, err := c.fw.Write(data); err != nil {
		return nil, err
	}
	if err := c.fw.Close(); err != nil {
		return nil, err
	}
	var trailer [8]byte
	binary.LittleEndian.PutUint32(trailer[:4], crc32.ChecksumIEEE(data))
	binary.LittleEndian.PutUint32(trailer[4:], uint32(len(data)))
	c.buf.Write(trailer[:])

	b := c.buf.Bytes()
	if len(b) > MaxBlockSize {
		return nil, ErrBlockOverflow
	}
	binary.LittleEndian.PutUint16(b[16:18], uint16(len(b)-1))
	frame := make([]byte, len(b))
	copy(frame, b)
	return frame, nil
}

func (bg *Writer) writeLoop() {
	defer close(bg.writerDone)
	for ch := range bg.order {
		res := <-ch
		switch {
		case res.err != nil:
			bg.setErr(res.err)
		case bg.Error() == nil:
			_, err := bg.w.Write(res.frame)
			if err != nil {
				bg.setErr(errors.Wrap(err, "bgzf: writing compressed block"))
			}
		}
		bg.pending.Done()
	}
}

// queueBlock submits the current input block for compression. The
// result channel is pushed onto the order queue first so that the
// write loop emits frames in submission order.
func (bg *Writer) queueBlock() {
	if len(bg.buf) == 0 {
		return
	}
	j := &writeJob{data: bg.buf, res: make(chan writeResult, 1)}
	bg.buf = nil
	bg.pending.Add(1)
	bg.order <- j.res
	bg.jobs <- j
}

// Write implements the io.Writer interface. Written data may not be
// compressed until Flush or Close is called.
func (bg *Writer) Write(p []byte) (int, error) {
	if bg.closed {
		return 0, ErrClosed
	}
	if err := bg.Error(); err != nil {
		return 0, err
	}
	var n int
	for len(p) > 0 {
		if bg.buf == nil {
			bg.buf = make([]byte, 0, BlockSize)
		}
		free := BlockSize - len(bg.buf)
		if free == 0 {
			bg.queueBlock()
			continue
		}
		if free > len(p) {
			free = len(p)
		}
		bg.buf = append(bg.buf, p[:free]...)
		p = p[free:]
		n += free
	}
	return n, bg.Error()
}

// Flush submits the current partially filled block for compression. It
// does not wait for the block to be written.
func (bg *Writer) Flush() error {
	if bg.closed {
		return ErrClosed
	}
	if err := bg.Error(); err != nil {
		return err
	}
	bg.queueBlock()
	return bg.Error()
}

// Wait waits until all submitted blocks have been written to the
// underlying io.Writer and returns the first error encountered.
func (bg *Writer) Wait() error {
	bg.pending.Wait()
	return bg.Error()
}

// Close flushes any pending data, waits for all blocks to be written
// and terminates the Writer with the BGZF magic EOF block. It does not
// close the underlying io.Writer.
func (bg *Writer) Close() error {
	if bg.closed {
		return ErrClosed
	}
	bg.closed = true
	bg.queueBlock()
	close(bg.jobs)
	bg.workers.Wait()
	bg.pending.Wait()
	close(bg.order)
	<-bg.writerDone
	if err := bg.Error(); err != nil {
		return err
	}
	_, err := bg.w.Write([]byte(magicBlock))
	if err != nil {
		err = errors.Wrap(err, "bgzf: writing EOF block")
		bg.setErr(err)
	}
	return err
}

// Error returns the first error encountered by the Writer.
func (bg *Writer) Error() error {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	return bg.err
}

func (bg *Writer) setErr(err error) {
	bg.mu.Lock()
	if bg.err == nil {
		bg.err = err
	}
	bg.mu.Unlock()
}
