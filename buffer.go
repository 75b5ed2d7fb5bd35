// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package xbis

import (
	"fmt"
	"io"
)

// OutBuffer is a byte window over an io.Writer. It supports marking a
// written byte and patching it later, which the writer uses to fix up
// an element's lead byte once the presence of content is known. The
// window is never handed to the underlying writer while a mark is
// live; it grows instead.
//
// Write errors are sticky: once the underlying writer fails, further
// writes are dropped and the first error is reported by Err and Flush.
type OutBuffer struct {
	w    io.Writer
	buf  []byte
	size int
	mark int
	err  error
}

// NewOutBuffer returns an OutBuffer writing to w with the default
// window size.
func NewOutBuffer(w io.Writer) *OutBuffer {
	return &OutBuffer{
		w:    w,
		buf:  make([]byte, 0, defaultOutBufferSize),
		size: defaultOutBufferSize,
		mark: -1,
	}
}

// SetOutput directs subsequent output to w. Any buffered bytes and any
// sticky error are discarded; callers flush first if they matter.
func (b *OutBuffer) SetOutput(w io.Writer) {
	b.w = w
	b.buf = b.buf[:0]
	b.mark = -1
	b.err = nil
}

// Err returns the sticky write error, if any.
func (b *OutBuffer) Err() error { return b.err }

func (b *OutBuffer) room() {
	if len(b.buf) >= b.size && b.mark < 0 && b.err == nil {
		b.flush()
	}
}

// WriteByte appends one byte to the window, flushing first if the
// window is full and unmarked.
func (b *OutBuffer) WriteByte(c byte) {
	b.room()
	b.buf = append(b.buf, c)
}

// Write appends p to the window.
func (b *OutBuffer) Write(p []byte) {
	b.room()
	b.buf = append(b.buf, p...)
}

// WriteString appends s to the window.
func (b *OutBuffer) WriteString(s string) {
	b.room()
	b.buf = append(b.buf, s...)
}

// Mark records the offset of the next byte to be written so that it
// can be patched later. Only one mark can be live at a time.
func (b *OutBuffer) Mark() {
	b.mark = len(b.buf)
}

// Marked reports whether a mark is live.
func (b *OutBuffer) Marked() bool { return b.mark >= 0 }

// ReadMarked returns the byte at the live mark.
func (b *OutBuffer) ReadMarked() byte {
	if b.mark < 0 || b.mark >= len(b.buf) {
		panic("xbis: ReadMarked without live mark")
	}
	return b.buf[b.mark]
}

// WriteMarked patches the byte at the live mark.
func (b *OutBuffer) WriteMarked(c byte) {
	if b.mark < 0 || b.mark >= len(b.buf) {
		panic("xbis: WriteMarked without live mark")
	}
	b.buf[b.mark] = c
}

// ClearMark drops the live mark, releasing the window for flushing.
func (b *OutBuffer) ClearMark() { b.mark = -1 }

func (b *OutBuffer) flush() {
	if len(b.buf) == 0 {
		return
	}
	if b.err != nil {
		// sticky error: bytes written after the failure are dropped
		b.buf = b.buf[:0]
		return
	}
	_, err := b.w.Write(b.buf)
	b.buf = b.buf[:0]
	if err != nil && b.err == nil {
		b.err = err
	}
}

// Flush hands the window contents to the underlying writer. Flushing
// with a live mark is an error: the marked byte may still be patched.
func (b *OutBuffer) Flush() error {
	if b.mark >= 0 {
		return fmt.Errorf("%w: flush with live mark", ErrIllegalState)
	}
	b.flush()
	return b.err
}

// InBuffer is a refillable byte window over an io.Reader.
type InBuffer struct {
	r        io.Reader
	buf      []byte
	pos, lim int
}

// NewInBuffer returns an InBuffer reading from r with the default
// window size.
func NewInBuffer(r io.Reader) *InBuffer {
	return &InBuffer{
		r:   r,
		buf: make([]byte, defaultInBufferSize),
	}
}

// SetInput directs subsequent input to come from r, discarding any
// unread window contents.
func (b *InBuffer) SetInput(r io.Reader) {
	b.r = r
	b.pos, b.lim = 0, 0
}

func (b *InBuffer) refill() error {
	b.pos, b.lim = 0, 0
	for {
		n, err := b.r.Read(b.buf)
		if n > 0 {
			b.lim = n
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ReadByte returns the next input byte. Exhausted input surfaces as
// io.ErrUnexpectedEOF; callers positioned at a legal end of stream
// check IsEnd first.
func (b *InBuffer) ReadByte() (byte, error) {
	if b.pos == b.lim {
		if err := b.refill(); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
	}
	c := b.buf[b.pos]
	b.pos++
	return c, nil
}

// ReadFull fills p from the input.
func (b *InBuffer) ReadFull(p []byte) error {
	for len(p) > 0 {
		if b.pos == b.lim {
			if err := b.refill(); err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return err
			}
		}
		n := copy(p, b.buf[b.pos:b.lim])
		b.pos += n
		p = p[n:]
	}
	return nil
}

// IsEnd reports whether the input is exhausted. It blocks to refill
// when the window is empty; read errors other than EOF are returned.
func (b *InBuffer) IsEnd() (bool, error) {
	if b.pos < b.lim {
		return false, nil
	}
	err := b.refill()
	if err == io.EOF {
		return true, nil
	}
	return false, err
}
