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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/xbisio/xbis/compr"
)

// Encoded documents compress well (the handle compression leaves
// mostly string payloads behind), so the codec can be layered over a
// framed block stream: a one-time algorithm name, then per block the
// raw length, the compressed length, and the compressed bytes, all
// lengths uvarint. Blocks are independent; any compr algorithm works.

const (
	defaultBlockSize = 1 << 16
	maxBlockSize     = 1 << 27
)

// CompressedOutput is an io.Writer that frames and compresses its
// input in blocks. It buffers up to a block size, so callers must
// Close (or Flush) to push trailing data downstream.
type CompressedOutput struct {
	w       io.Writer
	c       compr.Compressor
	block   []byte
	scratch []byte
	size    int
	headed  bool
}

// NewCompressedOutput returns a CompressedOutput writing algo-framed
// blocks to w. The algorithm name must be known to compr.Compression.
func NewCompressedOutput(w io.Writer, algo string) (*CompressedOutput, error) {
	c := compr.Compression(algo)
	if c == nil {
		return nil, fmt.Errorf("xbis: unknown compression %q", algo)
	}
	return &CompressedOutput{
		w:    w,
		c:    c,
		size: defaultBlockSize,
	}, nil
}

// Write buffers p, emitting complete blocks as they fill.
func (c *CompressedOutput) Write(p []byte) (int, error) {
	c.block = append(c.block, p...)
	for len(c.block) >= c.size {
		if err := c.writeBlock(c.block[:c.size]); err != nil {
			return 0, err
		}
		c.block = c.block[:copy(c.block, c.block[c.size:])]
	}
	return len(p), nil
}

func (c *CompressedOutput) header() error {
	if c.headed {
		return nil
	}
	c.headed = true
	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(c.c.Name())))
	if _, err := c.w.Write(hdr[:n]); err != nil {
		return err
	}
	_, err := io.WriteString(c.w, c.c.Name())
	return err
}

func (c *CompressedOutput) writeBlock(raw []byte) error {
	if err := c.header(); err != nil {
		return err
	}
	c.scratch = c.c.Compress(raw, c.scratch[:0])
	var hdr [2 * binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(raw)))
	n += binary.PutUvarint(hdr[n:], uint64(len(c.scratch)))
	if _, err := c.w.Write(hdr[:n]); err != nil {
		return err
	}
	_, err := c.w.Write(c.scratch)
	return err
}

// Flush emits any buffered partial block.
func (c *CompressedOutput) Flush() error {
	if len(c.block) == 0 {
		return c.header()
	}
	err := c.writeBlock(c.block)
	c.block = c.block[:0]
	return err
}

// Close flushes remaining data. The underlying writer is left open.
func (c *CompressedOutput) Close() error {
	return c.Flush()
}

// CompressedInput is an io.Reader decompressing a stream produced by
// CompressedOutput.
type CompressedInput struct {
	r   *bufio.Reader
	d   compr.Decompressor
	buf []byte
	pos int
}

// NewCompressedInput returns a CompressedInput reading framed blocks
// from r. The algorithm is taken from the stream header on first read.
func NewCompressedInput(r io.Reader) *CompressedInput {
	return &CompressedInput{r: bufio.NewReader(r)}
}

func (c *CompressedInput) header() error {
	if c.d != nil {
		return nil
	}
	n, err := binary.ReadUvarint(c.r)
	if err != nil {
		return err
	}
	if n == 0 || n > 64 {
		return fmt.Errorf("%w: bad compression header", ErrMalformed)
	}
	name := make([]byte, n)
	if _, err := io.ReadFull(c.r, name); err != nil {
		return noEOF(err)
	}
	c.d = compr.Decompression(string(name))
	if c.d == nil {
		return fmt.Errorf("xbis: unknown compression %q", name)
	}
	return nil
}

func (c *CompressedInput) nextBlock() error {
	if err := c.header(); err != nil {
		return err
	}
	for {
		raw, err := binary.ReadUvarint(c.r)
		if err != nil {
			return err // io.EOF here is a clean end of stream
		}
		comp, err := binary.ReadUvarint(c.r)
		if err != nil {
			return noEOF(err)
		}
		if raw > maxBlockSize || comp > maxBlockSize {
			return fmt.Errorf("%w: oversized block (%d raw, %d compressed)",
				ErrMalformed, raw, comp)
		}
		src := make([]byte, comp)
		if _, err := io.ReadFull(c.r, src); err != nil {
			return noEOF(err)
		}
		if cap(c.buf) < int(raw) {
			c.buf = make([]byte, raw)
		}
		c.buf = c.buf[:raw]
		c.pos = 0
		if raw == 0 {
			continue
		}
		return c.d.Decompress(src, c.buf)
	}
}

// Read fills p from the decompressed stream.
func (c *CompressedInput) Read(p []byte) (int, error) {
	for c.pos == len(c.buf) {
		if err := c.nextBlock(); err != nil {
			return 0, err
		}
	}
	n := copy(p, c.buf[c.pos:])
	c.pos += n
	return n, nil
}

// noEOF turns a mid-record EOF into io.ErrUnexpectedEOF.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
