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
	"math/bits"
)

// Values are unsigned integers encoded 7 bits per byte, low bits
// first, with the high bit of each byte flagging a continuation.
// Decoded values are limited to 31 bits.

func writeValue(b *OutBuffer, v int) {
	if v < 0 {
		panic("xbis: negative value")
	}
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b.WriteByte(c)
		if v == 0 {
			return
		}
	}
}

func readValue(b *InBuffer) (int, error) {
	v := uint64(0)
	for shift := 0; ; shift += 7 {
		if shift > 28 {
			return 0, ErrTooLarge
		}
		c, err := b.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(c&0x7f) << shift
		if v > 1<<31-1 {
			return 0, ErrTooLarge
		}
		if c&0x80 == 0 {
			return int(v), nil
		}
	}
}

// A quick value packs a small integer into the masked bits of a lead
// byte whose remaining bits belong to the caller. The mask must be a
// contiguous run of bits. A field of all ones is the overflow marker:
// the remainder then follows as a value, biased by one so that a zero
// byte never stands in for it.

func writeQuick(b *OutBuffer, v int, flags, mask byte) {
	shift := bits.TrailingZeros8(mask)
	max := int(mask) >> shift
	if v < max {
		b.WriteByte(flags | byte(v<<shift))
		return
	}
	b.WriteByte(flags | mask)
	writeValue(b, v-max+1)
}

func readQuick(b *InBuffer, lead, mask byte) (int, error) {
	shift := bits.TrailingZeros8(mask)
	max := int(mask) >> shift
	v := int(lead&mask) >> shift
	if v == max {
		rest, err := readValue(b)
		if err != nil {
			return 0, err
		}
		if rest == 0 {
			return 0, fmt.Errorf("%w: zero quick-value remainder", ErrMalformed)
		}
		v = max + rest - 1
	}
	return v, nil
}

// Strings are length-prefixed with value(len+1); the zero prefix is
// reserved and never written.

func writeString(b *OutBuffer, s string) {
	writeValue(b, len(s)+1)
	b.WriteString(s)
}

func readString(b *InBuffer) (string, error) {
	n, err := readValue(b)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("%w: reserved string length prefix", ErrMalformed)
	}
	n--
	if n == 0 {
		return "", nil
	}
	p := make([]byte, n)
	if err := b.ReadFull(p); err != nil {
		return "", err
	}
	return string(p), nil
}
