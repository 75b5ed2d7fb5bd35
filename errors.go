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
	"errors"
	"fmt"
)

var (
	// ErrMalformed indicates input that is not a valid stream:
	// an unknown node type, a handle past the end of its table,
	// a reserved length prefix, or a truncated document.
	ErrMalformed = errors.New("xbis: malformed input")

	// ErrUnsupported indicates a write of a node kind the codec's
	// event surface does not define.
	ErrUnsupported = errors.New("xbis: unsupported operation")

	// ErrIllegalState indicates a call that is undefined in the
	// current writer or reader state, such as adding an attribute
	// with no start tag open.
	ErrIllegalState = errors.New("xbis: illegal state")

	// ErrTooLarge indicates a decoded value exceeding the codec's
	// 31-bit limit for lengths and handles.
	ErrTooLarge = fmt.Errorf("%w: value out of range", ErrMalformed)
)

func errUnknownNodeType(lead byte) error {
	return fmt.Errorf("%w: unknown node type %#02x", ErrMalformed, lead)
}

func errBadHandle(kind string, handle, max int) error {
	return fmt.Errorf("%w: %s handle %d out of range (table size %d)", ErrMalformed, kind, handle, max)
}
