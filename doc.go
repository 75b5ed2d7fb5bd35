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

// Package xbis implements a compact binary encoding of the XML
// information set. Documents are represented as a tagged byte stream:
// element and attribute names, namespaces, and recurring text values
// are written once and referenced afterwards through small integer
// handles assigned in order of first occurrence.
//
// The package provides two symmetric halves: EventWriter consumes a
// stream of parse events and produces bytes, and Reader consumes bytes
// and reproduces the events through a pull interface. Writer layers a
// namespace-index surface on top of EventWriter for marshalling
// frameworks that address namespaces by position.
package xbis
