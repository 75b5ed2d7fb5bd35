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
	"github.com/dchest/siphash"
	"golang.org/x/exp/maps"

	"github.com/xbisio/xbis/utf8"
)

// Namespace is a (prefix, URI) pair interned per codec instance.
// Slot 0 of every namespace table is the empty namespace and slot 1
// the reserved "xml" namespace; both are active for the lifetime of
// the instance.
type Namespace struct {
	prefix, uri string
	handle      int // definition slot, -1 until defined on the wire
	nesting     int // active scope count
}

// Prefix returns the namespace prefix ("" for the default namespace).
func (n *Namespace) Prefix() string { return n.prefix }

// URI returns the namespace URI ("" for the empty namespace).
func (n *Namespace) URI() string { return n.uri }

// Active reports whether the namespace is currently in scope.
func (n *Namespace) Active() bool { return n.nesting > 0 }

// Name is a (local name, namespace) pair. Element and attribute names
// are interned in separate tables with separate handle spaces.
type Name struct {
	local  string
	ns     *Namespace
	handle int // 1-based, 0 until defined on the wire
}

// Local returns the local part of the name.
func (n *Name) Local() string { return n.local }

// Namespace returns the name's namespace.
func (n *Name) Namespace() *Namespace { return n.ns }

var systemURIIndex = map[string]int{
	"":           0,
	XMLNamespace: 1,
}

type nsKey struct {
	prefix, uri string
}

// namespaceSet holds the per-document namespace and URI tables. The
// writer interns through byKey; the reader appends through define in
// stream order. Both sides assign definition slots monotonically.
type namespaceSet struct {
	byKey    map[nsKey]*Namespace
	defined  []*Namespace
	uris     []string
	uriIndex map[string]int
}

func newNamespaceSet() *namespaceSet {
	s := &namespaceSet{}
	s.reset()
	return s
}

func (s *namespaceSet) reset() {
	s.byKey = make(map[nsKey]*Namespace)
	s.defined = s.defined[:0]
	s.uris = append(s.uris[:0], "", XMLNamespace)
	s.uriIndex = maps.Clone(systemURIIndex)

	// the two system namespaces are defined and active up front
	s.define(s.intern("", ""))
	s.define(s.intern("xml", XMLNamespace))
	s.defined[0].nesting = 1
	s.defined[1].nesting = 1
}

// intern returns the namespace for (prefix, uri), creating an
// undefined one on first sight.
func (s *namespaceSet) intern(prefix, uri string) *Namespace {
	k := nsKey{prefix, uri}
	if ns := s.byKey[k]; ns != nil {
		return ns
	}
	ns := &Namespace{prefix: prefix, uri: uri, handle: -1}
	s.byKey[k] = ns
	return ns
}

// define assigns ns the next definition slot. The slot order must
// match the order of definitions in the byte stream exactly.
func (s *namespaceSet) define(ns *Namespace) int {
	ns.handle = len(s.defined)
	s.defined = append(s.defined, ns)
	return ns.handle
}

// byHandle resolves a definition slot.
func (s *namespaceSet) byHandle(h int) (*Namespace, bool) {
	if h < 0 || h >= len(s.defined) {
		return nil, false
	}
	return s.defined[h], true
}

// internURI returns the URI-table slot for uri, adding it when new.
// The second result is false when the URI was already present.
func (s *namespaceSet) internURI(uri string) (int, bool) {
	if i, ok := s.uriIndex[uri]; ok {
		return i, false
	}
	i := len(s.uris)
	s.uris = append(s.uris, uri)
	s.uriIndex[uri] = i
	return i, true
}

func (s *namespaceSet) uriByHandle(h int) (string, bool) {
	if h < 0 || h >= len(s.uris) {
		return "", false
	}
	return s.uris[h], true
}

// qnameMap interns names for the writer. The common case of a local
// name bound to a single namespace avoids a secondary map; a second
// namespace for the same local name upgrades the entry to a submap.
type qnameMap struct {
	names map[string]*nameEntry
	count int
}

type nameEntry struct {
	single *Name
	multi  map[*Namespace]*Name
}

func newQNameMap() *qnameMap {
	return &qnameMap{names: make(map[string]*nameEntry)}
}

func (m *qnameMap) reset() {
	m.names = make(map[string]*nameEntry)
	m.count = 0
}

// get returns the interned name for (ns, local), creating it on first
// sight. Created names count toward the handle sequence immediately;
// the caller assigns the wire handle when the definition is emitted.
func (m *qnameMap) get(ns *Namespace, local string) *Name {
	e := m.names[local]
	if e == nil {
		n := &Name{local: local, ns: ns}
		m.names[local] = &nameEntry{single: n}
		m.count++
		return n
	}
	if e.single != nil {
		if e.single.ns == ns {
			return e.single
		}
		e.multi = map[*Namespace]*Name{e.single.ns: e.single}
		e.single = nil
	}
	if n := e.multi[ns]; n != nil {
		return n
	}
	n := &Name{local: local, ns: ns}
	e.multi[ns] = n
	m.count++
	return n
}

// sharedValues is the writer half of a shared-string table: the
// append-only value list plus a fingerprint index. Strings are keyed
// by their 64-bit SipHash; buckets are verified by full comparison.
type sharedValues struct {
	depth int // minimum share length in characters; 0 disables
	list  []string
	index map[uint64][]int
}

const (
	sharedHashK0 = 0x7962697378626973
	sharedHashK1 = 0x2064656e6e697320
)

func fingerprint(s string) uint64 {
	return siphash.Hash(sharedHashK0, sharedHashK1, []byte(s))
}

func (v *sharedValues) reset() {
	v.list = v.list[:0]
	v.index = nil
}

// eligible reports whether s is long enough to enter the table.
func (v *sharedValues) eligible(s string) bool {
	return v.depth > 0 && len(s) >= v.depth && utf8.StringLength(s) >= v.depth
}

// lookup returns the 1-based handle of s if it was added before.
func (v *sharedValues) lookup(s string) (int, bool) {
	for _, h := range v.index[fingerprint(s)] {
		if v.list[h-1] == s {
			return h, true
		}
	}
	return 0, false
}

// add appends s and returns its new 1-based handle.
func (v *sharedValues) add(s string) int {
	if v.index == nil {
		v.index = make(map[uint64][]int)
	}
	v.list = append(v.list, s)
	h := len(v.list)
	fp := fingerprint(s)
	v.index[fp] = append(v.index[fp], h)
	return h
}
