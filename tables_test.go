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

import "testing"

func TestNamespaceSetSystemEntries(t *testing.T) {
	s := newNamespaceSet()
	if len(s.defined) != 2 {
		t.Fatalf("expected 2 pre-interned namespaces, got %d", len(s.defined))
	}
	empty, ok := s.byHandle(0)
	if !ok || empty.URI() != "" || empty.Prefix() != "" {
		t.Fatalf("slot 0 is not the empty namespace: %+v", empty)
	}
	xml, ok := s.byHandle(1)
	if !ok || xml.URI() != XMLNamespace || xml.Prefix() != "xml" {
		t.Fatalf("slot 1 is not the xml namespace: %+v", xml)
	}
	if !empty.Active() || !xml.Active() {
		t.Fatal("system namespaces must start active")
	}
	if uri, _ := s.uriByHandle(0); uri != "" {
		t.Fatalf("uri slot 0 = %q", uri)
	}
	if uri, _ := s.uriByHandle(1); uri != XMLNamespace {
		t.Fatalf("uri slot 1 = %q", uri)
	}
}

func TestNamespaceSetInternIdentity(t *testing.T) {
	s := newNamespaceSet()
	a := s.intern("p", "urn:x")
	b := s.intern("p", "urn:x")
	if a != b {
		t.Fatal("same (prefix, uri) interned twice")
	}
	if c := s.intern("q", "urn:x"); c == a {
		t.Fatal("distinct prefixes share an instance")
	}
	if a.handle != -1 {
		t.Fatal("interning must not define")
	}
	if h := s.define(a); h != 2 {
		t.Fatalf("first user namespace got slot %d", h)
	}
}

func TestNamespaceSetURIInterning(t *testing.T) {
	s := newNamespaceSet()
	if i, isNew := s.internURI(XMLNamespace); isNew || i != 1 {
		t.Fatalf("xml uri: slot %d, new %v", i, isNew)
	}
	i, isNew := s.internURI("urn:a")
	if !isNew || i != 2 {
		t.Fatalf("urn:a: slot %d, new %v", i, isNew)
	}
	if i, isNew = s.internURI("urn:a"); isNew || i != 2 {
		t.Fatalf("urn:a again: slot %d, new %v", i, isNew)
	}
}

func TestNamespaceSetReset(t *testing.T) {
	s := newNamespaceSet()
	s.define(s.intern("p", "urn:x"))
	s.internURI("urn:x")
	s.reset()
	if len(s.defined) != 2 || len(s.uris) != 2 {
		t.Fatalf("reset left %d namespaces, %d uris", len(s.defined), len(s.uris))
	}
	// reset twice leaves the same state
	s.reset()
	if len(s.defined) != 2 || len(s.uris) != 2 {
		t.Fatal("second reset changed state")
	}
}

func TestQNameMapSingleAndMulti(t *testing.T) {
	s := newNamespaceSet()
	ns1, _ := s.byHandle(0)
	ns2 := s.intern("p", "urn:x")

	m := newQNameMap()
	a := m.get(ns1, "v")
	if m.count != 1 {
		t.Fatalf("count = %d", m.count)
	}
	if m.get(ns1, "v") != a {
		t.Fatal("same name interned twice")
	}

	// same local name in a second namespace upgrades the entry to a
	// namespace submap and yields a distinct name
	b := m.get(ns2, "v")
	if b == a {
		t.Fatal("names in different namespaces must be distinct")
	}
	if m.count != 2 {
		t.Fatalf("count = %d", m.count)
	}
	if m.get(ns1, "v") != a || m.get(ns2, "v") != b {
		t.Fatal("submap lookup broken")
	}

	c := m.get(ns2, "w")
	if m.count != 3 || c == a || c == b {
		t.Fatal("third name mishandled")
	}
}

func TestSharedValuesThreshold(t *testing.T) {
	v := sharedValues{depth: 6}
	if v.eligible("short") {
		t.Fatal("5 characters must not share")
	}
	if !v.eligible("shared") {
		t.Fatal("6 characters must share")
	}
	// 8 bytes but only 4 characters: the threshold counts characters
	if v.eligible("żółw") {
		t.Fatal("rune count below depth must not share")
	}
	disabled := sharedValues{depth: 0}
	if disabled.eligible("long enough by any measure") {
		t.Fatal("depth 0 disables sharing")
	}
}

func TestSharedValuesHandles(t *testing.T) {
	v := sharedValues{depth: 6}
	if _, ok := v.lookup("first shared value"); ok {
		t.Fatal("lookup hit on empty table")
	}
	h1 := v.add("first shared value")
	h2 := v.add("second shared value")
	if h1 != 1 || h2 != 2 {
		t.Fatalf("handles %d, %d; expected 1, 2", h1, h2)
	}
	if h, ok := v.lookup("first shared value"); !ok || h != h1 {
		t.Fatalf("lookup = %d, %v", h, ok)
	}
	v.reset()
	if _, ok := v.lookup("first shared value"); ok {
		t.Fatal("lookup hit after reset")
	}
}
