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
	"bytes"
	"errors"
	"reflect"
	"testing"
)

var testURIs = []string{"", XMLNamespace, "urn:one", "urn:two"}

func TestWriterDocument(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(testURIs, &sink)
	if err := w.WriteXMLDecl("1.0", "UTF-8", ""); err != nil {
		t.Fatal(err)
	}
	if err := w.StartTagNamespaces(2, "order", []int{2}, []string{"o"}); err != nil {
		t.Fatal(err)
	}
	if err := w.AddAttribute(0, "id", "17"); err != nil {
		t.Fatal(err)
	}
	if err := w.CloseStartTag(); err != nil {
		t.Fatal(err)
	}
	if err := w.StartTagOpen(0, "note"); err != nil {
		t.Fatal(err)
	}
	if err := w.CloseStartTag(); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTextContent("fragile"); err != nil {
		t.Fatal(err)
	}
	if err := w.EndTag(0, "note"); err != nil {
		t.Fatal(err)
	}
	if err := w.StartTagOpen(0, "empty"); err != nil {
		t.Fatal(err)
	}
	if err := w.CloseEmptyTag(); err != nil {
		t.Fatal(err)
	}
	if err := w.EndTag(2, "order"); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got := decodeAll(t, sink.Bytes())
	want := []decoded{
		{Event: "START_DOCUMENT"},
		{Event: "START_TAG", Name: "order", NS: "urn:one", Prefix: "o",
			Attrs: []scenAttr{{Name: "id", Value: "17"}}},
		{Event: "START_TAG", Name: "note"},
		{Event: "TEXT", Text: "fragile"},
		{Event: "END_TAG", Name: "note"},
		{Event: "START_TAG", Name: "empty"},
		{Event: "END_TAG", Name: "empty"},
		{Event: "END_TAG", Name: "order", NS: "urn:one", Prefix: "o"},
		{Event: "END_DOCUMENT"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decoded:\n%+v\nexpected:\n%+v", got, want)
	}
}

func TestWriterUnsupported(t *testing.T) {
	w := NewWriter(testURIs, &bytes.Buffer{})
	if err := w.WriteEntityRef("amp"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("WriteEntityRef: %v", err)
	}
	if err := w.WriteDocType("d", "", "", ""); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("WriteDocType: %v", err)
	}
	if err := w.WritePI("t", "d"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("WritePI: %v", err)
	}
}

func TestWriterAttributeStateChecks(t *testing.T) {
	w := NewWriter(testURIs, &bytes.Buffer{})
	if err := w.WriteXMLDecl("1.0", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := w.AddAttribute(0, "x", "1"); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("attribute before start tag: %v", err)
	}
	if err := w.StartTagOpen(0, "a"); err != nil {
		t.Fatal(err)
	}
	if err := w.CloseStartTag(); err != nil {
		t.Fatal(err)
	}
	if err := w.AddAttribute(0, "x", "1"); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("attribute after closed start tag: %v", err)
	}
	if err := w.StartTagOpen(9, "a"); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("namespace index out of range: %v", err)
	}
}

func TestWriterChildSharesStream(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(testURIs, &sink)
	if err := w.WriteXMLDecl("1.0", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := w.StartTagOpen(0, "outer"); err != nil {
		t.Fatal(err)
	}
	if err := w.CloseStartTag(); err != nil {
		t.Fatal(err)
	}

	child := w.ChildWriter([]string{"", XMLNamespace, "urn:sub"})
	if err := child.StartTagNamespaces(2, "inner", []int{2}, []string{"s"}); err != nil {
		t.Fatal(err)
	}
	if err := child.CloseStartTag(); err != nil {
		t.Fatal(err)
	}
	if err := child.EndTag(2, "inner"); err != nil {
		t.Fatal(err)
	}
	// a child flush defers to the parent
	if err := child.Flush(); err != nil {
		t.Fatal(err)
	}

	if err := w.EndTag(0, "outer"); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got := decodeAll(t, sink.Bytes())
	want := []decoded{
		{Event: "START_DOCUMENT"},
		{Event: "START_TAG", Name: "outer"},
		{Event: "START_TAG", Name: "inner", NS: "urn:sub", Prefix: "s"},
		{Event: "END_TAG", Name: "inner", NS: "urn:sub", Prefix: "s"},
		{Event: "END_TAG", Name: "outer"},
		{Event: "END_DOCUMENT"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decoded:\n%+v\nexpected:\n%+v", got, want)
	}
}

func TestWriterPrefixUndo(t *testing.T) {
	// the same URI slot is bound to different prefixes in sibling
	// subtrees; the binding from the first must not leak into the
	// second
	var sink bytes.Buffer
	w := NewWriter(testURIs, &sink)
	if err := w.WriteXMLDecl("1.0", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := w.StartTagOpen(0, "root"); err != nil {
		t.Fatal(err)
	}
	if err := w.CloseStartTag(); err != nil {
		t.Fatal(err)
	}
	for _, prefix := range []string{"a", "b"} {
		if err := w.StartTagNamespaces(2, "item", []int{2}, []string{prefix}); err != nil {
			t.Fatal(err)
		}
		if err := w.CloseStartTag(); err != nil {
			t.Fatal(err)
		}
		if err := w.EndTag(2, "item"); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.EndTag(0, "root"); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	var prefixes []string
	for _, d := range decodeAll(t, sink.Bytes()) {
		if d.Event == "START_TAG" && d.Name == "item" {
			prefixes = append(prefixes, d.Prefix)
		}
	}
	if !reflect.DeepEqual(prefixes, []string{"a", "b"}) {
		t.Fatalf("prefixes %v", prefixes)
	}
}

func TestWriterSetOutputReuse(t *testing.T) {
	var first, second bytes.Buffer
	w := NewWriter(testURIs, &first)

	doc := func() {
		if err := w.WriteXMLDecl("1.0", "", ""); err != nil {
			t.Fatal(err)
		}
		if err := w.StartTagOpen(0, "doc"); err != nil {
			t.Fatal(err)
		}
		if err := w.CloseStartTag(); err != nil {
			t.Fatal(err)
		}
		if err := w.WriteTextContent("same both times"); err != nil {
			t.Fatal(err)
		}
		if err := w.EndTag(0, "doc"); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}

	doc()
	if err := w.SetOutput(&second); err != nil {
		t.Fatal(err)
	}
	doc()

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Logf("first:  % 02x", first.Bytes())
		t.Logf("second: % 02x", second.Bytes())
		t.Fatal("reused writer produced different bytes")
	}
}

func TestWriterBadURIs(t *testing.T) {
	expectPanic(t, func() { NewWriter([]string{"x"}, &bytes.Buffer{}) })
	expectPanic(t, func() { NewWriter([]string{"", "urn:not-xml"}, &bytes.Buffer{}) })
}
