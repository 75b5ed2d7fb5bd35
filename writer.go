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

// Writer adapts EventWriter to marshalling frameworks that address
// namespaces by position in a fixed URI array. Start tags are written
// lazily: the element is held until the first attribute or the
// close call decides whether the attribute flag belongs in its lead
// byte.
//
// uris[0] must be the empty string and uris[1] the XML namespace URI.
type Writer struct {
	ew     *EventWriter
	out    *OutBuffer
	parent *Writer

	uris     []string
	prefixes []string
	declared []bool
	opens    []nsOpen
	depth    int

	pendingIndex int
	pendingName  string
	isStart      bool
	isWritten    bool
}

// nsOpen is one entry of the prefix undo log: the state a URI slot
// returns to when the element that redeclared it ends.
type nsOpen struct {
	slot         int
	prevPrefix   string
	prevDeclared bool
	depth        int
}

// NewWriter returns a Writer encoding to w. The URI array is fixed
// for the writer's lifetime (see SetNamespaceUris for reuse).
func NewWriter(uris []string, w io.Writer) *Writer {
	out := NewOutBuffer(w)
	wr := &Writer{
		ew:  NewEventWriter(out),
		out: out,
	}
	wr.setURIs(uris)
	return wr
}

// ChildWriter returns a writer for a separate binding that shares this
// writer's event writer and byte stream. Parent and child must not be
// used concurrently; only the parent flushes.
func (w *Writer) ChildWriter(uris []string) *Writer {
	c := &Writer{
		ew:     w.ew,
		out:    w.out,
		parent: w,
	}
	c.setURIs(uris)
	return c
}

func (w *Writer) setURIs(uris []string) {
	if len(uris) < 2 || uris[0] != "" || uris[1] != XMLNamespace {
		panic("xbis: uris[0] must be \"\" and uris[1] the XML namespace")
	}
	w.uris = uris
	w.prefixes = make([]string, len(uris))
	w.declared = make([]bool, len(uris))
	w.prefixes[1] = "xml"
	w.declared[0] = true
	w.declared[1] = true
	w.opens = w.opens[:0]
	w.depth = 0
	w.isStart = false
	w.isWritten = false
}

// SetNamespaceUris reconfigures the URI array for reuse of the writer
// with the same output stream.
func (w *Writer) SetNamespaceUris(uris []string) {
	w.setURIs(uris)
}

// Init writes the stream header if it has not been written yet.
func (w *Writer) Init() error {
	return w.ew.InitWrite(EventSourceID)
}

// SetOutput re-arms the writer for a new output stream: pending bytes
// are flushed, state is reset, and a fresh header is written to the
// new stream.
func (w *Writer) SetOutput(out io.Writer) error {
	if err := w.Flush(); err != nil {
		return err
	}
	w.Reset()
	w.out.SetOutput(out)
	return w.ew.InitWrite(EventSourceID)
}

// WriteXMLDecl writes the document start. The declaration arguments
// have no binary representation and are ignored.
func (w *Writer) WriteXMLDecl(version, encoding, standalone string) error {
	if err := w.Init(); err != nil {
		return err
	}
	return w.ew.WriteDocumentStart()
}

// StartTagOpen begins an element start tag. The tag is not written
// until its attribute status is known.
func (w *Writer) StartTagOpen(index int, name string) error {
	if index < 0 || index >= len(w.uris) {
		return fmt.Errorf("%w: namespace index %d out of range", ErrIllegalState, index)
	}
	w.pendingIndex = index
	w.pendingName = name
	w.isStart = true
	w.isWritten = false
	w.depth++
	return nil
}

// StartTagNamespaces begins an element start tag that declares
// namespaces: nums are URI-array slots and prefs the prefixes to bind
// them to. Slots already bound to the same prefix are not redeclared.
func (w *Writer) StartTagNamespaces(index int, name string, nums []int, prefs []string) error {
	if err := w.StartTagOpen(index, name); err != nil {
		return err
	}
	for i, slot := range nums {
		if slot < 0 || slot >= len(w.uris) {
			return fmt.Errorf("%w: namespace index %d out of range", ErrIllegalState, slot)
		}
		if w.declared[slot] && w.prefixes[slot] == prefs[i] {
			continue
		}
		w.ew.BeginNamespaceMapping(prefs[i], w.uris[slot])
		w.opens = append(w.opens, nsOpen{
			slot:         slot,
			prevPrefix:   w.prefixes[slot],
			prevDeclared: w.declared[slot],
			depth:        w.depth,
		})
		w.prefixes[slot] = prefs[i]
		w.declared[slot] = true
	}
	return nil
}

func (w *Writer) writeStart(hasAttributes bool) error {
	if err := w.Init(); err != nil {
		return err
	}
	var err error
	if w.pendingIndex == 0 {
		err = w.ew.WriteElementStart("", "", w.pendingName, hasAttributes)
	} else {
		err = w.ew.WriteElementStart(w.prefixes[w.pendingIndex], w.uris[w.pendingIndex],
			w.pendingName, hasAttributes)
	}
	if err != nil {
		return err
	}
	w.isWritten = true
	return nil
}

// AddAttribute writes one attribute of the open start tag.
func (w *Writer) AddAttribute(index int, name, value string) error {
	if !w.isStart {
		return fmt.Errorf("%w: attribute with no start tag open", ErrIllegalState)
	}
	if index < 0 || index >= len(w.uris) {
		return fmt.Errorf("%w: namespace index %d out of range", ErrIllegalState, index)
	}
	if !w.isWritten {
		if err := w.writeStart(true); err != nil {
			return err
		}
	}
	if index == 0 {
		return w.ew.WriteElementAttribute("", "", name, value)
	}
	return w.ew.WriteElementAttribute(w.prefixes[index], w.uris[index], name, value)
}

// CloseStartTag completes the open start tag.
func (w *Writer) CloseStartTag() error {
	defer func() { w.isStart = false }()
	if w.isWritten {
		return w.ew.WriteEndAttribute()
	}
	return w.writeStart(false)
}

// CloseEmptyTag completes the open start tag and immediately ends the
// element.
func (w *Writer) CloseEmptyTag() error {
	if err := w.CloseStartTag(); err != nil {
		return err
	}
	if err := w.ew.WriteElementEnd(); err != nil {
		return err
	}
	w.closeDepth()
	return nil
}

// StartTagClosed writes a complete attribute-less start tag.
func (w *Writer) StartTagClosed(index int, name string) error {
	if err := w.StartTagOpen(index, name); err != nil {
		return err
	}
	return w.CloseStartTag()
}

// EndTag ends the innermost open element.
func (w *Writer) EndTag(index int, name string) error {
	if err := w.ew.WriteElementEnd(); err != nil {
		return err
	}
	w.closeDepth()
	return nil
}

// closeDepth unwinds prefix bindings declared by the element at the
// current depth.
func (w *Writer) closeDepth() {
	for len(w.opens) > 0 {
		o := w.opens[len(w.opens)-1]
		if o.depth != w.depth {
			break
		}
		w.prefixes[o.slot] = o.prevPrefix
		w.declared[o.slot] = o.prevDeclared
		w.opens = w.opens[:len(w.opens)-1]
	}
	w.depth--
}

// WriteTextContent writes element character data.
func (w *Writer) WriteTextContent(text string) error {
	return w.ew.WriteCharData(text)
}

// WriteCData writes a CDATA section.
func (w *Writer) WriteCData(text string) error {
	return w.ew.WriteCDATA(text)
}

// WriteComment writes a comment.
func (w *Writer) WriteComment(text string) error {
	return w.ew.WriteComment(text)
}

// WriteEntityRef reports ErrUnsupported: entity references have no
// place in this event surface.
func (w *Writer) WriteEntityRef(name string) error {
	return fmt.Errorf("%w: entity reference", ErrUnsupported)
}

// WriteDocType reports ErrUnsupported on this surface; use
// EventWriter.WriteDocumentType for direct event encoding.
func (w *Writer) WriteDocType(name, sys, pub, subset string) error {
	return fmt.Errorf("%w: document type declaration", ErrUnsupported)
}

// WritePI reports ErrUnsupported on this surface; use
// EventWriter.WriteProcessingInstruction for direct event encoding.
func (w *Writer) WritePI(target, data string) error {
	return fmt.Errorf("%w: processing instruction", ErrUnsupported)
}

// Flush resolves any still-open start tag's content flag and pushes
// buffered output downstream. Child writers leave flushing to the
// parent.
func (w *Writer) Flush() error {
	if w.parent != nil {
		return nil
	}
	w.ew.SetHasContent(true)
	return w.ew.Flush()
}

// Close terminates the document and flushes.
func (w *Writer) Close() error {
	return w.ew.WriteDocumentEnd()
}

// Reset returns the writer to its initial state for a new document on
// the same stream.
func (w *Writer) Reset() {
	w.ew.Reset()
	w.setURIs(w.uris)
	w.pendingName = ""
	w.pendingIndex = 0
}
