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

import "fmt"

// EventWriter encodes a stream of XML parse events. Element and
// attribute names are assigned handles on first definition and written
// as handle references afterwards; character runs and attribute values
// long enough to share go through the shared-value tables.
//
// An element's lead byte is written with the has-children flag clear
// and its position marked; the first content event inside the element
// patches the flag. The output window is therefore never flushed while
// a start tag is still open.
type EventWriter struct {
	out *OutBuffer

	elements   *qnameMap
	attributes *qnameMap
	namespaces *namespaceSet
	content    sharedValues
	attrValues sharedValues

	active   []*Namespace // activation order, unwound on element end
	pending  []*Namespace // declared, not yet attached to an element
	nsCounts []int        // namespaces scoped to each open element
	isStart  bool         // element lead byte still marked
	fresh    bool         // no output yet since New/Reset
}

// NewEventWriter returns an EventWriter encoding to out with the
// default share depths.
func NewEventWriter(out *OutBuffer) *EventWriter {
	e := &EventWriter{
		out:        out,
		elements:   newQNameMap(),
		attributes: newQNameMap(),
		namespaces: newNamespaceSet(),
		active:     make([]*Namespace, 0, initialNamespaceCount),
		pending:    make([]*Namespace, 0, initialNamespaceCount),
		nsCounts:   make([]int, 0, initialElementDepth),
		fresh:      true,
	}
	e.content.depth = DefaultShareDepth
	e.attrValues.depth = DefaultShareDepth
	return e
}

// SetOutput redirects the writer to a new byte window.
func (e *EventWriter) SetOutput(out *OutBuffer) { e.out = out }

// SetSharedContent sets the character-data share depth. Zero disables
// content sharing. Must be called before InitWrite: the depth is part
// of the stream header.
func (e *EventWriter) SetSharedContent(depth int) { e.content.depth = depth }

// SetSharedAttributes sets the attribute-value share depth. Zero
// disables attribute-value sharing. Must be called before InitWrite.
func (e *EventWriter) SetSharedAttributes(depth int) { e.attrValues.depth = depth }

// Reset returns the writer to its initial state so it can encode
// another independent document. Resetting an already-reset writer is a
// no-op.
func (e *EventWriter) Reset() {
	if e.fresh {
		return
	}
	e.elements.reset()
	e.attributes.reset()
	e.namespaces.reset()
	e.content.reset()
	e.attrValues.reset()
	e.active = e.active[:0]
	e.pending = e.pending[:0]
	e.nsCounts = e.nsCounts[:0]
	e.isStart = false
	e.fresh = true
}

// InitWrite writes the stream header: magic, format version, the
// producer source id, and the two share depths. A second call before
// Reset is a no-op, so callers may invoke it defensively.
func (e *EventWriter) InitWrite(sourceID byte) error {
	if !e.fresh {
		return nil
	}
	e.fresh = false
	e.out.Write(headerMagic[:])
	e.out.WriteByte(headerVersion)
	e.out.WriteByte(sourceID)
	writeValue(e.out, e.content.depth+1)
	writeValue(e.out, e.attrValues.depth+1)
	return e.out.Err()
}

// SetHasContent resolves the deferred has-children flag of the element
// whose start tag is still open: set the flag if content was seen,
// then release the mark. Without an open start tag this is a no-op.
func (e *EventWriter) SetHasContent(present bool) {
	if !e.isStart {
		return
	}
	if present {
		e.out.WriteMarked(e.out.ReadMarked() | elementHasChildrenFlag)
	}
	e.out.ClearMark()
	e.isStart = false
}

// WriteDocumentStart writes the document node.
func (e *EventWriter) WriteDocumentStart() error {
	e.out.WriteByte(nodeTypeDocument)
	return e.out.Err()
}

// WriteDocumentEnd terminates the document and flushes the output.
func (e *EventWriter) WriteDocumentEnd() error {
	e.SetHasContent(false)
	e.out.WriteByte(0)
	return e.out.Flush()
}

// Flush pushes buffered output downstream. Flushing while a start tag
// is still open fails; callers resolve the tag first (see
// Writer.Flush).
func (e *EventWriter) Flush() error {
	return e.out.Flush()
}

// BeginNamespaceMapping records a namespace declaration to be attached
// to the next element start.
func (e *EventWriter) BeginNamespaceMapping(prefix, uri string) {
	e.pending = append(e.pending, e.namespaces.intern(prefix, uri))
}

// WriteElementStart writes an element start tag. Pending namespace
// declarations are emitted first; the declaration for the element's
// own namespace is carried by the name definition when the namespace
// has no handle yet. The lead byte position is marked so the
// has-children flag can be patched when content appears.
func (e *EventWriter) WriteElementStart(prefix, uri, local string, hasAttributes bool) error {
	e.SetHasContent(true)

	ns := e.namespaces.intern(prefix, uri)
	scoped := 0
	for _, p := range e.pending {
		if p == ns && ns.handle < 0 {
			continue // defined and scoped by the name definition below
		}
		e.writeNamespaceDecl(p)
		scoped++
	}
	e.pending = e.pending[:0]

	lead := byte(nodeElementFlag)
	if hasAttributes {
		lead |= elementHasAttrsFlag
	}
	e.out.Mark()
	e.isStart = true

	name := e.elements.get(ns, local)
	if name.handle > 0 {
		writeQuick(e.out, name.handle, lead, elementHandleMask)
	} else {
		e.out.WriteByte(lead | elementNewNameFlag)
		scoped += e.writeNameDef(local, ns)
		name.handle = e.elements.count
	}

	e.nsCounts = append(e.nsCounts, scoped)
	return e.out.Err()
}

// WriteElementAttribute writes one attribute of the open start tag.
func (e *EventWriter) WriteElementAttribute(prefix, uri, name, value string) error {
	if !e.isStart {
		return fmt.Errorf("%w: attribute with no start tag open", ErrIllegalState)
	}
	ns := e.namespaces.intern(prefix, uri)
	aname := e.attributes.get(ns, name)

	flags := byte(0)
	ref := 0
	if e.attrValues.eligible(value) {
		if h, ok := e.attrValues.lookup(value); ok {
			flags = attributeValueRefFlag
			ref = h
		} else {
			flags = attributeValueRefFlag | attributeNewRefFlag
		}
	}

	if aname.handle > 0 {
		writeQuick(e.out, aname.handle, flags, attributeHandleMask)
	} else {
		e.out.WriteByte(flags | attributeNewNameFlag)
		if n := e.writeNameDef(name, ns); n > 0 {
			e.nsCounts[len(e.nsCounts)-1] += n
		}
		aname.handle = e.attributes.count
	}

	switch {
	case flags&attributeNewRefFlag != 0:
		writeString(e.out, value)
		e.attrValues.add(value)
	case flags&attributeValueRefFlag != 0:
		writeValue(e.out, ref)
	default:
		writeString(e.out, value)
	}
	return e.out.Err()
}

// WriteEndAttribute terminates the attribute list of the open start
// tag.
func (e *EventWriter) WriteEndAttribute() error {
	e.out.WriteByte(0)
	return e.out.Err()
}

// WriteElementEnd closes the innermost open element and unwinds the
// namespaces scoped to it. An element that saw no content keeps the
// has-children flag clear.
func (e *EventWriter) WriteElementEnd() error {
	if len(e.nsCounts) == 0 {
		return fmt.Errorf("%w: element end with no element open", ErrIllegalState)
	}
	e.SetHasContent(false)
	e.out.WriteByte(0)
	count := e.nsCounts[len(e.nsCounts)-1]
	e.nsCounts = e.nsCounts[:len(e.nsCounts)-1]
	e.closeNamespaces(count)
	return e.out.Err()
}

// WriteCharData writes element character data. Empty runs are dropped.
func (e *EventWriter) WriteCharData(text string) error {
	if len(text) == 0 {
		return nil
	}
	e.SetHasContent(true)
	e.writeText(text)
	return e.out.Err()
}

// WriteCDATA writes a CDATA section.
func (e *EventWriter) WriteCDATA(text string) error {
	e.SetHasContent(true)
	e.out.WriteByte(nodeTypeCDATA)
	writeString(e.out, text)
	return e.out.Err()
}

// WriteComment writes a comment.
func (e *EventWriter) WriteComment(text string) error {
	e.SetHasContent(true)
	e.out.WriteByte(nodeTypeComment)
	writeString(e.out, text)
	return e.out.Err()
}

// WriteProcessingInstruction writes a processing instruction.
func (e *EventWriter) WriteProcessingInstruction(target, text string) error {
	e.SetHasContent(true)
	e.out.WriteByte(nodeTypePI)
	writeString(e.out, target)
	writeString(e.out, text)
	return e.out.Err()
}

// WriteDocumentType writes document type information.
func (e *EventWriter) WriteDocumentType(name, pubid, sysid string) error {
	e.SetHasContent(true)
	e.out.WriteByte(nodeTypeDocType)
	writeString(e.out, name)
	writeString(e.out, pubid)
	writeString(e.out, sysid)
	return e.out.Err()
}

// WriteNotation writes a notation declaration.
func (e *EventWriter) WriteNotation(name, pubid, sysid string) error {
	e.SetHasContent(true)
	e.out.WriteByte(nodeTypeNotation)
	writeString(e.out, name)
	writeString(e.out, pubid)
	writeString(e.out, sysid)
	return e.out.Err()
}

// WriteUnparsedEntity writes an unparsed entity declaration.
func (e *EventWriter) WriteUnparsedEntity(name, pubid, sysid, notation string) error {
	e.SetHasContent(true)
	e.out.WriteByte(nodeTypeUnparsedEntity)
	writeString(e.out, name)
	writeString(e.out, pubid)
	writeString(e.out, sysid)
	writeString(e.out, notation)
	return e.out.Err()
}

// WriteSkippedEntity writes a skipped entity reference.
func (e *EventWriter) WriteSkippedEntity(name string) error {
	e.SetHasContent(true)
	e.out.WriteByte(nodeTypeSkippedEntity)
	writeString(e.out, name)
	return e.out.Err()
}

// WriteElementDecl writes an element declaration.
func (e *EventWriter) WriteElementDecl(name, model string) error {
	e.SetHasContent(true)
	e.out.WriteByte(nodeTypeElementDecl)
	writeString(e.out, name)
	writeString(e.out, model)
	return e.out.Err()
}

// WriteAttributeDecl writes an attribute declaration.
func (e *EventWriter) WriteAttributeDecl(ename, aname, typ, deftype, dflt string) error {
	e.SetHasContent(true)
	e.out.WriteByte(nodeTypeAttributeDecl)
	writeString(e.out, ename)
	writeString(e.out, aname)
	writeString(e.out, typ)
	writeString(e.out, deftype)
	writeString(e.out, dflt)
	return e.out.Err()
}

// WriteExternalEntityDecl writes an external entity declaration.
func (e *EventWriter) WriteExternalEntityDecl(name, pubid, sysid string) error {
	e.SetHasContent(true)
	e.out.WriteByte(nodeTypeExternalEntityDecl)
	writeString(e.out, name)
	writeString(e.out, pubid)
	writeString(e.out, sysid)
	return e.out.Err()
}

// writeText writes character data either inline (short runs) or
// through the shared-content table.
func (e *EventWriter) writeText(text string) {
	if e.content.eligible(text) {
		if h, ok := e.content.lookup(text); ok {
			writeQuick(e.out, h, nodeTextRefFlag, textRefHandleMask)
			return
		}
		e.out.WriteByte(nodeTextRefFlag | textRefNewFlag)
		writeString(e.out, text)
		e.content.add(text)
		return
	}
	writeQuick(e.out, len(text), nodePlainTextFlag, plainTextLengthMask)
	e.out.WriteString(text)
}

// writeNameDef writes a name definition: a namespace reference
// followed by the local name. It returns the number of namespaces the
// definition introduced (0 or 1); a namespace introduced here is
// activated and scoped to the element whose start tag is being
// written.
func (e *EventWriter) writeNameDef(local string, ns *Namespace) int {
	scoped := 0
	if ns.handle >= 0 {
		writeValue(e.out, ns.handle+2)
	} else {
		writeValue(e.out, 1)
		writeString(e.out, ns.prefix)
		e.writeURIRef(ns.uri)
		e.namespaces.define(ns)
		e.activate(ns)
		scoped = 1
	}
	writeString(e.out, local)
	return scoped
}

// writeURIRef writes a URI either as a reference into the URI table or
// as a new definition appended to it.
func (e *EventWriter) writeURIRef(uri string) {
	idx, isNew := e.namespaces.internURI(uri)
	if isNew {
		writeValue(e.out, 1)
		writeString(e.out, uri)
		return
	}
	writeValue(e.out, idx+2)
}

// writeNamespaceDecl writes one in-band namespace declaration and
// activates the namespace.
func (e *EventWriter) writeNamespaceDecl(ns *Namespace) {
	if ns.handle >= 0 {
		writeQuick(e.out, ns.handle+1, nodeNamespaceDeclFlag, namespaceHandleMask)
	} else {
		e.out.WriteByte(nodeNamespaceDeclFlag | namespaceNewFlag)
		writeString(e.out, ns.prefix)
		e.writeURIRef(ns.uri)
		e.namespaces.define(ns)
	}
	e.activate(ns)
}

func (e *EventWriter) activate(ns *Namespace) {
	ns.nesting++
	e.active = append(e.active, ns)
}

func (e *EventWriter) closeNamespaces(count int) {
	for ; count > 0; count-- {
		ns := e.active[len(e.active)-1]
		e.active = e.active[:len(e.active)-1]
		ns.nesting--
	}
}
