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
	"fmt"
)

// Reader decodes a byte stream into a pull-style sequence of parse
// events. Name, namespace and shared-value tables are populated from
// the definition records in the stream; handle references resolve
// against them. Tables on this side are plain monotonic vectors: the
// stream's definition order is the handle order.
type Reader struct {
	in *InBuffer

	elements   []*Name
	attributes []*Name
	namespaces *namespaceSet
	content    []string
	attrValues []string

	active    []*Namespace // activation order, unwound at end tags
	pendingNS int          // declarations awaiting the next start tag

	stack      []readerFrame
	state      EventCode
	stateValid bool
	element    *Name
	text       string
	attrNames  []*Name
	attrVals   []string
	attrCount  int

	inited   bool
	sourceID byte

	contentDepth int // producer share depths, from the header
	attrDepth    int
}

type readerFrame struct {
	name    *Name
	nsCount int
}

// NewReader returns a Reader decoding from in.
func NewReader(in *InBuffer) *Reader {
	r := &Reader{
		in:         in,
		namespaces: newNamespaceSet(),
		attrNames:  make([]*Name, 0, initialAttributeCount),
		attrVals:   make([]string, 0, initialAttributeCount),
	}
	return r
}

// SetInput re-arms the reader for a new stream: tables are reset and
// the next NextToken reads a fresh header.
func (r *Reader) SetInput(in *InBuffer) {
	r.Reset()
	r.in = in
}

// Reset returns the reader to its initial state. Resetting twice in a
// row leaves the same state as resetting once.
func (r *Reader) Reset() {
	r.elements = r.elements[:0]
	r.attributes = r.attributes[:0]
	r.namespaces.reset()
	r.content = r.content[:0]
	r.attrValues = r.attrValues[:0]
	r.active = r.active[:0]
	r.pendingNS = 0
	r.stack = r.stack[:0]
	r.stateValid = false
	r.element = nil
	r.text = ""
	r.attrCount = 0
	r.inited = false
}

// Init reads and verifies the stream header. It is invoked lazily by
// the first NextToken, so calling it explicitly is optional.
func (r *Reader) Init() error {
	if r.inited {
		return nil
	}
	var magic [4]byte
	if err := r.in.ReadFull(magic[:]); err != nil {
		return err
	}
	if !bytes.Equal(magic[:], headerMagic[:]) {
		return fmt.Errorf("%w: bad magic % 02x", ErrMalformed, magic[:])
	}
	version, err := r.in.ReadByte()
	if err != nil {
		return err
	}
	if version != headerVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrMalformed, version)
	}
	if r.sourceID, err = r.in.ReadByte(); err != nil {
		return err
	}
	d, err := readValue(r.in)
	if err != nil {
		return err
	}
	if d == 0 {
		return fmt.Errorf("%w: reserved share depth", ErrMalformed)
	}
	r.contentDepth = d - 1
	if d, err = readValue(r.in); err != nil {
		return err
	}
	if d == 0 {
		return fmt.Errorf("%w: reserved share depth", ErrMalformed)
	}
	r.attrDepth = d - 1
	r.inited = true
	return nil
}

// SourceID returns the producer dialect byte from the stream header.
// Valid once the header has been read.
func (r *Reader) SourceID() byte { return r.sourceID }

// Next advances to the next principal event, consolidating over node
// kinds that have no surfaced event.
func (r *Reader) Next() (EventCode, error) {
	for {
		event, err := r.NextToken()
		if err != nil {
			return 0, err
		}
		switch event {
		case EventStartDocument, EventEndDocument, EventStartTag,
			EventEndTag, EventText, EventCDSect:
			return event, nil
		}
	}
}

// NextToken advances to the next parse event.
func (r *Reader) NextToken() (EventCode, error) {
	if !r.inited {
		if err := r.Init(); err != nil {
			return 0, err
		}
	}
	r.stateValid = false
	for {
		end, err := r.in.IsEnd()
		if err != nil {
			return 0, err
		}
		if end {
			if len(r.stack) != 0 {
				return 0, fmt.Errorf("%w: premature end of stream (%d open elements)",
					ErrMalformed, len(r.stack))
			}
			return r.emit(EventEndDocument), nil
		}
		lead, err := r.in.ReadByte()
		if err != nil {
			return 0, err
		}
		switch {
		case lead == 0:
			if len(r.stack) == 0 {
				return r.emit(EventEndDocument), nil
			}
			frame := r.stack[len(r.stack)-1]
			r.stack = r.stack[:len(r.stack)-1]
			r.element = frame.name
			r.closeNamespaces(frame.nsCount)
			return r.emit(EventEndTag), nil

		case lead&nodeElementFlag != 0:
			if err := r.readElement(lead); err != nil {
				return 0, err
			}
			return r.emit(EventStartTag), nil

		case lead&nodePlainTextFlag != 0:
			n, err := readQuick(r.in, lead, plainTextLengthMask)
			if err != nil {
				return 0, err
			}
			p := make([]byte, n)
			if err := r.in.ReadFull(p); err != nil {
				return 0, err
			}
			r.text = string(p)
			return r.emit(EventText), nil

		case lead&nodeTextRefFlag != 0:
			if err := r.readTextRef(lead); err != nil {
				return 0, err
			}
			return r.emit(EventText), nil

		case lead&nodeNamespaceDeclFlag != 0:
			if err := r.readNamespaceDecl(lead); err != nil {
				return 0, err
			}
			// declarations surface no event of their own

		default:
			event, done, err := r.readDiscrete(lead)
			if err != nil {
				return 0, err
			}
			if done {
				return r.emit(event), nil
			}
		}
	}
}

func (r *Reader) emit(event EventCode) EventCode {
	r.state = event
	r.stateValid = true
	return event
}

// readDiscrete handles the enumerated node types. Kinds without a
// surfaced event are read and discarded; done reports whether an event
// should be emitted.
func (r *Reader) readDiscrete(lead byte) (EventCode, bool, error) {
	discard := func(n int) error {
		for i := 0; i < n; i++ {
			if _, err := readString(r.in); err != nil {
				return err
			}
		}
		return nil
	}
	switch lead {
	case nodeTypeDocument:
		return EventStartDocument, true, nil
	case nodeTypeCDATA:
		text, err := readString(r.in)
		if err != nil {
			return 0, false, err
		}
		r.text = text
		return EventCDSect, true, nil
	case nodeTypeAttributeDecl:
		return 0, false, discard(5)
	case nodeTypeUnparsedEntity:
		return 0, false, discard(4)
	case nodeTypeDocType, nodeTypeNotation, nodeTypeExternalEntityDecl:
		return 0, false, discard(3)
	case nodeTypePI, nodeTypeElementDecl:
		return 0, false, discard(2)
	case nodeTypeComment, nodeTypeSkippedEntity:
		return 0, false, discard(1)
	default:
		return 0, false, errUnknownNodeType(lead)
	}
}

// readElement decodes an element start tag: the name (by handle or new
// definition), then the attribute list when present.
func (r *Reader) readElement(lead byte) error {
	var name *Name
	var err error
	if lead&elementNewNameFlag != 0 {
		if name, err = r.readNameDef(&r.elements); err != nil {
			return err
		}
	} else {
		h, err := readQuick(r.in, lead, elementHandleMask)
		if err != nil {
			return err
		}
		if h < 1 || h > len(r.elements) {
			return errBadHandle("element", h, len(r.elements))
		}
		name = r.elements[h-1]
	}

	r.attrCount = 0
	r.attrNames = r.attrNames[:0]
	r.attrVals = r.attrVals[:0]
	if lead&elementHasAttrsFlag != 0 {
		for {
			alead, err := r.in.ReadByte()
			if err != nil {
				return err
			}
			if alead == 0 {
				break
			}
			if err := r.readAttribute(alead); err != nil {
				return err
			}
		}
	}

	r.stack = append(r.stack, readerFrame{name: name, nsCount: r.pendingNS})
	r.pendingNS = 0
	r.element = name
	return nil
}

func (r *Reader) readAttribute(lead byte) error {
	var name *Name
	var err error
	if lead&attributeNewNameFlag != 0 {
		if name, err = r.readNameDef(&r.attributes); err != nil {
			return err
		}
	} else {
		h, err := readQuick(r.in, lead, attributeHandleMask)
		if err != nil {
			return err
		}
		if h < 1 || h > len(r.attributes) {
			return errBadHandle("attribute", h, len(r.attributes))
		}
		name = r.attributes[h-1]
	}

	var value string
	if lead&attributeValueRefFlag != 0 {
		if lead&attributeNewRefFlag != 0 {
			if value, err = readString(r.in); err != nil {
				return err
			}
			r.attrValues = append(r.attrValues, value)
		} else {
			h, err := readValue(r.in)
			if err != nil {
				return err
			}
			if h < 1 || h > len(r.attrValues) {
				return errBadHandle("attribute value", h, len(r.attrValues))
			}
			value = r.attrValues[h-1]
		}
	} else if value, err = readString(r.in); err != nil {
		return err
	}

	r.attrNames = append(r.attrNames, name)
	r.attrVals = append(r.attrVals, value)
	r.attrCount++
	return nil
}

func (r *Reader) readTextRef(lead byte) error {
	if lead&textRefNewFlag != 0 {
		text, err := readString(r.in)
		if err != nil {
			return err
		}
		r.content = append(r.content, text)
		r.text = text
		return nil
	}
	h, err := readQuick(r.in, lead, textRefHandleMask)
	if err != nil {
		return err
	}
	if h < 1 || h > len(r.content) {
		return errBadHandle("shared content", h, len(r.content))
	}
	r.text = r.content[h-1]
	return nil
}

// readNameDef decodes a name definition into the given population and
// assigns it the next handle. A namespace introduced by the definition
// is activated and scoped to the element whose start tag is being
// read.
func (r *Reader) readNameDef(population *[]*Name) (*Name, error) {
	ns, err := r.readNamespaceRef()
	if err != nil {
		return nil, err
	}
	local, err := readString(r.in)
	if err != nil {
		return nil, err
	}
	name := &Name{local: local, ns: ns, handle: len(*population) + 1}
	*population = append(*population, name)
	return name, nil
}

func (r *Reader) readNamespaceRef() (*Namespace, error) {
	n, err := readValue(r.in)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: reserved namespace reference", ErrMalformed)
	}
	if n == 1 {
		ns, err := r.readNewNamespace()
		if err != nil {
			return nil, err
		}
		r.activate(ns)
		r.pendingNS++
		return ns, nil
	}
	ns, ok := r.namespaces.byHandle(n - 2)
	if !ok {
		return nil, errBadHandle("namespace", n-2, len(r.namespaces.defined))
	}
	return ns, nil
}

// readNewNamespace decodes an inline namespace definition (prefix plus
// URI reference) and appends it to the namespace table.
func (r *Reader) readNewNamespace() (*Namespace, error) {
	prefix, err := readString(r.in)
	if err != nil {
		return nil, err
	}
	uri, err := r.readURIRef()
	if err != nil {
		return nil, err
	}
	ns := &Namespace{prefix: prefix, uri: uri}
	r.namespaces.define(ns)
	return ns, nil
}

func (r *Reader) readURIRef() (string, error) {
	u, err := readValue(r.in)
	if err != nil {
		return "", err
	}
	if u == 0 {
		return "", fmt.Errorf("%w: reserved URI reference", ErrMalformed)
	}
	if u == 1 {
		uri, err := readString(r.in)
		if err != nil {
			return "", err
		}
		r.namespaces.uris = append(r.namespaces.uris, uri)
		return uri, nil
	}
	uri, ok := r.namespaces.uriByHandle(u - 2)
	if !ok {
		return "", errBadHandle("uri", u-2, len(r.namespaces.uris))
	}
	return uri, nil
}

func (r *Reader) readNamespaceDecl(lead byte) error {
	if lead&namespaceNewFlag != 0 {
		ns, err := r.readNewNamespace()
		if err != nil {
			return err
		}
		r.activate(ns)
		r.pendingNS++
		return nil
	}
	h, err := readQuick(r.in, lead, namespaceHandleMask)
	if err != nil {
		return err
	}
	ns, ok := r.namespaces.byHandle(h - 1)
	if !ok {
		return errBadHandle("namespace", h-1, len(r.namespaces.defined))
	}
	r.activate(ns)
	r.pendingNS++
	return nil
}

func (r *Reader) activate(ns *Namespace) {
	ns.nesting++
	r.active = append(r.active, ns)
}

func (r *Reader) closeNamespaces(count int) {
	for ; count > 0; count-- {
		ns := r.active[len(r.active)-1]
		r.active = r.active[:len(r.active)-1]
		ns.nesting--
	}
}

// state checks: accessors are defined only in particular states, and
// calling them elsewhere is a programming error.

func (r *Reader) mustState(want string, ok bool) {
	if !ok {
		panic(fmt.Sprintf("xbis: accessor requires %s state, current %v", want, r.state))
	}
}

func (r *Reader) mustTag() {
	r.mustState("START_TAG or END_TAG",
		r.stateValid && (r.state == EventStartTag || r.state == EventEndTag))
}

func (r *Reader) mustStartTag() {
	r.mustState("START_TAG", r.stateValid && r.state == EventStartTag)
}

// EventType returns the current event without advancing.
func (r *Reader) EventType() EventCode {
	r.mustState("any", r.stateValid)
	return r.state
}

// Name returns the local name of the current start or end tag.
func (r *Reader) Name() string {
	r.mustTag()
	return r.element.local
}

// Namespace returns the namespace URI of the current start or end tag,
// "" for the empty namespace.
func (r *Reader) Namespace() string {
	r.mustTag()
	return r.element.ns.uri
}

// Prefix returns the namespace prefix of the current start or end tag,
// "" when there is none.
func (r *Reader) Prefix() string {
	r.mustTag()
	return r.element.ns.prefix
}

// AttributeCount returns the number of attributes of the current start
// tag.
func (r *Reader) AttributeCount() int {
	r.mustStartTag()
	return r.attrCount
}

func (r *Reader) attributeName(i int) *Name {
	r.mustStartTag()
	if i < 0 || i >= r.attrCount {
		panic(fmt.Sprintf("xbis: attribute index %d out of range (%d attributes)", i, r.attrCount))
	}
	return r.attrNames[i]
}

// AttributeName returns the local name of attribute i.
func (r *Reader) AttributeName(i int) string {
	return r.attributeName(i).local
}

// AttributeNamespace returns the namespace URI of attribute i.
func (r *Reader) AttributeNamespace(i int) string {
	return r.attributeName(i).ns.uri
}

// AttributePrefix returns the namespace prefix of attribute i, "" when
// there is none.
func (r *Reader) AttributePrefix(i int) string {
	return r.attributeName(i).ns.prefix
}

// AttributeValue returns the value of attribute i.
func (r *Reader) AttributeValue(i int) string {
	r.attributeName(i)
	return r.attrVals[i]
}

// AttributeValueNamed returns the value of the attribute with the
// given namespace URI and local name. An empty URI addresses the empty
// namespace.
func (r *Reader) AttributeValueNamed(uri, local string) (string, bool) {
	r.mustStartTag()
	for i := 0; i < r.attrCount; i++ {
		name := r.attrNames[i]
		if name.local == local && name.ns.uri == uri {
			return r.attrVals[i], true
		}
	}
	return "", false
}

// Text returns the character data of the current TEXT or CDSECT event.
func (r *Reader) Text() string {
	r.mustState("TEXT or CDSECT",
		r.stateValid && (r.state == EventText || r.state == EventCDSect))
	return r.text
}

// IsNamespaceAware reports namespace processing; always true.
func (r *Reader) IsNamespaceAware() bool { return true }

// InputEncoding returns the input character encoding; the codec is not
// byte-encoding oriented, so this is always "".
func (r *Reader) InputEncoding() string { return "" }

// DocumentName returns the source document name; always "".
func (r *Reader) DocumentName() string { return "" }

// LineNumber returns -1: position information is not available.
func (r *Reader) LineNumber() int { return -1 }

// ColumnNumber returns -1: position information is not available.
func (r *Reader) ColumnNumber() int { return -1 }

// PositionString describes the current parse position.
func (r *Reader) PositionString() string { return "unknown location" }

// NestingDepth returns -1: depth reporting is not part of the codec.
func (r *Reader) NestingDepth() int { return -1 }

// NamespaceCount returns -1: per-depth declaration reporting is not
// part of the codec.
func (r *Reader) NamespaceCount(depth int) int { return -1 }

// NamespaceURI returns "": declaration indexing is not part of the
// codec.
func (r *Reader) NamespaceURI(i int) string { return "" }

// NamespacePrefix returns "": declaration indexing is not part of the
// codec.
func (r *Reader) NamespacePrefix(i int) string { return "" }

// NamespaceForPrefix reports no binding: prefix lookup is not part of
// the codec.
func (r *Reader) NamespaceForPrefix(prefix string) (string, bool) { return "", false }
