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

// XMLNamespace is the URI of the reserved "xml" namespace, pre-interned
// at table slot 1 on both sides of the codec.
const XMLNamespace = "http://www.w3.org/XML/1998/namespace"

// Lead-byte classification flags. The high bits of a node lead byte
// select the node family; the low bits carry a quick value and, where
// noted, a new-definition flag in bit 0. A zero byte is never a lead:
// it terminates the current list (attributes, element children, or the
// document itself).
const (
	// nodeElementFlag marks an element start. Bits 6 and 5 carry the
	// attribute and children flags, bits 4..1 the name handle, and
	// bit 0 set means a name definition follows instead of a handle.
	nodeElementFlag        = 0x80
	elementHasAttrsFlag    = 0x40
	elementHasChildrenFlag = 0x20
	elementHandleMask      = 0x1e
	elementNewNameFlag     = 0x01

	// nodePlainTextFlag marks short inline character data; bits 5..0
	// quick-encode the byte length and the raw UTF-8 follows.
	nodePlainTextFlag   = 0x40
	plainTextLengthMask = 0x3f

	// nodeTextRefFlag marks shared character data. Bit 0 set defines a
	// new shared string (payload follows); otherwise bits 4..1
	// quick-encode the 1-based shared-content handle.
	nodeTextRefFlag   = 0x20
	textRefHandleMask = 0x1e
	textRefNewFlag    = 0x01

	// nodeNamespaceDeclFlag marks an in-band namespace declaration.
	// Bit 0 set defines a new namespace (prefix and URI reference
	// follow); otherwise bits 3..1 quick-encode the 1-based handle of
	// an already-defined namespace.
	nodeNamespaceDeclFlag = 0x10
	namespaceHandleMask   = 0x0e
	namespaceNewFlag      = 0x01
)

// Discrete node types, disjoint from every flagged lead byte.
const (
	nodeTypeDocument           = 1
	nodeTypeCDATA              = 2
	nodeTypeComment            = 3
	nodeTypePI                 = 4
	nodeTypeDocType            = 5
	nodeTypeNotation           = 6
	nodeTypeUnparsedEntity     = 7
	nodeTypeSkippedEntity      = 8
	nodeTypeElementDecl        = 9
	nodeTypeAttributeDecl      = 10
	nodeTypeExternalEntityDecl = 11
)

// Attribute record lead-byte flags. Attribute leads are read only
// inside an attribute list, so they share no space with node leads;
// the list is terminated by a zero byte.
const (
	attributeValueRefFlag = 0x40
	attributeNewRefFlag   = 0x20
	attributeHandleMask   = 0x1e
	attributeNewNameFlag  = 0x01
)

// Stream header: magic, format version, then a producer source id and
// two capability values holding the share depths (biased by one).
var headerMagic = [4]byte{'X', 'B', 'I', 'S'}

const (
	headerVersion = 0x01

	// EventSourceID identifies this codec's event-stream dialect in
	// the header's source-id byte.
	EventSourceID = 2
)

// DefaultShareDepth is the minimum length, in characters, at which a
// text run or attribute value enters the corresponding shared table.
const DefaultShareDepth = 6

const (
	defaultOutBufferSize = 4096
	defaultInBufferSize  = 4096

	initialAttributeCount = 10
	initialNamespaceCount = 8
	initialElementDepth   = 12
)

// EventCode identifies a parse event produced by Reader.
type EventCode int

// Parse event codes. NextToken may additionally consume node kinds that
// have no surfaced event (comments, processing instructions, DTD
// declarations); those never escape the token loop.
const (
	EventStartDocument EventCode = iota
	EventEndDocument
	EventStartTag
	EventEndTag
	EventText
	EventCDSect
)

func (e EventCode) String() string {
	switch e {
	case EventStartDocument:
		return "START_DOCUMENT"
	case EventEndDocument:
		return "END_DOCUMENT"
	case EventStartTag:
		return "START_TAG"
	case EventEndTag:
		return "END_TAG"
	case EventText:
		return "TEXT"
	case EventCDSect:
		return "CDSECT"
	default:
		return "UNKNOWN"
	}
}
