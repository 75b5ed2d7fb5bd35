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
	"reflect"
	"testing"
)

func TestCompressedStreamRoundTrip(t *testing.T) {
	for _, algo := range []string{"zstd", "s2"} {
		t.Run(algo, func(t *testing.T) {
			var sink bytes.Buffer
			cw, err := NewCompressedOutput(&sink, algo)
			if err != nil {
				t.Fatal(err)
			}
			ew := NewEventWriter(NewOutBuffer(cw))
			if err := ew.InitWrite(EventSourceID); err != nil {
				t.Fatal(err)
			}
			if err := ew.WriteDocumentStart(); err != nil {
				t.Fatal(err)
			}
			if err := ew.WriteElementStart("", "", "log", false); err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 5000; i++ {
				if err := ew.WriteElementStart("", "", "entry", true); err != nil {
					t.Fatal(err)
				}
				if err := ew.WriteElementAttribute("", "", "severity", "informational"); err != nil {
					t.Fatal(err)
				}
				if err := ew.WriteEndAttribute(); err != nil {
					t.Fatal(err)
				}
				if err := ew.WriteCharData(fmt.Sprintf("record %d", i)); err != nil {
					t.Fatal(err)
				}
				if err := ew.WriteElementEnd(); err != nil {
					t.Fatal(err)
				}
			}
			if err := ew.WriteElementEnd(); err != nil {
				t.Fatal(err)
			}
			if err := ew.WriteDocumentEnd(); err != nil {
				t.Fatal(err)
			}
			if err := cw.Close(); err != nil {
				t.Fatal(err)
			}

			r := NewReader(NewInBuffer(NewCompressedInput(bytes.NewReader(sink.Bytes()))))
			entries := 0
			for {
				event, err := r.NextToken()
				if err != nil {
					t.Fatal(err)
				}
				if event == EventStartTag && r.Name() == "entry" {
					if v, ok := r.AttributeValueNamed("", "severity"); !ok || v != "informational" {
						t.Fatalf("entry %d: severity %q, %v", entries, v, ok)
					}
					entries++
				}
				if event == EventEndDocument {
					break
				}
			}
			if entries != 5000 {
				t.Fatalf("decoded %d entries, expected 5000", entries)
			}
		})
	}
}

func TestCompressedStreamUnknownAlgo(t *testing.T) {
	if _, err := NewCompressedOutput(&bytes.Buffer{}, "lzma"); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}

func TestCompressedStreamEmpty(t *testing.T) {
	var sink bytes.Buffer
	cw, err := NewCompressedOutput(&sink, "s2")
	if err != nil {
		t.Fatal(err)
	}
	if err := cw.Close(); err != nil {
		t.Fatal(err)
	}
	in := NewCompressedInput(bytes.NewReader(sink.Bytes()))
	var p [16]byte
	if n, err := in.Read(p[:]); n != 0 || err == nil {
		t.Fatalf("read %d, err %v", n, err)
	}
}

func TestCompressedStreamSmallReads(t *testing.T) {
	var sink bytes.Buffer
	cw, err := NewCompressedOutput(&sink, "zstd")
	if err != nil {
		t.Fatal(err)
	}
	payload := bytes.Repeat([]byte("abc123"), 40000) // spans several blocks
	for off := 0; off < len(payload); off += 1000 {
		end := off + 1000
		if end > len(payload) {
			end = len(payload)
		}
		if _, err := cw.Write(payload[off:end]); err != nil {
			t.Fatal(err)
		}
	}
	if err := cw.Close(); err != nil {
		t.Fatal(err)
	}

	in := NewCompressedInput(bytes.NewReader(sink.Bytes()))
	var got bytes.Buffer
	var p [377]byte // deliberately odd read size
	for {
		n, err := in.Read(p[:])
		got.Write(p[:n])
		if err != nil {
			break
		}
	}
	if !reflect.DeepEqual(got.Bytes(), payload) {
		t.Fatalf("payload mismatch: %d bytes in, %d out", len(payload), got.Len())
	}
}
