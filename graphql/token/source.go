/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package token

import (
	"unicode/utf8"
)

// SourceLocation is an 1-indexed byte offset into the body of a Source. The zero value is
// NoSourceLocation.
type SourceLocation uint

// NoSourceLocation is a special SourceLocation that doesn't exists in any source.
const NoSourceLocation SourceLocation = 0

// IsValid return true if the SourceLocation is valid.
func (location SourceLocation) IsValid() bool {
	return location != NoSourceLocation
}

// SourceLocationInfo describes a source location with source name, line and column number.
type SourceLocationInfo struct {
	Name   string
	Line   uint
	Column uint
}

// Source is the text of a GraphQL document sent by the client.
type Source struct {
	name string
	body []byte
}

// NewSource creates a Source for the given query text. An empty name is replaced with
// "GraphQL request".
func NewSource(name string, body string) *Source {
	if len(name) == 0 {
		name = "GraphQL request"
	}
	return &Source{
		name: name,
		body: []byte(body),
	}
}

// Name of the source.
func (source *Source) Name() string {
	return source.name
}

// Size returns the body size in bytes.
func (source *Source) Size() uint {
	return uint(len(source.body))
}

// At returns the byte in the source at given position. Return 0 if the given position is out of
// body's range.
func (source *Source) At(pos uint) byte {
	if source.Size() <= pos {
		return 0
	}
	return source.body[pos]
}

// RuneAt decodes a rune at given pos. It returns -1 at the end of the body.
func (source *Source) RuneAt(pos uint) rune {
	if source.Size() <= pos {
		return -1
	}
	c := source.body[pos]
	if c < utf8.RuneSelf {
		return rune(c)
	}
	r, _ := utf8.DecodeRune(source.body[pos:])
	return r
}

// Slice returns the body text in [begin, end).
func (source *Source) Slice(begin, end uint) string {
	return string(source.body[begin:end])
}

// LocationFromPos returns the SourceLocation for the given byte position in the body.
func (source *Source) LocationFromPos(bytePos uint) SourceLocation {
	if bytePos > source.Size() {
		panic("illegal byte position value")
	}
	return SourceLocation(bytePos + 1)
}

// LocationInfoOf computes line and column for a SourceLocation. "\r\n" counts as one line break.
func (source *Source) LocationInfoOf(loc SourceLocation) SourceLocationInfo {
	if !loc.IsValid() {
		return SourceLocationInfo{
			Name: source.name,
		}
	}

	var (
		line     uint = 1
		column   uint = 1
		position      = uint(loc) - 1
		body          = source.body
		bodySize      = source.Size()
	)
	if position > bodySize {
		position = bodySize
	}

	for i := uint(0); i < position; i++ {
		switch body[i] {
		case '\r':
			if i+1 < bodySize && body[i+1] == '\n' {
				continue
			}
			line++
			column = 1
		case '\n':
			line++
			column = 1
		default:
			column++
		}
	}

	return SourceLocationInfo{
		Name:   source.name,
		Line:   line,
		Column: column,
	}
}
