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

package lexer

import (
	"bytes"
	"fmt"

	"github.com/botobag/prerender/graphql"
	"github.com/botobag/prerender/graphql/token"
)

// Lexer is a stateful stream generator of tokens from a Source. Every time it is advanced, it
// returns the next non-ignored token. The final token is of kind EOF, after which the lexer
// repeatedly returns the same EOF token.
type Lexer struct {
	source *token.Source

	// The currently focused token
	token *token.Token

	// Current offest into the source body; Moved by only consume() and consumeWhitespace().
	bytePos uint
}

// New initializes a Lexer for given Source object.
func New(source *token.Source) *Lexer {
	return &Lexer{
		source: source,
		token: &token.Token{
			Kind: token.KindSOF,
		},
	}
}

// Source returns the source being lexed.
func (lexer *Lexer) Source() *token.Source {
	return lexer.source
}

// Token returns current token being lexed.
func (lexer *Lexer) Token() *token.Token {
	return lexer.token
}

// Advance the token stream to the next non-ignored token.
func (lexer *Lexer) Advance() (*token.Token, error) {
	nextToken, err := lexer.Lookahead()
	if err != nil {
		return nil, err
	}
	lexer.token = nextToken
	return nextToken, nil
}

// Lookahead looks ahead and returns the next non-ignored token, but does not switch current token.
func (lexer *Lexer) Lookahead() (*token.Token, error) {
	tok := lexer.token
	if tok.Kind == token.KindEOF {
		return tok, nil
	}
	if tok.Next == nil {
		for {
			next, err := lexer.lexToken()
			if err != nil {
				return nil, err
			}
			if next.Kind != token.KindComment {
				tok.Next = next
				break
			}
		}
	}
	return tok.Next, nil
}

// peek peeks the next byte at bytePos without consume it.
func (lexer *Lexer) peek() byte {
	return lexer.source.At(lexer.bytePos)
}

// consume reads a byte at current bytePos and then advances the bytePos. Return the byte.
func (lexer *Lexer) consume() byte {
	b := lexer.source.At(lexer.bytePos)
	if lexer.bytePos < lexer.source.Size() {
		lexer.bytePos++
	}
	return b
}

// consumeWhitespace consumes bytes until it finds a non-whitespace character. Commas are
// insignificant in GraphQL and skipped as whitespace.
func (lexer *Lexer) consumeWhitespace() {
	source := lexer.source
	size := source.Size()

	// Skip BOM at the beginning of source.
	if lexer.bytePos == 0 && size >= 3 &&
		source.At(0) == '\xEF' && source.At(1) == '\xBB' && source.At(2) == '\xBF' {
		lexer.bytePos = 3
	}

	for lexer.bytePos < size {
		switch source.At(lexer.bytePos) {
		case '\t', ' ', ',', '\n', '\r':
			lexer.bytePos++
		default:
			return
		}
	}
}

// consumeDigits consumes bytes that represent a digit and returns the first non-digit.
func (lexer *Lexer) consumeDigits() byte {
	for {
		char := lexer.peek()
		if char < '0' || char > '9' {
			return char
		}
		lexer.consume()
	}
}

func (lexer *Lexer) charAtPosToStr(bytePos uint) string {
	if bytePos >= lexer.source.Size() {
		return "<EOF>"
	}

	r := lexer.source.RuneAt(bytePos)

	// Print as ASCII for printable range.
	if r >= 0x20 && r < 0x7F {
		return fmt.Sprintf(`"%c"`, r)
	}

	// Print the escaped form. e.g. `"\\u0007"`
	return fmt.Sprintf(`"\u%04X"`, r)
}

func (lexer *Lexer) syntaxError(bytePos uint, format string, args ...interface{}) error {
	return graphql.NewSyntaxError(lexer.source, lexer.source.LocationFromPos(bytePos), fmt.Sprintf(format, args...))
}

// newUnexpectedCharacterError creates a syntax error to indicate an unexpected character at the
// given offset was encountered.
func (lexer *Lexer) newUnexpectedCharacterError(bytePos uint) error {
	char := lexer.source.At(bytePos)
	if (char < 0x0020) && (char != 0x0009) && (char != 0x000a) && (char != 0x000d) {
		return lexer.syntaxError(bytePos, "Cannot contain the invalid character %s.", lexer.charAtPosToStr(bytePos))
	} else if char == '\'' {
		return lexer.syntaxError(bytePos, "Unexpected single quote character ('), did you mean to use a double quote (\")?")
	}
	return lexer.syntaxError(bytePos, "Cannot parse the unexpected character %s.", lexer.charAtPosToStr(bytePos))
}

func (lexer *Lexer) makeToken(kind token.Kind, startPos uint, value string) *token.Token {
	return &token.Token{
		Kind:     kind,
		Location: lexer.source.LocationFromPos(startPos),
		Length:   lexer.bytePos - startPos,
		Value:    value,
	}
}

// punctuators maps single-byte punctuators to token kinds.
var punctuators = map[byte]token.Kind{
	'!': token.KindBang,
	'$': token.KindDollar,
	'(': token.KindLeftParen,
	')': token.KindRightParen,
	':': token.KindColon,
	'=': token.KindEquals,
	'@': token.KindAt,
	'[': token.KindLeftBracket,
	']': token.KindRightBracket,
	'{': token.KindLeftBrace,
	'}': token.KindRightBrace,
}

// lexToken gets the next token from the source starting at lexer.bytePos.
func (lexer *Lexer) lexToken() (*token.Token, error) {
	lexer.consumeWhitespace()

	startPos := lexer.bytePos
	if startPos >= lexer.source.Size() {
		return lexer.makeToken(token.KindEOF, startPos, ""), nil
	}

	char := lexer.peek()
	if kind, ok := punctuators[char]; ok {
		lexer.consume()
		return lexer.makeToken(kind, startPos, ""), nil
	}

	switch {
	case char == '#':
		return lexer.lexComment(), nil

	case char == '.':
		for i := 0; i < 3; i++ {
			if lexer.peek() != '.' {
				return nil, lexer.newUnexpectedCharacterError(startPos)
			}
			lexer.consume()
		}
		return lexer.makeToken(token.KindSpread, startPos, ""), nil

	case char == '_' || (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z'):
		return lexer.lexName(), nil

	case char == '-' || (char >= '0' && char <= '9'):
		return lexer.lexNumber()

	case char == '"':
		if lexer.source.At(startPos+1) == '"' && lexer.source.At(startPos+2) == '"' {
			lexer.bytePos += 3
			return lexer.lexBlockString(startPos)
		}
		lexer.consume()
		return lexer.lexString(startPos)
	}

	return nil, lexer.newUnexpectedCharacterError(startPos)
}

// lexComment reads a comment token from the source file.
//
// Reference: https://facebook.github.io/graphql/June2018/#sec-Comments
func (lexer *Lexer) lexComment() *token.Token {
	startPos := lexer.bytePos

	// Consume #.
	lexer.consume()
	for {
		char := lexer.peek()
		// SourceCharacter but not LineTerminator
		if char > 0x1F || char == '\t' {
			lexer.consume()
			continue
		}
		break
	}

	return lexer.makeToken(token.KindComment, startPos, "")
}

// lexNumber reads a number token from the source file, either a float or an int depending on
// whether a decimal point or an exponent appears.
//
// Reference: https://facebook.github.io/graphql/June2018/#sec-Int-Value
func (lexer *Lexer) lexNumber() (*token.Token, error) {
	startPos := lexer.bytePos
	tokenKind := token.KindInt

	char := lexer.consume()
	if char == '-' {
		char = lexer.peek()
		if char < '0' || char > '9' {
			return nil, lexer.syntaxError(lexer.bytePos,
				"Invalid number, expected digit after '-' but got: %s.", lexer.charAtPosToStr(lexer.bytePos))
		}
		lexer.consume()
	}

	if char == '0' {
		char = lexer.peek()
		if char >= '0' && char <= '9' {
			return nil, lexer.syntaxError(lexer.bytePos,
				"Invalid number, unexpected digit after 0: %s.", lexer.charAtPosToStr(lexer.bytePos))
		}
	} else {
		char = lexer.consumeDigits()
	}

	if char == '.' {
		tokenKind = token.KindFloat
		lexer.consume()
		if char = lexer.peek(); char < '0' || char > '9' {
			return nil, lexer.syntaxError(lexer.bytePos,
				"Invalid number, expected digit after decimal point ('.') but got: %s.",
				lexer.charAtPosToStr(lexer.bytePos))
		}
		char = lexer.consumeDigits()
	}

	if char == 'E' || char == 'e' {
		tokenKind = token.KindFloat
		lexer.consume()
		if char = lexer.peek(); char == '+' || char == '-' {
			lexer.consume()
		}
		if char = lexer.peek(); char < '0' || char > '9' {
			return nil, lexer.syntaxError(lexer.bytePos,
				"Invalid number, expected digit but got: %s.", lexer.charAtPosToStr(lexer.bytePos))
		}
		lexer.consumeDigits()
	}

	return lexer.makeToken(tokenKind, startPos, lexer.source.Slice(startPos, lexer.bytePos)), nil
}

// lexString reads a string token from the source file. The opening quote was consumed.
//
// Reference: https://facebook.github.io/graphql/June2018/#sec-String-Value
func (lexer *Lexer) lexString(startPos uint) (*token.Token, error) {
	var value bytes.Buffer
	for lexer.bytePos < lexer.source.Size() {
		char := lexer.peek()

		if char == '\n' || char == '\r' {
			break
		}

		if char == '"' {
			lexer.consume()
			return lexer.makeToken(token.KindString, startPos, value.String()), nil
		}

		if char < 0x0020 && char != '\t' {
			return nil, lexer.syntaxError(lexer.bytePos,
				"Invalid character within String: %s.", lexer.charAtPosToStr(lexer.bytePos))
		}

		lexer.consume()
		if char != '\\' {
			value.WriteByte(char)
			continue
		}

		escapePos := lexer.bytePos - 1
		switch char = lexer.consume(); char {
		case '"', '\\', '/':
			value.WriteByte(char)
		case 'b':
			value.WriteByte('\b')
		case 'f':
			value.WriteByte('\f')
		case 'n':
			value.WriteByte('\n')
		case 'r':
			value.WriteByte('\r')
		case 't':
			value.WriteByte('\t')

		case 'u':
			if lexer.source.Size()-lexer.bytePos >= 4 {
				charCode := uniCharCode(lexer.consume(), lexer.consume(), lexer.consume(), lexer.consume())
				if charCode >= 0 {
					value.WriteRune(charCode)
					break
				}
			}
			end := escapePos + 6
			if end > lexer.source.Size() {
				end = lexer.source.Size()
			}
			return nil, lexer.syntaxError(escapePos,
				"Invalid character escape sequence: %s.", lexer.source.Slice(escapePos, end))

		default:
			return nil, lexer.syntaxError(escapePos, "Invalid character escape sequence: \\%c.", char)
		}
	}

	return nil, lexer.syntaxError(lexer.bytePos, "Unterminated string.")
}

// Converts four hexadecimal chars to the integer that the string represents. Returns a negative
// number if a char was invalid, which follows from char2hex() returning -1 on error.
func uniCharCode(a byte, b byte, c byte, d byte) rune {
	return (char2hex(a) << 12) | (char2hex(b) << 8) | (char2hex(c) << 4) | char2hex(d)
}

// Converts a hex character to its integer value. Returns -1 on error.
func char2hex(a byte) rune {
	switch {
	case a >= '0' && a <= '9':
		return rune(a - '0')
	case a >= 'A' && a <= 'F':
		return rune(a - 'A' + 10)
	case a >= 'a' && a <= 'f':
		return rune(a - 'a' + 10)
	}
	return -1
}

// lexBlockString reads a block string token. The opening triple-quote was consumed.
func (lexer *Lexer) lexBlockString(startPos uint) (*token.Token, error) {
	var value bytes.Buffer
	source := lexer.source
	for lexer.bytePos < source.Size() {
		pos := lexer.bytePos
		char := source.At(pos)

		switch {
		case char == '"' && source.At(pos+1) == '"' && source.At(pos+2) == '"':
			lexer.bytePos += 3
			return lexer.makeToken(token.KindBlockString, startPos, blockStringValue(value.String())), nil

		case char == '\\' && source.At(pos+1) == '"' && source.At(pos+2) == '"' && source.At(pos+3) == '"':
			// Escaped triple-quote (\""").
			lexer.bytePos += 4
			value.WriteString(`"""`)

		case char < 0x0020 && char != '\t' && char != '\r' && char != '\n':
			return nil, lexer.syntaxError(pos, "Invalid character within String: %s.", lexer.charAtPosToStr(pos))

		default:
			lexer.consume()
			value.WriteByte(char)
		}
	}

	return nil, lexer.syntaxError(lexer.bytePos, "Unterminated string.")
}

// lexName lexes a Name token from source.
//
// Reference: https://facebook.github.io/graphql/June2018/#sec-Names
func (lexer *Lexer) lexName() *token.Token {
	startPos := lexer.bytePos
	lexer.consume()

	for {
		char := lexer.peek()
		if char == '_' ||
			(char >= '0' && char <= '9') ||
			(char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') {
			lexer.consume()
			continue
		}
		break
	}

	return lexer.makeToken(token.KindName, startPos, lexer.source.Slice(startPos, lexer.bytePos))
}
