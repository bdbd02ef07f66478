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

package document

import (
	"fmt"
	"strings"

	"github.com/botobag/prerender/graphql"
	"github.com/botobag/prerender/graphql/lexer"
	"github.com/botobag/prerender/graphql/token"
)

// Parse parses an executable GraphQL document (operations and fragments). Type system definitions
// are rejected.
func Parse(query string) (*Document, error) {
	p := &parser{
		lexer: lexer.New(token.NewSource("", query)),
	}
	// Move to the first token.
	if _, err := p.lexer.Advance(); err != nil {
		return nil, err
	}
	return p.parseDocument()
}

// MustParse is like Parse but panics on error. It simplifies initialization of global query
// variables.
func MustParse(query string) *Document {
	doc, err := Parse(query)
	if err != nil {
		panic(err)
	}
	return doc
}

// parser holds internal state during parsing.
type parser struct {
	lexer *lexer.Lexer
}

// peek return current token without consume it.
func (p *parser) peek() *token.Token {
	return p.lexer.Token()
}

func (p *parser) advance() error {
	_, err := p.lexer.Advance()
	return err
}

// If the next token is of the given kind, return true after advancing the lexer. Otherwise, do not
// change the parser state and return false.
func (p *parser) skip(tokenKind token.Kind) (bool, error) {
	if p.peek().Kind != tokenKind {
		return false, nil
	}
	return true, p.advance()
}

// If the next token is of the given kind, return that token after advancing the lexer. Otherwise,
// do not change the parser state and return an error.
func (p *parser) expect(tokenKind token.Kind) (*token.Token, error) {
	tok := p.peek()
	if tok.Kind != tokenKind {
		return nil, graphql.NewSyntaxError(p.lexer.Source(), tok.Location,
			fmt.Sprintf("Expected %v, found %s", tokenKind, tok.Description()))
	}
	return tok, p.advance()
}

// If the next token is a keyword with the given value, advance the lexer. Otherwise, return an
// error.
func (p *parser) expectKeyword(keyword string) error {
	tok := p.peek()
	if tok.Kind != token.KindName || tok.Value != keyword {
		return graphql.NewSyntaxError(p.lexer.Source(), tok.Location,
			fmt.Sprintf(`Expected "%s", found %s`, keyword, tok.Description()))
	}
	return p.advance()
}

// Helper function for creating an error when an unexpected lexed token is encountered.
func (p *parser) unexpected() error {
	tok := p.peek()
	return graphql.NewSyntaxError(p.lexer.Source(), tok.Location, fmt.Sprintf("Unexpected %s", tok.Description()))
}

func (p *parser) parseName() (string, error) {
	tok, err := p.expect(token.KindName)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// Document : Definition+
func (p *parser) parseDocument() (*Document, error) {
	doc := &Document{
		Source:    p.lexer.Source(),
		Fragments: map[string]*Fragment{},
	}

	for {
		tok := p.peek()
		switch {
		case tok.Kind == token.KindLeftBrace:
			// Query shorthand
			selectionSet, err := p.parseSelectionSet()
			if err != nil {
				return nil, err
			}
			doc.Operations = append(doc.Operations, &Operation{
				Type:         OperationTypeQuery,
				SelectionSet: selectionSet,
			})

		case tok.Kind == token.KindName && tok.Value == "fragment":
			fragment, err := p.parseFragmentDefinition()
			if err != nil {
				return nil, err
			}
			if _, exists := doc.Fragments[fragment.Name]; exists {
				return nil, graphql.NewSyntaxError(p.lexer.Source(), tok.Location,
					fmt.Sprintf(`There can be only one fragment named "%s".`, fragment.Name))
			}
			doc.Fragments[fragment.Name] = fragment

		case tok.Kind == token.KindName:
			operation, err := p.parseOperationDefinition()
			if err != nil {
				return nil, err
			}
			doc.Operations = append(doc.Operations, operation)

		default:
			return nil, p.unexpected()
		}

		if p.peek().Kind == token.KindEOF {
			break
		}
	}

	if len(doc.Operations) == 0 {
		return nil, graphql.NewError("Document does not contain any operation.",
			graphql.Op("document.Parse"), graphql.ErrKindSyntax)
	}

	return doc, nil
}

// OperationDefinition :
//   - OperationType Name? VariableDefinitions? Directives? SelectionSet
func (p *parser) parseOperationDefinition() (*Operation, error) {
	tok := p.peek()
	operation := &Operation{}
	switch OperationType(tok.Value) {
	case OperationTypeQuery, OperationTypeMutation, OperationTypeSubscription:
		operation.Type = OperationType(tok.Value)
	default:
		return nil, p.unexpected()
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	var err error
	if p.peek().Kind == token.KindName {
		if operation.Name, err = p.parseName(); err != nil {
			return nil, err
		}
	}
	if operation.Variables, err = p.parseVariableDefinitions(); err != nil {
		return nil, err
	}
	if operation.Directives, err = p.parseDirectives(); err != nil {
		return nil, err
	}
	if operation.SelectionSet, err = p.parseSelectionSet(); err != nil {
		return nil, err
	}
	return operation, nil
}

// VariableDefinitions : ( VariableDefinition+ )
func (p *parser) parseVariableDefinitions() ([]*VariableDefinition, error) {
	if ok, err := p.skip(token.KindLeftParen); !ok || err != nil {
		return nil, err
	}

	var definitions []*VariableDefinition
	for {
		definition, err := p.parseVariableDefinition()
		if err != nil {
			return nil, err
		}
		definitions = append(definitions, definition)

		if ok, err := p.skip(token.KindRightParen); err != nil {
			return nil, err
		} else if ok {
			return definitions, nil
		}
	}
}

// VariableDefinition : Variable : Type DefaultValue? Directives[Const]?
func (p *parser) parseVariableDefinition() (*VariableDefinition, error) {
	if _, err := p.expect(token.KindDollar); err != nil {
		return nil, err
	}

	var (
		definition VariableDefinition
		err        error
	)
	if definition.Name, err = p.parseName(); err != nil {
		return nil, err
	}
	if _, err = p.expect(token.KindColon); err != nil {
		return nil, err
	}
	if definition.Type, err = p.parseType(); err != nil {
		return nil, err
	}
	if ok, err := p.skip(token.KindEquals); err != nil {
		return nil, err
	} else if ok {
		if definition.DefaultValue, err = p.parseValue(true); err != nil {
			return nil, err
		}
	}
	// Directives on variable definitions carry no meaning for the client.
	if _, err = p.parseDirectives(); err != nil {
		return nil, err
	}
	return &definition, nil
}

// Type :
//   - NamedType
//   - ListType
//   - NonNullType
func (p *parser) parseType() (string, error) {
	var b strings.Builder
	if ok, err := p.skip(token.KindLeftBracket); err != nil {
		return "", err
	} else if ok {
		inner, err := p.parseType()
		if err != nil {
			return "", err
		}
		if _, err := p.expect(token.KindRightBracket); err != nil {
			return "", err
		}
		b.WriteByte('[')
		b.WriteString(inner)
		b.WriteByte(']')
	} else {
		name, err := p.parseName()
		if err != nil {
			return "", err
		}
		b.WriteString(name)
	}

	if ok, err := p.skip(token.KindBang); err != nil {
		return "", err
	} else if ok {
		b.WriteByte('!')
	}
	return b.String(), nil
}

// SelectionSet : { Selection+ }
func (p *parser) parseSelectionSet() (SelectionSet, error) {
	if _, err := p.expect(token.KindLeftBrace); err != nil {
		return nil, err
	}

	var selectionSet SelectionSet
	for {
		selection, err := p.parseSelection()
		if err != nil {
			return nil, err
		}
		selectionSet = append(selectionSet, selection)

		if ok, err := p.skip(token.KindRightBrace); err != nil {
			return nil, err
		} else if ok {
			return selectionSet, nil
		}
	}
}

// Selection :
//   - Field
//   - FragmentSpread
//   - InlineFragment
func (p *parser) parseSelection() (Selection, error) {
	if p.peek().Kind == token.KindSpread {
		return p.parseFragment()
	}
	return p.parseField()
}

// Field : Alias? Name Arguments? Directives? SelectionSet?
//
// Alias : Name :
func (p *parser) parseField() (*Field, error) {
	field := &Field{
		Location: p.peek().Location,
	}

	nameOrAlias, err := p.parseName()
	if err != nil {
		return nil, err
	}

	if ok, err := p.skip(token.KindColon); err != nil {
		return nil, err
	} else if ok {
		field.Alias = nameOrAlias
		if field.Name, err = p.parseName(); err != nil {
			return nil, err
		}
	} else {
		field.Name = nameOrAlias
	}

	if field.Arguments, err = p.parseArguments(false); err != nil {
		return nil, err
	}
	if field.Directives, err = p.parseDirectives(); err != nil {
		return nil, err
	}
	if p.peek().Kind == token.KindLeftBrace {
		if field.SelectionSet, err = p.parseSelectionSet(); err != nil {
			return nil, err
		}
	}
	return field, nil
}

// FragmentSpread : ... FragmentName Directives?
//
// InlineFragment : ... TypeCondition? Directives? SelectionSet
func (p *parser) parseFragment() (Selection, error) {
	if _, err := p.expect(token.KindSpread); err != nil {
		return nil, err
	}

	tok := p.peek()
	if tok.Kind == token.KindName && tok.Value != "on" {
		spread := &FragmentSpread{
			Name: tok.Value,
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		var err error
		if spread.Directives, err = p.parseDirectives(); err != nil {
			return nil, err
		}
		return spread, nil
	}

	var (
		fragment InlineFragment
		err      error
	)
	if tok.Kind == token.KindName {
		// "on"
		if err = p.advance(); err != nil {
			return nil, err
		}
		if fragment.TypeCondition, err = p.parseName(); err != nil {
			return nil, err
		}
	}
	if fragment.Directives, err = p.parseDirectives(); err != nil {
		return nil, err
	}
	if fragment.SelectionSet, err = p.parseSelectionSet(); err != nil {
		return nil, err
	}
	return &fragment, nil
}

// FragmentDefinition : fragment FragmentName TypeCondition Directives? SelectionSet
func (p *parser) parseFragmentDefinition() (*Fragment, error) {
	if err := p.expectKeyword("fragment"); err != nil {
		return nil, err
	}

	tok := p.peek()
	if tok.Kind == token.KindName && tok.Value == "on" {
		return nil, p.unexpected()
	}

	var (
		fragment Fragment
		err      error
	)
	if fragment.Name, err = p.parseName(); err != nil {
		return nil, err
	}
	if err = p.expectKeyword("on"); err != nil {
		return nil, err
	}
	if fragment.TypeCondition, err = p.parseName(); err != nil {
		return nil, err
	}
	if fragment.Directives, err = p.parseDirectives(); err != nil {
		return nil, err
	}
	if fragment.SelectionSet, err = p.parseSelectionSet(); err != nil {
		return nil, err
	}
	return &fragment, nil
}

// Arguments[Const] : ( Argument[?Const]+ )
func (p *parser) parseArguments(isConst bool) ([]*Argument, error) {
	if ok, err := p.skip(token.KindLeftParen); !ok || err != nil {
		return nil, err
	}

	var args []*Argument
	for {
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.KindColon); err != nil {
			return nil, err
		}
		value, err := p.parseValue(isConst)
		if err != nil {
			return nil, err
		}
		args = append(args, &Argument{
			Name:  name,
			Value: value,
		})

		if ok, err := p.skip(token.KindRightParen); err != nil {
			return nil, err
		} else if ok {
			return args, nil
		}
	}
}

// Directives : Directive+
//
// Directive : @ Name Arguments?
func (p *parser) parseDirectives() ([]*Directive, error) {
	var directives []*Directive
	for p.peek().Kind == token.KindAt {
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		args, err := p.parseArguments(false)
		if err != nil {
			return nil, err
		}
		directives = append(directives, &Directive{
			Name:      name,
			Arguments: args,
		})
	}
	return directives, nil
}

// Value[Const] :
//   - [~Const] Variable
//   - IntValue
//   - FloatValue
//   - StringValue
//   - BooleanValue
//   - NullValue
//   - EnumValue
//   - ListValue[?Const]
//   - ObjectValue[?Const]
func (p *parser) parseValue(isConst bool) (Value, error) {
	tok := p.peek()

	var value Value
	switch tok.Kind {
	case token.KindLeftBracket:
		return p.parseListValue(isConst)

	case token.KindLeftBrace:
		return p.parseObjectValue(isConst)

	case token.KindDollar:
		if isConst {
			return nil, p.unexpected()
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		return Variable{Name: name}, nil

	case token.KindInt:
		value = IntValue(tok.Value)
	case token.KindFloat:
		value = FloatValue(tok.Value)
	case token.KindString, token.KindBlockString:
		value = StringValue(tok.Value)

	case token.KindName:
		switch tok.Value {
		case "true":
			value = BooleanValue(true)
		case "false":
			value = BooleanValue(false)
		case "null":
			value = NullValue{}
		default:
			value = EnumValue(tok.Value)
		}

	default:
		return nil, p.unexpected()
	}

	return value, p.advance()
}

// ListValue[Const] :
//   - [ ]
//   - [ Value[?Const]+ ]
func (p *parser) parseListValue(isConst bool) (Value, error) {
	if _, err := p.expect(token.KindLeftBracket); err != nil {
		return nil, err
	}

	list := ListValue{}
	for {
		if ok, err := p.skip(token.KindRightBracket); err != nil {
			return nil, err
		} else if ok {
			return list, nil
		}
		value, err := p.parseValue(isConst)
		if err != nil {
			return nil, err
		}
		list = append(list, value)
	}
}

// ObjectValue[Const] :
//   - { }
//   - { ObjectField[?Const]+ }
func (p *parser) parseObjectValue(isConst bool) (Value, error) {
	if _, err := p.expect(token.KindLeftBrace); err != nil {
		return nil, err
	}

	object := ObjectValue{}
	for {
		if ok, err := p.skip(token.KindRightBrace); err != nil {
			return nil, err
		} else if ok {
			return object, nil
		}

		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.KindColon); err != nil {
			return nil, err
		}
		value, err := p.parseValue(isConst)
		if err != nil {
			return nil, err
		}
		object = append(object, ObjectField{
			Name:  name,
			Value: value,
		})
	}
}
