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
	"strconv"

	"github.com/botobag/prerender/graphql"
	"github.com/botobag/prerender/graphql/token"
)

// OperationType is one of "query", "mutation" or "subscription".
type OperationType string

// Enumeration of OperationType
const (
	OperationTypeQuery        OperationType = "query"
	OperationTypeMutation     OperationType = "mutation"
	OperationTypeSubscription OperationType = "subscription"
)

// Document is a parsed executable GraphQL document.
type Document struct {
	Source     *token.Source
	Operations []*Operation
	Fragments  map[string]*Fragment
}

// Operation returns the operation with the given name. An empty name selects the only operation
// in the document.
func (doc *Document) Operation(name string) (*Operation, error) {
	if len(name) == 0 {
		if len(doc.Operations) != 1 {
			return nil, graphql.NewError("Must provide operation name if query contains multiple operations.",
				graphql.Op("document.Operation"))
		}
		return doc.Operations[0], nil
	}

	for _, operation := range doc.Operations {
		if operation.Name == name {
			return operation, nil
		}
	}
	return nil, graphql.NewError(fmt.Sprintf(`Unknown operation named "%s".`, name),
		graphql.Op("document.Operation"))
}

// Operation is an operation definition in a document.
type Operation struct {
	Type         OperationType
	Name         string
	Variables    []*VariableDefinition
	Directives   []*Directive
	SelectionSet SelectionSet
}

// VariableValues returns vars with the default values of the variables that are not provided.
func (operation *Operation) VariableValues(vars map[string]interface{}) map[string]interface{} {
	values := make(map[string]interface{}, len(operation.Variables))
	for _, definition := range operation.Variables {
		if value, exists := vars[definition.Name]; exists {
			values[definition.Name] = value
		} else if definition.DefaultValue != nil {
			values[definition.Name] = definition.DefaultValue.Resolve(nil)
		}
	}
	// Keep variables that are not declared; the server rejects them, not us.
	for name, value := range vars {
		if _, exists := values[name]; !exists {
			values[name] = value
		}
	}
	return values
}

// VariableDefinition declares a variable of an operation.
type VariableDefinition struct {
	Name string
	// Type is the type reference as written in the document (e.g., "[Int!]!").
	Type         string
	DefaultValue Value
}

// Fragment is a named fragment definition.
type Fragment struct {
	Name          string
	TypeCondition string
	Directives    []*Directive
	SelectionSet  SelectionSet
}

// SelectionSet is a list of selections.
type SelectionSet []Selection

// Selection is either a *Field, a *FragmentSpread or an *InlineFragment.
type Selection interface {
	// SelectionDirectives returns the directives applied to the selection.
	SelectionDirectives() []*Directive
}

// Field selects a field.
type Field struct {
	Alias        string
	Name         string
	Arguments    []*Argument
	Directives   []*Directive
	SelectionSet SelectionSet
	Location     token.SourceLocation
}

// SelectionDirectives implements Selection.
func (field *Field) SelectionDirectives() []*Directive {
	return field.Directives
}

// ResponseKey returns the key of the field in the response, which is the alias if present.
func (field *Field) ResponseKey() string {
	if len(field.Alias) > 0 {
		return field.Alias
	}
	return field.Name
}

// ArgumentValues resolves the arguments of the field with the given variables. It returns nil if
// the field has no arguments.
func (field *Field) ArgumentValues(vars map[string]interface{}) map[string]interface{} {
	return argumentValues(field.Arguments, vars)
}

// FragmentSpread spreads a named fragment.
type FragmentSpread struct {
	Name       string
	Directives []*Directive
}

// SelectionDirectives implements Selection.
func (spread *FragmentSpread) SelectionDirectives() []*Directive {
	return spread.Directives
}

// InlineFragment is an anonymous fragment with an optional type condition.
type InlineFragment struct {
	TypeCondition string
	Directives    []*Directive
	SelectionSet  SelectionSet
}

// SelectionDirectives implements Selection.
func (fragment *InlineFragment) SelectionDirectives() []*Directive {
	return fragment.Directives
}

// Directive applied to a definition or selection.
type Directive struct {
	Name      string
	Arguments []*Argument
}

// Argument is a name and value pair of field or directive arguments.
type Argument struct {
	Name  string
	Value Value
}

func argumentValues(args []*Argument, vars map[string]interface{}) map[string]interface{} {
	if len(args) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(args))
	for _, arg := range args {
		values[arg.Name] = arg.Value.Resolve(vars)
	}
	return values
}

// Included evaluates @skip and @include on the given directives.
func Included(directives []*Directive, vars map[string]interface{}) bool {
	for _, directive := range directives {
		switch directive.Name {
		case "skip":
			if b, _ := argumentValues(directive.Arguments, vars)["if"].(bool); b {
				return false
			}
		case "include":
			if b, _ := argumentValues(directive.Arguments, vars)["if"].(bool); !b {
				return false
			}
		}
	}
	return true
}

//===----------------------------------------------------------------------------------------====//
// Values
//===----------------------------------------------------------------------------------------====//

// Value is an input value in a document. Resolve converts it into a Go value of the kinds produced
// by decoding JSON (except that integers are int64), substituting variables.
type Value interface {
	Resolve(vars map[string]interface{}) interface{}
}

// Variable references a variable of the operation.
type Variable struct {
	Name string
}

// Resolve implements Value.
func (v Variable) Resolve(vars map[string]interface{}) interface{} {
	return vars[v.Name]
}

// IntValue is an integer literal.
type IntValue string

// Resolve implements Value.
func (v IntValue) Resolve(map[string]interface{}) interface{} {
	i, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		// Out of range for int64; Keep the precision JSON would give us.
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	}
	return i
}

// FloatValue is a float literal.
type FloatValue string

// Resolve implements Value.
func (v FloatValue) Resolve(map[string]interface{}) interface{} {
	f, _ := strconv.ParseFloat(string(v), 64)
	return f
}

// StringValue is a string or block string literal.
type StringValue string

// Resolve implements Value.
func (v StringValue) Resolve(map[string]interface{}) interface{} {
	return string(v)
}

// BooleanValue is true or false.
type BooleanValue bool

// Resolve implements Value.
func (v BooleanValue) Resolve(map[string]interface{}) interface{} {
	return bool(v)
}

// NullValue is null.
type NullValue struct{}

// Resolve implements Value.
func (NullValue) Resolve(map[string]interface{}) interface{} {
	return nil
}

// EnumValue is an enum literal which resolves to its name.
type EnumValue string

// Resolve implements Value.
func (v EnumValue) Resolve(map[string]interface{}) interface{} {
	return string(v)
}

// ListValue is a list literal.
type ListValue []Value

// Resolve implements Value.
func (v ListValue) Resolve(vars map[string]interface{}) interface{} {
	list := make([]interface{}, len(v))
	for i, value := range v {
		list[i] = value.Resolve(vars)
	}
	return list
}

// ObjectField is an entry of an object literal.
type ObjectField struct {
	Name  string
	Value Value
}

// ObjectValue is an object literal.
type ObjectValue []ObjectField

// Resolve implements Value.
func (v ObjectValue) Resolve(vars map[string]interface{}) interface{} {
	object := make(map[string]interface{}, len(v))
	for _, field := range v {
		object[field.Name] = field.Value.Resolve(vars)
	}
	return object
}
