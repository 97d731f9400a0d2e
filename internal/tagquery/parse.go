package tagquery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	MaxDepth = 32
	MaxTags  = 128
)

// Parse decodes the JSON tag-search body into a predicate tree.
//
// Accepted shapes, nested freely:
//
//	"A"                          a single tag (top level: AND of one)
//	["A", "B"]                   implicit AND
//	{"AND": [...]} / {"OR": [...]}
//	{"not": item}
//
// Operator keys are case-insensitive. Anything else is a *MalformedQueryError.
func Parse(raw []byte) (Node, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Node{}, malformed("empty query")
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return Node{}, malformed("invalid JSON")
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return Node{}, malformed("unexpected data after query")
	}
	return ParseValue(value)
}

// ParseValue builds a tree from an already-decoded JSON value.
func ParseValue(value any) (Node, error) {
	p := &parser{}
	switch v := value.(type) {
	case nil:
		return Node{}, malformed("empty query")
	case string:
		node, err := p.parse(v, 1)
		if err != nil {
			return Node{}, err
		}
		return And(node), nil
	case []any:
		if len(v) == 0 {
			return Node{}, malformed("empty query")
		}
	case map[string]any:
		if len(v) == 0 {
			return Node{}, malformed("empty query")
		}
	}
	return p.parse(value, 1)
}

type parser struct {
	tags int
}

func (p *parser) parse(value any, depth int) (Node, error) {
	if depth > MaxDepth {
		return Node{}, malformed(fmt.Sprintf("nesting deeper than %d levels", MaxDepth))
	}

	switch v := value.(type) {
	case string:
		// Stored tag names are trimmed, so query names are too.
		name := strings.TrimSpace(v)
		if name == "" {
			return Node{}, malformed("tag name must not be empty")
		}
		p.tags++
		if p.tags > MaxTags {
			return Node{}, malformed(fmt.Sprintf("more than %d tags", MaxTags))
		}
		return Tag(name), nil
	case []any:
		children, err := p.parseList(v, depth)
		if err != nil {
			return Node{}, err
		}
		return And(children...), nil
	case map[string]any:
		return p.parseOperator(v, depth)
	case nil:
		return Node{}, malformed("null operand")
	default:
		return Node{}, malformed(fmt.Sprintf("unsupported operand of type %T", value))
	}
}

func (p *parser) parseOperator(object map[string]any, depth int) (Node, error) {
	if len(object) != 1 {
		return Node{}, malformed(fmt.Sprintf("operator object must have exactly one key, got %d", len(object)))
	}
	for key, operand := range object {
		switch strings.ToUpper(key) {
		case "AND", "OR":
			items, ok := operand.([]any)
			if !ok {
				items = []any{operand}
			}
			children, err := p.parseList(items, depth)
			if err != nil {
				return Node{}, err
			}
			if strings.EqualFold(key, "AND") {
				return And(children...), nil
			}
			return Or(children...), nil
		case "NOT":
			if _, isList := operand.([]any); isList {
				return Node{}, malformed("NOT takes a single operand")
			}
			child, err := p.parse(operand, depth+1)
			if err != nil {
				return Node{}, err
			}
			return Not(child), nil
		default:
			return Node{}, malformed(fmt.Sprintf("unknown operator %q", key))
		}
	}
	return Node{}, malformed("empty operator object")
}

func (p *parser) parseList(items []any, depth int) ([]Node, error) {
	if len(items) == 0 {
		return nil, malformed("operator requires at least one operand")
	}
	children := make([]Node, 0, len(items))
	for _, item := range items {
		child, err := p.parse(item, depth+1)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}
