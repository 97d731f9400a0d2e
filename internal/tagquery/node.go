// Package tagquery parses boolean tag expressions into a predicate tree and
// compiles that tree into a parameter-bound SQL condition over the tags table.
package tagquery

import (
	"fmt"
	"strings"
)

// Kind identifies the variant of a Node.
type Kind int

const (
	KindTag Kind = iota + 1
	KindAnd
	KindOr
	KindNot
)

func (k Kind) String() string {
	switch k {
	case KindTag:
		return "TAG"
	case KindAnd:
		return "AND"
	case KindOr:
		return "OR"
	case KindNot:
		return "NOT"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Node is one element of a predicate tree. Tag nodes carry Name; And/Or
// carry one or more Children; Not carries exactly one child.
type Node struct {
	Kind     Kind
	Name     string
	Children []Node
}

func Tag(name string) Node {
	return Node{Kind: KindTag, Name: name}
}

func And(children ...Node) Node {
	return Node{Kind: KindAnd, Children: children}
}

func Or(children ...Node) Node {
	return Node{Kind: KindOr, Children: children}
}

func Not(child Node) Node {
	return Node{Kind: KindNot, Children: []Node{child}}
}

// String renders the tree in infix form, e.g. (A AND (B OR NOT C)).
func (n Node) String() string {
	switch n.Kind {
	case KindTag:
		return n.Name
	case KindNot:
		if len(n.Children) != 1 {
			return "NOT ?"
		}
		return "NOT " + n.Children[0].String()
	case KindAnd, KindOr:
		parts := make([]string, len(n.Children))
		for i, child := range n.Children {
			parts[i] = child.String()
		}
		return "(" + strings.Join(parts, " "+n.Kind.String()+" ") + ")"
	default:
		return "?"
	}
}

// Tags returns every tag name referenced by the tree, in visit order.
func (n Node) Tags() []string {
	var names []string
	n.walk(func(node Node) {
		if node.Kind == KindTag {
			names = append(names, node.Name)
		}
	})
	return names
}

func (n Node) walk(visit func(Node)) {
	visit(n)
	for _, child := range n.Children {
		child.walk(visit)
	}
}

// Validate checks the structural invariants the compiler relies on.
func (n Node) Validate() error {
	switch n.Kind {
	case KindTag:
		if strings.TrimSpace(n.Name) == "" {
			return malformed("tag name must not be empty")
		}
		if len(n.Children) != 0 {
			return malformed("tag node cannot have children")
		}
	case KindAnd, KindOr:
		if len(n.Children) == 0 {
			return malformed(fmt.Sprintf("%s requires at least one operand", n.Kind))
		}
	case KindNot:
		if len(n.Children) != 1 {
			return malformed("NOT requires exactly one operand")
		}
	default:
		return malformed(fmt.Sprintf("unknown node kind %d", int(n.Kind)))
	}
	for _, child := range n.Children {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MalformedQueryError reports a tag expression that cannot be parsed or compiled.
type MalformedQueryError struct {
	Reason string
}

func (e *MalformedQueryError) Error() string {
	return "malformed tag query: " + e.Reason
}

func malformed(reason string) error {
	return &MalformedQueryError{Reason: reason}
}
