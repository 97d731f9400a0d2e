package tagquery

import (
	"fmt"
	"strings"
)

// Schema names the tag-membership relation and the outer article column the
// compiled condition is correlated with. Values come from code, never from input.
type Schema struct {
	ArticleColumn string
	Table         string
	Alias         string
	ArticleID     string
	Name          string
}

var DefaultSchema = Schema{
	ArticleColumn: "a.article_id",
	Table:         "tags",
	Alias:         "t",
	ArticleID:     "article_id",
	Name:          "tag_name",
}

// Filter is a boolean SQL condition plus its positional arguments.
// Placeholders start at the paramStart given to Compile.
type Filter struct {
	SQL  string
	Args []any
}

// NextParam is the first placeholder number not used by the filter.
func (f Filter) NextParam(paramStart int) int {
	return paramStart + len(f.Args)
}

func Compile(node Node, paramStart int) (Filter, error) {
	return DefaultSchema.Compile(node, paramStart)
}

// Compile renders the tree with one correlated EXISTS per tag reference.
// Every branch is evaluated against the same outer article, so AND, OR and
// NOT compose without the duplicate rows a flat join would produce. Tag
// names are bound as parameters; a name used twice shares one placeholder.
func (s Schema) Compile(node Node, paramStart int) (Filter, error) {
	if err := node.Validate(); err != nil {
		return Filter{}, err
	}
	if paramStart < 1 {
		paramStart = 1
	}
	c := &compiler{
		schema:     s,
		paramStart: paramStart,
		params:     make(map[string]int),
	}
	sql := c.build(node)
	return Filter{SQL: sql, Args: c.args}, nil
}

type compiler struct {
	schema     Schema
	paramStart int
	params     map[string]int
	args       []any
}

func (c *compiler) build(node Node) string {
	switch node.Kind {
	case KindTag:
		return "EXISTS " + c.subquery(node.Name)
	case KindNot:
		child := node.Children[0]
		if child.Kind == KindTag {
			return "NOT EXISTS " + c.subquery(child.Name)
		}
		return "NOT (" + c.build(child) + ")"
	case KindAnd, KindOr:
		if len(node.Children) == 1 {
			return c.build(node.Children[0])
		}
		parts := make([]string, len(node.Children))
		for i, child := range node.Children {
			parts[i] = c.build(child)
		}
		return "(" + strings.Join(parts, " "+node.Kind.String()+" ") + ")"
	}
	return "FALSE"
}

func (c *compiler) subquery(name string) string {
	s := c.schema
	return fmt.Sprintf("(SELECT 1 FROM %s %s WHERE %s.%s = %s AND %s.%s = %s)",
		s.Table, s.Alias,
		s.Alias, s.ArticleID, s.ArticleColumn,
		s.Alias, s.Name, c.placeholder(name),
	)
}

func (c *compiler) placeholder(name string) string {
	n, ok := c.params[name]
	if !ok {
		n = c.paramStart + len(c.args)
		c.params[name] = n
		c.args = append(c.args, name)
	}
	return fmt.Sprintf("$%d", n)
}
