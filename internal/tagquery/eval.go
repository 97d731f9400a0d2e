package tagquery

// Matches evaluates the tree against one article's tag set in memory.
// It has the same semantics as the compiled SQL condition.
func (n Node) Matches(tags []string) bool {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}
	return n.matches(set)
}

func (n Node) matches(set map[string]struct{}) bool {
	switch n.Kind {
	case KindTag:
		_, ok := set[n.Name]
		return ok
	case KindNot:
		return !n.Children[0].matches(set)
	case KindAnd:
		for _, child := range n.Children {
			if !child.matches(set) {
				return false
			}
		}
		return true
	case KindOr:
		for _, child := range n.Children {
			if child.matches(set) {
				return true
			}
		}
		return false
	}
	return false
}
