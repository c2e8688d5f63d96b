package ir

// MarkRoot marks e, and everything e transitively depends on, as live for
// the next Collect. Callers accumulate roots (typically one per exported
// statement) across a whole script before collecting once.
func (g *Graph) MarkRoot(e Expr) {
	if _, ok := g.marked[e]; ok {
		return
	}
	g.marked[e] = struct{}{}
	for _, dep := range g.Dependencies(e) {
		g.MarkRoot(dep)
	}
}

// Marked reports whether e has been reached from some root passed to
// MarkRoot since the last Collect.
func (g *Graph) Marked(e Expr) bool {
	_, ok := g.marked[e]
	return ok
}

// Collect compacts the arena down to the expressions reachable from the
// roots passed to MarkRoot, in a single mark-and-compact pass: live nodes
// slide down to fill the gaps left by dead ones, preserving their relative
// order (and therefore the dependency-precedes-dependent invariant other
// code relies on). It returns a remap table translating every Expr handle
// valid before the call to its value after; callers holding Exprs across a
// Collect call (roots included) must pass them through Remap.
//
// Nothing is marked live by Collect itself — a graph with no MarkRoot calls
// collects down to empty. Call MarkRoot for every expression you still need
// before collecting.
func (g *Graph) Collect() map[Expr]Expr {
	remap := make(map[Expr]Expr, len(g.marked))
	compacted := make([]node, 0, len(g.marked))
	for old := Expr(0); int(old) < len(g.nodes); old++ {
		if _, live := g.marked[old]; !live {
			continue
		}
		remap[old] = Expr(len(compacted))
		compacted = append(compacted, g.nodes[old])
	}

	translate := func(e Expr) Expr {
		if e == InvalidExpr {
			return InvalidExpr
		}
		return remap[e]
	}
	for i := range compacted {
		n := &compacted[i]
		n.shape = translate(n.shape)
		switch n.tag {
		case TagImportShape, TagOpenTable, TagInt64Constant, TagDoubleConstant, TagIndex, TagJoinLeft, TagJoinRight:
			n.a = translate(n.a)
			n.b = translate(n.b)
		default:
			n.a = translate(n.a)
			n.b = translate(n.b)
		}
	}

	byKey := make(map[nodeKey]Expr, len(compacted))
	for i, n := range compacted {
		byKey[n.key()] = Expr(i)
	}

	g.nodes = compacted
	g.byKey = byKey
	g.marked = make(map[Expr]struct{}, len(compacted))
	g.remap = remap
	return remap
}

// Remap translates e through the table returned by the most recent Collect
// call. It is a no-op (returning e unchanged) if Collect has never been
// called, or if the graph has been mutated since, since any mutation
// invalidates the remap table.
func (g *Graph) Remap(e Expr) Expr {
	if g.remap == nil || e == InvalidExpr {
		return e
	}
	mapped, ok := g.remap[e]
	if !ok {
		return InvalidExpr
	}
	return mapped
}
