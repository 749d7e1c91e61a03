package myir

// CFG is the entry block plus the transitive successor set, with the
// analyses cached on first request. Any structural mutation invalidates
// the caches.
type CFG struct {
	fn *Function

	postorder []*Block
	rpo       []*Block
	idom      map[*Block]*Block
	df        map[*Block][]*Block
}

func (c *CFG) invalidate() {
	c.postorder = nil
	c.rpo = nil
	c.idom = nil
	c.df = nil
}

// PostOrder returns the blocks in post-order and stamps each block with
// its post-order number, the currency of the dominance algorithm.
func (c *CFG) PostOrder() []*Block {
	if c.postorder != nil {
		return c.postorder
	}
	var order []*Block
	seen := map[*Block]bool{}
	var walk func(b *Block)
	walk = func(b *Block) {
		seen[b] = true
		for _, s := range b.succs {
			if !seen[s] {
				walk(s)
			}
		}
		b.po = len(order)
		order = append(order, b)
	}
	walk(c.fn.entry)
	c.postorder = order
	return order
}

// ReversePostOrder returns the canonical traversal order for passes.
func (c *CFG) ReversePostOrder() []*Block {
	if c.rpo != nil {
		return c.rpo
	}
	po := c.PostOrder()
	rpo := make([]*Block, len(po))
	for i, b := range po {
		rpo[len(po)-1-i] = b
	}
	c.rpo = rpo
	return rpo
}

// Dominance computes the immediate-dominator map by iterative
// intersection over reverse post-order until a fixed point.
func (c *CFG) Dominance() map[*Block]*Block {
	if c.idom != nil {
		return c.idom
	}
	rpo := c.ReversePostOrder()
	idom := map[*Block]*Block{c.fn.entry: c.fn.entry}

	intersect := func(b1, b2 *Block) *Block {
		for b1 != b2 {
			for b1.po < b2.po {
				b1 = idom[b1]
			}
			for b2.po < b1.po {
				b2 = idom[b2]
			}
		}
		return b1
	}

	for changed := true; changed; {
		changed = false
		for _, b := range rpo {
			if b == c.fn.entry {
				continue
			}
			var newIdom *Block
			for _, p := range b.preds {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	c.idom = idom
	return idom
}

// Dominates reports whether a dominates b.
func (c *CFG) Dominates(a, b *Block) bool {
	idom := c.Dominance()
	for {
		if a == b {
			return true
		}
		if b == c.fn.entry {
			return false
		}
		b = idom[b]
	}
}

// DominanceFrontier computes DF for every block: for each join node and
// each of its predecessors p, the walk p, idom(p), ... up to (not
// including) idom(join) adds the join to each walked node's frontier.
func (c *CFG) DominanceFrontier() map[*Block][]*Block {
	if c.df != nil {
		return c.df
	}
	idom := c.Dominance()
	df := map[*Block][]*Block{}
	add := func(b, j *Block) {
		for _, x := range df[b] {
			if x == j {
				return
			}
		}
		df[b] = append(df[b], j)
	}
	for _, b := range c.ReversePostOrder() {
		if len(b.preds) < 2 {
			continue
		}
		for _, p := range b.preds {
			for runner := p; runner != idom[b]; runner = idom[runner] {
				add(runner, b)
			}
		}
	}
	c.df = df
	return df
}

// DomChildren builds the dominator tree's child lists.
func (c *CFG) DomChildren() map[*Block][]*Block {
	idom := c.Dominance()
	children := map[*Block][]*Block{}
	for _, b := range c.ReversePostOrder() {
		if b == c.fn.entry {
			continue
		}
		children[idom[b]] = append(children[idom[b]], b)
	}
	return children
}
