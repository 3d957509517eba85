package criteriaquery

// backend renders criteria into fragments of type Q. The chain walk in
// compileChain is shared by every backend; a backend only knows how to build
// the fragment for one node's entries, how to scope nested predicates and how
// to assemble the buckets into one boolean fragment.
type backend[Q any] interface {
	// entries builds the fragment for the entries of c. ok is false when the
	// node carries no entries.
	entries(c *Criteria) (q Q, ok bool, err error)
	// nested wraps the compiled nested predicates of c in a nested scope.
	// inner is never empty.
	nested(c *Criteria, inner []Q) (Q, error)
	// combine assembles a boolean fragment. At least one bucket is non-empty.
	combine(b *buckets[Q]) Q
}

type buckets[Q any] struct {
	should  []Q
	mustNot []Q
	must    []Q
}

func (b *buckets[Q]) add(q Q, or, negating bool) {
	switch {
	case or:
		b.should = append(b.should, q)
	case negating:
		b.mustNot = append(b.mustNot, q)
	default:
		b.must = append(b.must, q)
	}
}

func (b *buckets[Q]) empty() bool {
	return len(b.should) == 0 && len(b.mustNot) == 0 && len(b.must) == 0
}

// place puts the first fragment of a chain. A chain that only collected
// alternatives reads as a plain disjunction, so the first fragment joins
// them. Otherwise it is required, or excluded when its node negates.
func (b *buckets[Q]) place(first Q, negating bool) {
	if len(b.should) > 0 && len(b.mustNot) == 0 && len(b.must) == 0 {
		b.should = prepend(b.should, first)
		return
	}
	if negating {
		b.mustNot = prepend(b.mustNot, first)
		return
	}
	b.must = prepend(b.must, first)
}

func prepend[Q any](qs []Q, q Q) []Q {
	return append([]Q{q}, qs...)
}

// compileChain walks the chain owned by c. ok is false when the chain holds
// no predicate at all.
func compileChain[Q any](be backend[Q], c *Criteria) (q Q, ok bool, err error) {
	var (
		b             buckets[Q]
		first         Q
		hasFirst      bool
		firstNegating bool
	)

	for _, node := range c.Chain() {
		fragment, found, err := be.entries(node)
		if err != nil {
			return q, false, err
		}
		if found {
			if !hasFirst {
				first, hasFirst, firstNegating = fragment, true, node.negating
			} else {
				b.add(fragment, node.or, node.negating)
			}
		}

		if len(node.nested) > 0 {
			scoped, found, err := compileNested(be, node)
			if err != nil {
				return q, false, err
			}
			if found {
				b.add(scoped, node.or, node.negating)
			}
		}

		// Groups of the owning node are merged after the whole chain.
		if node != c {
			if err := compileGroups(be, node, &b); err != nil {
				return q, false, err
			}
		}
	}

	if err := compileGroups(be, c, &b); err != nil {
		return q, false, err
	}

	if hasFirst {
		b.place(first, firstNegating)
	}
	if b.empty() {
		return q, false, nil
	}
	return be.combine(&b), true, nil
}

// compileGroups compiles the sub-criteria of owner and classifies each with
// owner's flags.
func compileGroups[Q any](be backend[Q], owner *Criteria, b *buckets[Q]) error {
	for _, group := range owner.sub {
		if group == nil {
			continue
		}
		fragment, ok, err := compileChain(be, group)
		if err != nil {
			return err
		}
		if ok {
			b.add(fragment, owner.or, owner.negating)
		}
	}
	return nil
}

func compileNested[Q any](be backend[Q], node *Criteria) (Q, bool, error) {
	var zero Q
	if node.fieldName() == "" {
		return zero, false, usageError("", keyUnknown, "nested criteria need a field naming the nested object")
	}

	inner := make([]Q, 0, len(node.nested))
	for _, n := range node.nested {
		if n == nil {
			continue
		}
		fragment, ok, err := compileChain(be, n)
		if err != nil {
			return zero, false, err
		}
		if ok {
			inner = append(inner, fragment)
		}
	}
	if len(inner) == 0 {
		return zero, false, nil
	}
	scoped, err := be.nested(node, inner)
	return scoped, err == nil, err
}
