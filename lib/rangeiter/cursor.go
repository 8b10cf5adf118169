package rangeiter

// Cursor remembers a query and the last key it returned, so the query can
// be continued where it stopped ("more").
type Cursor struct {
	query Query
	last  string
	seen  bool
}

// NewCursor creates a cursor for q
func NewCursor(q Query) *Cursor {
	return &Cursor{query: q}
}

// Observe records a returned key
func (c *Cursor) Observe(key string) {
	c.last, c.seen = key, true
}

// Next returns the query for the rows following the last observed key and
// makes it the cursor's query. The bound on the side the iteration moves
// away from (the lower bound, or the upper bound in reverse) is replaced
// by an exclusive bound at the last key, the prefix filter is kept. Next
// returns false if no key was observed.
func (c *Cursor) Next() (Query, bool) {
	if !c.seen {
		return c.query, false
	}

	q := c.query
	if q.Reverse {
		q.LT, q.LTE = strPtr(c.last), nil
	} else {
		q.GT, q.GTE = strPtr(c.last), nil
	}
	c.query, c.seen = q, false
	return q, true
}
