/*
Package rangeiter implements streaming range iteration over a store.

A Query carries the list options of the protocol:

	gt, gte, lt, lte   string bounds
	pre                prefix, restricts the range to keys starting with it
	reverse            iterate in descending key order
	limit              maximum rows, capped by the range permission
	values             include values (default true)
	del                delete every streamed row
	skip               emit only every n-th row
	ack                acknowledgement batch size for flow control

Bounds on the same side are combined, the tighter one wins. A prefix adds
both a lower bound (the prefix) and an upper bound (the smallest key after
all keys with the prefix), and the iteration stops at the first key not
starting with the prefix. Combined with reverse, the prefix range is
iterated from its last key backwards.

Run streams the rows to a callback. Deletions requested with del are
collected in one batch that is committed when Run returns, also after an
error, so rows streamed before the error are deleted.

Flow Control:

With ack set, the producer takes one credit of a semaphore per row and may
run up to 2*ack rows ahead. The consumer returns credits by acknowledging
rows (FlowControl.Ack). A cancelled context unblocks a waiting producer.

Continuation:

A Cursor remembers a query and the last key it returned. Cursor.Next
replaces the lower bound (upper bound in reverse) with an exclusive bound
at that key, which continues the listing where it stopped.
*/
package rangeiter
