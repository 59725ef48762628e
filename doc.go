/*
Package lf implements an in-process relational query engine with
observable queries on top of a pluggable persistent row store.

We implement:

1. Typed schemas (tables, columns, indices, constraints) built in code
or loaded from validated JSON metadata.

2. A query surface of SELECT / INSERT / UPDATE / DELETE builders that
freeze into immutable query contexts.

3. A planner turning contexts into physical operator trees, with index
substitution driven by range-scan cost estimates.

4. A runner that serialises tasks by table scope, executing each one
inside a back-store transaction with a journal staging its writes.

5. An observer registry that re-runs live SELECTs after commits touch
their tables and delivers structured result diffs.

# Technical Details

The back store is an abstract per-table key-value contract
(BackStore); a bbolt implementation provides durability and an
in-memory one backs tests. Row payloads are msgpack. Indices live in
memory (a B-tree ordered index and a flat map index) and are rebuilt
from the back store on open, together with the row cache.
*/
package lf
