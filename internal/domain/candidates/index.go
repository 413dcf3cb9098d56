// Package candidates keeps the live tracking records ordered by recency so the
// matcher can scan only the records inside its time window.
package candidates

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/crosscam/internal/domain/model"
)

// Treap-based recency index.
//
// Ordering: lastSeenTime ASC, then trackingID ASC. In-order traversal from the
// first key at or after a cutoff yields exactly the records inside the window.
// Priorities are random so monotonically increasing timestamps do not
// degenerate the tree into a list.

type key struct {
	seen int64
	id   string
}

func keyOf(r model.TrackingRecord) key {
	return key{seen: nanos(r.LastSeenTime), id: r.TrackingID}
}

// nanos maps t onto the key space; times outside the int64 nanosecond range
// saturate.
func nanos(t time.Time) int64 {
	switch {
	case t.Before(minTime):
		return math.MinInt64
	case t.After(maxTime):
		return math.MaxInt64
	}
	return t.UnixNano()
}

var (
	minTime = time.Unix(0, math.MinInt64)
	maxTime = time.Unix(0, math.MaxInt64)
)

func less(a, b key) bool {
	if a.seen != b.seen {
		return a.seen < b.seen
	}
	return a.id < b.id
}

type node struct {
	k     key
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, k key, prio uint64) *node {
	if n == nil {
		return &node{k: k, prio: prio, size: 1}
	}
	if less(k, n.k) {
		n.left = insert(n.left, k, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, k, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, k key) *node {
	if n == nil {
		return nil
	}
	switch {
	case k == n.k:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, k)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, k)
		}
	case less(k, n.k):
		n.left = deleteNode(n.left, k)
	default:
		n.right = deleteNode(n.right, k)
	}
	fix(n)
	return n
}

// collectFrom appends ids with key >= from in ascending order.
func collectFrom(n *node, from key, out *[]string) {
	if n == nil {
		return
	}
	if less(n.k, from) {
		collectFrom(n.right, from, out)
		return
	}
	collectFrom(n.left, from, out)
	*out = append(*out, n.k.id)
	collectFrom(n.right, from, out)
}

// collectBefore appends keys strictly below limit.
func collectBefore(n *node, limit key, out *[]key) {
	if n == nil {
		return
	}
	collectBefore(n.left, limit, out)
	if !less(n.k, limit) {
		return
	}
	*out = append(*out, n.k)
	collectBefore(n.right, limit, out)
}

// Index is a concurrency-safe recency index of live tracking records.
// Soft-deleted records are never held.
type Index struct {
	mu   sync.RWMutex
	root *node
	byID map[string]model.TrackingRecord
}

// New returns an empty index.
func New() *Index {
	return &Index{byID: make(map[string]model.TrackingRecord)}
}

// Upsert stores a copy of rec, replacing any previous version. It returns the
// replaced record, if one existed, so callers can undo the change. A deleted
// record is removed instead.
func (ix *Index) Upsert(rec model.TrackingRecord) (model.TrackingRecord, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	prev, existed := ix.byID[rec.TrackingID]
	if existed {
		ix.root = deleteNode(ix.root, keyOf(prev))
		delete(ix.byID, rec.TrackingID)
	}
	if rec.Deleted() {
		return prev, existed
	}
	ix.byID[rec.TrackingID] = rec.Clone()
	ix.root = insert(ix.root, keyOf(rec), rand.Uint64())
	return prev, existed
}

// Remove drops id from the index and returns the record it held.
func (ix *Index) Remove(id string) (model.TrackingRecord, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	prev, ok := ix.byID[id]
	if !ok {
		return model.TrackingRecord{}, false
	}
	ix.root = deleteNode(ix.root, keyOf(prev))
	delete(ix.byID, id)
	return prev, true
}

// Get returns a copy of the record held for id.
func (ix *Index) Get(id string) (model.TrackingRecord, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	rec, ok := ix.byID[id]
	if !ok {
		return model.TrackingRecord{}, false
	}
	return rec.Clone(), true
}

// Since returns copies of all records with LastSeenTime >= cutoff, oldest first.
func (ix *Index) Since(cutoff time.Time) []model.TrackingRecord {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ids := make([]string, 0, 16)
	collectFrom(ix.root, key{seen: nanos(cutoff)}, &ids)
	out := make([]model.TrackingRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, ix.byID[id].Clone())
	}
	return out
}

// Prune removes every record last seen before cutoff and returns how many
// were dropped.
func (ix *Index) Prune(cutoff time.Time) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	stale := make([]key, 0)
	collectBefore(ix.root, key{seen: nanos(cutoff)}, &stale)
	for _, k := range stale {
		ix.root = deleteNode(ix.root, k)
		delete(ix.byID, k.id)
	}
	return len(stale)
}

// Len returns the number of records held.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}

// Reset drops all records.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.root = nil
	ix.byID = make(map[string]model.TrackingRecord)
}
