package repository

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/types"
	"github.com/okian/matchloop/pkg/metrics"
)

// Treap-based, in-memory provider leaderboard.
//
// Ordering: score DESC, then providerID ASC (deterministic). "less" means
// ranks earlier, so in-order traversal yields the board from best to worst.
// Every node tracks its subtree size, which makes rank and percentile
// queries O(log n).

// scoreScale controls fixed-point scaling from float64.
const scoreScale = 1_000_000_000

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	switch {
	case math.IsNaN(x):
		return 0
	case x*scoreScale >= math.MaxInt64:
		return scoreFP(math.MaxInt64)
	case x*scoreScale <= math.MinInt64:
		return scoreFP(math.MinInt64)
	}
	return scoreFP(math.Round(x * scoreScale))
}

func toFloat(x scoreFP) float64 {
	return float64(x) / scoreScale
}

type record struct {
	score scoreFP
	tier  string
	at    time.Time
}

type node struct {
	id    string
	score scoreFP
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

func less(aScore scoreFP, aID string, bScore scoreFP, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
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

// priorityOf hashes the id so the heap order is independent of scores.
func priorityOf(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func insert(n *node, id string, score scoreFP) *node {
	if n == nil {
		return &node{id: id, score: score, prio: priorityOf(id), size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score scoreFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// countAbove counts nodes with a strictly higher score.
func countAbove(n *node, score scoreFP) int {
	count := 0
	for n != nil {
		if n.score > score {
			count += 1 + nsize(n.left)
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// countBelow counts nodes with a strictly lower score.
func countBelow(n *node, score scoreFP) int {
	count := 0
	for n != nil {
		if n.score < score {
			count += 1 + nsize(n.right)
			n = n.left
		} else {
			n = n.right
		}
	}
	return count
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, byID map[string]record, out *[]types.Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, byID, out)
	if len(*out) < limit {
		rec := byID[n.id]
		*out = append(*out, types.Entry{ProviderID: n.id, Score: toFloat(rec.score), Tier: rec.tier})
	}
	collectTopN(n.right, limit, byID, out)
}

// Standing is a provider's position among its peers.
type Standing struct {
	types.Entry
	Percentile float64 `json:"percentile"`
	PeerCount  int     `json:"peer_count"`
}

// Leaderboard ranks providers by their latest overall performance score.
// Upsert replaces the previous score; there is no best-score retention.
type Leaderboard struct {
	mu   sync.RWMutex
	root *node
	byID map[string]record
}

// NewLeaderboard constructs an empty leaderboard.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{byID: make(map[string]record)}
}

// Upsert sets providerID's score in O(log n) expected time.
func (l *Leaderboard) Upsert(_ context.Context, providerID string, score float64, tier string, at time.Time) error {
	if providerID == "" {
		return fault.Validation("leaderboard_upsert", "provider id is required")
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return fault.Validation("leaderboard_upsert", "score must be finite")
	}
	ns := toFixedPoint(score)

	l.mu.Lock()
	if old, ok := l.byID[providerID]; ok {
		l.root = deleteNode(l.root, providerID, old.score)
	}
	l.byID[providerID] = record{score: ns, tier: tier, at: at}
	l.root = insert(l.root, providerID, ns)
	count := len(l.byID)
	l.mu.Unlock()

	metrics.UpdateLeaderboardProviders(count)
	return nil
}

// Remove drops providerID. It reports whether the provider was ranked.
func (l *Leaderboard) Remove(_ context.Context, providerID string) bool {
	l.mu.Lock()
	old, ok := l.byID[providerID]
	if ok {
		l.root = deleteNode(l.root, providerID, old.score)
		delete(l.byID, providerID)
	}
	count := len(l.byID)
	l.mu.Unlock()

	if ok {
		metrics.UpdateLeaderboardProviders(count)
	}
	return ok
}

// PruneBefore removes providers last scored before cutoff and returns how
// many were removed.
func (l *Leaderboard) PruneBefore(_ context.Context, cutoff time.Time) int {
	l.mu.Lock()
	removed := 0
	for id, rec := range l.byID {
		if rec.at.Before(cutoff) {
			l.root = deleteNode(l.root, id, rec.score)
			delete(l.byID, id)
			removed++
		}
	}
	count := len(l.byID)
	l.mu.Unlock()

	if removed > 0 {
		metrics.UpdateLeaderboardProviders(count)
	}
	return removed
}

// Rank returns providerID's standing. Equal scores share a rank and the
// next distinct score skips the tied positions.
func (l *Leaderboard) Rank(_ context.Context, providerID string) (Standing, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.byID[providerID]
	if !ok {
		metrics.RecordErrorByComponent("leaderboard", "not_found")
		return Standing{}, fault.NotFound("leaderboard_rank", "provider", providerID)
	}
	peers := len(l.byID)
	percentile := 100.0
	if peers > 1 {
		percentile = 100 * float64(countBelow(l.root, rec.score)) / float64(peers-1)
	}
	return Standing{
		Entry: types.Entry{
			Rank:       1 + countAbove(l.root, rec.score),
			ProviderID: providerID,
			Score:      toFloat(rec.score),
			Tier:       rec.tier,
		},
		Percentile: percentile,
		PeerCount:  peers,
	}, nil
}

// TopN returns the best n providers ordered by score desc, id asc.
func (l *Leaderboard) TopN(_ context.Context, n int) ([]types.Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("leaderboard", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	l.mu.RLock()
	out := make([]types.Entry, 0, min(n, len(l.byID)))
	collectTopN(l.root, n, l.byID, &out)
	l.mu.RUnlock()

	for i := range out {
		switch {
		case i == 0:
			out[i].Rank = 1
		case out[i].Score == out[i-1].Score:
			out[i].Rank = out[i-1].Rank
		default:
			out[i].Rank = i + 1
		}
	}
	return out, nil
}

// Count returns the number of ranked providers.
func (l *Leaderboard) Count(_ context.Context) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}
