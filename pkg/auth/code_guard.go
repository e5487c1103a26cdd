package auth

import "sync"

// codeGuard remembers authorization codes that have already been processed
// so a replayed redirect never triggers a second token exchange. The set is
// bounded (FIFO eviction) and scoped to the lifetime of the owning manager.
type codeGuard struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	limit int
}

func newCodeGuard(limit int) *codeGuard {
	return &codeGuard{
		seen:  make(map[string]struct{}),
		limit: limit,
	}
}

// MarkIfNew records the code and reports whether it was unseen. The check
// and the insert are one atomic step; concurrent callers with the same code
// get true exactly once.
func (g *codeGuard) MarkIfNew(code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[code]; ok {
		return false
	}

	g.seen[code] = struct{}{}
	g.order = append(g.order, code)
	if len(g.order) > g.limit {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.seen, oldest)
	}
	return true
}
