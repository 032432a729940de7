// internal/app/bot/pager.go
package bot

import (
	"sync"

	"github.com/dalemusser/groupvault/internal/app/query"
	"github.com/google/uuid"
)

// pager remembers search continuations behind short keys because button
// data is limited to 64 bytes, too small for a keyword plus a cursor. The
// oldest entries are dropped once size is reached; a dropped key just asks
// the user to search again.
type pager struct {
	mu    sync.Mutex
	size  int
	byKey map[string]query.Params
	order []string
}

func newPager(size int) *pager {
	return &pager{size: size, byKey: make(map[string]query.Params, size)}
}

func (p *pager) put(params query.Params) string {
	key := uuid.NewString()[:8]

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.order) >= p.size {
		delete(p.byKey, p.order[0])
		p.order = p.order[1:]
	}
	p.byKey[key] = params
	p.order = append(p.order, key)
	return key
}

func (p *pager) get(key string) (query.Params, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	params, ok := p.byKey[key]
	return params, ok
}
