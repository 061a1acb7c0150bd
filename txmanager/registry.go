package txmanager

import (
	"sort"
	"sync"

	"msgtx/tranid"
)

// registry maps Xids to their live participants. Its lock is always taken
// before a participant's, never the other way round.
type registry struct {
	mu           sync.RWMutex
	participants map[tranid.PersistentTranID]*XidParticipant
}

func newRegistry() *registry {
	return &registry{
		participants: make(map[tranid.PersistentTranID]*XidParticipant),
	}
}

func (r *registry) lookup(id tranid.PersistentTranID) (*XidParticipant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	return p, ok
}

// insert adds p under id unless id is already known.
func (r *registry) insert(id tranid.PersistentTranID, p *XidParticipant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[id]; ok {
		return false
	}
	r.participants[id] = p
	return true
}

// remove drops id only while it still maps to p.
func (r *registry) remove(id tranid.PersistentTranID, p *XidParticipant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.participants[id] == p {
		delete(r.participants, id)
	}
}

// snapshot returns the known participants sorted by id text.
func (r *registry) snapshot() []*XidParticipant {
	r.mu.RLock()
	ps := make([]*XidParticipant, 0, len(r.participants))
	ids := make(map[*XidParticipant]string, len(r.participants))
	for id, p := range r.participants {
		ps = append(ps, p)
		ids[p] = id.String()
	}
	r.mu.RUnlock()

	sort.Slice(ps, func(i, j int) bool { return ids[ps[i]] < ids[ps[j]] })
	return ps
}
