package api

import (
	"net/http"
	"sync"

	"github.com/dharsanguruparan/CleanOps/internal/model"
)

// userLocks hands out one mutex per user. Entries are dropped once no request
// holds or waits on them.
type userLocks struct {
	mu    sync.Mutex
	locks map[model.ID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[model.ID]*userLock)}
}

// lock blocks until the caller owns id's mutex and returns the release func.
func (l *userLocks) lock(id model.ID) func() {
	l.mu.Lock()
	ul, ok := l.locks[id]
	if !ok {
		ul = &userLock{}
		l.locks[id] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// exclusive runs h while holding the caller's lock. Session state is read,
// changed and written back as separate cache calls, so two requests of the
// same user must not interleave.
func (s *Server) exclusive(h authedHandler) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, c caller) {
		unlock := s.users.lock(c.identity.UserID)
		defer unlock()
		h(w, r, c)
	}
}
