package catalogsync

import (
	"sort"
	"sync"
	"time"

	"github.com/shishobooks/shelfsync/pkg/models"
)

type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateSuccess State = "success"
	StateError   State = "error"
)

type Status struct {
	Library   models.LibraryKey `json:"library"`
	State     State             `json:"state"`
	Message   string            `json:"message,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// subscriberBuffer is how many updates a slow subscriber may fall behind
// before further updates to it are dropped.
const subscriberBuffer = 32

// Tracker holds the latest sync status of every library seen since start
// and fans status changes out to subscribers.
type Tracker struct {
	mu          sync.RWMutex
	statuses    map[models.LibraryKey]Status
	subscribers map[int]chan Status
	nextID      int
}

func NewTracker() *Tracker {
	return &Tracker{
		statuses:    map[models.LibraryKey]Status{},
		subscribers: map[int]chan Status{},
	}
}

// Status returns StateIdle for libraries that have not synced yet.
func (t *Tracker) Status(key models.LibraryKey) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.statuses[key]; ok {
		return s
	}
	return Status{Library: key, State: StateIdle}
}

// All returns every known status ordered by server then library name.
func (t *Tracker) All() []Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Status, 0, len(t.statuses))
	for _, s := range t.statuses {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Library.ServerUUID != out[j].Library.ServerUUID {
			return out[i].Library.ServerUUID < out[j].Library.ServerUUID
		}
		return out[i].Library.Name < out[j].Library.Name
	})
	return out
}

// Subscribe returns a channel that receives every later status change. The
// channel is closed by Unsubscribe.
func (t *Tracker) Subscribe() (int, <-chan Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	ch := make(chan Status, subscriberBuffer)
	t.subscribers[id] = ch
	return id, ch
}

func (t *Tracker) Unsubscribe(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.subscribers[id]; ok {
		close(ch)
		delete(t.subscribers, id)
	}
}

func (t *Tracker) set(key models.LibraryKey, state State, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Status{Library: key, State: state, Message: message, UpdatedAt: time.Now()}
	t.statuses[key] = s
	for _, ch := range t.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}
