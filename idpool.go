package futurez

import (
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
)

// IDPool keeps a buffer of pre-generated IDs so span creation does not pay
// for random generation on the hot path.
type IDPool struct {
	factory func() string
	ids     chan string
	stopCh  chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a new ID pool with the specified capacity.
func NewIDPool(capacity int, factory func() string) *IDPool {
	if capacity < 1 {
		capacity = 1
	}
	pool := &IDPool{
		ids:     make(chan string, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get retrieves an ID from the pool or generates one if the pool is empty.
func (p *IDPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.factory()
	}
}

func (p *IDPool) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		case p.ids <- p.factory():
		}
	}
}

// Close stops the background refill. Get keeps working afterward.
func (p *IDPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}

// randomHex returns n random bytes, hex encoded. fallback is used when the
// system random source fails.
func randomHex(n int, fallback func() string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fallback()
	}
	if n > len(id) {
		n = len(id)
	}
	return hex.EncodeToString(id[:n])
}

// newTaskID names a submitted task for logs.
func newTaskID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return ""
	}
	return id.String()
}
