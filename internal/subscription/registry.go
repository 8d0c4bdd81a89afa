package subscription

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/rickgao/portfolio-stream/internal/metrics"
)

// Errors
var (
	ErrEmptyID = errors.New("instrument id is empty")
)

// Frame types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

// ControlFrame is the outbound subscribe/unsubscribe message.
type ControlFrame struct {
	Type  string `json:"type"`
	Conid string `json:"conid"`
}

// Sender writes control frames to the stream.
type Sender interface {
	Send(v any) error
}

// Remover drops cached data for an instrument nobody watches anymore.
type Remover interface {
	RemoveInstrument(id string) int
}

// Registry tracks observer interest per instrument.
type Registry interface {
	// Subscribe adds one reference to id. The subscribe frame is sent on
	// the first reference only.
	Subscribe(id string) error

	// Unsubscribe drops one reference to id. The unsubscribe frame is sent
	// when the last reference goes. Unknown ids are ignored.
	Unsubscribe(id string)

	// Acquire subscribes and returns a Lease that releases it.
	Acquire(id string) (*Lease, error)

	// Resubscribe sends a subscribe frame for every active id.
	Resubscribe()

	// Active returns id → reference count.
	Active() map[string]int
}

// registry implements the Registry interface.
type registry struct {
	sender  Sender
	remover Remover
	logger  *slog.Logger

	mu   sync.Mutex
	refs map[string]int
}

// NewRegistry creates a registry that sends frames through sender. remover
// may be nil.
func NewRegistry(sender Sender, remover Remover, logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &registry{
		sender:  sender,
		remover: remover,
		logger:  logger,
		refs:    make(map[string]int),
	}
}

// Subscribe adds one reference to id.
func (r *registry) Subscribe(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.refs[id]++
	if r.refs[id] == 1 {
		r.send(TypeSubscribe, id)
		metrics.ActiveSubscriptions.Set(float64(len(r.refs)))
	}
	return nil
}

// Unsubscribe drops one reference to id.
func (r *registry) Unsubscribe(id string) {
	id = strings.TrimSpace(id)

	r.mu.Lock()
	n, ok := r.refs[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if n > 1 {
		r.refs[id] = n - 1
		r.mu.Unlock()
		return
	}
	delete(r.refs, id)
	r.send(TypeUnsubscribe, id)
	metrics.ActiveSubscriptions.Set(float64(len(r.refs)))

	// Held under the lock so a racing Subscribe keeps its data.
	if r.remover != nil {
		if removed := r.remover.RemoveInstrument(id); removed > 0 {
			r.logger.Debug("instrument data dropped", "id", id, "records", removed)
		}
	}
	r.mu.Unlock()
}

// Acquire subscribes and returns a Lease.
func (r *registry) Acquire(id string) (*Lease, error) {
	if err := r.Subscribe(id); err != nil {
		return nil, err
	}
	return &Lease{r: r, id: strings.TrimSpace(id)}, nil
}

// Resubscribe sends a subscribe frame for every active id, sorted.
func (r *registry) Resubscribe() {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.refs))
	for id := range r.refs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		r.send(TypeSubscribe, id)
	}
	if len(ids) > 0 {
		r.logger.Info("subscriptions restored", "count", len(ids))
	}
}

// Active returns a copy of the reference counts.
func (r *registry) Active() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int, len(r.refs))
	for id, n := range r.refs {
		out[id] = n
	}
	return out
}

// send must be called with the lock held. Failures while offline are
// expected; Resubscribe restores the set on the next open.
func (r *registry) send(frameType, id string) {
	if err := r.sender.Send(ControlFrame{Type: frameType, Conid: id}); err != nil {
		r.logger.Debug("control frame not sent", "type", frameType, "id", id, "error", err)
	}
}

// Lease is one observer's interest in an instrument.
type Lease struct {
	r    *registry
	id   string
	once sync.Once
}

// ID returns the leased instrument id.
func (l *Lease) ID() string {
	return l.id
}

// Release drops the lease's reference. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() { l.r.Unsubscribe(l.id) })
}
