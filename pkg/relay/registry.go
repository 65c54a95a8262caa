package relay

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Channel is one observer connection. Send must not block; a channel that cannot
// keep up drops messages or closes itself.
type Channel interface {
	ID() string
	Send(msg Message) error
}

// Registry tracks which channels observe which request. It never reads the Store;
// replays are computed by the caller under the request lock.
type Registry struct {
	mu     sync.RWMutex
	sets   map[string]map[string]Channel
	owners map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		sets:   map[string]map[string]Channel{},
		owners: map[string]string{},
	}
}

// Attach registers ch for requestID, moving it off any other request first, and
// then sends replay to ch alone.
func (r *Registry) Attach(requestID string, ch Channel, replay ...Message) {
	if r == nil || ch == nil || requestID == "" {
		return
	}
	chID := ch.ID()

	r.mu.Lock()
	if prev, ok := r.owners[chID]; ok && prev != requestID {
		r.removeLocked(prev, chID)
	}
	set, ok := r.sets[requestID]
	if !ok {
		set = map[string]Channel{}
		r.sets[requestID] = set
	}
	set[chID] = ch
	r.owners[chID] = requestID
	r.mu.Unlock()

	for _, msg := range replay {
		if err := ch.Send(msg); err != nil {
			log.Debug().Err(err).
				Str("component", "relay").
				Str("request_id", requestID).
				Str("channel_id", chID).
				Str("type", string(msg.Type)).
				Msg("replay send failed")
		}
	}
}

// Detach forgets ch wherever it is attached. Safe to call more than once.
func (r *Registry) Detach(ch Channel) {
	if r == nil || ch == nil {
		return
	}
	chID := ch.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	requestID, ok := r.owners[chID]
	if !ok {
		return
	}
	r.removeLocked(requestID, chID)
}

// Broadcast sends msg to every channel attached to requestID. Send failures are
// logged and otherwise ignored.
func (r *Registry) Broadcast(requestID string, msg Message) {
	r.BroadcastExcept(requestID, msg, nil)
}

// BroadcastExcept is Broadcast without the channels whose ids are in skip.
func (r *Registry) BroadcastExcept(requestID string, msg Message, skip map[string]struct{}) {
	if r == nil {
		return
	}
	r.mu.RLock()
	set := r.sets[requestID]
	targets := make([]Channel, 0, len(set))
	for chID, ch := range set {
		if _, ok := skip[chID]; ok {
			continue
		}
		targets = append(targets, ch)
	}
	r.mu.RUnlock()

	for _, ch := range targets {
		if err := ch.Send(msg); err != nil {
			log.Debug().Err(err).
				Str("component", "relay").
				Str("request_id", requestID).
				Str("channel_id", ch.ID()).
				Str("type", string(msg.Type)).
				Msg("broadcast send failed")
		}
	}
}

// Count returns the number of channels attached to requestID.
func (r *Registry) Count(requestID string) int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets[requestID])
}

// AttachedTo returns the request id ch is attached to.
func (r *Registry) AttachedTo(ch Channel) (string, bool) {
	if r == nil || ch == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.owners[ch.ID()]
	return id, ok
}

// drop forgets every attachment of requestID. Only cleanup calls it.
func (r *Registry) drop(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for chID := range r.sets[requestID] {
		if r.owners[chID] == requestID {
			delete(r.owners, chID)
		}
	}
	delete(r.sets, requestID)
}

func (r *Registry) removeLocked(requestID, chID string) {
	if set, ok := r.sets[requestID]; ok {
		delete(set, chID)
		if len(set) == 0 {
			delete(r.sets, requestID)
		}
	}
	if r.owners[chID] == requestID {
		delete(r.owners, chID)
	}
}
