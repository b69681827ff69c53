package web

import (
	"sync"

	"github.com/ShoshinNikita/gameicons/gameicons"
	"github.com/ShoshinNikita/gameicons/pkg/metrics"
	"github.com/ShoshinNikita/gameicons/pkg/rlog"
)

type IconEvent struct {
	ID     gameicons.TitleID `json:"id"`
	Width  int               `json:"width"`
	Height int               `json:"height"`
}

// EventHub broadcasts icon events to subscribers. Its OnIconLoaded method is used as
// the loader callback, so it never blocks: events are dropped for slow subscribers.
type EventHub struct {
	mu          sync.Mutex
	subscribers map[chan IconEvent]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[chan IconEvent]struct{}),
	}
}

func (h *EventHub) OnIconLoaded(id gameicons.TitleID, _ []byte, width, height int) {
	e := IconEvent{ID: id, Width: width, Height: height}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			rlog.Debugf("drop icon event for title %s: subscriber is too slow", id)
		}
	}
}

// Subscribe returns a channel with new events. The returned function must be called
// to unsubscribe.
func (h *EventHub) Subscribe() (<-chan IconEvent, func()) {
	ch := make(chan IconEvent, 64)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	metrics.EventSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			h.mu.Unlock()

			metrics.EventSubscribers.Dec()
		})
	}
}
