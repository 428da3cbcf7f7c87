package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vedran77/duet/internal/domain"
	"github.com/vedran77/duet/internal/metrics"
	"github.com/vedran77/duet/internal/service"
)

var ErrHubClosed = errors.New("hub is shut down")

// MessageSender runs a socket-native send through the same flow as HTTP.
type MessageSender interface {
	Send(ctx context.Context, identity domain.Identity, input service.SendInput) (*service.SendResult, error)
}

type HubConfig struct {
	Workers    int
	QueueSize  int
	SendBuffer int
}

type task struct {
	run  func()
	done chan struct{}
}

// Hub owns the socket lifecycle. Inbound events become tasks on a bounded
// queue served by a fixed pool of workers.
type Hub struct {
	registry *Registry
	messages MessageSender
	cfg      HubConfig
	log      zerolog.Logger

	tasks     chan task
	quit      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewHub(registry *Registry, messages MessageSender, cfg HubConfig, log zerolog.Logger) *Hub {
	return &Hub{
		registry: registry,
		messages: messages,
		cfg:      cfg,
		log:      log.With().Str("component", "ws_hub").Logger(),
		tasks:    make(chan task, cfg.QueueSize),
		quit:     make(chan struct{}),
	}
}

// Run starts the worker pool. Calling it again does nothing.
func (h *Hub) Run() {
	h.startOnce.Do(func() {
		for i := 0; i < h.cfg.Workers; i++ {
			h.wg.Add(1)
			go h.worker()
		}
		h.log.Info().Int("workers", h.cfg.Workers).Int("queue", h.cfg.QueueSize).Msg("ws hub started")
	})
}

func (h *Hub) worker() {
	defer h.wg.Done()
	for {
		select {
		case t := <-h.tasks:
			h.execute(t)
		case <-h.quit:
			// Finish what was already queued so no submitter waits forever.
			for {
				select {
				case t := <-h.tasks:
					h.execute(t)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) execute(t task) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Msg("ws task panicked")
		}
	}()
	t.run()
}

// Submit queues fn and returns a channel closed once fn has run.
func (h *Hub) Submit(ctx context.Context, fn func()) (<-chan struct{}, error) {
	select {
	case <-h.quit:
		return nil, ErrHubClosed
	default:
	}

	t := task{run: fn, done: make(chan struct{})}
	select {
	case h.tasks <- t:
		return t.done, nil
	case <-h.quit:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Register admits an authenticated client into the registry.
func (h *Hub) Register(c *Client) error {
	select {
	case <-h.quit:
		return ErrHubClosed
	default:
	}
	if err := h.registry.Register(c); err != nil {
		if errors.Is(err, ErrRegistryClosed) {
			return ErrHubClosed
		}
		return err
	}
	metrics.LiveSockets.Inc()
	h.log.Info().
		Str("socket_id", c.id).
		Str("user_id", string(c.identity.UserID)).
		Int("total", h.registry.Len()).
		Msg("socket connected")
	return nil
}

// Unregister removes the client and closes it. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	if _, ok := h.registry.Deregister(c.id); ok {
		metrics.LiveSockets.Dec()
		h.log.Info().
			Str("socket_id", c.id).
			Str("user_id", string(c.identity.UserID)).
			Int("total", h.registry.Len()).
			Msg("socket disconnected")
	}
	c.close()
}

// Shutdown stops accepting work, waits for the workers to drain the queue,
// then closes every socket and closes the registry to new ones.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.quit) })

	drained := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for ws workers: %w", ctx.Err())
	}

	clients := h.registry.Close()
	for _, c := range clients {
		c.close()
	}
	metrics.LiveSockets.Sub(float64(len(clients)))
	h.log.Info().Int("closed", len(clients)).Msg("ws hub stopped")
	return err
}
