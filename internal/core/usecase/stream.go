package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rbroggi/recyclo/internal/core/chatkey"
	"github.com/rbroggi/recyclo/internal/core/model"
)

// MessageStream hands every emission of a conversation's message list to a render callback.
type MessageStream struct {
	cancel   context.CancelFunc
	done     chan struct{}
	disposed atomic.Bool
	once     sync.Once

	// renderMu is held by the pump across the disposed check and the render call.
	renderMu sync.Mutex
	// rendering is set by the pump while it holds renderMu.
	rendering atomic.Bool
}

// OpenMessageStream subscribes to the messages of a conversation of which me is a participant.
// Each emission replaces the full list. Render calls are serialized.
func (s *ConversationService) OpenMessageStream(ctx context.Context, me model.User, key string, render func([]model.Message)) (*MessageStream, error) {
	if _, err := chatkey.Other(key, me.ID); err != nil {
		return nil, err
	}
	subCtx, cancel := context.WithCancel(ctx)
	ch, err := s.store.SubscribeMessages(subCtx, key)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error subscribing to messages of %s: %w", key, err)
	}

	stream := &MessageStream{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(stream.done)
		for msgs := range ch {
			stream.deliver(render, msgs)
		}
	}()
	return stream, nil
}

func (m *MessageStream) deliver(render func([]model.Message), msgs []model.Message) {
	m.renderMu.Lock()
	defer m.renderMu.Unlock()
	m.rendering.Store(true)
	defer m.rendering.Store(false)
	if m.disposed.Load() {
		return
	}
	render(msgs)
}

// Dispose stops the stream. It is idempotent and may be called from render.
// No render starts after Dispose returns; a render already running may still be finishing.
func (m *MessageStream) Dispose() {
	m.once.Do(func() {
		m.disposed.Store(true)
		m.cancel()
	})
	// wait out a pump between its check and its render. While a render runs, and when Dispose is
	// called from render itself, the pump checks the flag again before the next render.
	if !m.rendering.Load() {
		m.renderMu.Lock()
		m.renderMu.Unlock()
	}
}

// Done is closed once the stream stopped delivering, after Dispose or when the parent context ends.
func (m *MessageStream) Done() <-chan struct{} {
	return m.done
}
