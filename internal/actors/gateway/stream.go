package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
	"github.com/rbroggi/recyclo/internal/core/usecase"

	log "github.com/sirupsen/logrus"
)

const notificationBuffer = 16

// eventWriter writes server-sent events.
type eventWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newEventWriter(w http.ResponseWriter) (*eventWriter, error) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	e := &eventWriter{w: w, rc: http.NewResponseController(w)}
	return e, e.comment("open")
}

func (e *eventWriter) send(event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("error marshaling %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return e.rc.Flush()
}

func (e *eventWriter) comment(text string) error {
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return err
	}
	return e.rc.Flush()
}

// offerLatest puts v in the single-slot ch, replacing a value not yet consumed.
// It must only be called by one goroutine at a time.
func offerLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// streamMessages sends the full message list of the conversation on every change.
func (s *Server) streamMessages(w http.ResponseWriter, r *http.Request, params map[string]string, me model.User) {
	updates := make(chan []model.Message, 1)
	stream, err := s.conversations.OpenMessageStream(r.Context(), me, params["key"], func(msgs []model.Message) {
		offerLatest(updates, nonNil(msgs))
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer stream.Dispose()

	serveEvents[[]model.Message](w, r, s.keepAlive, stream.Done(), "messages", updates)
}

// streamNotifications watches the conversations of the signed-in user for the lifetime of the request.
// The stream ends when the user signs out.
func (s *Server) streamNotifications(w http.ResponseWriter, r *http.Request, _ map[string]string, me model.User) {
	notifications := make(chan model.Notification, notificationBuffer)
	sink := ports.NotificationSinkFunc(func(_ context.Context, n model.Notification) {
		select {
		case notifications <- n:
		default:
			log.WithField("user-id", n.RecipientID).Warn("dropping notification for slow consumer")
		}
	})
	watcher := usecase.NewNotificationWatcher(usecase.NotificationWatcherArgs{Store: s.store, Sink: sink}, s.watcherOpts...)
	stop, err := watcher.Follow(r.Context(), s.accounts, me)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer stop()
	done := watcher.Done()
	if done == nil {
		// signed out before the stream started
		w.WriteHeader(http.StatusNoContent)
		return
	}

	serveEvents[model.Notification](w, r, s.keepAlive, done, "notification", notifications)
}

// serveEvents writes every value received on values as an event until the request ends or done is closed.
// A comment is written every keepAlive while idle.
func serveEvents[T any](w http.ResponseWriter, r *http.Request, keepAlive time.Duration, done <-chan struct{}, name string, values <-chan T) {
	events, err := newEventWriter(w)
	if err != nil {
		log.WithError(err).Debug("error opening event stream")
		return
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case v := <-values:
			err = events.send(name, v)
		case <-ticker.C:
			err = events.comment("keep-alive")
		}
		if err != nil {
			log.WithError(err).Debug("error writing event stream")
			return
		}
	}
}
