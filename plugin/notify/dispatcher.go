// Package notify delivers hand-off notifications (callbacks, escalations, hot leads)
// to the humans behind Liv.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoChannels is returned when no notification channel is registered.
var ErrNoChannels = errors.New("no notification channel registered")

// Sender delivers a JSON-serializable payload.
type Sender interface {
	Notify(ctx context.Context, payload any) error
	Name() string
}

// Dispatcher fans a notification out to every registered sender.
type Dispatcher struct {
	mu      sync.RWMutex
	senders []Sender
	logger  *slog.Logger
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		logger: slog.Default(),
	}
}

// Register adds a sender.
func (d *Dispatcher) Register(sender Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders = append(d.senders, sender)
	d.logger.Info("registered notification channel", "sender", sender.Name())
}

// Len returns the number of registered senders.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.senders)
}

// Notify sends payload through every sender. It succeeds when at least one
// sender delivered it.
func (d *Dispatcher) Notify(ctx context.Context, payload any) error {
	d.mu.RLock()
	senders := append([]Sender(nil), d.senders...)
	d.mu.RUnlock()

	if len(senders) == 0 {
		return ErrNoChannels
	}

	var errs []error
	for _, s := range senders {
		if err := s.Notify(ctx, payload); err != nil {
			d.logger.Warn("notification channel failed", "sender", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) == len(senders) {
		return errors.Join(errs...)
	}
	return nil
}
