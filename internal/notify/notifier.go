// Package notify delivers operator alerts (new opportunities, lost links)
// to Telegram and Discord, filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Sender is one alert channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans an alert out to every Sender.
type Notifier struct {
	senders []Sender
	allow   func(event string) bool
	logger  *slog.Logger
}

// NewNotifier builds a Notifier. events lists the event types to forward;
// an empty list forwards everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	n := &Notifier{
		senders: senders,
		allow:   func(string) bool { return true },
		logger:  logger.With(slog.String("component", "notifier")),
	}
	if len(events) > 0 {
		set := make(map[string]struct{}, len(events))
		for _, e := range events {
			set[strings.TrimSpace(e)] = struct{}{}
		}
		n.allow = func(event string) bool {
			_, ok := set[event]
			return ok
		}
	}
	return n
}

// Notify sends title and message through every sender in parallel and
// returns the joined failures. One slow or failing channel does not hold
// back the others.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.allow(event) {
		return nil
	}

	errs := make([]error, len(n.senders))
	var wg sync.WaitGroup
	for i, s := range n.senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Send(ctx, title, message); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
				n.logger.WarnContext(ctx, "alert not delivered",
					slog.String("sender", s.Name()),
					slog.String("event", event),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
