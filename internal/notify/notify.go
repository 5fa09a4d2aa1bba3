// Package notify defines the alert delivery capability and a fan-out over
// several channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// Notifier delivers a titled alert. An unconfigured notifier must not be
// asked to send.
type Notifier interface {
	Configured() bool
	Send(ctx context.Context, title, message string) error
}

// DataNotifier also accepts structured data alongside the text.
type DataNotifier interface {
	Notifier
	SendWithData(ctx context.Context, title, message string, data map[string]any) error
}

// Named is implemented by channels that want a readable name in errors.
type Named interface {
	Name() string
}

// Multi sends every alert to each configured channel.
type Multi struct {
	channels []Notifier
}

func NewMulti(channels ...Notifier) *Multi {
	return &Multi{channels: lo.Filter(channels, func(n Notifier, _ int) bool { return n != nil })}
}

// Configured is true when at least one channel is.
func (m *Multi) Configured() bool {
	return len(m.active()) > 0
}

func (m *Multi) Send(ctx context.Context, title, message string) error {
	return m.SendWithData(ctx, title, message, nil)
}

// SendWithData delivers to all configured channels. A failing channel does
// not stop the others; their errors are joined.
func (m *Multi) SendWithData(ctx context.Context, title, message string, data map[string]any) error {
	var errs []error
	for i, ch := range m.active() {
		var err error
		if dn, ok := ch.(DataNotifier); ok && len(data) > 0 {
			err = dn.SendWithData(ctx, title, message, data)
		} else {
			err = ch.Send(ctx, title, message)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", channelName(ch, i), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) active() []Notifier {
	return lo.Filter(m.channels, func(n Notifier, _ int) bool { return n.Configured() })
}

func channelName(n Notifier, i int) string {
	if named, ok := n.(Named); ok {
		return named.Name()
	}
	return fmt.Sprintf("channel %d", i)
}
