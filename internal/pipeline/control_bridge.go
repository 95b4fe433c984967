package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
	"github.com/alanyoungcy/arbdiscovery/internal/executor"
)

// ControlBridge subscribes to the controls bus channel and feeds operator
// control messages into the discovery loop. Payloads use the execution
// link's text form, one message per line, e.g. "NS^15^1^0".
type ControlBridge struct {
	bus      domain.SignalBus
	registry *domain.BookieRegistry
	out      chan<- domain.Control
	logger   *slog.Logger
}

// NewControlBridge creates a ControlBridge.
func NewControlBridge(bus domain.SignalBus, registry *domain.BookieRegistry, out chan<- domain.Control, logger *slog.Logger) *ControlBridge {
	return &ControlBridge{
		bus:      bus,
		registry: registry,
		out:      out,
		logger:   logger.With(slog.String("component", "control_bridge")),
	}
}

// Run subscribes to ChannelControls and forwards every parsed control.
func (b *ControlBridge) Run(ctx context.Context) error {
	ch, err := b.bus.Subscribe(ctx, ChannelControls)
	if err != nil {
		return err
	}
	b.logger.Info("control bridge started")
	defer b.logger.Info("control bridge stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			for _, c := range executor.ParseControls(lines, b.registry, b.logger) {
				select {
				case b.out <- c:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
