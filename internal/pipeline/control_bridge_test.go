package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

func TestControlBridgeForwardsParsedControls(t *testing.T) {
	bus := newFakeBus()
	out := make(chan domain.Control, 4)
	b := NewControlBridge(bus, domain.DefaultBookieRegistry(), out, discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	bus.sub <- []byte("NS^15^1^1\nND^10.0.0.9^7000\nbogus\n")

	var got []domain.Control
	require.Eventually(t, func() bool {
		select {
		case c := <-out:
			got = append(got, c)
		default:
		}
		return len(got) == 2
	}, time.Second, time.Millisecond)

	upd, ok := got[0].(domain.AvailabilityUpdate)
	require.True(t, ok)
	require.NotNil(t, upd.Patches["15"].DeadBall)
	assert.True(t, *upd.Patches["15"].DeadBall)
	assert.Equal(t, domain.FeedSwitch{Feed: domain.FeedVIP, Host: "10.0.0.9", Port: 7000}, got[1])

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
