package executor

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// ParseControls turns one inbound frame into controls. NS toggles in the same
// frame are merged into a single availability update placed first. Malformed
// messages are logged and skipped.
func ParseControls(lines []string, reg *domain.BookieRegistry, logger *slog.Logger) []domain.Control {
	var (
		out     []domain.Control
		patches map[domain.BookieID]domain.StatusPatch
	)
	for _, line := range lines {
		var err error
		switch {
		case strings.HasPrefix(line, "NS^"):
			if patches == nil {
				patches = make(map[domain.BookieID]domain.StatusPatch)
			}
			err = parseStatus(line, reg, patches)
		case strings.HasPrefix(line, "NR^"):
			var c domain.CooldownRelease
			if c, err = parseRelease(line); err == nil {
				out = append(out, c)
			}
		case strings.HasPrefix(line, "ND^"):
			var c domain.FeedSwitch
			if c, err = parseSwitch(line, domain.FeedVIP); err == nil {
				out = append(out, c)
			}
		case strings.HasPrefix(line, "NY^"):
			var c domain.FeedSwitch
			if c, err = parseSwitch(line, domain.FeedBetfair); err == nil {
				out = append(out, c)
			}
		case line == "":
		default:
			err = fmt.Errorf("%w: unknown message", domain.ErrMalformedControl)
		}
		if err != nil {
			logger.Error("bad control message", slog.String("message", line), slog.String("error", err.Error()))
		}
	}
	if len(patches) > 0 {
		out = append([]domain.Control{domain.AvailabilityUpdate{Patches: patches}}, out...)
	}
	return out
}

// parseStatus handles NS^{bookie}^{0|1}^{0|1|2}; period 0 is both, 1 dead
// ball, 2 running ball. An exchange toggle also applies to its lay side.
func parseStatus(line string, reg *domain.BookieRegistry, patches map[domain.BookieID]domain.StatusPatch) error {
	parts := strings.Split(line, "^")
	if len(parts) != 4 {
		return fmt.Errorf("%w: want 4 fields, got %d", domain.ErrMalformedControl, len(parts))
	}
	var on bool
	switch parts[2] {
	case "0":
	case "1":
		on = true
	default:
		return fmt.Errorf("%w: status %q", domain.ErrMalformedControl, parts[2])
	}
	var patch domain.StatusPatch
	switch parts[3] {
	case "0":
		patch = domain.StatusPatch{DeadBall: &on, RunningBall: &on}
	case "1":
		patch = domain.StatusPatch{DeadBall: &on}
	case "2":
		patch = domain.StatusPatch{RunningBall: &on}
	default:
		return fmt.Errorf("%w: bet period %q", domain.ErrMalformedControl, parts[3])
	}

	id := domain.BookieID(parts[1])
	merge(patches, id, patch)
	if reg.HasLay(id) {
		merge(patches, id.Lay(), patch)
	}
	return nil
}

func merge(patches map[domain.BookieID]domain.StatusPatch, id domain.BookieID, p domain.StatusPatch) {
	cur := patches[id]
	if p.DeadBall != nil {
		cur.DeadBall = p.DeadBall
	}
	if p.RunningBall != nil {
		cur.RunningBall = p.RunningBall
	}
	patches[id] = cur
}

// parseRelease handles NR^{timeType}^{match}^{home}^{away}^{B..}^{B..}.
func parseRelease(line string) (domain.CooldownRelease, error) {
	parts := strings.Split(line, "^")
	if len(parts) < 6 {
		return domain.CooldownRelease{}, fmt.Errorf("%w: want at least 6 fields, got %d", domain.ErrMalformedControl, len(parts))
	}
	nums := make([]int, 0, 3)
	for _, f := range []string{parts[1], parts[3], parts[4]} {
		n, err := strconv.Atoi(f)
		if err != nil {
			return domain.CooldownRelease{}, fmt.Errorf("%w: %q is not a number", domain.ErrMalformedControl, f)
		}
		nums = append(nums, n)
	}
	return domain.CooldownRelease{
		Key: domain.CooldownKey{
			TimeType:  nums[0],
			MatchID:   parts[2],
			HomeScore: nums[1],
			AwayScore: nums[2],
		},
		Fingerprints: parts[5:],
	}, nil
}

// parseSwitch handles ND^{ip}^{port} and NY^{ip}^{port}.
func parseSwitch(line string, feed domain.FeedSource) (domain.FeedSwitch, error) {
	parts := strings.Split(line, "^")
	if len(parts) != 3 || parts[1] == "" {
		return domain.FeedSwitch{}, fmt.Errorf("%w: want ip and port", domain.ErrMalformedControl)
	}
	port, err := strconv.Atoi(parts[2])
	if err != nil || port <= 0 || port > 65535 {
		return domain.FeedSwitch{}, fmt.Errorf("%w: port %q", domain.ErrMalformedControl, parts[2])
	}
	return domain.FeedSwitch{Feed: feed, Host: parts[1], Port: port}, nil
}
