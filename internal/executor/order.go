package executor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// Heartbeat keeps the execution link alive when nothing was sent.
const Heartbeat = "NH^OK"

// LoginMessage is the execution system handshake.
func LoginMessage(apiVersion, username, password, appVersion string) string {
	return strings.Join([]string{"NL", apiVersion, username, password, appVersion}, "^")
}

// formatFloat renders the shortest form of f and keeps one decimal place on
// whole numbers, so 2 goes out as "2.0".
func formatFloat(f float64) string {
	return withPoint(strconv.FormatFloat(f, 'f', -1, 64))
}

func withPoint(s string) string {
	if strings.ContainsAny(s, ".eEnN") {
		return s
	}
	return s + ".0"
}

// EncodeOrder renders one opportunity as a bet order:
//
//	NB^{strategy}^{timeType}^{match}^{home}^{away}^{profit%}^{occurredAt}^O{bookie}|{betData}|{betType}|{dish}|{price}|{stake}|{lay}...
func EncodeOrder(o domain.Opportunity, now time.Time) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "NB^%d^%d^%s^%d^%d^%s^%s",
		o.StrategyID,
		TimeType(o.Match, now),
		o.Match.MatchID,
		o.Match.HomeScore,
		o.Match.AwayScore,
		withPoint(decimal.NewFromFloat(o.Profit).Mul(decimal.NewFromInt(100)).String()),
		o.OccurredAtHK(),
	)
	for _, s := range o.Selections {
		code, err := BetTypeCode(s)
		if err != nil {
			return "", fmt.Errorf("executor: encode order %s: %w", o.Match.MatchID, err)
		}
		lay := 0
		if s.Lay {
			lay = 1
		}
		fmt.Fprintf(&b, "^O%s|%s|%d|%s|%s|%s|%d",
			s.Bookie, BetData(s.Receipt), code, Dish(s), formatFloat(s.Price), formatFloat(s.Stake), lay)
	}
	return b.String(), nil
}
