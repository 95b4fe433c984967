package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

type betTypeKey struct {
	half   domain.Half
	market domain.Market
	side   domain.Side
}

// betTypes are the execution system's bet type codes. Win/lose markets and
// half-time European handicaps have none.
var betTypes = map[betTypeKey]int{
	{domain.HalfFT, domain.MarketOU, domain.SideOver}:  0,
	{domain.HalfFT, domain.MarketOU, domain.SideUnder}: 1,
	{domain.HalfHT, domain.MarketOU, domain.SideOver}:  2,
	{domain.HalfHT, domain.MarketOU, domain.SideUnder}: 3,
	{domain.HalfFT, domain.MarketAH, domain.SideHome}:  4,
	{domain.HalfFT, domain.MarketAH, domain.SideAway}:  5,
	{domain.HalfHT, domain.MarketAH, domain.SideHome}:  6,
	{domain.HalfHT, domain.MarketAH, domain.SideAway}:  7,
	{domain.HalfFT, domain.Market1x2, domain.SideHome}: 8,
	{domain.HalfFT, domain.Market1x2, domain.SideAway}: 9,
	{domain.HalfFT, domain.Market1x2, domain.SideDraw}: 10,
	{domain.HalfHT, domain.Market1x2, domain.SideHome}: 11,
	{domain.HalfHT, domain.Market1x2, domain.SideAway}: 12,
	{domain.HalfHT, domain.Market1x2, domain.SideDraw}: 13,
	{domain.HalfFT, domain.MarketEH, domain.SideHome}:  14,
	{domain.HalfFT, domain.MarketEH, domain.SideAway}:  15,
	{domain.HalfFT, domain.MarketEH, domain.SideDraw}:  16,
}

// BetTypeCode returns the execution code for a selection.
func BetTypeCode(s domain.Selection) (int, error) {
	code, ok := betTypes[betTypeKey{s.Half, s.Market, s.Side}]
	if !ok {
		return 0, fmt.Errorf("%w: %s %s", domain.ErrUnsupportedBetType, s.Half, s.Label())
	}
	return code, nil
}

// Dish is the line in quarter goals, empty for the 1x2 market.
func Dish(s domain.Selection) string {
	if !s.Market.HasLine() {
		return ""
	}
	return strconv.Itoa(int(s.Line * 4))
}

// Fingerprint identifies one bookmaker position, e.g. "B2|5|2".
func Fingerprint(s domain.Selection) (string, error) {
	code, err := BetTypeCode(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("B%s|%d|%s", s.Bookie, code, Dish(s)), nil
}

var betDataCleaner = strings.NewReplacer("A", "", "B", "")

// BetData strips the side markers the execution system does not expect.
func BetData(receipt string) string { return betDataCleaner.Replace(receipt) }
