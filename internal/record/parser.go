// Package record turns raw feed lines into typed records.
package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// MaxOdds is the sanity cap above which a price is treated as absent.
const MaxOdds = 50.0

// ErrNotRecord marks lines that are not records, e.g. validation tokens such
// as "p1234567". Callers skip them silently.
var ErrNotRecord = errors.New("not a record")

const (
	matchInfoFields  = 22
	initOddsFields   = 9
	vipUpdateFields  = 10
	betfairOddsField = 11
)

var marketCodes = map[string]domain.Market{
	"0": domain.Market1x2,
	"4": domain.MarketOU,
	"5": domain.MarketAH,
	"6": domain.Market1or2,
	"9": domain.MarketEH,
}

var halfCodes = map[string]domain.Half{
	"0": domain.HalfFT,
	"1": domain.HalfHT,
}

// Parser converts lines of one feed into records.
type Parser struct {
	now func() time.Time
}

// NewParser returns a parser stamping records with the wall clock.
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// ParseVIP parses a VIP feed line. The leading character selects the variant:
// M match info, O initial odds, o incremental odds.
func (p *Parser) ParseVIP(line string) (domain.Record, error) {
	if line == "" {
		return nil, ErrNotRecord
	}
	switch line[0] {
	case 'M':
		return p.parseMatchInfo(line)
	case 'O':
		return p.parseInitOdds(line)
	case 'o':
		return p.parseVIPUpdate(line)
	default:
		return nil, ErrNotRecord
	}
}

// ParseBetfair parses a Betfair/YY feed line:
//
//	o{update_id}|{lay_flag}|{et}|{ot}|{dish}|{match_id}|{bookie_id}|{bet_data}|{o1}|{o2}|{o3}
func (p *Parser) ParseBetfair(line string) (domain.Record, error) {
	if line == "" || line[0] != 'o' {
		return nil, ErrNotRecord
	}
	f, err := fields(line, betfairOddsField, true)
	if err != nil {
		return nil, err
	}
	updateID, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: update_id %q", domain.ErrMalformedRecord, f[0])
	}
	q, err := buildQuote(f[2], f[3], f[6], f[7], f[8], f[9], f[10], f[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, line)
	}
	q.Line = domain.NoLine
	if q.Market.HasLine() {
		if f[4] == "" {
			return nil, fmt.Errorf("%w: missing dish: %s", domain.ErrMalformedRecord, line)
		}
		dish, err := strconv.ParseFloat(f[4], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: dish %q", domain.ErrMalformedRecord, f[4])
		}
		q.Line = dish / 4
	}
	return domain.UpdateOddsRecord{
		RecordHeader: p.header(f[5], line),
		Source:       domain.FeedBetfair,
		UpdateID:     updateID,
		Quote:        q,
	}, nil
}

func (p *Parser) header(matchID, raw string) domain.RecordHeader {
	return domain.RecordHeader{MatchID: matchID, Raw: raw, ReceivedAt: p.now()}
}

func (p *Parser) parseMatchInfo(line string) (domain.Record, error) {
	f, err := fields(line, matchInfoFields, false)
	if err != nil {
		return nil, err
	}
	home, err := strconv.Atoi(f[16])
	if err != nil {
		return nil, fmt.Errorf("%w: home score %q", domain.ErrMalformedRecord, f[16])
	}
	away, err := strconv.Atoi(f[17])
	if err != nil {
		return nil, fmt.Errorf("%w: away score %q", domain.ErrMalformedRecord, f[17])
	}
	var running bool
	switch f[15] {
	case "0":
	case "1":
		running = true
	default:
		return nil, fmt.Errorf("%w: is_in_running %q", domain.ErrUnknownValue, f[15])
	}
	if !running {
		home, away = domain.NoScore, domain.NoScore
	}

	info := domain.MatchInfo{
		MatchID:          f[0],
		LeagueID:         f[1],
		LeagueName:       f[2],
		LeagueNameSimp:   f[3],
		LeagueNameTrad:   f[4],
		HomeTeamID:       f[5],
		HomeTeamName:     f[6],
		HomeTeamNameSimp: f[7],
		HomeTeamNameTrad: f[8],
		AwayTeamID:       f[9],
		AwayTeamName:     f[10],
		AwayTeamNameSimp: f[11],
		AwayTeamNameTrad: f[12],
		MatchHKTime:      f[13],
		GroupColor:       f[14],
		InRunning:        running,
		HomeScore:        home,
		AwayScore:        away,
		RunningTime:      f[18],
		WillRun:          f[19],
		HomeRedCards:     f[20],
		AwayRedCards:     f[21],
	}
	return domain.MatchInfoRecord{RecordHeader: p.header(info.MatchID, line), Info: info}, nil
}

func (p *Parser) parseInitOdds(line string) (domain.Record, error) {
	f, err := fields(line, initOddsFields, true)
	if err != nil {
		return nil, err
	}
	q, err := vipQuote(f, line)
	if err != nil {
		return nil, err
	}
	return domain.InitOddsRecord{RecordHeader: p.header(f[2], line), Quote: q}, nil
}

func (p *Parser) parseVIPUpdate(line string) (domain.Record, error) {
	f, err := fields(line, vipUpdateFields, true)
	if err != nil {
		return nil, err
	}
	updateID, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: update_id %q", domain.ErrMalformedRecord, f[0])
	}
	q, err := vipQuote(f[1:], line)
	if err != nil {
		return nil, err
	}
	return domain.UpdateOddsRecord{
		RecordHeader: p.header(f[3], line),
		Source:       domain.FeedVIP,
		UpdateID:     updateID,
		Quote:        q,
	}, nil
}

// vipQuote reads et|ot|match_id|bookie_id|bet_data|o1|o2|o3|lay_flag. VIP
// AH/OU lines travel in o3 as quarter steps; VIP EH carries no line at all.
func vipQuote(f []string, line string) (domain.OddsQuote, error) {
	q, err := buildQuote(f[0], f[1], f[3], f[4], f[5], f[6], f[7], f[8])
	if err != nil {
		return q, fmt.Errorf("%w: %s", err, line)
	}
	q.Line = domain.NoLine
	switch q.Market {
	case domain.MarketAH, domain.MarketOU:
		q.Line = parsePrice(f[7]) / 4
	case domain.MarketEH:
		return q, fmt.Errorf("%w: EH without line on VIP feed: %s", domain.ErrUnknownValue, line)
	}
	return q, nil
}

// buildQuote validates the code tables and applies the price cap.
func buildQuote(et, ot, bookie, betData, o1, o2, o3, lay string) (domain.OddsQuote, error) {
	market, ok := marketCodes[ot]
	if !ok {
		return domain.OddsQuote{}, fmt.Errorf("%w: odds type %q", domain.ErrUnknownValue, ot)
	}
	half, ok := halfCodes[et]
	if !ok {
		return domain.OddsQuote{}, fmt.Errorf("%w: event type %q", domain.ErrUnknownValue, et)
	}
	layFlag := false
	if lay != "" {
		n, err := strconv.Atoi(lay)
		if err != nil {
			return domain.OddsQuote{}, fmt.Errorf("%w: lay_flag %q", domain.ErrMalformedRecord, lay)
		}
		layFlag = n != 0
	}

	prices := []float64{capPrice(parsePrice(o1)), capPrice(parsePrice(o2)), parsePrice(o3)}
	return domain.OddsQuote{
		Half:    half,
		Market:  market,
		Bookie:  domain.BookieID(bookie),
		BetData: betData,
		Prices:  prices[:market.Outcomes()],
		Lay:     layFlag,
	}, nil
}

// fields strips the type character and splits on '|'. When oneShortOK, a
// record missing its last field is padded with an empty value.
func fields(line string, want int, oneShortOK bool) ([]string, error) {
	f := strings.Split(line[1:], "|")
	if oneShortOK && len(f) == want-1 {
		f = append(f, "")
	}
	if len(f) != want {
		return nil, fmt.Errorf("%w: want %d fields, got %d: %s", domain.ErrMalformedRecord, want, len(f), line)
	}
	return f, nil
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func capPrice(v float64) float64 {
	if v > MaxOdds {
		return 0
	}
	return v
}
