/*
layover.go - Outbound/inbound pairing and rest periods

PURPOSE:
  Matches each outbound layover leg (home base -> outstation) with its
  inbound return (outstation -> home base) and prices the rest period in
  between as per diem.

ALGORITHM (strict):
  For each outbound leg, scan inbound legs whose origin is the outbound's
  outstation and whose destination is the home base, strictly after the
  outbound's date and within the lookahead window. The earliest
  qualifying date wins. An outbound with no qualifying inbound in the
  fetched window is skipped silently - the return may simply lie outside
  the queried window. That is expected, not an error.

FALLBACK:
  A separate, looser strategy used ONLY when a record's sector text
  cannot be parsed: match the nearest later layover record by date
  proximity. Even here a pairing whose outstation resolves to the home
  base is rejected, so same-base duties never manufacture rest periods.

REST ARITHMETIC:
  restHours = Timestamp(inbound report) - Timestamp(outbound debrief),
  always via absolute instants. Naive days*24 + hour-delta arithmetic is
  wrong across month boundaries and multi-day layovers.

INPUT CONTRACT:
  Callers supply every layover-typed duty for the target month plus a
  lookahead window into the following month, with sectors encoded
  origin-first on every duty record.
*/
package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultLookaheadDays bounds how far past an outbound leg an inbound
// return is searched for.
const DefaultLookaheadDays = 5

// =============================================================================
// PAIRER
// =============================================================================

type PairerConfig struct {
	// HomeBase is the IATA code every outbound leg departs from.
	HomeBase string

	// LookaheadDays caps the outbound->inbound gap. Zero means
	// DefaultLookaheadDays.
	LookaheadDays int

	// CrossDayCeiling for marker-less cross-day inference on the
	// outbound debrief. Zero means DefaultCrossDayCeiling. Must match
	// the classifier's ceiling or rest start instants drift a day.
	CrossDayCeiling time.Duration

	Logger zerolog.Logger
}

type Pairer struct {
	rates     *RateTable
	homeBase  string
	lookahead int
	ceiling   time.Duration
	log       zerolog.Logger
}

func NewPairer(rates *RateTable, cfg PairerConfig) *Pairer {
	lookahead := cfg.LookaheadDays
	if lookahead == 0 {
		lookahead = DefaultLookaheadDays
	}
	ceiling := cfg.CrossDayCeiling
	if ceiling == 0 {
		ceiling = DefaultCrossDayCeiling
	}
	return &Pairer{
		rates:     rates,
		homeBase:  strings.ToUpper(cfg.HomeBase),
		lookahead: lookahead,
		ceiling:   ceiling,
		log:       cfg.Logger,
	}
}

// Pair derives rest periods for the target month. duties should hold the
// month's layover records plus the lookahead window into the next month;
// non-layover records are ignored. Only outbounds departing inside the
// target month produce rest periods.
func (p *Pairer) Pair(duties []DutyRecord, position Position, month, year int) ([]LayoverRestPeriod, error) {
	legs := p.layoverLegs(duties)

	var periods []LayoverRestPeriod
	for _, out := range legs {
		if !out.route.ok {
			continue // strict pass needs a parsed route; see fallback below
		}
		if out.rec.Month != month || out.rec.Year != year {
			continue
		}
		if out.route.origin != p.homeBase || out.route.dest == p.homeBase {
			continue // not an outbound leg
		}

		in := p.findInbound(legs, out)
		if in == nil {
			p.log.Info().Str("duty", out.rec.ID).Str("outstation", out.route.dest).
				Msg("layover outbound has no inbound match in window")
			continue
		}

		period, err := p.restPeriod(out, in, out.route.dest, position, month, year)
		if err != nil {
			return nil, err
		}
		if period != nil {
			periods = append(periods, *period)
		}
	}

	fallback, err := p.pairFallback(legs, position, month, year)
	if err != nil {
		return nil, err
	}
	periods = append(periods, fallback...)

	return periods, nil
}

// =============================================================================
// STRICT ROUTE MATCHING
// =============================================================================

type route struct {
	origin string
	dest   string
	ok     bool
}

type leg struct {
	rec      DutyRecord
	route    route
	consumed bool
}

func (p *Pairer) layoverLegs(duties []DutyRecord) []*leg {
	var legs []*leg
	for _, d := range duties {
		if d.DutyType != DutyLayover {
			continue
		}
		legs = append(legs, &leg{rec: d, route: parseRoute(d.Sectors)})
	}
	// Chronological scan order makes "earliest wins" a first-match rule
	// and keeps output deterministic.
	sort.SliceStable(legs, func(i, j int) bool {
		if !legs[i].rec.Date.Equal(legs[j].rec.Date) {
			return legs[i].rec.Date.Before(legs[j].rec.Date)
		}
		return legs[i].rec.ReportTime.Before(legs[j].rec.ReportTime)
	})
	return legs
}

// findInbound selects the earliest qualifying inbound for out. Ties on
// date break to the earlier report time via the pre-sorted scan order.
func (p *Pairer) findInbound(legs []*leg, out *leg) *leg {
	deadline := out.rec.Date.AddDate(0, 0, p.lookahead)
	for _, in := range legs {
		if in == out || in.consumed || !in.route.ok {
			continue
		}
		if !in.rec.Date.After(out.rec.Date) || in.rec.Date.After(deadline) {
			continue
		}
		if in.route.origin == out.route.dest && in.route.dest == p.homeBase {
			in.consumed = true
			out.consumed = true
			return in
		}
	}
	return nil
}

// parseRoute extracts origin and destination from origin-first sector
// strings. Multi-sector records use the first sector's origin and the
// last sector's destination.
func parseRoute(sectors []string) route {
	if len(sectors) == 0 {
		return route{}
	}
	firstOrigin, _, ok := parseSector(sectors[0])
	if !ok {
		return route{}
	}
	_, lastDest, ok := parseSector(sectors[len(sectors)-1])
	if !ok {
		return route{}
	}
	return route{origin: firstOrigin, dest: lastDest, ok: true}
}

var sectorSeparators = []string{"-", "–", "→", ">"}

func parseSector(s string) (origin, dest string, ok bool) {
	for _, sep := range sectorSeparators {
		parts := strings.Split(s, sep)
		if len(parts) != 2 {
			continue
		}
		origin = strings.ToUpper(strings.TrimSpace(parts[0]))
		dest = strings.ToUpper(strings.TrimSpace(parts[1]))
		if isAirportCode(origin) && isAirportCode(dest) {
			return origin, dest, true
		}
	}
	return "", "", false
}

func isAirportCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// =============================================================================
// FALLBACK MATCHING - Date proximity, only for unparseable routes
// =============================================================================

// pairFallback handles outbound candidates whose sector text defeated
// the strict parser. The invariant still enforced: a pairing whose
// outstation resolves to the home base is rejected.
func (p *Pairer) pairFallback(legs []*leg, position Position, month, year int) ([]LayoverRestPeriod, error) {
	var periods []LayoverRestPeriod
	for _, out := range legs {
		if out.consumed || out.route.ok {
			continue
		}
		if out.rec.Month != month || out.rec.Year != year {
			continue
		}

		in := p.nearestByDate(legs, out)
		if in == nil {
			p.log.Info().Str("duty", out.rec.ID).
				Msg("unparsed layover leg has no fallback match in window")
			continue
		}

		outstation := p.resolveOutstation(out, in)
		if outstation == p.homeBase {
			p.log.Info().Str("duty", out.rec.ID).
				Msg("fallback pairing rejected: outstation is home base")
			continue
		}

		in.consumed = true
		out.consumed = true
		period, err := p.restPeriod(out, in, outstation, position, month, year)
		if err != nil {
			return nil, err
		}
		if period != nil {
			periods = append(periods, *period)
		}
	}
	return periods, nil
}

func (p *Pairer) nearestByDate(legs []*leg, out *leg) *leg {
	deadline := out.rec.Date.AddDate(0, 0, p.lookahead)
	var nearest *leg
	for _, in := range legs {
		if in == out || in.consumed {
			continue
		}
		if !in.rec.Date.After(out.rec.Date) || in.rec.Date.After(deadline) {
			continue
		}
		if nearest == nil || in.rec.Date.Before(nearest.rec.Date) {
			nearest = in
		}
	}
	return nearest
}

// resolveOutstation picks the best available outstation for a fallback
// pair: the outbound's parsed destination if any, else the inbound's
// parsed origin, else unknown.
func (p *Pairer) resolveOutstation(out, in *leg) string {
	if out.route.ok {
		return out.route.dest
	}
	if in.route.ok {
		return in.route.origin
	}
	return ""
}

// =============================================================================
// REST PERIOD PRICING
// =============================================================================

// restPeriod computes rest via absolute instants and prices it at the
// per-diem rate in force on the outbound's date. Non-positive rest
// produces no period.
func (p *Pairer) restPeriod(out, in *leg, outstation string, position Position, month, year int) (*LayoverRestPeriod, error) {
	outCrossDay := DetectCrossDay(out.rec.ReportTime, out.rec.DebriefTime, out.rec.ExplicitCrossDay(), p.ceiling)
	restStart := Timestamp(out.rec.Date, out.rec.DebriefTime, outCrossDay)
	restEnd := Timestamp(in.rec.Date, in.rec.ReportTime, false)

	restMinutes := int(restEnd.Sub(restStart) / time.Minute)
	if restMinutes <= 0 {
		p.log.Info().Str("outbound", out.rec.ID).Str("inbound", in.rec.ID).
			Msg("pairing produced non-positive rest, dropped")
		return nil, nil
	}

	rates, err := p.rates.RatesAt(position, out.rec.Date)
	if err != nil {
		return nil, err
	}

	restHours := HoursFromMinutes(restMinutes)
	// Derived data gets a derived ID: recomputing the same duty snapshot
	// must yield bit-identical output.
	return &LayoverRestPeriod{
		ID:         out.rec.ID + ":" + in.rec.ID,
		UserID:     out.rec.UserID,
		OutboundID: out.rec.ID,
		InboundID:  in.rec.ID,
		Outstation: outstation,
		RestHours:  restHours,
		PerDiemPay: RoundMoney(restHours.Mul(rates.PerDiemRate)),
		Month:      month,
		Year:       year,
	}, nil
}
