package core

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"hftbot/internal/metrics"
	"hftbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION RECONCILER - Venue truth over local optimism
// ═══════════════════════════════════════════════════════════════════════════════
//
// Two mechanisms keep local position state honest:
//   1. Push: every positions message from the private stream overwrites
//      the local tuple immediately. The venue is authoritative.
//   2. Pull: at most once per calibration interval, a background query
//      fetches the venue position and corrects any drift beyond the
//      tolerance. Errors fail open, local state is kept.
//
// ═══════════════════════════════════════════════════════════════════════════════

// OnPositionPush applies a positions push from the private stream. Only
// the record for the engine's symbol is considered; an absent or
// zero-size record means flat.
func (e *Engine) OnPositionPush(records []types.PositionRecord) {
	var rec *types.PositionRecord
	for i := range records {
		if records[i].Symbol == e.cfg.Symbol {
			rec = &records[i]
			break
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if rec == nil || rec.Size == 0 {
		if e.position != 0 {
			log.Info().
				Float64("local", e.position).
				Msg("📬 Position push: flat at venue, clearing local state")
		}
		e.position = 0
		e.entryPrice = 0
		e.entryTime = time.Time{}
		e.highestPrice = 0
		metrics.SetPosition(0)
		return
	}

	if e.position != rec.Size || e.entryPrice != rec.AvgPrice {
		log.Info().
			Float64("local", e.position).
			Float64("venue", rec.Size).
			Float64("avg_price", rec.AvgPrice).
			Msg("📬 Position push applied")
	}

	e.position = rec.Size
	e.entryPrice = rec.AvgPrice
	e.entryTime = time.UnixMilli(rec.OpenTimeMs)
	// The venue does not track our trailing watermark. Seed it from the
	// entry price when we had none, keep the higher local value otherwise.
	if e.highestPrice < rec.AvgPrice {
		e.highestPrice = rec.AvgPrice
	}
	metrics.SetPosition(rec.Size)
}

// maybeCalibrate kicks off a background calibration when the interval
// has elapsed. The timestamp is advanced before the query goes out so a
// slow or failing query cannot shorten the interval.
func (e *Engine) maybeCalibrate(now time.Time) {
	e.mu.Lock()
	if now.Sub(e.lastCalibration) <= e.cfg.CalibrationInterval {
		e.mu.Unlock()
		return
	}
	e.lastCalibration = now
	e.mu.Unlock()

	go e.calibrate()
}

// calibrate queries the venue position and overwrites the local tuple
// when the contract counts disagree beyond the tolerance. A nil venue
// position means flat. Query errors keep local state untouched.
func (e *Engine) calibrate() {
	venue, err := e.executor.GetVenuePosition(e.cfg.Symbol)
	if err != nil {
		metrics.IncCalibration("failed")
		log.Warn().Err(err).Msg("⚠️ Calibration query failed, keeping local state")
		return
	}

	var size, avg float64
	var opened time.Time
	if venue != nil {
		size = venue.Size
		avg = venue.AvgPrice
		opened = venue.OpenTime()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if math.Abs(e.position-size) <= positionTolerance {
		metrics.IncCalibration("clean")
		return
	}

	log.Warn().
		Float64("local", e.position).
		Float64("venue", size).
		Msg("⚖️ Position drift detected, correcting from venue")

	if size != 0 {
		e.position = size
		e.entryPrice = avg
		e.entryTime = opened
		e.highestPrice = avg
	} else {
		e.position = 0
		e.entryPrice = 0
		e.entryTime = time.Time{}
		e.highestPrice = 0
	}

	metrics.IncCalibration("corrected")
	metrics.SetPosition(size)
}
