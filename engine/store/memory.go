// Package store provides engine.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skywage/salary-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	duties map[string]engine.DutyRecord
	calcs  map[monthKey]engine.MonthlyCalculation
	rests  map[monthKey][]engine.LayoverRestPeriod
	eras   []engine.RateEra
}

type monthKey struct {
	UserID string
	Year   int
	Month  int
}

var _ engine.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		duties: make(map[string]engine.DutyRecord),
		calcs:  make(map[monthKey]engine.MonthlyCalculation),
		rests:  make(map[monthKey][]engine.LayoverRestPeriod),
	}
}

// cloneDuty deep-copies slices and the pre-edit snapshot so callers
// never alias stored state.
func cloneDuty(d engine.DutyRecord) engine.DutyRecord {
	out := d
	out.FlightNumbers = append([]string(nil), d.FlightNumbers...)
	out.Sectors = append([]string(nil), d.Sectors...)
	if d.Original != nil {
		snapshot := cloneDuty(*d.Original)
		out.Original = &snapshot
	}
	return out
}

func (m *Memory) SaveDuty(_ context.Context, duty engine.DutyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duties[duty.ID] = cloneDuty(duty)
	return nil
}

func (m *Memory) SaveDuties(_ context.Context, duties []engine.DutyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, duty := range duties {
		m.duties[duty.ID] = cloneDuty(duty)
	}
	return nil
}

func (m *Memory) ReplaceDuties(_ context.Context, userID string, year, month int, duties []engine.DutyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, duty := range m.duties {
		if duty.UserID == userID && duty.Year == year && duty.Month == month {
			delete(m.duties, id)
		}
	}
	for _, duty := range duties {
		m.duties[duty.ID] = cloneDuty(duty)
	}
	return nil
}

func (m *Memory) GetDuty(_ context.Context, id string) (engine.DutyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	duty, ok := m.duties[id]
	if !ok {
		return engine.DutyRecord{}, engine.ErrNotFound
	}
	return cloneDuty(duty), nil
}

func (m *Memory) ListDuties(_ context.Context, userID string, year, month int) ([]engine.DutyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.DutyRecord
	for _, duty := range m.duties {
		if duty.UserID == userID && duty.Year == year && duty.Month == month {
			result = append(result, cloneDuty(duty))
		}
	}
	sortDuties(result)
	return result, nil
}

func (m *Memory) ListDutiesInRange(_ context.Context, userID string, from, to time.Time) ([]engine.DutyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.DutyRecord
	for _, duty := range m.duties {
		if duty.UserID != userID || duty.Date.Before(from) || duty.Date.After(to) {
			continue
		}
		result = append(result, cloneDuty(duty))
	}
	sortDuties(result)
	return result, nil
}

func (m *Memory) DeleteDuty(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.duties[id]; !ok {
		return engine.ErrNotFound
	}
	delete(m.duties, id)
	return nil
}

func sortDuties(duties []engine.DutyRecord) {
	sort.Slice(duties, func(i, j int) bool {
		if !duties[i].Date.Equal(duties[j].Date) {
			return duties[i].Date.Before(duties[j].Date)
		}
		return duties[i].ReportTime.Before(duties[j].ReportTime)
	})
}

func (m *Memory) ReplaceMonth(_ context.Context, calc engine.MonthlyCalculation, rests []engine.LayoverRestPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := monthKey{UserID: calc.UserID, Year: calc.Year, Month: calc.Month}
	m.calcs[k] = calc
	m.rests[k] = append([]engine.LayoverRestPeriod(nil), rests...)
	return nil
}

func (m *Memory) GetCalculation(_ context.Context, userID string, year, month int) (engine.MonthlyCalculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calc, ok := m.calcs[monthKey{UserID: userID, Year: year, Month: month}]
	if !ok {
		return engine.MonthlyCalculation{}, engine.ErrNotFound
	}
	return calc, nil
}

func (m *Memory) ListCalculations(_ context.Context, userID string) ([]engine.MonthlyCalculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.MonthlyCalculation
	for k, calc := range m.calcs {
		if k.UserID == userID {
			result = append(result, calc)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year > result[j].Year
		}
		return result[i].Month > result[j].Month
	})
	return result, nil
}

func (m *Memory) ListRestPeriods(_ context.Context, userID string, year, month int) ([]engine.LayoverRestPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rests := m.rests[monthKey{UserID: userID, Year: year, Month: month}]
	return append([]engine.LayoverRestPeriod(nil), rests...), nil
}

func (m *Memory) PublishRateEra(_ context.Context, era engine.RateEra) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.eras {
		if existing.Position == era.Position && existing.EffectiveFrom.Equal(era.EffectiveFrom) {
			return engine.ErrAlreadyPublished
		}
	}
	m.eras = append(m.eras, era)
	return nil
}

func (m *Memory) ListRateEras(_ context.Context) ([]engine.RateEra, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := append([]engine.RateEra(nil), m.eras...)
	sort.Slice(result, func(i, j int) bool {
		if result[i].Position != result[j].Position {
			return result[i].Position < result[j].Position
		}
		return result[i].EffectiveFrom.Before(result[j].EffectiveFrom)
	})
	return result, nil
}
