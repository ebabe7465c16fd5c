package service

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"dailypost/internal/core/domain"
	"dailypost/internal/logging"
)

// SchedulerState reports whether the scheduler holds a slot set for the current day.
type SchedulerState string

const (
	StateIdle  SchedulerState = "idle"
	StateArmed SchedulerState = "armed"
)

type SchedulerOptions struct {
	Count       int
	WindowStart int
	WindowEnd   int
	// MissedSlotGrace lets a slot still fire when the poll that would have matched its
	// minute was delayed, e.g. by a long-running job. Zero means exact-minute matching.
	MissedSlotGrace time.Duration
	Location        *time.Location
	Rand            *rand.Rand
}

// DailyScheduler draws a fresh random set of slots each local calendar day and fires
// each slot at most once.
type DailyScheduler struct {
	count       int
	windowStart int
	windowEnd   int
	grace       time.Duration
	loc         *time.Location
	rng         *rand.Rand
	logger      *logging.Logger

	date  string
	slots []domain.ScheduleSlot
	fired map[domain.ScheduleSlot]bool
}

func NewDailyScheduler(opts SchedulerOptions, logger *logging.Logger) (*DailyScheduler, error) {
	if opts.WindowStart < 0 || opts.WindowEnd > 24 || opts.WindowStart >= opts.WindowEnd {
		return nil, fmt.Errorf("invalid window [%d,%d)", opts.WindowStart, opts.WindowEnd)
	}
	if max := (opts.WindowEnd - opts.WindowStart) * 60; opts.Count < 1 || opts.Count > max {
		return nil, fmt.Errorf("slot count must be in 1..%d, got %d", max, opts.Count)
	}
	if opts.MissedSlotGrace < 0 {
		opts.MissedSlotGrace = 0
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Rand == nil {
		opts.Rand = newRand()
	}
	return &DailyScheduler{
		count:       opts.Count,
		windowStart: opts.WindowStart,
		windowEnd:   opts.WindowEnd,
		grace:       opts.MissedSlotGrace,
		loc:         opts.Location,
		rng:         opts.Rand,
		logger:      logger,
		fired:       make(map[domain.ScheduleSlot]bool),
	}, nil
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
}

// State is StateArmed once slots exist for the local date of now.
func (s *DailyScheduler) State(now time.Time) SchedulerState {
	if s.date != "" && s.date == dateKey(now.In(s.loc)) {
		return StateArmed
	}
	return StateIdle
}

// EnsureTodaySlots returns today's slots, drawing a new set and clearing fired markers
// when the local date has changed since the last draw.
func (s *DailyScheduler) EnsureTodaySlots(now time.Time) []domain.ScheduleSlot {
	local := now.In(s.loc)
	today := dateKey(local)
	if today != s.date {
		s.slots = s.draw()
		s.fired = make(map[domain.ScheduleSlot]bool, len(s.slots))
		s.date = today
		s.logger.Logf(logging.KindSched, "schedule for %s: %s", today, formatSlots(s.slots))
	}
	return append([]domain.ScheduleSlot(nil), s.slots...)
}

func (s *DailyScheduler) draw() []domain.ScheduleSlot {
	seen := make(map[domain.ScheduleSlot]bool, s.count)
	slots := make([]domain.ScheduleSlot, 0, s.count)
	span := s.windowEnd - s.windowStart
	for len(slots) < s.count {
		slot := domain.ScheduleSlot{
			Hour:   s.windowStart + s.rng.IntN(span),
			Minute: s.rng.IntN(60),
		}
		if seen[slot] {
			continue
		}
		seen[slot] = true
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots
}

// PollAndFire invokes onFire for every unfired slot due at now and returns how many fired.
// A slot is marked fired before onFire runs so repeated polls within its minute never
// fire it twice.
func (s *DailyScheduler) PollAndFire(now time.Time, onFire func(domain.ScheduleSlot)) int {
	s.EnsureTodaySlots(now)
	local := now.In(s.loc)
	current := local.Hour()*60 + local.Minute()
	graceMinutes := int(s.grace / time.Minute)

	fired := 0
	for _, slot := range s.slots {
		if s.fired[slot] {
			continue
		}
		late := current - slot.MinuteOfDay()
		if late < 0 || late > graceMinutes {
			continue
		}
		s.fired[slot] = true
		if late > 0 {
			s.logger.Logf(logging.KindSched, "slot %s fired %d min late", slot, late)
		} else {
			s.logger.Logf(logging.KindSched, "slot %s due", slot)
		}
		onFire(slot)
		fired++
	}
	return fired
}

// NextFire returns the earliest unfired slot of today that is still ahead of now.
func (s *DailyScheduler) NextFire(now time.Time) (domain.ScheduleSlot, time.Time, bool) {
	local := now.In(s.loc)
	current := local.Hour()*60 + local.Minute()
	for _, slot := range s.slots {
		if s.fired[slot] || slot.MinuteOfDay() <= current {
			continue
		}
		return slot, slot.Next(local), true
	}
	return domain.ScheduleSlot{}, time.Time{}, false
}

// Fired reports whether slot has fired today.
func (s *DailyScheduler) Fired(slot domain.ScheduleSlot) bool {
	return s.fired[slot]
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func formatSlots(slots []domain.ScheduleSlot) string {
	parts := make([]string, len(slots))
	for i, slot := range slots {
		parts[i] = slot.String()
	}
	return strings.Join(parts, ", ")
}
