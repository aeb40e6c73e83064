package slots

import (
	"context"
	"fmt"
	"time"

	"stationbook/internal/model"
)

// SlotInfo is a single cell of the day grid.
type SlotInfo struct {
	Start     string `json:"start"` // "10:00"
	End       string `json:"end"`   // "10:30"
	Available bool   `json:"available"`
}

// ScheduleInfo contains opening hours for a station day.
type ScheduleInfo struct {
	OpenTime     string // "08:00"
	CloseTime    string // "24:00"
	SlotDuration int    // minutes
}

// OccupancySource lists taken windows for a station day.
type OccupancySource interface {
	ListOccupiedSlots(ctx context.Context, date, stationID string) ([]model.TimeRange, error)
}

// Generator builds the availability grid shown to customers.
type Generator struct {
	occupancy OccupancySource
	now       func() time.Time
}

// NewGenerator creates a new slot generator.
func NewGenerator(occupancy OccupancySource) *Generator {
	return &Generator{occupancy: occupancy, now: time.Now}
}

// GenerateSlots splits opening hours into fixed cells and marks every cell
// that intersects an occupied window, or has already started today, as unavailable.
func (g *Generator) GenerateSlots(ctx context.Context, stationID, date string, schedule ScheduleInfo) ([]SlotInfo, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	if schedule.SlotDuration <= 0 {
		schedule.SlotDuration = 30
	}

	open, err := ParseClock(schedule.OpenTime)
	if err != nil {
		return nil, fmt.Errorf("parse open time: %w", err)
	}
	closeAt, err := ParseClock(schedule.CloseTime)
	if err != nil {
		return nil, fmt.Errorf("parse close time: %w", err)
	}

	var occupied [][2]int
	if g.occupancy != nil {
		ranges, err := g.occupancy.ListOccupiedSlots(ctx, date, stationID)
		if err != nil {
			return nil, fmt.Errorf("list occupied: %w", err)
		}
		for _, r := range ranges {
			s, errS := ParseClock(r.Start)
			e, errE := ParseClock(r.End)
			if errS != nil || errE != nil {
				continue
			}
			occupied = append(occupied, [2]int{s, e})
		}
	}

	pastBefore := -1
	now := g.now()
	if day.Format(DateLayout) == now.Format(DateLayout) {
		pastBefore = now.Hour()*60 + now.Minute()
	} else if day.Before(now) {
		pastBefore = MinutesPerDay
	}

	var result []SlotInfo
	for cursor := open; cursor+schedule.SlotDuration <= closeAt; cursor += schedule.SlotDuration {
		end := cursor + schedule.SlotDuration

		booked := false
		for _, o := range occupied {
			if Overlaps(cursor, end, o[0], o[1]) {
				booked = true
				break
			}
		}

		result = append(result, SlotInfo{
			Start:     FormatClock(cursor),
			End:       FormatClock(end),
			Available: !booked && cursor >= pastBefore,
		})
	}

	return result, nil
}

// DurationOptions returns the booking lengths (in minutes) that fit without a
// gap or a taken cell, starting from the given start.
func DurationOptions(grid []SlotInfo, start string, slotDuration int) []int {
	startIdx := -1
	for i, s := range grid {
		if s.Start == start && s.Available {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil
	}

	var options []int
	for i := startIdx; i < len(grid); i++ {
		if !grid[i].Available {
			break
		}
		if i > startIdx && grid[i].Start != grid[i-1].End {
			break
		}
		options = append(options, (i-startIdx+1)*slotDuration)
	}
	return options
}

// FormatDuration renders minutes as "1h 30m".
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}
