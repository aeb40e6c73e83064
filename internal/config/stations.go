package config

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"stationbook/internal/model"
	"stationbook/internal/slots"
)

// StationConfig represents a single station entry of stations.yaml.
type StationConfig struct {
	ID           string          `yaml:"id"`
	Name         string          `yaml:"name"`
	PricePerHour int64           `yaml:"price_per_hour"`
	Status       string          `yaml:"status"`
	Capacity     int             `yaml:"capacity"`
	Schedule     *ScheduleConfig `yaml:"schedule,omitempty"`
}

// ScheduleConfig holds opening hours.
type ScheduleConfig struct {
	OpenTime            string `yaml:"open_time"`             // "10:00"
	CloseTime           string `yaml:"close_time"`            // "24:00"
	SlotDurationMinutes int    `yaml:"slot_duration_minutes"` // 30
}

// HolidayConfig marks a date when the venue is closed.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-01-01"
	Name string `yaml:"name"`
}

// StationsConfig is the root of stations.yaml.
type StationsConfig struct {
	Stations []StationConfig `yaml:"stations"`
	Defaults struct {
		Schedule *ScheduleConfig `yaml:"schedule"`
	} `yaml:"defaults"`
	Holidays []HolidayConfig `yaml:"holidays"`
}

// LoadStationsConfig loads and validates stations configuration from YAML file.
func LoadStationsConfig(path string) (*StationsConfig, error) {
	if path == "" {
		path = "configs/stations.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stations config: %w", err)
	}

	var cfg StationsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse stations config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate stations config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *StationsConfig) Validate() error {
	if len(c.Stations) == 0 {
		return fmt.Errorf("no stations defined")
	}

	ids := make(map[string]bool)
	for i, st := range c.Stations {
		if st.ID == "" {
			return fmt.Errorf("station[%d]: id is required", i)
		}
		if ids[st.ID] {
			return fmt.Errorf("station[%d]: duplicate id '%s'", i, st.ID)
		}
		ids[st.ID] = true

		if st.Name == "" {
			return fmt.Errorf("station[%d]: name is required", i)
		}
		if st.PricePerHour < 0 {
			return fmt.Errorf("station[%d]: price_per_hour cannot be negative", i)
		}
		if st.Status != "" && !model.StationStatus(st.Status).IsValid() {
			return fmt.Errorf("station[%d]: unknown status '%s'", i, st.Status)
		}
		if st.Capacity < 0 {
			return fmt.Errorf("station[%d]: capacity cannot be negative", i)
		}
		if st.Schedule != nil {
			if err := validateSchedule(st.Schedule, fmt.Sprintf("station[%d].schedule", i)); err != nil {
				return err
			}
		}
	}

	if c.Defaults.Schedule != nil {
		if err := validateSchedule(c.Defaults.Schedule, "defaults.schedule"); err != nil {
			return err
		}
	}

	for i, h := range c.Holidays {
		if _, err := slots.ParseDate(h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: %w", i, err)
		}
	}

	return nil
}

func validateSchedule(s *ScheduleConfig, prefix string) error {
	open, err := slots.ParseClock(s.OpenTime)
	if err != nil {
		return fmt.Errorf("%s.open_time: %w", prefix, err)
	}
	closeAt, err := slots.ParseClock(s.CloseTime)
	if err != nil {
		return fmt.Errorf("%s.close_time: %w", prefix, err)
	}
	if closeAt <= open {
		return fmt.Errorf("%s: close_time must be after open_time", prefix)
	}
	if s.SlotDurationMinutes < 0 {
		return fmt.Errorf("%s.slot_duration_minutes cannot be negative", prefix)
	}
	return nil
}

func (c *StationsConfig) applyDefaults() {
	if c.Defaults.Schedule == nil {
		c.Defaults.Schedule = &ScheduleConfig{OpenTime: "10:00", CloseTime: "24:00", SlotDurationMinutes: 30}
	}
	for i := range c.Stations {
		if c.Stations[i].Schedule == nil {
			c.Stations[i].Schedule = c.Defaults.Schedule
		}
		if c.Stations[i].Status == "" {
			c.Stations[i].Status = string(model.StationAvailable)
		}
		if c.Stations[i].Capacity == 0 {
			c.Stations[i].Capacity = 1
		}
	}
}

// Model converts the entry to the domain station.
func (s StationConfig) Model() model.Station {
	return model.Station{
		ID:           s.ID,
		Name:         s.Name,
		PricePerHour: s.PricePerHour,
		Status:       model.StationStatus(s.Status),
		Capacity:     s.Capacity,
	}
}

// Directory is the live station lookup. It is safe for concurrent use and
// can be swapped wholesale when stations.yaml changes.
type Directory struct {
	mu       sync.RWMutex
	byID     map[string]StationConfig
	order    []string
	holidays map[string]string
}

// NewDirectory builds a directory from a loaded config.
func NewDirectory(cfg *StationsConfig) *Directory {
	d := &Directory{}
	d.Replace(cfg)
	return d
}

// Replace swaps in a new configuration.
func (d *Directory) Replace(cfg *StationsConfig) {
	byID := make(map[string]StationConfig, len(cfg.Stations))
	order := make([]string, 0, len(cfg.Stations))
	for _, st := range cfg.Stations {
		byID[st.ID] = st
		order = append(order, st.ID)
	}
	sort.Strings(order)

	holidays := make(map[string]string, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		holidays[h.Date] = h.Name
	}

	d.mu.Lock()
	d.byID, d.order, d.holidays = byID, order, holidays
	d.mu.Unlock()
}

func (d *Directory) Station(id string) (model.Station, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.byID[id]
	if !ok {
		return model.Station{}, false
	}
	return st.Model(), true
}

func (d *Directory) Stations() []model.Station {
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := make([]model.Station, 0, len(d.order))
	for _, id := range d.order {
		result = append(result, d.byID[id].Model())
	}
	return result
}

// Schedule returns the opening hours of a station on a date. ok is false
// for unknown stations and holidays.
func (d *Directory) Schedule(stationID, date string) (info slots.ScheduleInfo, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st, found := d.byID[stationID]
	if !found || st.Schedule == nil {
		return slots.ScheduleInfo{}, false
	}
	if _, closed := d.holidays[date]; closed {
		return slots.ScheduleInfo{}, false
	}
	return slots.ScheduleInfo{
		OpenTime:     st.Schedule.OpenTime,
		CloseTime:    st.Schedule.CloseTime,
		SlotDuration: st.Schedule.SlotDurationMinutes,
	}, true
}

// String returns a summary of the configuration.
func (c *StationsConfig) String() string {
	available := 0
	for _, st := range c.Stations {
		if st.Status == string(model.StationAvailable) {
			available++
		}
	}
	return fmt.Sprintf("StationsConfig: %d stations (%d available), %d holidays",
		len(c.Stations), available, len(c.Holidays))
}
