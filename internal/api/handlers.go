package api

import (
	"net/http"

	"stationbook/internal/booking"
	"stationbook/internal/model"
	"stationbook/internal/slots"
)

// OccupiedResponse is returned by GET /api/stations/{id}/occupied.
type OccupiedResponse struct {
	StationID string            `json:"station_id"`
	Date      string            `json:"date"`
	Occupied  []model.TimeRange `json:"occupied"`
}

// SlotsResponse is returned by GET /api/stations/{id}/slots.
type SlotsResponse struct {
	StationID    string           `json:"station_id"`
	Date         string           `json:"date"`
	Closed       bool             `json:"closed"`
	SlotDuration int              `json:"slot_duration"`
	Slots        []slots.SlotInfo `json:"slots"`
	// DurationOptions is filled when ?start= names a free cell.
	DurationOptions []DurationOption `json:"duration_options,omitempty"`
}

// DurationOption is one bookable length from the requested start.
type DurationOption struct {
	Minutes int     `json:"minutes"`
	Hours   float64 `json:"hours"`
	Label   string  `json:"label"`
}

// ReservationView is a reservation plus derived totals.
type ReservationView struct {
	*model.Reservation
	SecondaryTotal int64 `json:"secondary_total"`
}

func newReservationView(r *model.Reservation) ReservationView {
	return ReservationView{Reservation: r, SecondaryTotal: r.SecondaryTotal()}
}

// ExtendRequest is the body of POST /api/reservations/{id}/extend.
type ExtendRequest struct {
	AdditionalHours float64 `json:"additional_hours"`
}

// OrdersRequest is the body of POST /api/reservations/{id}/orders.
type OrdersRequest struct {
	Items []model.LineItem `json:"items"`
}

// GamesRequest is the body of PUT /api/reservations/{id}/games.
type GamesRequest struct {
	GameIDs []string `json:"game_ids"`
}

// AckResponse acknowledges operations that return no reservation.
type AckResponse struct {
	OK bool `json:"ok"`
}

func (s *HTTPServer) handleListStations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"stations": s.stations.Stations()})
}

// stationDay validates the {id} path value and ?date= query shared by the
// station endpoints.
func (s *HTTPServer) stationDay(w http.ResponseWriter, r *http.Request) (stationID, date string, ok bool) {
	stationID = r.PathValue("id")
	if _, found := s.stations.Station(stationID); !found {
		writeError(w, http.StatusNotFound, string(booking.KindStationNotFound), "station not found")
		return "", "", false
	}
	date = r.URL.Query().Get("date")
	if _, err := slots.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, string(booking.KindInvalidRequest), "invalid date format; expected YYYY-MM-DD")
		return "", "", false
	}
	return stationID, date, true
}

func (s *HTTPServer) handleOccupied(w http.ResponseWriter, r *http.Request) {
	stationID, date, ok := s.stationDay(w, r)
	if !ok {
		return
	}
	occupied, err := s.booker.ListOccupiedSlots(r.Context(), date, stationID)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OccupiedResponse{StationID: stationID, Date: date, Occupied: occupied})
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	stationID, date, ok := s.stationDay(w, r)
	if !ok {
		return
	}

	schedule, open := s.stations.Schedule(stationID, date)
	if !open {
		writeJSON(w, http.StatusOK, SlotsResponse{StationID: stationID, Date: date, Closed: true, Slots: []slots.SlotInfo{}})
		return
	}
	if schedule.SlotDuration <= 0 {
		schedule.SlotDuration = 30
	}

	grid, err := s.generator.GenerateSlots(r.Context(), stationID, date, schedule)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	if grid == nil {
		grid = []slots.SlotInfo{}
	}
	resp := SlotsResponse{
		StationID:    stationID,
		Date:         date,
		SlotDuration: schedule.SlotDuration,
		Slots:        grid,
	}
	if start := r.URL.Query().Get("start"); start != "" {
		for _, minutes := range slots.DurationOptions(grid, start, schedule.SlotDuration) {
			resp.DurationOptions = append(resp.DurationOptions, DurationOption{
				Minutes: minutes,
				Hours:   float64(minutes) / 60,
				Label:   slots.FormatDuration(minutes),
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleStationReservations(w http.ResponseWriter, r *http.Request) {
	stationID, date, ok := s.stationDay(w, r)
	if !ok {
		return
	}
	list, err := s.booker.ListReservations(r.Context(), date, stationID)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	views := make([]ReservationView, 0, len(list))
	for _, res := range list {
		views = append(views, newReservationView(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": views})
}

func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req booking.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(booking.KindInvalidRequest), "invalid JSON body")
		return
	}

	res, err := s.booker.CreateReservation(r.Context(), req)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReservationView(res))
}

func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	res, err := s.booker.GetReservation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationView(res))
}

func (s *HTTPServer) handleExtend(w http.ResponseWriter, r *http.Request) {
	var req ExtendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(booking.KindInvalidRequest), "invalid JSON body")
		return
	}

	res, err := s.booker.ExtendReservation(r.Context(), r.PathValue("id"), req.AdditionalHours)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationView(res))
}

func (s *HTTPServer) handleAttachOrders(w http.ResponseWriter, r *http.Request) {
	var req OrdersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(booking.KindInvalidRequest), "invalid JSON body")
		return
	}

	if err := s.booker.AttachSecondaryOrder(r.Context(), r.PathValue("id"), req.Items); err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AckResponse{OK: true})
}

func (s *HTTPServer) handleSetGames(w http.ResponseWriter, r *http.Request) {
	var req GamesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(booking.KindInvalidRequest), "invalid JSON body")
		return
	}

	if err := s.booker.SetGameSelections(r.Context(), r.PathValue("id"), req.GameIDs); err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AckResponse{OK: true})
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	res, err := s.booker.CancelReservation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationView(res))
}

func (s *HTTPServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	res, err := s.booker.CompleteReservation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationView(res))
}
