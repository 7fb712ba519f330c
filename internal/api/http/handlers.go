package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/saltfish/seatscope/go-backend/internal/dashboard"
	"github.com/saltfish/seatscope/go-backend/internal/domain"
	"github.com/saltfish/seatscope/go-backend/internal/projection"
)

// Dashboard is the controller surface the handlers drive.
type Dashboard interface {
	SelectZone(ctx context.Context, zone domain.ZoneID) error
	SelectDay(ctx context.Context, day int) error
	ScrubTo(ctx context.Context, i int) error
	ToggleProfile(ctx context.Context, p domain.ProfileID) error
	SetProfiles(ctx context.Context, profiles []domain.ProfileID) error
	SelectAll(ctx context.Context, all bool) error
	SetCompare(ctx context.Context, compare bool) error
	StartPlayback(ctx context.Context) error
	StopPlayback(ctx context.Context) error
	Reload(ctx context.Context) error
	Snapshot() dashboard.Snapshot
	Datasets() *domain.Datasets
	Ready() bool
}

// Handler provides REST API handlers.
type Handler struct {
	dashboard Dashboard
	logger    *zap.Logger
}

// NewHandler creates a new Handler instance.
func NewHandler(d Dashboard, logger *zap.Logger) *Handler {
	return &Handler{dashboard: d, logger: logger}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err error, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Message: message,
	})
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyPlaying),
		errors.Is(err, domain.ErrLoadInProgress),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrLoad):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNotLoaded),
		errors.Is(err, dashboard.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// respond runs a controller command and replies with the resulting state.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, op string, err error) {
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Dashboard command failed", zap.String("op", op), zap.Error(err))
		}
		writeError(w, status, err, op+" failed")
		return
	}
	writeJSON(w, http.StatusOK, NewStateResponse(h.dashboard.Snapshot()))
}

// HandleGetState returns the current state and derived view.
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewStateResponse(h.dashboard.Snapshot()))
}

// HandleGetSummary returns the dataset summary.
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewSummaryResponse(h.dashboard.Snapshot(), h.dashboard.Datasets()))
}

// MarketDataResponse lists market records.
type MarketDataResponse struct {
	Records []domain.MarketRecord `json:"records"`
	Total   int                   `json:"total"`
}

// HandleGetMarketData returns the loaded market records, optionally
// filtered by ?zone=.
func (h *Handler) HandleGetMarketData(w http.ResponseWriter, r *http.Request) {
	ds := h.dashboard.Datasets()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, domain.ErrNotLoaded, h.dashboard.Snapshot().Error)
		return
	}
	zone, ok, err := zoneQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}

	records := ds.Market
	if ok {
		records = projection.MarketFor(ds.Market, zone)
	}
	writeJSON(w, http.StatusOK, MarketDataResponse{Records: records, Total: len(records)})
}

// EquilibriumDataResponse lists equilibrium records.
type EquilibriumDataResponse struct {
	Records []domain.EquilibriumRecord `json:"records"`
	Total   int                        `json:"total"`
}

// HandleGetEquilibriumData returns the loaded equilibrium records,
// optionally filtered by ?zone= and ?profile=.
func (h *Handler) HandleGetEquilibriumData(w http.ResponseWriter, r *http.Request) {
	ds := h.dashboard.Datasets()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, domain.ErrNotLoaded, h.dashboard.Snapshot().Error)
		return
	}
	zone, hasZone, err := zoneQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}

	records := make([]domain.EquilibriumRecord, 0, len(ds.Equilibrium))
	if raw := r.URL.Query().Get("profile"); raw != "" {
		p, ok := domain.ProfileIDFromString(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: unknown profile %q", domain.ErrInvalidInput, raw), "")
			return
		}
		if !hasZone {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: profile filter requires zone", domain.ErrInvalidInput), "")
			return
		}
		records = projection.Matching(ds.Equilibrium, zone, p)
	} else {
		for _, rec := range ds.Equilibrium {
			if !hasZone || rec.Zone == zone {
				records = append(records, rec)
			}
		}
	}
	writeJSON(w, http.StatusOK, EquilibriumDataResponse{Records: records, Total: len(records)})
}

func zoneQuery(r *http.Request) (domain.ZoneID, bool, error) {
	raw := r.URL.Query().Get("zone")
	if raw == "" {
		return "", false, nil
	}
	zone, ok := domain.ZoneIDFromString(raw)
	if !ok {
		return "", false, fmt.Errorf("%w: unknown zone %q", domain.ErrInvalidInput, raw)
	}
	return zone, true, nil
}

// ProfileResponse describes a profile and whether the data offers it.
type ProfileResponse struct {
	domain.ProfileInfo
	SellerType domain.SellerType `json:"seller_type"`
	Available  bool              `json:"available"`
	Selected   bool              `json:"selected"`
}

// HandleListProfiles lists every profile in canonical order.
func (h *Handler) HandleListProfiles(w http.ResponseWriter, r *http.Request) {
	snap := h.dashboard.Snapshot()
	infos := domain.ProfileInfos()
	resp := make([]ProfileResponse, 0, len(infos))
	for _, info := range infos {
		available := false
		for _, p := range snap.AvailableProfiles {
			if p == info.ID {
				available = true
				break
			}
		}
		resp = append(resp, ProfileResponse{
			ProfileInfo: info,
			SellerType:  info.ID.SellerType(),
			Available:   available,
			Selected:    snap.State.HasProfile(info.ID),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": resp})
}

// HandleListZones lists the zones and which of them can be selected.
func (h *Handler) HandleListZones(w http.ResponseWriter, r *http.Request) {
	zones := make([]domain.ZoneInfo, 0, len(domain.Zones))
	for _, z := range domain.Zones {
		zones = append(zones, z.Info())
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones})
}

// SelectZoneRequest is the body of PUT /zone.
type SelectZoneRequest struct {
	Zone string `json:"zone"`
}

// HandleSelectZone changes the zone. Only selectable zones are accepted.
func (h *Handler) HandleSelectZone(w http.ResponseWriter, r *http.Request) {
	var req SelectZoneRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}
	zone, ok := domain.ZoneIDFromString(req.Zone)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: unknown zone %q", domain.ErrInvalidInput, req.Zone), "")
		return
	}
	if !zone.Selectable() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: zone %s is not selectable", domain.ErrInvalidInput, zone), "")
		return
	}
	h.respond(w, r, "select zone", h.dashboard.SelectZone(r.Context(), zone))
}

// SelectDayRequest is the body of PUT /day.
type SelectDayRequest struct {
	Day *int `json:"day"`
}

// HandleSelectDay selects a day of the current zone.
func (h *Handler) HandleSelectDay(w http.ResponseWriter, r *http.Request) {
	var req SelectDayRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}
	if req.Day == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: day is required", domain.ErrInvalidInput), "")
		return
	}
	h.respond(w, r, "select day", h.dashboard.SelectDay(r.Context(), *req.Day))
}

// ScrubRequest is the body of PUT /scrub.
type ScrubRequest struct {
	Index *int `json:"index"`
}

// HandleScrub selects the day at a position of the temporal index.
func (h *Handler) HandleScrub(w http.ResponseWriter, r *http.Request) {
	var req ScrubRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}
	if req.Index == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: index is required", domain.ErrInvalidInput), "")
		return
	}
	h.respond(w, r, "scrub", h.dashboard.ScrubTo(r.Context(), *req.Index))
}

// ToggleProfileRequest is the body of POST /profiles/toggle.
type ToggleProfileRequest struct {
	Profile string `json:"profile"`
}

// HandleToggleProfile adds or removes one profile.
func (h *Handler) HandleToggleProfile(w http.ResponseWriter, r *http.Request) {
	var req ToggleProfileRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}
	p, _ := domain.ProfileIDFromString(req.Profile)
	h.respond(w, r, "toggle profile", h.dashboard.ToggleProfile(r.Context(), p))
}

// SetProfilesRequest is the body of PUT /profiles.
type SetProfilesRequest struct {
	Profiles []string `json:"profiles"`
}

// HandleSetProfiles replaces the selection.
func (h *Handler) HandleSetProfiles(w http.ResponseWriter, r *http.Request) {
	var req SetProfilesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}
	profiles := make([]domain.ProfileID, 0, len(req.Profiles))
	for _, raw := range req.Profiles {
		p, _ := domain.ProfileIDFromString(raw)
		profiles = append(profiles, p)
	}
	h.respond(w, r, "set profiles", h.dashboard.SetProfiles(r.Context(), profiles))
}

// SelectAllRequest is the body of PUT /profiles/all.
type SelectAllRequest struct {
	Selected bool `json:"selected"`
}

// HandleSelectAll selects every profile present in the data, or none.
func (h *Handler) HandleSelectAll(w http.ResponseWriter, r *http.Request) {
	var req SelectAllRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}
	h.respond(w, r, "select all", h.dashboard.SelectAll(r.Context(), req.Selected))
}

// CompareRequest is the body of PUT /compare.
type CompareRequest struct {
	Enabled bool `json:"enabled"`
}

// HandleSetCompare toggles the market comparison.
func (h *Handler) HandleSetCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}
	h.respond(w, r, "set compare", h.dashboard.SetCompare(r.Context(), req.Enabled))
}

// HandleStartPlayback starts playback from the selected day.
func (h *Handler) HandleStartPlayback(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "start playback", h.dashboard.StartPlayback(r.Context()))
}

// HandleStopPlayback stops playback.
func (h *Handler) HandleStopPlayback(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "stop playback", h.dashboard.StopPlayback(r.Context()))
}

// HandleReload reloads both datasets. A failed load replies 502 with the
// load error; the previous data stays in place.
func (h *Handler) HandleReload(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "reload", h.dashboard.Reload(r.Context()))
}
