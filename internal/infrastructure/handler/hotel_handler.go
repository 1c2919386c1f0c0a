package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/lohitverma/hoteltracking/internal/application/aggregator"
	"github.com/lohitverma/hoteltracking/internal/application/cache"
	"github.com/lohitverma/hoteltracking/internal/application/ratelimit"
	"github.com/lohitverma/hoteltracking/internal/application/tracker"
	"github.com/lohitverma/hoteltracking/internal/domain/hotel"
	"github.com/lohitverma/hoteltracking/internal/infrastructure/config"
)

const dateLayout = "2006-01-02"

type HotelHandler struct {
	aggregator *aggregator.Service
	tracker    *tracker.Service
	cache      *cache.Service
	limits     *ratelimit.Service
	cacheCfg   config.CacheConfig
	logger     *slog.Logger
}

func NewHotelHandler(
	aggregatorService *aggregator.Service,
	trackerService *tracker.Service,
	cacheService *cache.Service,
	limitService *ratelimit.Service,
	cacheCfg config.CacheConfig,
	logger *slog.Logger,
) *HotelHandler {
	return &HotelHandler{
		aggregator: aggregatorService,
		tracker:    trackerService,
		cache:      cacheService,
		limits:     limitService,
		cacheCfg:   cacheCfg,
		logger:     logger,
	}
}

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// SearchHotels fans the search out to every provider and returns the merged,
// price-sorted results. Responses are cached so identical searches within the
// TTL skip the providers entirely.
func (h *HotelHandler) SearchHotels(w http.ResponseWriter, r *http.Request) {
	query, err := h.parseSearchQuery(r)
	if err != nil {
		h.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	cacheKey := fmt.Sprintf("search:%s:%s:%s:%d:%d",
		query.Location,
		query.CheckIn.Format(dateLayout),
		query.CheckOut.Format(dateLayout),
		query.Guests,
		query.Rooms,
	)

	payload, err := h.cache.GetOrSet(r.Context(), cacheKey, h.cacheCfg.SearchTTL, func(ctx context.Context) ([]byte, error) {
		merged, err := h.aggregator.SearchAll(ctx, query)
		if err != nil {
			return nil, err
		}
		return json.Marshal(merged)
	})
	if err != nil {
		h.logger.Error("Search failed", "location", query.Location, "error", err)
		h.writeErrorResponse(w, "search failed", http.StatusInternalServerError)
		return
	}

	var merged []hotel.MergedHotel
	if err := json.Unmarshal(payload, &merged); err != nil {
		h.logger.Error("Failed to decode cached search results", "error", err)
		h.writeErrorResponse(w, "search failed", http.StatusInternalServerError)
		return
	}

	meta := map[string]interface{}{
		"location":  query.Location,
		"check_in":  query.CheckIn.Format(dateLayout),
		"check_out": query.CheckOut.Format(dateLayout),
		"count":     len(merged),
	}
	h.writeSuccessResponse(w, merged, meta)
}

// GetPrices returns the single best current rate for a hotel plus whether any
// provider still has availability for the dates.
func (h *HotelHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	hotelID := vars["hotelID"]
	if hotelID == "" {
		h.writeErrorResponse(w, "hotel ID is required", http.StatusBadRequest)
		return
	}

	checkIn, checkOut, err := parseStayDates(r)
	if err != nil {
		h.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	guests := parsePositiveInt(r.URL.Query().Get("guests"), 2)
	rooms := parsePositiveInt(r.URL.Query().Get("rooms"), 1)

	query := hotel.RateQuery{
		HotelID:  hotelID,
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Guests:   guests,
		Rooms:    rooms,
	}

	best, err := h.aggregator.BestPrice(r.Context(), query)
	if err != nil {
		h.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if best == nil {
		h.writeErrorResponse(w, "no prices found for hotel "+hotelID, http.StatusNotFound)
		return
	}

	available := h.aggregator.Availability(r.Context(), hotelID, checkIn, checkOut)

	data := map[string]interface{}{
		"hotel_id":   hotelID,
		"best_offer": best,
		"available":  available,
	}
	h.writeSuccessResponse(w, data, nil)
}

// GetHotelDetails serves descriptive hotel data, cached for longer than
// prices since it changes rarely.
func (h *HotelHandler) GetHotelDetails(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	hotelID := vars["id"]
	if hotelID == "" {
		h.writeErrorResponse(w, "hotel ID is required", http.StatusBadRequest)
		return
	}

	payload, err := h.cache.GetOrSet(r.Context(), "details:"+hotelID, h.cacheCfg.DetailsTTL, func(ctx context.Context) ([]byte, error) {
		details, err := h.aggregator.Details(ctx, hotelID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(details)
	})
	if err != nil {
		if errors.Is(err, hotel.ErrHotelNotFound) {
			h.writeErrorResponse(w, "hotel not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get hotel details", "hotel_id", hotelID, "error", err)
		h.writeErrorResponse(w, "failed to get hotel details", http.StatusInternalServerError)
		return
	}

	var details hotel.Details
	if err := json.Unmarshal(payload, &details); err != nil {
		h.logger.Error("Failed to decode cached details", "hotel_id", hotelID, "error", err)
		h.writeErrorResponse(w, "failed to get hotel details", http.StatusInternalServerError)
		return
	}

	h.writeSuccessResponse(w, details, nil)
}

// GetCityStats serves the per-city price breakdown computed from tracked
// history.
func (h *HotelHandler) GetCityStats(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	city := vars["city"]
	if city == "" {
		h.writeErrorResponse(w, "city is required", http.StatusBadRequest)
		return
	}

	stats, err := h.tracker.Stats(r.Context(), city)
	if err != nil {
		h.logger.Error("Failed to compute city stats", "city", city, "error", err)
		h.writeErrorResponse(w, "failed to compute statistics", http.StatusInternalServerError)
		return
	}

	h.writeSuccessResponse(w, stats, nil)
}

// GetCitySnapshot serves the same payload pushed to live subscribers, for
// clients that poll instead of holding a connection open.
func (h *HotelHandler) GetCitySnapshot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	city := vars["city"]
	if city == "" {
		h.writeErrorResponse(w, "city is required", http.StatusBadRequest)
		return
	}

	snapshot, err := h.tracker.Snapshot(r.Context(), city)
	if err != nil {
		h.logger.Error("Failed to compute city snapshot", "city", city, "error", err)
		h.writeErrorResponse(w, "failed to compute snapshot", http.StatusInternalServerError)
		return
	}

	h.writeSuccessResponse(w, snapshot, nil)
}

func (h *HotelHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := h.cache.Stats(r.Context())
	h.writeSuccessResponse(w, stats, nil)
}

// GetLimits reports the caller's current rate-limit consumption per class.
func (h *HotelHandler) GetLimits(w http.ResponseWriter, r *http.Request) {
	identity := ClientIdentity(r)
	usage := h.limits.Usage(r.Context(), identity)

	h.writeSuccessResponse(w, usage, map[string]interface{}{"identity": identity})
}

func (h *HotelHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":           "healthy",
		"service":          "hotel-tracking",
		"timestamp":        time.Now().UTC(),
		"live_subscribers": h.tracker.SubscriberCount(),
	}
	h.writeSuccessResponse(w, health, nil)
}

func (h *HotelHandler) parseSearchQuery(r *http.Request) (hotel.SearchQuery, error) {
	params := r.URL.Query()

	location := params.Get("location")
	if location == "" {
		location = params.Get("city")
	}
	if location == "" {
		return hotel.SearchQuery{}, fmt.Errorf("location is required")
	}

	checkIn, checkOut, err := parseStayDates(r)
	if err != nil {
		return hotel.SearchQuery{}, err
	}

	query := hotel.SearchQuery{
		Location: location,
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Guests:   parsePositiveInt(params.Get("guests"), 2),
		Rooms:    parsePositiveInt(params.Get("rooms"), 1),
	}
	if err := query.Validate(); err != nil {
		return hotel.SearchQuery{}, err
	}
	return query, nil
}

// parseStayDates reads check_in/check_out, defaulting to a one-night stay
// starting tomorrow when absent.
func parseStayDates(r *http.Request) (time.Time, time.Time, error) {
	params := r.URL.Query()

	checkIn := time.Now().AddDate(0, 0, 1).Truncate(24 * time.Hour)
	if raw := params.Get("check_in"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid check_in date %q, expected YYYY-MM-DD", raw)
		}
		checkIn = parsed
	}

	checkOut := checkIn.AddDate(0, 0, 1)
	if raw := params.Get("check_out"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid check_out date %q, expected YYYY-MM-DD", raw)
		}
		checkOut = parsed
	}

	if !checkOut.After(checkIn) {
		return time.Time{}, time.Time{}, fmt.Errorf("check_out must be after check_in")
	}
	return checkIn, checkOut, nil
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

func (h *HotelHandler) writeSuccessResponse(w http.ResponseWriter, data interface{}, meta interface{}) {
	response := APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *HotelHandler) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	response := APIResponse{
		Success: false,
		Error:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}
