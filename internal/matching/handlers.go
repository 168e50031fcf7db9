package matching

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/hourvillage/timebank-backend/internal/common/utils"
)

type Handler struct {
	service Service
	hub     *Hub
}

func NewHandler(service Service, hub *Hub) *Handler {
	return &Handler{service: service, hub: hub}
}

func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	tenantID, userID := requestIdentity(r)

	opts := &FindMatchesOptions{}
	q := r.URL.Query()
	if limit := q.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if maxDist := q.Get("max_distance"); maxDist != "" {
		if d, err := strconv.ParseFloat(maxDist, 64); err == nil {
			opts.MaxDistanceKm = &d
		}
	}
	if minScore := q.Get("min_score"); minScore != "" {
		if s, err := strconv.ParseFloat(minScore, 64); err == nil {
			opts.MinScore = &s
		}
	}
	if categories := q.Get("category"); categories != "" {
		for _, c := range strings.Split(categories, ",") {
			if id, err := strconv.ParseInt(strings.TrimSpace(c), 10, 64); err == nil {
				opts.CategoryFilter = append(opts.CategoryFilter, id)
			}
		}
	}

	results, err := h.service.FindMatches(r.Context(), tenantID, userID, opts)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to find matches")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, results)
}

func (h *Handler) GetHotMatches(w http.ResponseWriter, r *http.Request) {
	tenantID, userID := requestIdentity(r)

	results, err := h.service.GetHotMatches(r.Context(), tenantID, userID, queryLimit(r, 10))
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get hot matches")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, results)
}

func (h *Handler) GetMutualMatches(w http.ResponseWriter, r *http.Request) {
	tenantID, userID := requestIdentity(r)

	results, err := h.service.GetMutualMatches(r.Context(), tenantID, userID, queryLimit(r, 10))
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get mutual matches")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, results)
}

func (h *Handler) GetMatches(w http.ResponseWriter, r *http.Request) {
	tenantID, userID := requestIdentity(r)
	matchType := r.URL.Query().Get("type")

	entries, err := h.service.GetMatchesByType(r.Context(), tenantID, userID, matchType, queryLimit(r, 20))
	if err != nil {
		if err == ErrInvalidMatchType {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get matches")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, entries)
}

func (h *Handler) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	tenantID, userID := requestIdentity(r)

	var dto RecordInteractionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := utils.ValidateStruct(&dto); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	event, err := h.service.RecordInteraction(r.Context(), tenantID, userID, &dto)
	if err != nil {
		switch err {
		case ErrInvalidAction:
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		case ErrListingNotFound:
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to record interaction")
		}
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, event)
}

func (h *Handler) MarkConversion(w http.ResponseWriter, r *http.Request) {
	tenantID, userID := requestIdentity(r)

	var dto MarkConversionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := utils.ValidateStruct(&dto); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.MarkConversion(r.Context(), tenantID, userID, dto.ListingID, dto.TransactionID); err != nil {
		if err == ErrConversionNotFound {
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to mark conversion")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "converted"})
}

func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	tenantID, userID := requestIdentity(r)

	prefs, err := h.service.GetPreferences(r.Context(), tenantID, userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get preferences")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, prefs)
}

func (h *Handler) SavePreferences(w http.ResponseWriter, r *http.Request) {
	tenantID, userID := requestIdentity(r)

	var dto SavePreferencesDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := utils.ValidateStruct(&dto); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	prefs, err := h.service.SavePreferences(r.Context(), tenantID, userID, &dto)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to save preferences")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, prefs)
}

func (h *Handler) ResetLearning(w http.ResponseWriter, r *http.Request) {
	tenantID, userID := requestIdentity(r)

	if err := h.service.ResetUserLearning(r.Context(), tenantID, userID); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to reset learning data")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := requestIdentity(r)

	snapshot, err := h.service.GetDashboardSummary(r.Context(), tenantID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to build dashboard")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}

func requestIdentity(r *http.Request) (tenantID, userID int64) {
	tenantID = r.Context().Value("tenantID").(int64)
	userID = r.Context().Value("userID").(int64)
	return
}

func queryLimit(r *http.Request, fallback int) int {
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			return l
		}
	}
	return fallback
}
