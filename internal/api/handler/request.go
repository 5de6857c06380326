package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/share4life/blood-core/internal/api/respond"
	"github.com/share4life/blood-core/internal/blood"
	"github.com/share4life/blood-core/internal/escalate"
)

// requestView is the JSON shape for request detail responses.
type requestView struct {
	ID                 string     `json:"id"`
	PatientName        string     `json:"patient_name"`
	BloodGroup         string     `json:"blood_group"`
	City               string     `json:"city"`
	HospitalName       string     `json:"hospital_name"`
	UnitsNeeded        int        `json:"units_needed"`
	IsEmergency        bool       `json:"is_emergency"`
	Status             string     `json:"status"`
	VerificationStatus string     `json:"verification_status"`
	IsActive           bool       `json:"is_active"`
	CreatedAt          time.Time  `json:"created_at"`
	FulfilledAt        *time.Time `json:"fulfilled_at,omitempty"`
	VerifiedUnits      int        `json:"verified_units"`
	EscalationStage    *string    `json:"escalation_stage,omitempty"`
}

// GetRequest returns one request with fulfillment progress and escalation stage.
// @Summary Request detail
// @Description Returns a blood request with verified-unit progress and its escalation stage.
// @Tags requests
// @Produce json
// @Param requestID path string true "Request ID"
// @Success 200 {object} requestView
// @Failure 404 {object} respond.ErrorResponse
// @Router /requests/{requestID} [get]
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "requestID")
	if !ok {
		return
	}

	store := escalate.NewPGStore(h.pool)
	req, err := store.RequestByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respond.WriteError(w, http.StatusNotFound, "not_found", "Request not found")
			return
		}
		respond.WriteError(w, http.StatusInternalServerError, "internal", "Failed to load request")
		return
	}

	var verified int
	if err := h.pool.QueryRow(r.Context(), "verified_units_sum", id).Scan(&verified); err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "internal", "Failed to load fulfillment")
		return
	}

	view := requestView{
		ID:                 req.ID.String(),
		PatientName:        req.PatientName,
		BloodGroup:         string(req.BloodGroup),
		City:               req.City,
		HospitalName:       req.HospitalName,
		UnitsNeeded:        req.UnitsNeeded,
		IsEmergency:        req.IsEmergency,
		Status:             string(req.Status),
		VerificationStatus: string(req.VerificationStatus),
		IsActive:           req.IsActive,
		CreatedAt:          req.CreatedAt,
		FulfilledAt:        req.FulfilledAt,
		VerifiedUnits:      verified,
	}

	var stage string
	err = h.pool.QueryRow(r.Context(),
		"SELECT stage FROM escalation_states WHERE request_id = $1", id).Scan(&stage)
	if err == nil {
		view.EscalationStage = &stage
	}

	respond.WriteJSONObject(w, http.StatusOK, view)
}

// GetRequestMatches returns matching donors for a request, for diagnostics
// and the "notify nearby donors" action.
// @Summary Matching donors
// @Description Returns eligible, blood-compatible donors for a request. Scope is city, 5km, 10km, or auto (city then widening radius).
// @Tags requests
// @Produce json
// @Param requestID path string true "Request ID"
// @Param scope query string false "city | 5km | 10km | auto" default(auto)
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} respond.ErrorResponse
// @Router /requests/{requestID}/matches [get]
func (h *Handler) GetRequestMatches(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "requestID")
	if !ok {
		return
	}

	store := escalate.NewPGStore(h.pool)
	req, err := store.RequestByID(r.Context(), id)
	if err != nil {
		respond.WriteError(w, http.StatusNotFound, "not_found", "Request not found")
		return
	}

	var donors []blood.DonorProfile
	scope := r.URL.Query().Get("scope")
	switch scope {
	case "city":
		donors, err = h.matcher.ByCity(r.Context(), req)
	case "5km":
		donors, err = h.matcher.ByRadius(r.Context(), req, h.matcher.RadiusSmallKm)
	case "10km":
		donors, err = h.matcher.ByRadius(r.Context(), req, h.matcher.RadiusLargeKm)
	case "", "auto":
		donors, err = h.matcher.CityThenRadius(r.Context(), req)
	default:
		respond.WriteError(w, http.StatusBadRequest, "bad_scope", "scope must be city, 5km, 10km, or auto")
		return
	}
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "internal", "Matching failed")
		return
	}

	ids := make([]string, 0, len(donors))
	for _, d := range donors {
		ids = append(ids, d.UserID.String())
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"request_id": id.String(),
		"scope":      scope,
		"count":      len(donors),
		"donor_ids":  ids,
	})
}

// respondBody is the donor response request body.
type respondBody struct {
	DonorID string `json:"donor_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// RespondToRequest records a donor's response. The first response per
// (request, donor) wins; any response excludes the donor from further pings.
// @Summary Record donor response
// @Description Records ACCEPTED/DECLINED/DELAYED for a donor; a response permanently excludes the donor from further pings on this request.
// @Tags requests
// @Accept json
// @Produce json
// @Param requestID path string true "Request ID"
// @Param body body respondBody true "Response"
// @Success 201 {object} map[string]interface{}
// @Failure 409 {object} respond.ErrorResponse
// @Router /requests/{requestID}/respond [post]
func (h *Handler) RespondToRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "requestID")
	if !ok {
		return
	}

	var body respondBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "bad_json", "Invalid request body")
		return
	}
	donorID, err := uuid.Parse(body.DonorID)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "bad_donor_id", "donor_id must be a UUID")
		return
	}

	status := blood.ResponseStatus(body.Status)
	switch status {
	case blood.ResponsePending, blood.ResponseAccepted, blood.ResponseDeclined, blood.ResponseDelayed:
	default:
		respond.WriteError(w, http.StatusBadRequest, "bad_status",
			"status must be PENDING, ACCEPTED, DECLINED, or DELAYED")
		return
	}

	tag, err := h.pool.Exec(r.Context(), `
		INSERT INTO donor_responses (request_id, donor_id, status, message)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (request_id, donor_id) DO NOTHING`,
		id, donorID, status, body.Message,
	)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "internal", "Failed to record response")
		return
	}
	if tag.RowsAffected() == 0 {
		respond.WriteError(w, http.StatusConflict, "already_responded",
			"Donor already responded to this request")
		return
	}

	respond.WriteJSONObject(w, http.StatusCreated, map[string]interface{}{
		"request_id": id.String(),
		"donor_id":   donorID.String(),
		"status":     string(status),
	})
}

// pathUUID parses a UUID path parameter, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "bad_id", name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
