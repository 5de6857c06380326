package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/share4life/blood-core/internal/api/respond"
	"github.com/share4life/blood-core/internal/fulfill"
)

// donationBody is the donor self-report request body.
type donationBody struct {
	DonorID   string `json:"donor_id"`
	Units     int    `json:"units"`
	DonatedAt string `json:"donated_at,omitempty"` // RFC3339, defaults to now
}

// ReportDonation records a donor's self-reported donation (COMPLETED) for a
// request. At most one donation per (request, donor) pair.
// @Summary Self-report a donation
// @Description Records a COMPLETED donation awaiting staff verification.
// @Tags donations
// @Accept json
// @Produce json
// @Param requestID path string true "Request ID"
// @Param body body donationBody true "Donation"
// @Success 201 {object} map[string]interface{}
// @Failure 409 {object} respond.ErrorResponse
// @Router /requests/{requestID}/donations [post]
func (h *Handler) ReportDonation(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathUUID(w, r, "requestID")
	if !ok {
		return
	}

	var body donationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "bad_json", "Invalid request body")
		return
	}
	donorID, err := uuid.Parse(body.DonorID)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "bad_donor_id", "donor_id must be a UUID")
		return
	}
	if body.Units < 1 {
		respond.WriteError(w, http.StatusBadRequest, "bad_units", "units must be >= 1")
		return
	}

	donatedAt := time.Now()
	if body.DonatedAt != "" {
		donatedAt, err = time.Parse(time.RFC3339, body.DonatedAt)
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, "bad_donated_at", "donated_at must be RFC3339")
			return
		}
	}

	donationID := uuid.New()
	tag, err := h.pool.Exec(r.Context(), `
		INSERT INTO donations (id, donor_id, request_id, units, status, donated_at)
		VALUES ($1, $2, $3, $4, 'COMPLETED', $5)
		ON CONFLICT (request_id, donor_id) DO NOTHING`,
		donationID, donorID, requestID, body.Units, donatedAt,
	)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "internal", "Failed to record donation")
		return
	}
	if tag.RowsAffected() == 0 {
		respond.WriteError(w, http.StatusConflict, "already_reported",
			"Donor already reported a donation for this request")
		return
	}

	respond.WriteJSONObject(w, http.StatusCreated, map[string]interface{}{
		"donation_id": donationID.String(),
		"request_id":  requestID.String(),
		"donor_id":    donorID.String(),
		"status":      "COMPLETED",
	})
}

// verifyBody is the verification request body.
type verifyBody struct {
	VerifierID string `json:"verifier_id"`
}

// VerifyDonation marks a donation VERIFIED and recomputes fulfillment.
// @Summary Verify a donation
// @Description Transitions a COMPLETED donation to VERIFIED, awards donor points, and recomputes request fulfillment. Idempotent.
// @Tags donations
// @Accept json
// @Produce json
// @Param donationID path string true "Donation ID"
// @Param body body verifyBody true "Verifier"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} respond.ErrorResponse
// @Router /donations/{donationID}/verify [post]
func (h *Handler) VerifyDonation(w http.ResponseWriter, r *http.Request) {
	donationID, ok := pathUUID(w, r, "donationID")
	if !ok {
		return
	}

	var body verifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "bad_json", "Invalid request body")
		return
	}
	verifierID, err := uuid.Parse(body.VerifierID)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "bad_verifier_id", "verifier_id must be a UUID")
		return
	}

	result, err := h.fulfill.VerifyDonation(r.Context(), donationID, verifierID)
	if err != nil {
		if errors.Is(err, fulfill.ErrNotPending) {
			respond.WriteError(w, http.StatusConflict, "not_pending",
				"Donation is not pending verification")
			return
		}
		respond.WriteError(w, http.StatusInternalServerError, "internal", "Verification failed")
		return
	}

	out := map[string]interface{}{
		"donation_id": donationID.String(),
		"verified":    true,
	}
	if result != nil {
		out["request_id"] = result.RequestID.String()
		out["verified_units"] = result.VerifiedUnits
		out["units_needed"] = result.UnitsNeeded
		out["request_status"] = string(result.Status)
		out["fulfilled"] = result.Fulfilled
	}
	respond.WriteJSONObject(w, http.StatusOK, out)
}

// GetDonorEligibility returns a donor's eligibility window.
// @Summary Donor eligibility
// @Description Returns whether a donor is currently eligible and when their window reopens.
// @Tags donors
// @Produce json
// @Param donorID path string true "Donor ID"
// @Success 200 {object} map[string]interface{}
// @Router /donors/{donorID}/eligibility [get]
func (h *Handler) GetDonorEligibility(w http.ResponseWriter, r *http.Request) {
	donorID, ok := pathUUID(w, r, "donorID")
	if !ok {
		return
	}

	now := time.Now()
	eligible, err := h.calc.IsEligible(r.Context(), h.pool, donorID, now)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "internal", "Eligibility check failed")
		return
	}
	next, err := h.calc.NextEligibleAt(r.Context(), h.pool, donorID)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "internal", "Eligibility check failed")
		return
	}

	out := map[string]interface{}{
		"donor_id": donorID.String(),
		"eligible": eligible,
	}
	if next != nil {
		out["next_eligible_at"] = next.UTC().Format(time.RFC3339)
	}
	respond.WriteJSONObject(w, http.StatusOK, out)
}
