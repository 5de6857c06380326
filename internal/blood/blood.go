// Package blood holds the core domain types for emergency blood request
// coordination: blood groups and transfusion compatibility, requests,
// donations, donor responses, ping logs, and escalation stages.
package blood

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Blood groups
// --------------------------------------------------------------------------

// Group is one of the eight ABO/Rh blood groups.
type Group string

const (
	ONeg  Group = "O-"
	OPos  Group = "O+"
	ANeg  Group = "A-"
	APos  Group = "A+"
	BNeg  Group = "B-"
	BPos  Group = "B+"
	ABNeg Group = "AB-"
	ABPos Group = "AB+"
)

// Groups lists all valid blood groups.
var Groups = []Group{ONeg, OPos, ANeg, APos, BNeg, BPos, ABNeg, ABPos}

// ParseGroup normalizes and validates a blood group string.
func ParseGroup(s string) (Group, error) {
	g := Group(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Groups {
		if g == known {
			return g, nil
		}
	}
	return "", fmt.Errorf("invalid blood group %q", s)
}

// --------------------------------------------------------------------------
// Escalation stages
// --------------------------------------------------------------------------

// Stage is one phase of widening donor outreach for an emergency request.
type Stage string

const (
	StageCity     Stage = "CITY"
	StageRadius5  Stage = "RADIUS_5"
	StageRadius10 Stage = "RADIUS_10"
	StageOrg      Stage = "ORG"
	StageLoop     Stage = "LOOP"
	StageDone     Stage = "DONE"
)

// --------------------------------------------------------------------------
// Statuses
// --------------------------------------------------------------------------

// RequestStatus is the lifecycle state of a blood request.
// OPEN → IN_PROGRESS → FULFILLED, or any non-terminal state → CANCELLED.
type RequestStatus string

const (
	RequestOpen       RequestStatus = "OPEN"
	RequestInProgress RequestStatus = "IN_PROGRESS"
	RequestFulfilled  RequestStatus = "FULFILLED"
	RequestCancelled  RequestStatus = "CANCELLED"
)

// VerificationStatus is the admin/org review state of a request.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "UNVERIFIED"
	VerificationPending    VerificationStatus = "PENDING"
	VerificationVerified   VerificationStatus = "VERIFIED"
	VerificationRejected   VerificationStatus = "REJECTED"
)

// ResponseStatus is a donor's reply to a ping.
type ResponseStatus string

const (
	ResponsePending  ResponseStatus = "PENDING"
	ResponseAccepted ResponseStatus = "ACCEPTED"
	ResponseDeclined ResponseStatus = "DECLINED"
	ResponseDelayed  ResponseStatus = "DELAYED"
)

// DonationStatus tracks a recorded donation through verification.
type DonationStatus string

const (
	DonationCompleted DonationStatus = "COMPLETED"
	DonationVerified  DonationStatus = "VERIFIED"
	DonationRejected  DonationStatus = "REJECTED"
)

// --------------------------------------------------------------------------
// Models
// --------------------------------------------------------------------------

// Request is a call for donated blood units.
type Request struct {
	ID                 uuid.UUID
	PatientName        string
	BloodGroup         Group
	City               string
	Latitude           *float64
	Longitude          *float64
	HospitalName       string
	UnitsNeeded        int
	IsEmergency        bool
	Status             RequestStatus
	VerificationStatus VerificationStatus
	IsActive           bool
	CreatedBy          *uuid.UUID // nil for guest requests
	TargetOrgID        *uuid.UUID
	CreatedAt          time.Time
	FulfilledAt        *time.Time
}

// HasGPS reports whether the request carries usable coordinates.
func (r *Request) HasGPS() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// DetailURL is the canonical in-app URL for the request.
func (r *Request) DetailURL() string {
	return "/blood/request/" + r.ID.String() + "/"
}

// EscalationState is the one-to-one state machine row for an emergency
// request. Mutated only by the escalation engine.
type EscalationState struct {
	RequestID uuid.UUID
	Stage     Stage
	NextRunAt *time.Time
	LastRunAt *time.Time
	IsDone    bool
	UpdatedAt time.Time
}

// ScheduleNext sets the next due time relative to now.
func (s *EscalationState) ScheduleNext(now time.Time, interval time.Duration) {
	next := now.Add(interval)
	s.NextRunAt = &next
}

// Finish marks the state terminal.
func (s *EscalationState) Finish() {
	s.Stage = StageDone
	s.IsDone = true
	s.NextRunAt = nil
}

// PingLog records ping history for one (request, donor) pair.
// Unique per pair; the unique constraint is the dedup mechanism under
// concurrent writers.
type PingLog struct {
	RequestID  uuid.UUID
	DonorID    uuid.UUID
	Stage      Stage
	LastPingAt time.Time
	PingCount  int
}

// DonorResponse is a donor's reply for a request. The presence of any row
// permanently excludes the donor from further pings on that request.
type DonorResponse struct {
	RequestID   uuid.UUID
	DonorID     uuid.UUID
	Status      ResponseStatus
	Message     string
	RespondedAt time.Time
}

// Donation is a recorded act of giving blood, optionally linked to a request.
// At most one donation per (request, donor) pair.
type Donation struct {
	ID         uuid.UUID
	DonorID    uuid.UUID
	RequestID  *uuid.UUID
	Units      int
	Status     DonationStatus
	DonatedAt  time.Time
	VerifiedAt *time.Time
	VerifiedBy *uuid.UUID
}

// DonorProfile is the read-only donor view the core matches against.
type DonorProfile struct {
	UserID     uuid.UUID
	BloodGroup Group
	City       string
	Latitude   *float64
	Longitude  *float64
	IsDonor    bool
	IsActive   bool
	Points     int
}

// HasCoords reports whether the profile carries coordinates.
func (p *DonorProfile) HasCoords() bool {
	return p.Latitude != nil && p.Longitude != nil
}
