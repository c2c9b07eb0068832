package model

import (
	"encoding/json"
	"strconv"
)

// Decision outcomes and coverage states.
const (
	DecisionApproved = "APPROVED"
	DecisionRejected = "REJECTED"

	CoverageFull    = "full"
	CoveragePartial = "partial"
	CoverageNone    = "none"

	UnknownValue = "Unknown"
)

// PatientDetails carries the claimant facts used in the decision prompt.
// Values are free text so "46", 46 and "46 years" are all accepted.
type PatientDetails struct {
	Age            string `json:"age"`
	Gender         string `json:"gender"`
	Procedure      string `json:"procedure"`
	Location       string `json:"location"`
	PolicyDuration string `json:"duration"`
}

// UnmarshalJSON accepts numbers or strings for every field.
func (p *PatientDetails) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	get := func(keys ...string) string {
		for _, k := range keys {
			if s := flexString(raw[k]); s != nil {
				return *s
			}
		}
		return ""
	}
	*p = PatientDetails{
		Age:            get("age"),
		Gender:         get("gender"),
		Procedure:      get("procedure"),
		Location:       get("location"),
		PolicyDuration: get("duration", "policy_duration", "policy_duration_months"),
	}
	return nil
}

// WithDefaults returns a copy where empty values read "Unknown".
func (p PatientDetails) WithDefaults() PatientDetails {
	for _, f := range []*string{&p.Age, &p.Gender, &p.Procedure, &p.Location, &p.PolicyDuration} {
		if *f == "" {
			*f = UnknownValue
		}
	}
	return p
}

// PatientFromQuery fills patient details from a parsed query.
func PatientFromQuery(q ParsedQuery) PatientDetails {
	var p PatientDetails
	if q.Age != nil {
		p.Age = strconv.Itoa(*q.Age)
	}
	if q.Gender != nil {
		p.Gender = *q.Gender
	}
	if q.Procedure != nil {
		p.Procedure = *q.Procedure
	}
	if q.Location != nil {
		p.Location = *q.Location
	}
	if q.PolicyDurationMonths != nil {
		p.PolicyDuration = strconv.Itoa(*q.PolicyDurationMonths)
	}
	return p.WithDefaults()
}

// ClauseMatch links a policy clause to the document it came from.
type ClauseMatch struct {
	Clause string  `json:"clause"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Decision is the adjudication of one claim.
type Decision struct {
	Decision       string          `json:"decision"`
	Amount         *int64          `json:"amount"`
	Justification  string          `json:"justification"`
	RiskFactors    []string        `json:"risk_factors"`
	CoverageStatus string          `json:"coverage_status"`
	PatientDetails *PatientDetails `json:"patient_details,omitempty"`
	Query          string          `json:"query,omitempty"`
	ClausesCount   int             `json:"clauses_count"`
	ClauseMapping  []ClauseMatch   `json:"clause_mapping,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Approved reports whether the claim was approved.
func (d Decision) Approved() bool {
	return d.Decision == DecisionApproved
}

// FallbackDecision is returned when the model answer carries no decision.
func FallbackDecision() Decision {
	return Decision{
		Decision:       DecisionRejected,
		Justification:  "Unable to process claim - insufficient policy information",
		RiskFactors:    []string{"Processing error"},
		CoverageStatus: CoverageNone,
	}
}

// ErrorDecision is returned when adjudication itself failed.
func ErrorDecision(err error) Decision {
	return Decision{
		Decision:       DecisionRejected,
		Justification:  "System error: " + err.Error(),
		RiskFactors:    []string{"System error"},
		CoverageStatus: CoverageNone,
		Error:          err.Error(),
	}
}
