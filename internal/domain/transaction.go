package domain

import (
	"math"
	"time"
)

// Channel is the payment rail a transaction travelled on.
type Channel string

const (
	ChannelCard    Channel = "Card"
	ChannelACH     Channel = "ACH"
	ChannelWire    Channel = "Wire"
	ChannelInstant Channel = "Instant"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelCard, ChannelACH, ChannelWire, ChannelInstant:
		return true
	}
	return false
}

// Decision is the action taken on a scored transaction.
type Decision string

const (
	DecisionApprove   Decision = "Approve"
	DecisionChallenge Decision = "Challenge"
	DecisionDecline   Decision = "Decline"
)

// Rank orders decisions by severity: Approve < Challenge < Decline.
// Unknown decisions rank below Approve.
func (d Decision) Rank() int {
	switch d {
	case DecisionApprove:
		return 1
	case DecisionChallenge:
		return 2
	case DecisionDecline:
		return 3
	}
	return 0
}

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d.Rank() > 0
}

// Transaction is a scored card/bank transaction.
// Derived fields (RiskScore, Decision, ReasonCodes, ReasonKeys) are set once
// by the decision processor and never mutated afterwards.
type Transaction struct {
	ID               string    `json:"tx_id"`
	Timestamp        time.Time `json:"timestamp"`
	Amount           float64   `json:"amount"`
	Merchant         string    `json:"merchant"`
	MerchantCategory string    `json:"merchant_category"`
	Channel          Channel   `json:"channel"`
	Country          string    `json:"country"`
	State            string    `json:"state,omitempty"`
	CustomerID       string    `json:"customer_id"`
	DeviceID         string    `json:"device_id"`

	// Behavioural features
	Velocity10Min    int     `json:"velocity_10min"`
	AvgAmount30d     float64 `json:"avg_amount_30d"`
	DeviceChangeFlag bool    `json:"device_change_flag"`
	GeoDistanceKm    float64 `json:"geo_distance_km"`
	MerchantRisk     float64 `json:"merchant_risk"`

	// Ground-truth label, only meaningful for simulated records.
	IsFraud bool `json:"is_fraud"`

	// Derived
	RiskScore   int          `json:"risk_score"`
	Decision    Decision     `json:"decision"`
	ReasonCodes []string     `json:"reason_codes"`
	ReasonKeys  []ReasonCode `json:"reason_keys"`
	Fallback    bool         `json:"fallback,omitempty"`
}

// Features extracts the scoring input from a transaction record.
// The fraud label is only carried over when withLabel is set.
func (t *Transaction) Features(withLabel bool) Features {
	f := Features{
		Amount:        t.Amount,
		MerchantRisk:  t.MerchantRisk,
		Velocity10Min: t.Velocity10Min,
		DeviceChange:  t.DeviceChangeFlag,
		GeoDistanceKm: t.GeoDistanceKm,
		Channel:       t.Channel,
		Timestamp:     t.Timestamp,
		AvgAmount30d:  t.AvgAmount30d,
	}
	if withLabel {
		label := t.IsFraud
		f.FraudLabel = &label
	}
	return f
}

// Features is the input to the risk scoring engine.
type Features struct {
	Amount        float64   `json:"amount"`
	MerchantRisk  float64   `json:"merchant_risk"`
	Velocity10Min int       `json:"velocity_10min"`
	DeviceChange  bool      `json:"device_change_flag"`
	GeoDistanceKm float64   `json:"geo_distance_km"`
	Channel       Channel   `json:"channel"`
	Timestamp     time.Time `json:"timestamp"`
	AvgAmount30d  float64   `json:"avg_amount_30d,omitempty"`

	// FraudLabel is the simulation ground truth. It is nil outside simulation
	// and only read by an engine built for simulation.
	FraudLabel *bool `json:"-"`
}

// Normalize validates f and clamps out-of-range values.
// A negative or non-finite amount is rejected.
func (f Features) Normalize() (Features, error) {
	if math.IsNaN(f.Amount) || math.IsInf(f.Amount, 0) {
		return f, invalidf("amount must be a finite number")
	}
	if f.Amount < 0 {
		return f, invalidf("amount must be non-negative")
	}
	if f.Timestamp.IsZero() {
		return f, invalidf("timestamp is required")
	}
	if f.Channel != "" && !f.Channel.Valid() {
		return f, invalidf("unknown channel %q", f.Channel)
	}

	f.MerchantRisk = clampFloat(f.MerchantRisk, 0, 1)
	if f.Velocity10Min < 0 {
		f.Velocity10Min = 0
	}
	if math.IsNaN(f.GeoDistanceKm) || f.GeoDistanceKm < 0 {
		f.GeoDistanceKm = 0
	}
	if math.IsNaN(f.AvgAmount30d) || f.AvgAmount30d < 0 {
		f.AvgAmount30d = 0
	}
	return f, nil
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
