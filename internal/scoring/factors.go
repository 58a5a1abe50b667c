package scoring

import "github.com/opensource-finance/kestrel/internal/domain"

// Factor is one additive term of the risk score. Condition is a CEL bool
// expression; Addend is a CEL number expression evaluated only when the
// condition holds.
type Factor struct {
	Name           string            `json:"name"`
	Reason         domain.ReasonCode `json:"reason,omitempty"`
	Condition      string            `json:"condition"`
	Addend         string            `json:"addend"`
	SimulationOnly bool              `json:"simulation_only,omitempty"`
}

// DefaultFactors returns the standard factor table in evaluation order.
// The fraud-label factor is simulation only and carries no reason code.
// pattern_break is loaded only when enabled in Options.
func DefaultFactors() []Factor {
	return []Factor{
		{
			Name:           "fraud_label",
			Condition:      "is_fraud",
			Addend:         "40.0",
			SimulationOnly: true,
		},
		{
			Name:      "amount",
			Reason:    domain.ReasonHighAmount,
			Condition: "amount > 1000.0",
			Addend:    "15.0",
		},
		{
			Name:      "merchant",
			Reason:    domain.ReasonMerchantRisk,
			Condition: "merchant_risk > 0.4",
			Addend:    "merchant_risk * 30.0",
		},
		{
			Name:      "velocity",
			Reason:    domain.ReasonHighVelocity,
			Condition: "velocity_10min > 5",
			Addend:    "20.0",
		},
		{
			Name:      "device",
			Reason:    domain.ReasonNewDevice,
			Condition: "device_change",
			Addend:    "15.0",
		},
		{
			Name:      "geo",
			Reason:    domain.ReasonGeoAnomaly,
			Condition: "geo_distance_km > 500.0",
			Addend:    "12.0",
		},
		{
			Name:      "time_of_day",
			Reason:    domain.ReasonTimeAnomaly,
			Condition: "local_hour >= 1 && local_hour <= 5",
			Addend:    "8.0",
		},
		{
			Name:      "channel",
			Reason:    domain.ReasonChannelRisk,
			Condition: "(channel == 'Wire' || channel == 'Instant') && amount > 500.0",
			Addend:    "10.0",
		},
		{
			Name:      "pattern_break",
			Reason:    domain.ReasonPatternBreak,
			Condition: "avg_amount_30d > 0.0 && amount > pattern_break_multiple * avg_amount_30d",
			Addend:    "10.0",
		},
	}
}

// Describe returns the human-readable description for a reason code.
func Describe(code domain.ReasonCode) string {
	return code.Description()
}
