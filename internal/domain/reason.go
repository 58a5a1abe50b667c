package domain

// ReasonCode is a short identifier for one factor contributing to a risk score.
type ReasonCode string

const (
	ReasonHighVelocity ReasonCode = "high_velocity"
	ReasonNewDevice    ReasonCode = "new_device"
	ReasonGeoAnomaly   ReasonCode = "geo_anomaly"
	ReasonHighAmount   ReasonCode = "high_amount"
	ReasonMerchantRisk ReasonCode = "merchant_risk"
	ReasonTimeAnomaly  ReasonCode = "time_anomaly"
	ReasonChannelRisk  ReasonCode = "channel_risk"
	ReasonPatternBreak ReasonCode = "pattern_break"
)

var reasonDescriptions = map[ReasonCode]string{
	ReasonHighVelocity: "High transaction velocity (>5 tx in 10 min)",
	ReasonNewDevice:    "Transaction from new/unknown device",
	ReasonGeoAnomaly:   "Geographic distance anomaly detected",
	ReasonHighAmount:   "Amount exceeds normal spending pattern",
	ReasonMerchantRisk: "High-risk merchant category",
	ReasonTimeAnomaly:  "Unusual transaction time",
	ReasonChannelRisk:  "High-risk channel for amount",
	ReasonPatternBreak: "Deviation from historical pattern",
}

// ReasonVocabulary returns the fixed set of reason codes.
func ReasonVocabulary() []ReasonCode {
	return []ReasonCode{
		ReasonHighVelocity,
		ReasonNewDevice,
		ReasonGeoAnomaly,
		ReasonHighAmount,
		ReasonMerchantRisk,
		ReasonTimeAnomaly,
		ReasonChannelRisk,
		ReasonPatternBreak,
	}
}

// Description returns the human-readable text for a reason code.
func (r ReasonCode) Description() string {
	return reasonDescriptions[r]
}

// Valid reports whether r belongs to the vocabulary.
func (r ReasonCode) Valid() bool {
	_, ok := reasonDescriptions[r]
	return ok
}

// Describe maps codes to their descriptions, preserving order.
func Describe(codes []ReasonCode) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, c.Description())
	}
	return out
}
