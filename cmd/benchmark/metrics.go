package main

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Metrics tracks benchmark results. It is safe for concurrent use.
type Metrics struct {
	TruePositives  atomic.Int64 // fraud flagged
	FalsePositives atomic.Int64 // legitimate flagged
	TrueNegatives  atomic.Int64 // legitimate approved
	FalseNegatives atomic.Int64 // fraud approved

	TotalErrors      atomic.Int64
	ProcessingTimeMs atomic.Int64
}

// Observe records one prediction against its label.
func (m *Metrics) Observe(predicted, actual bool) {
	switch {
	case predicted && actual:
		m.TruePositives.Add(1)
	case predicted && !actual:
		m.FalsePositives.Add(1)
	case !predicted && !actual:
		m.TrueNegatives.Add(1)
	default:
		m.FalseNegatives.Add(1)
	}
}

// Summary is a point-in-time view of the counters and derived rates.
type Summary struct {
	TP, FP, TN, FN int64
	Precision      float64
	Recall         float64
	F1             float64
	Accuracy       float64
}

// Total is the number of scored transactions.
func (s Summary) Total() int64 {
	return s.TP + s.FP + s.TN + s.FN
}

// Summarize computes precision, recall, F1 and accuracy. Undefined ratios are 0.
func (m *Metrics) Summarize() Summary {
	s := Summary{
		TP: m.TruePositives.Load(),
		FP: m.FalsePositives.Load(),
		TN: m.TrueNegatives.Load(),
		FN: m.FalseNegatives.Load(),
	}
	s.Precision = ratio(s.TP, s.TP+s.FP)
	s.Recall = ratio(s.TP, s.TP+s.FN)
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	s.Accuracy = ratio(s.TP+s.TN, s.Total())
	return s
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func printResults(m *Metrics, duration time.Duration) {
	s := m.Summarize()
	fraud, legit := s.TP+s.FN, s.FP+s.TN

	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Scored:     %d\n", s.Total())
	fmt.Printf("   Total Fraud:      %d\n", fraud)
	fmt.Printf("   Total Legitimate: %d\n", legit)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors.Load())

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    Flagged   Approved")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", s.TP, s.FN)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           L  │ %8d │ %8d │  (FP, TN)\n", s.FP, s.TN)
	fmt.Println("              └──────────┴──────────┘")

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f\n", s.Precision)
	fmt.Printf("   Recall:     %.4f\n", s.Recall)
	fmt.Printf("   F1-Score:   %.4f\n", s.F1)
	fmt.Printf("   Accuracy:   %.4f\n", s.Accuracy)

	if fraud > 0 {
		fmt.Printf("\n   Fraud Detected:   %d / %d (%.2f%%)\n", s.TP, fraud, 100*ratio(s.TP, fraud))
	}
	if legit > 0 {
		fmt.Printf("   False Alarms:     %d / %d (%.2f%%)\n", s.FP, legit, 100*ratio(s.FP, legit))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if n := s.Total() + m.TotalErrors.Load(); n > 0 {
		fmt.Printf("   Avg Latency:      %.2f ms\n", float64(m.ProcessingTimeMs.Load())/float64(n))
		fmt.Printf("   Throughput:       %.2f tx/sec\n", float64(n)/duration.Seconds())
	}
	fmt.Println()
}
