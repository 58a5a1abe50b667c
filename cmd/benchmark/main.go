// Benchmark tool for measuring Kestrel's scoring against labelled synthetic data.
//
// Usage:
//
//	go run ./cmd/benchmark -n 20000 -seed 7
//	go run ./cmd/benchmark -n 5000 -url http://localhost:8080 -workers 20
//
// This tool:
//  1. Generates labelled transaction drafts from a seeded generator
//  2. Scores each draft with a label-free engine, in process or over HTTP
//  3. Compares the decision with the generator's fraud label
//  4. Prints precision, recall, F1-score and the confusion matrix
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/simulate"
)

// Scorer turns an unscored draft into a scored transaction.
type Scorer interface {
	Score(ctx context.Context, draft *domain.Transaction) (*domain.Transaction, error)
}

func main() {
	count := flag.Int("n", 10000, "Number of transactions to generate")
	seed := flag.Int64("seed", 1, "Generator seed")
	attack := flag.Bool("attack", false, "Generate with the attack-mode fraud rate")
	baseURL := flag.String("url", "", "Kestrel base URL (empty scores in process)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	positive := flag.String("positive", "challenge", "Lowest decision counted as a fraud prediction: challenge or decline")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	threshold := domain.DecisionChallenge
	switch strings.ToLower(*positive) {
	case "challenge":
	case "decline":
		threshold = domain.DecisionDecline
	default:
		fmt.Printf("ERROR: -positive must be challenge or decline, got %q\n", *positive)
		os.Exit(1)
	}

	cfg := domain.DefaultConfig()
	cfg.Simulation.Seed = *seed
	gen, err := simulate.NewFromConfig(cfg)
	if err != nil {
		fmt.Printf("ERROR: failed to create generator: %v\n", err)
		os.Exit(1)
	}

	var scorer Scorer
	target := "in process"
	if *baseURL != "" {
		if err := checkHealth(*baseURL); err != nil {
			fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
			fmt.Println("\nMake sure Kestrel is running:")
			fmt.Println("  go run ./cmd/kestrel")
			os.Exit(1)
		}
		scorer = &httpScorer{client: &http.Client{Timeout: 10 * time.Second}, baseURL: *baseURL}
		target = *baseURL
	} else {
		local, err := newLocalScorer(cfg)
		if err != nil {
			fmt.Printf("ERROR: failed to create scorer: %v\n", err)
			os.Exit(1)
		}
		scorer = local
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          KESTREL BENCHMARK - Synthetic Fraud Detection        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nTransactions: %d\n", *count)
	fmt.Printf("Seed:         %d\n", *seed)
	fmt.Printf("Attack Mode:  %v\n", *attack)
	fmt.Printf("Scorer:       %s\n", target)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Positive at:  %s\n", threshold)
	fmt.Println()

	// Drafts come from one goroutine so the labelled set depends only on the seed.
	drafts := make([]*domain.Transaction, *count)
	for i := range drafts {
		drafts[i] = gen.Draft(*attack)
	}

	start := time.Now()
	metrics := runBenchmark(context.Background(), scorer, drafts, threshold, *workers, *verbose)
	printResults(metrics, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func runBenchmark(ctx context.Context, scorer Scorer, drafts []*domain.Transaction, threshold domain.Decision, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan *domain.Transaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < max(numWorkers, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for draft := range work {
				start := time.Now()
				tx, err := scorer.Score(ctx, draft)
				metrics.ProcessingTimeMs.Add(time.Since(start).Milliseconds())

				if err != nil {
					metrics.TotalErrors.Add(1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", draft.ID, err)
					}
					continue
				}

				predicted := tx.Decision.Rank() >= threshold.Rank()
				metrics.Observe(predicted, draft.IsFraud)

				if verbose {
					status := "✓"
					if predicted != draft.IsFraud {
						status = "✗"
					}
					fmt.Printf("%s %-11s | Amount: $%10.2f | Fraud: %-5v | Kestrel: %-9s (%3d) | %s\n",
						status,
						draft.ID,
						draft.Amount,
						draft.IsFraud,
						tx.Decision,
						tx.RiskScore,
						strings.Join(tx.ReasonCodes, ", "),
					)
				}
			}
		}()
	}

	for _, draft := range drafts {
		work <- draft
	}
	close(work)
	wg.Wait()

	return metrics
}

// localScorer scores with a production engine that never reads the label.
type localScorer struct {
	processor *decision.Processor
}

func newLocalScorer(cfg *domain.Config) (*localScorer, error) {
	opts, err := scoring.OptionsFromConfig(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	engine, err := scoring.New(opts)
	if err != nil {
		return nil, err
	}
	processor, err := decision.NewProcessor(engine, cfg.Decision)
	if err != nil {
		return nil, err
	}
	return &localScorer{processor: processor}, nil
}

func (s *localScorer) Score(ctx context.Context, draft *domain.Transaction) (*domain.Transaction, error) {
	return s.processor.Process(ctx, draft)
}

// httpScorer posts drafts to a running Kestrel server.
type httpScorer struct {
	client  *http.Client
	baseURL string
}

func (s *httpScorer) Score(ctx context.Context, draft *domain.Transaction) (*domain.Transaction, error) {
	body, err := json.Marshal(draft)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/transactions/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var tx domain.Transaction
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, err
	}
	return &tx, nil
}
