// Package report renders clusters and audit trails for export.
package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// AuditCSVHeader is the column order of WriteAuditCSV.
var AuditCSVHeader = []string{
	"log_id", "timestamp", "actor", "action", "entity_type",
	"entity_id", "model_version", "decision", "reason_codes",
}

// SARSummary renders a plain-text suspicious activity summary for a cluster.
func SARSummary(c *domain.Cluster, generatedAt time.Time) string {
	var b strings.Builder

	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}
	section := func(title string) {
		line("")
		line("%s", title)
		line("%s", strings.Repeat("-", len(title)))
	}

	line("SAR-READY SUMMARY")
	line("=================")
	line("Cluster ID: %s", c.ID)
	line("Date Generated: %s", generatedAt.UTC().Format(time.RFC3339))
	line("Status: %s", c.Status)

	section("SUSPICIOUS ACTIVITY SUMMARY")
	line("Typology: %s", c.Typology)
	line("Risk Score: %d/100", c.RiskScore)
	line("Total Flow Amount: $%s", Money(c.TotalFlowAmount))
	line("Number of Accounts Involved: %d", c.AccountCount)

	section("TYPOLOGY EVIDENCE")
	line("Fan-Out Count: %d", c.FanOutCount)
	line("Fan-In Count: %d", c.FanInCount)
	line("Cycle Detected: %s", yesNo(c.CycleIndicator))
	line("Layering Depth: %d", c.LayeringDepth)
	line("Burst Velocity: %.2f transactions/hour", c.BurstVelocity)
	if len(c.DetectedTypologies) > 0 {
		names := make([]string, 0, len(c.DetectedTypologies))
		for _, t := range c.DetectedTypologies {
			names = append(names, string(t))
		}
		line("Confirmed Typologies: %s", strings.Join(names, ", "))
	} else {
		line("Confirmed Typologies: None")
	}

	section("HUB ACCOUNTS")
	if len(c.HubAccounts) == 0 {
		line("None identified")
	}
	for _, acct := range c.HubAccounts {
		line("%s", acct)
	}

	section("TRANSFER TIMELINE")
	if len(c.Transfers) == 0 {
		line("No transfers recorded")
	}
	for _, t := range c.Transfers {
		line("%s -> %s: $%s at %s", t.FromAccount, t.ToAccount, Money(t.Amount),
			t.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	}

	line("")
	line("=================")
	line("END OF SAR SUMMARY")
	return b.String()
}

// Money formats an amount with two decimals and thousands separators.
func Money(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "." + frac
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// WriteAuditCSV writes entries as CSV with every value quoted. Reason codes
// are joined with "; ".
func WriteAuditCSV(w io.Writer, entries []*domain.AuditEntry) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(strings.Join(AuditCSVHeader, ",") + "\n"); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Actor,
			e.Action,
			e.EntityType,
			e.EntityID,
			e.ModelVersion,
			string(e.Decision),
			strings.Join(e.ReasonCodes, "; "),
		}
		for i, v := range row {
			row[i] = quote(v)
		}
		if _, err := bw.WriteString(strings.Join(row, ",") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
