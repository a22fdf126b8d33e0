// Command validate checks a crash-risk predictions CSV before it is handed to
// the map renderer. It verifies the header, per-row value ranges and the
// confidence formula, and warns about points outside the map envelope.
//
// Usage:
//
//	go run ./cmd/validate data/cache/predictions_2025-11-22.csv
//	go run ./cmd/validate -envelope 37,-80,38,-76 predictions.csv
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
)

const (
	defaultFile = "data/crash_predictions.csv"
	maxErrors   = 10
	maxWarnings = 5
)

var requiredColumns = []string{"lat", "lon", "probability", "hour"}

// phase tracks pass/fail for a validation phase. Warnings never fail a phase.
type phase struct {
	name     string
	errors   []string
	warnings []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) warnf(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	envelopeFlag := flag.String("envelope", domain.VirginiaEnvelope.String(), "region envelope as minLat,minLon,maxLat,maxLon")
	flag.Parse()

	envelope, err := domain.ParseEnvelope(*envelopeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -envelope: %v\n", err)
		os.Exit(2)
	}

	path := defaultFile
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}

	if code := run(path, envelope, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(path string, envelope domain.Envelope, out io.Writer) int {
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintln(out, "Crash Risk Predictions Validation")
	fmt.Fprintln(out, strings.Repeat("=", 60))

	header, rows, err := loadCSV(path)
	if err != nil {
		fmt.Fprintf(out, "FATAL: %v\n", err)
		return 1
	}

	phases := []*phase{validateHeader(header)}
	if phases[0].passed() {
		phases = append(phases,
			validateRanges(rows),
			validateConfidence(rows),
			validateEnvelope(rows, envelope),
		)
	}

	fmt.Fprintf(out, "\nFile: %s\n", path)
	fmt.Fprintf(out, "Rows processed: %d\n", len(rows))
	fmt.Fprintf(out, "Columns found: %s\n\n", strings.Join(header, ", "))

	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		if len(p.warnings) > 0 {
			status += fmt.Sprintf(", %d warnings", len(p.warnings))
		}
		fmt.Fprintf(out, "  %-28s %s\n", p.name, status)
	}

	for _, p := range phases {
		report(out, p.name+" errors", p.errors, maxErrors)
		report(out, p.name+" warnings", p.warnings, maxWarnings)
	}

	if allPassed {
		fmt.Fprintln(out, "\nValidation passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

func report(out io.Writer, title string, items []string, limit int) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "\n--- %s ---\n", title)
	for i, item := range items {
		if i == limit {
			fmt.Fprintf(out, "  ... and %d more\n", len(items)-limit)
			break
		}
		fmt.Fprintf(out, "  [%d] %s\n", i+1, item)
	}
}

// ── Data loading ──

// csvRow is a parsed CSV row with field values keyed by lower-cased header name.
type csvRow struct {
	lineNum int
	fields  map[string]string
}

func (r csvRow) has(col string) bool {
	_, ok := r.fields[col]
	return ok
}

func loadCSV(path string) ([]string, []csvRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("no header row found in %s", path)
		}
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	var rows []csvRow
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		fields := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(rec) {
				fields[strings.ToLower(strings.TrimSpace(h))] = strings.TrimSpace(rec[j])
			}
		}
		rows = append(rows, csvRow{lineNum: line, fields: fields})
	}
	return header, rows, nil
}

// ── Phases ──

func validateHeader(header []string) *phase {
	p := &phase{name: "Header"}
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		seen[strings.ToLower(strings.TrimSpace(h))] = true
	}
	for _, col := range requiredColumns {
		if !seen[col] {
			p.errorf("missing required column %q", col)
		}
	}
	return p
}

func validateRanges(rows []csvRow) *phase {
	p := &phase{name: "Value ranges"}
	for _, row := range rows {
		checkFloat(p, row, "lat", -90, 90)
		checkFloat(p, row, "lon", -180, 180)
		checkFloat(p, row, "probability", 0, 1)
		checkInt(p, row, "hour", 0, 23)
		if row.has("confidence_score") && row.fields["confidence_score"] != "" {
			checkInt(p, row, "confidence_score", 0, 100)
		}
		if row.has("date") {
			if _, err := domain.ParseDate(row.fields["date"]); err != nil {
				p.errorf("row %d: invalid date %q", row.lineNum, row.fields["date"])
			}
		}
	}
	return p
}

// validateConfidence checks confidence_score against round(100*max(p,1-p)).
func validateConfidence(rows []csvRow) *phase {
	p := &phase{name: "Confidence formula"}
	for _, row := range rows {
		raw := row.fields["confidence_score"]
		if raw == "" {
			continue
		}
		conf, errC := strconv.Atoi(raw)
		prob, errP := strconv.ParseFloat(row.fields["probability"], 64)
		if errC != nil || errP != nil || prob < 0 || prob > 1 {
			continue // reported by the range phase
		}
		if want := domain.Confidence(prob); conf != want {
			p.errorf("row %d: confidence_score %d does not match probability %v (want %d)", row.lineNum, conf, prob, want)
		}
	}
	return p
}

func validateEnvelope(rows []csvRow, envelope domain.Envelope) *phase {
	p := &phase{name: "Region envelope"}
	for _, row := range rows {
		lat, errLat := strconv.ParseFloat(row.fields["lat"], 64)
		lon, errLon := strconv.ParseFloat(row.fields["lon"], 64)
		if errLat != nil || errLon != nil {
			continue
		}
		if lat < envelope.MinLat || lat > envelope.MaxLat {
			p.warnf("row %d: latitude %v outside envelope [%v, %v]", row.lineNum, lat, envelope.MinLat, envelope.MaxLat)
		}
		if lon < envelope.MinLon || lon > envelope.MaxLon {
			p.warnf("row %d: longitude %v outside envelope [%v, %v]", row.lineNum, lon, envelope.MinLon, envelope.MaxLon)
		}
	}
	return p
}

func checkFloat(p *phase, row csvRow, col string, lo, hi float64) {
	v, err := strconv.ParseFloat(row.fields[col], 64)
	if err != nil {
		p.errorf("row %d: invalid %s value %q", row.lineNum, col, row.fields[col])
		return
	}
	if v < lo || v > hi {
		p.errorf("row %d: %s %v out of range [%v, %v]", row.lineNum, col, v, lo, hi)
	}
}

func checkInt(p *phase, row csvRow, col string, lo, hi int) {
	v, err := strconv.Atoi(row.fields[col])
	if err != nil {
		p.errorf("row %d: invalid %s value %q", row.lineNum, col, row.fields[col])
		return
	}
	if v < lo || v > hi {
		p.errorf("row %d: %s %d out of range [%d, %d]", row.lineNum, col, v, lo, hi)
	}
}
