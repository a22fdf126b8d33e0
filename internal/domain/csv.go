package domain

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PredictionHeader is the column order written to persisted prediction files.
var PredictionHeader = []string{"lat", "lon", "probability", "confidence_score", "hour", "date", "location_name", "source"}

// EncodePredictionsCSV writes predictions with a header row. Floats use the
// shortest representation that parses back to the same value.
func EncodePredictionsCSV(w io.Writer, preds []Prediction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PredictionHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range preds {
		p := &preds[i]
		rec := []string{
			formatFloat(p.Lat),
			formatFloat(p.Lon),
			formatFloat(p.Probability),
			strconv.Itoa(p.ConfidenceScore),
			strconv.Itoa(p.Hour),
			p.Date,
			p.LocationName,
			string(p.Source),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodePredictionsCSV reads predictions written by EncodePredictionsCSV or
// by the offline tooling. Columns are located by header name; lat, lon,
// probability and hour are required. A missing confidence_score is derived
// from the probability.
func DecodePredictionsCSV(r io.Reader) ([]Prediction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no header row found")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := indexHeader(header)
	for _, required := range []string{"lat", "lon", "probability", "hour"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var preds []Prediction
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		p, err := decodePrediction(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		preds = append(preds, p)
	}
	if preds == nil {
		preds = []Prediction{}
	}
	return preds, nil
}

func decodePrediction(rec []string, cols map[string]int) (Prediction, error) {
	var p Prediction
	var err error
	if p.Lat, err = parseFloatField(rec, cols, "lat"); err != nil {
		return p, err
	}
	if p.Lon, err = parseFloatField(rec, cols, "lon"); err != nil {
		return p, err
	}
	if p.Probability, err = parseFloatField(rec, cols, "probability"); err != nil {
		return p, err
	}
	if p.Hour, err = parseIntField(rec, cols, "hour"); err != nil {
		return p, err
	}
	if field(rec, cols, "confidence_score") != "" {
		if p.ConfidenceScore, err = parseIntField(rec, cols, "confidence_score"); err != nil {
			return p, err
		}
	} else {
		p.ConfidenceScore = Confidence(ClampProbability(p.Probability))
	}
	p.Date = field(rec, cols, "date")
	p.LocationName = field(rec, cols, "location_name")
	p.Source = Provenance(field(rec, cols, "source"))
	return p, nil
}

// DecodeLocationsCSV reads a location list with a header containing lat and
// lon, and optionally name (or location_name) and road_class. Rows with
// unparsable or out-of-range coordinates are skipped and counted.
func DecodeLocationsCSV(r io.Reader) ([]Location, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, errors.New("no header row found")
		}
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	cols := indexHeader(header)
	for _, required := range []string{"lat", "lon"} {
		if _, ok := cols[required]; !ok {
			return nil, 0, fmt.Errorf("missing required column %q", required)
		}
	}
	nameCol := "name"
	if _, ok := cols[nameCol]; !ok {
		nameCol = "location_name"
	}

	var (
		locations []Location
		skipped   int
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("row %d: %w", line, err)
		}
		lat, errLat := parseFloatField(rec, cols, "lat")
		lon, errLon := parseFloatField(rec, cols, "lon")
		loc := Location{
			Lat:       lat,
			Lon:       lon,
			Name:      field(rec, cols, nameCol),
			RoadClass: field(rec, cols, "road_class"),
		}
		if errLat != nil || errLon != nil || !loc.Valid() {
			skipped++
			continue
		}
		locations = append(locations, loc)
	}
	return locations, skipped, nil
}

func indexHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return cols
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseFloatField(rec []string, cols map[string]int, name string) (float64, error) {
	v, err := strconv.ParseFloat(field(rec, cols, name), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func parseIntField(rec []string, cols map[string]int, name string) (int, error) {
	v, err := strconv.Atoi(field(rec, cols, name))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
