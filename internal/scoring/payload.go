package scoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
)

var (
	// ErrMalformed indicates the scorer output was not valid JSON or did not
	// carry one value per feature vector.
	ErrMalformed = errors.New("malformed scorer output")
	// ErrShape indicates the scorer output was valid but held no recognised
	// prediction field.
	ErrShape = errors.New("unrecognised scorer output shape")
)

type request struct {
	Date    string      `json:"date"`
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

// encodeRequest builds the stdin payload. Row values reference the vectors'
// backing arrays and are not copied.
func encodeRequest(vectors []domain.FeatureVector) ([]byte, error) {
	req := request{Columns: domain.FeatureColumns, Rows: make([][]float64, len(vectors))}
	if len(vectors) > 0 {
		req.Date = vectors[0].Date
	}
	for i := range vectors {
		req.Rows[i] = vectors[i].Values
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode scorer payload: %w", err)
	}
	return data, nil
}

type response struct {
	Probabilities json.RawMessage `json:"probabilities"`
	Scores        json.RawMessage `json:"scores"`
}

// interpret maps scorer stdout onto the vectors. Two-column probabilities are
// preferred, then single numeric scores.
func interpret(out []byte, vectors []domain.FeatureVector) ([]domain.RawScore, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrMalformed)
	}

	var resp response
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if len(resp.Probabilities) > 0 && !isNull(resp.Probabilities) {
		var rows [][]float64
		if err := json.Unmarshal(resp.Probabilities, &rows); err != nil {
			return nil, fmt.Errorf("%w: probabilities: %w", ErrMalformed, err)
		}
		if err := checkRows(len(rows), len(vectors)); err != nil {
			return nil, err
		}
		if len(rows) == 0 || len(rows[0]) == 2 {
			scores := make([]domain.RawScore, len(vectors))
			for i, row := range rows {
				if len(row) != 2 {
					return nil, fmt.Errorf("%w: probability row %d has %d columns", ErrMalformed, i, len(row))
				}
				scores[i] = domain.Probability(&vectors[i], row[1])
			}
			return scores, nil
		}
		// A single-column probabilities field is treated as plain scores.
		if len(rows[0]) == 1 && len(resp.Scores) == 0 {
			return singleColumn(rows, vectors)
		}
	}

	if len(resp.Scores) > 0 && !isNull(resp.Scores) {
		return decodeScores(resp.Scores, vectors)
	}
	return nil, ErrShape
}

func decodeScores(raw json.RawMessage, vectors []domain.FeatureVector) ([]domain.RawScore, error) {
	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		if err := checkRows(len(flat), len(vectors)); err != nil {
			return nil, err
		}
		scores := make([]domain.RawScore, len(vectors))
		for i, v := range flat {
			scores[i] = domain.RegressionScore(&vectors[i], v)
		}
		return scores, nil
	}

	var nested [][]float64
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("%w: scores: %w", ErrMalformed, err)
	}
	if err := checkRows(len(nested), len(vectors)); err != nil {
		return nil, err
	}
	return singleColumn(nested, vectors)
}

func singleColumn(rows [][]float64, vectors []domain.FeatureVector) ([]domain.RawScore, error) {
	scores := make([]domain.RawScore, len(vectors))
	for i, row := range rows {
		if len(row) != 1 {
			return nil, fmt.Errorf("%w: score row %d has %d columns", ErrShape, i, len(row))
		}
		scores[i] = domain.RegressionScore(&vectors[i], row[0])
	}
	return scores, nil
}

func checkRows(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: %d rows for %d feature vectors", ErrMalformed, got, want)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
