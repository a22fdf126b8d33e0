// Command genmock generates a mock predictions CSV for one date without the
// external model. It runs the same feature generation and normalization as
// the service, scoring every row with the deterministic synthetic scorer, so
// the output can seed the persistent cache or feed the map renderer in
// development.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -locations data/locations.csv \
//	  -date 2025-11-22 \
//	  -out data/cache/predictions_2025-11-22.csv
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/couchcryptid/crash-risk-service/internal/adapter/filestore"
	"github.com/couchcryptid/crash-risk-service/internal/domain"
	"github.com/couchcryptid/crash-risk-service/internal/scoring"
	"github.com/spf13/afero"
)

func main() {
	locations := flag.String("locations", "data/locations.csv", "location CSV with lat,lon[,name,road_class]")
	date := flag.String("date", "", "prediction date (YYYY-MM-DD, MM/DD/YYYY or MM-DD-YYYY)")
	out := flag.String("out", "", "output CSV path (default predictions_<date>.csv)")
	envelopeFlag := flag.String("envelope", domain.VirginiaEnvelope.String(), "region envelope as minLat,minLon,maxLat,maxLon")
	flag.Parse()

	if *date == "" {
		flag.Usage()
		log.Fatal("missing required flag: -date")
	}
	envelope, err := domain.ParseEnvelope(*envelopeFlag)
	if err != nil {
		log.Fatalf("invalid -envelope: %v", err)
	}

	if err := run(afero.NewOsFs(), *locations, *date, *out, envelope); err != nil {
		log.Fatal(err)
	}
}

func run(fsys afero.Fs, locationsPath, dateInput, outPath string, envelope domain.Envelope) error {
	date, err := domain.CanonicalDate(dateInput)
	if err != nil {
		return err
	}
	if outPath == "" {
		outPath = "predictions_" + date + ".csv"
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	locs, err := filestore.NewLocationFile(fsys, locationsPath, logger).Locations(context.Background())
	if err != nil {
		return err
	}
	if len(locs) == 0 {
		return errors.New("location file has no usable rows")
	}

	vectors, err := domain.GenerateFeatures(locs, date)
	if err != nil {
		return fmt.Errorf("generate features: %w", err)
	}
	preds, stats := domain.Normalize(scoring.Synthesize(vectors), envelope)

	f, err := fsys.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	if err := writePredictions(f, preds); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	log.Printf("%s: %d locations, %d predictions, %d outside envelope", date, len(locs), len(preds), stats.OutsideEnvelope)
	log.Printf("wrote %s", outPath)
	return nil
}

func writePredictions(w io.WriteCloser, preds []domain.Prediction) error {
	if err := domain.EncodePredictionsCSV(w, preds); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
