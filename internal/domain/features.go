package domain

import (
	"math"
	"strings"
	"time"
)

// HoursPerDay is the number of hourly rows generated per location.
const HoursPerDay = 24

// Feature column names, in the order the model expects them.
const (
	FeatureHour           = "hour"
	FeatureHourSin        = "hour_sin"
	FeatureHourCos        = "hour_cos"
	FeatureDayOfWeek      = "day_of_week"
	FeatureDowSin         = "dow_sin"
	FeatureDowCos         = "dow_cos"
	FeatureMonth          = "month"
	FeatureIsWeekend      = "is_weekend"
	FeatureMorningRush    = "is_morning_rush"
	FeatureEveningRush    = "is_evening_rush"
	FeatureRushHour       = "is_rush_hour"
	FeatureNight          = "is_night"
	FeatureLatitude       = "latitude"
	FeatureLongitude      = "longitude"
	FeatureRoadInterstate = "road_interstate"
	FeatureRoadPrimary    = "road_primary"
	FeatureRoadSecondary  = "road_secondary"
	FeatureRoadLocal      = "road_local"
)

// FeatureColumns is the schema shared by every FeatureVector.
var FeatureColumns = []string{
	FeatureHour, FeatureHourSin, FeatureHourCos,
	FeatureDayOfWeek, FeatureDowSin, FeatureDowCos,
	FeatureMonth, FeatureIsWeekend,
	FeatureMorningRush, FeatureEveningRush, FeatureRushHour, FeatureNight,
	FeatureLatitude, FeatureLongitude,
	FeatureRoadInterstate, FeatureRoadPrimary, FeatureRoadSecondary, FeatureRoadLocal,
}

var featureIndex = func() map[string]int {
	m := make(map[string]int, len(FeatureColumns))
	for i, name := range FeatureColumns {
		m[name] = i
	}
	return m
}()

// Columns split by how often they change: the temporal block depends only on
// (date, hour), the static block only on the location.
const (
	temporalCols = 12
	staticCols   = 6
)

// roadClassColumn maps a road class tag to its indicator column offset within
// the static block.
var roadClassColumn = map[string]int{
	"interstate":  2,
	"primary":     3,
	"us_route":    3,
	"secondary":   4,
	"state_route": 4,
	"local":       5,
	"residential": 5,
}

// FeatureVector is one row of model input for a (location, hour) pair.
// Values follow FeatureColumns and must not be modified after generation.
type FeatureVector struct {
	Location *Location
	Hour     int
	Date     string
	Values   []float64
}

// Feature looks up a named feature value.
func (v FeatureVector) Feature(name string) (float64, bool) {
	i, ok := featureIndex[name]
	if !ok || i >= len(v.Values) {
		return 0, false
	}
	return v.Values[i], true
}

// Flag reports whether a named indicator feature is set.
func (v FeatureVector) Flag(name string) bool {
	f, ok := v.Feature(name)
	return ok && f >= 0.5
}

// GenerateFeatures builds the cross product of locations and the 24 hours of
// date. Rows are ordered location-major, then by hour. All rows share one
// backing array; the temporal block is computed once per hour and the static
// block once per location. Returns ErrInvalidDate if date does not parse.
func GenerateFeatures(locations []Location, date string) ([]FeatureVector, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	canonical := day.Format(DateLayout)

	if len(locations) == 0 {
		return []FeatureVector{}, nil
	}

	temporal := temporalBlock(day)

	cols := len(FeatureColumns)
	rows := len(locations) * HoursPerDay
	backing := make([]float64, rows*cols)
	vectors := make([]FeatureVector, rows)

	for li := range locations {
		loc := &locations[li]
		static := staticBlock(*loc)
		for h := 0; h < HoursPerDay; h++ {
			r := li*HoursPerDay + h
			row := backing[r*cols : (r+1)*cols : (r+1)*cols]
			copy(row[:temporalCols], temporal[h][:])
			copy(row[temporalCols:], static[:])
			vectors[r] = FeatureVector{Location: loc, Hour: h, Date: canonical, Values: row}
		}
	}
	return vectors, nil
}

func temporalBlock(day time.Time) [HoursPerDay][temporalCols]float64 {
	// Monday = 0 ... Sunday = 6.
	dow := (int(day.Weekday()) + 6) % 7
	dowAngle := 2 * math.Pi * float64(dow) / 7
	weekend := boolFloat(dow >= 5)
	month := float64(day.Month())

	var block [HoursPerDay][temporalCols]float64
	for h := 0; h < HoursPerDay; h++ {
		angle := 2 * math.Pi * float64(h) / HoursPerDay
		morning := IsMorningRush(h)
		evening := IsEveningRush(h)
		block[h] = [temporalCols]float64{
			float64(h), math.Sin(angle), math.Cos(angle),
			float64(dow), math.Sin(dowAngle), math.Cos(dowAngle),
			month, weekend,
			boolFloat(morning), boolFloat(evening), boolFloat(morning || evening), boolFloat(IsNight(h)),
		}
	}
	return block
}

func staticBlock(loc Location) [staticCols]float64 {
	block := [staticCols]float64{loc.Lat, loc.Lon}
	if col, ok := roadClassColumn[strings.ToLower(strings.TrimSpace(loc.RoadClass))]; ok {
		block[col] = 1
	}
	return block
}

// IsMorningRush reports whether hour falls in the 07–09 window.
func IsMorningRush(hour int) bool { return hour >= 7 && hour <= 9 }

// IsEveningRush reports whether hour falls in the 16–18 window.
func IsEveningRush(hour int) bool { return hour >= 16 && hour <= 18 }

// IsNight reports whether hour falls in the 22–05 window.
func IsNight(hour int) bool { return hour >= 22 || hour <= 5 }

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
