// Package fixtures holds the static mock data the dashboard renders and the
// randomized history behind the reports view.
package fixtures

import "time"

// CropHealth is the overall crop health index.
type CropHealth struct {
	Status string
	Index  int
}

// PestAlert is one detected pest incident.
type PestAlert struct {
	Timestamp time.Time
	ID        string
	Severity  string
	Type      string
	Location  string
}

// Nutrients are soil nutrient levels in percent.
type Nutrients struct {
	Nitrogen   int
	Phosphorus int
	Potassium  int
}

// SoilCondition is the latest soil analysis.
type SoilCondition struct {
	Nutrients   Nutrients
	PH          float64
	Moisture    int
	Temperature int
}

// PesticideStatus describes the product currently applied.
type PesticideStatus struct {
	LastApplied   time.Time
	Name          string
	Effectiveness int
	Coverage      int
}

// DroneStatus is the drone telemetry shown on the dashboard.
type DroneStatus struct {
	BatteryLevel   float64
	SignalStrength int
	Latitude       float64
	Longitude      float64
	Altitude       float64
	Speed          float64
	IsActive       bool
}

// PesticidePerformance is a product's effectiveness curve.
type PesticidePerformance struct {
	ID             string
	Name           string
	Recommendation string
	Effectiveness  []int
	TimePoints     []string
}

// Point pairs a time label with an effectiveness value.
type Point struct {
	Label string
	Value int
}

// Curve zips TimePoints with Effectiveness.
func (p PesticidePerformance) Curve() []Point {
	n := min(len(p.TimePoints), len(p.Effectiveness))
	points := make([]Point, n)
	for i := range n {
		points[i] = Point{Label: p.TimePoints[i], Value: p.Effectiveness[i]}
	}
	return points
}

// Peak returns the highest effectiveness value.
func (p PesticidePerformance) Peak() int {
	peak := 0
	for _, v := range p.Effectiveness {
		peak = max(peak, v)
	}
	return peak
}

var timePoints = []string{"Day 1", "Day 3", "Day 7", "Day 10", "Day 14", "Day 21", "Day 28"}

// CurrentCropHealth returns the crop health card.
func CurrentCropHealth() CropHealth {
	return CropHealth{Index: 78, Status: "good"}
}

// PestAlerts returns the recent alerts relative to now.
func PestAlerts(now time.Time) []PestAlert {
	return []PestAlert{
		{ID: "1", Severity: "high", Type: "Aphids", Location: "North Field", Timestamp: now.Add(-2 * time.Hour)},
		{ID: "2", Severity: "medium", Type: "Locusts", Location: "East Field", Timestamp: now.Add(-5 * time.Hour)},
		{ID: "3", Severity: "low", Type: "Thrips", Location: "South Field", Timestamp: now.Add(-8 * time.Hour)},
	}
}

// CurrentSoilCondition returns the soil card.
func CurrentSoilCondition() SoilCondition {
	return SoilCondition{
		Moisture:    42,
		Temperature: 24,
		PH:          6.8,
		Nutrients:   Nutrients{Nitrogen: 45, Phosphorus: 35, Potassium: 50},
	}
}

// CurrentPesticideStatus returns the applied product, last applied three days
// before now.
func CurrentPesticideStatus(now time.Time) PesticideStatus {
	return PesticideStatus{
		Name:          "Eco-Guard Plus",
		Effectiveness: 85,
		LastApplied:   now.Add(-3 * 24 * time.Hour),
		Coverage:      92,
	}
}

// CurrentDroneStatus returns the drone card.
func CurrentDroneStatus() DroneStatus {
	return DroneStatus{
		BatteryLevel:   78,
		SignalStrength: 92,
		Latitude:       23.8103,
		Longitude:      90.4125,
		Altitude:       45,
		Speed:          5.2,
		IsActive:       true,
	}
}

// PesticidePerformances returns the three compared products.
func PesticidePerformances() []PesticidePerformance {
	return []PesticidePerformance{
		{
			ID:             "1",
			Name:           "Eco-Guard Plus",
			Effectiveness:  []int{65, 78, 85, 82, 80, 75, 72},
			TimePoints:     timePoints,
			Recommendation: "Effective for current conditions. Consider reapplication after 21 days.",
		},
		{
			ID:             "2",
			Name:           "BioShield",
			Effectiveness:  []int{78, 85, 90, 88, 85, 80, 72},
			TimePoints:     timePoints,
			Recommendation: "Highly effective but more costly. Best for severe infestations.",
		},
		{
			ID:             "3",
			Name:           "NatureSafe",
			Effectiveness:  []int{60, 65, 70, 72, 70, 65, 60},
			TimePoints:     timePoints,
			Recommendation: "Eco-friendly option with moderate effectiveness. Requires more frequent application.",
		},
	}
}

// FindPesticide looks a product up by id.
func FindPesticide(id string) (PesticidePerformance, bool) {
	for _, p := range PesticidePerformances() {
		if p.ID == id {
			return p, true
		}
	}
	return PesticidePerformance{}, false
}

// CropTypes lists the selectable crops.
func CropTypes() []string {
	return []string{"Rice", "Wheat", "Corn", "Potatoes", "Tomatoes", "Soybeans", "Sunflower", "Cotton", "Sugarcane"}
}

// Locations lists the report location filter values.
func Locations() []string {
	return []string{"North", "South", "East", "West"}
}

// HealthDistribution is the share of fields per health class.
func HealthDistribution() []Point {
	return []Point{
		{Label: "Excellent", Value: 45},
		{Label: "Good", Value: 30},
		{Label: "Moderate", Value: 15},
		{Label: "Poor", Value: 10},
	}
}
