// Package telemetry simulates the field sensors and the spray drone: a
// bounded random walk over sensor readings, an auto/manual refresh monitor
// and the drone's battery-drain loop.
package telemetry

import (
	"math"
	"time"
)

// Maximum absolute change per refresh for each field.
const (
	TemperatureBound  = 1.0
	HumidityBound     = 2.5
	SoilMoistureBound = 1.5
	GasLevelBound     = 5.0
)

// SeedPoints is the length of the hourly seed series.
const SeedPoints = 24

// Reading is one snapshot of the field sensors.
type Reading struct {
	Timestamp    time.Time
	Temperature  float64 // °C
	Humidity     float64 // %
	SoilMoisture float64 // %
	GasLevel     float64 // ppm
}

// Rand is the randomness source Refresh draws from. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// SeedSeries returns the hourly series ending at now that the dashboard
// starts from. Values follow slow sine waves and are rounded to one decimal.
func SeedSeries(now time.Time) []Reading {
	series := make([]Reading, SeedPoints)
	for i := range series {
		x := float64(i)
		series[i] = Reading{
			Temperature:  Round1(22 + math.Sin(x/3)*4),
			Humidity:     Round1(60 + math.Sin(x/4)*10),
			SoilMoisture: Round1(40 + math.Sin(x/2)*8),
			GasLevel:     Round1(120 + math.Sin(x/5)*30),
			Timestamp:    now.Add(-time.Duration(SeedPoints-1-i) * time.Hour),
		}
	}
	return series
}

// Baseline is the last point of SeedSeries(now).
func Baseline(now time.Time) Reading {
	series := SeedSeries(now)
	return series[len(series)-1]
}

// Refresh derives the next reading: every field moves by a uniform delta
// within its bound and is rounded to one decimal.
func Refresh(prev Reading, rng Rand, now time.Time) Reading {
	return Reading{
		Temperature:  Round1(prev.Temperature + delta(rng, TemperatureBound)),
		Humidity:     Round1(prev.Humidity + delta(rng, HumidityBound)),
		SoilMoisture: Round1(prev.SoilMoisture + delta(rng, SoilMoistureBound)),
		GasLevel:     Round1(prev.GasLevel + delta(rng, GasLevelBound)),
		Timestamp:    now,
	}
}

func delta(rng Rand, bound float64) float64 {
	return rng.Float64()*2*bound - bound
}

// Fields returns the reading as name/value pairs in display order.
func (r Reading) Fields() []Field {
	return []Field{
		{Name: "temperature", Label: "Temperature", Unit: "°C", Value: r.Temperature},
		{Name: "humidity", Label: "Humidity", Unit: "%", Value: r.Humidity},
		{Name: "soil_moisture", Label: "Soil Moisture", Unit: "%", Value: r.SoilMoisture},
		{Name: "gas_level", Label: "Gas Level", Unit: "ppm", Value: r.GasLevel},
	}
}

// Field is one labelled sensor value.
type Field struct {
	Name  string
	Label string
	Unit  string
	Value float64
}
