// Package archive consumes published telemetry readings from RabbitMQ,
// stores them in PostgreSQL and serves recent history over gRPC.
package archive

import (
	"time"

	"agrispy.dev/agrispy/internal/telemetry"
)

// ArchivedReading is a stored telemetry reading.
type ArchivedReading struct {
	Timestamp    time.Time `gorm:"index:idx_telemetry_timestamp;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	Source       string    `gorm:"index;size:128;not null"`
	Temperature  float64   `gorm:"not null"`
	Humidity     float64   `gorm:"not null"`
	SoilMoisture float64   `gorm:"not null"`
	GasLevel     float64   `gorm:"not null"`
	ID           uint      `gorm:"primaryKey"`
}

// TableName specifies the table name for ArchivedReading.
func (ArchivedReading) TableName() string {
	return "telemetry_readings"
}

// NewArchivedReading converts a decoded message.
func NewArchivedReading(m telemetry.Message) ArchivedReading {
	return ArchivedReading{
		Source:       m.Source,
		Timestamp:    m.Reading.Timestamp.UTC(),
		Temperature:  m.Reading.Temperature,
		Humidity:     m.Reading.Humidity,
		SoilMoisture: m.Reading.SoilMoisture,
		GasLevel:     m.Reading.GasLevel,
	}
}

// Message converts back to the wire form.
func (a ArchivedReading) Message() telemetry.Message {
	return telemetry.Message{
		Source: a.Source,
		Reading: telemetry.Reading{
			Timestamp:    a.Timestamp,
			Temperature:  a.Temperature,
			Humidity:     a.Humidity,
			SoilMoisture: a.SoilMoisture,
			GasLevel:     a.GasLevel,
		},
	}
}
