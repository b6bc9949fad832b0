package telemetry

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultSource labels readings published by the dashboard.
const DefaultSource = "agrispy-dashboard"

// ErrMalformedReading is returned when a payload is not a reading.
var ErrMalformedReading = errors.New("telemetry: malformed reading")

// Message is a reading with the label of whoever produced it.
type Message struct {
	Source  string
	Reading Reading
}

// ToStruct converts m to a google.protobuf.Struct.
func ToStruct(m Message) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"source":        m.Source,
		"timestamp":     m.Reading.Timestamp.UTC().Format(time.RFC3339Nano),
		"temperature":   m.Reading.Temperature,
		"humidity":      m.Reading.Humidity,
		"soil_moisture": m.Reading.SoilMoisture,
		"gas_level":     m.Reading.GasLevel,
	})
}

// FromStruct is the inverse of ToStruct.
func FromStruct(s *structpb.Struct) (Message, error) {
	if s == nil {
		return Message{}, fmt.Errorf("%w: empty message", ErrMalformedReading)
	}
	fields := s.GetFields()

	ts, ok := fields["timestamp"].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return Message{}, fmt.Errorf("%w: missing timestamp", ErrMalformedReading)
	}
	at, err := time.Parse(time.RFC3339Nano, ts.StringValue)
	if err != nil {
		return Message{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedReading, err)
	}

	number := func(name string) (float64, error) {
		v, ok := fields[name].GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return 0, fmt.Errorf("%w: missing %s", ErrMalformedReading, name)
		}
		return v.NumberValue, nil
	}

	var r Reading
	r.Timestamp = at
	if r.Temperature, err = number("temperature"); err != nil {
		return Message{}, err
	}
	if r.Humidity, err = number("humidity"); err != nil {
		return Message{}, err
	}
	if r.SoilMoisture, err = number("soil_moisture"); err != nil {
		return Message{}, err
	}
	if r.GasLevel, err = number("gas_level"); err != nil {
		return Message{}, err
	}

	return Message{Source: fields["source"].GetStringValue(), Reading: r}, nil
}

// Encode marshals m as a protobuf-encoded Struct.
func Encode(m Message) ([]byte, error) {
	s, err := ToStruct(m)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// Decode parses a payload produced by Encode.
func Decode(data []byte) (Message, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedReading, err)
	}
	return FromStruct(&s)
}
