package fixtures

import (
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
)

// DroneProfile is the hardware identity shown on the drone panel.
type DroneProfile struct {
	Serial     string `fake:"{uuid}"`
	Model      string `fake:"skip"`
	Firmware   string `fake:"{appversion}"`
	MACAddress string `fake:"{macaddress}"`
	IPAddress  string `fake:"{ipv4address}"`
	HomeBase   string `fake:"{city}"`
}

// NewDroneProfile fakes a profile for the simulated drone.
func NewDroneProfile() (DroneProfile, error) {
	var p DroneProfile
	if err := gofakeit.Struct(&p); err != nil {
		return DroneProfile{}, fmt.Errorf("fixtures: generate drone profile: %w", err)
	}
	p.Model = "AgriSpy Sprayer X4"
	return p, nil
}
