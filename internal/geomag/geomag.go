// Package geomag models the ambient geomagnetic reference the AHRS
// consults to predict the expected field at the sensor.
package geomag

import "math"

// Reference is the geomagnetic field at the user's location: horizontal
// and vertical components in microtesla and declination in degrees. It is
// established once at session start and is immutable for the session's
// duration; the AHRS only ever reads it.
type Reference struct {
	Horizontal  float64
	Vertical    float64
	Declination float64
}

// Magnitude returns the total field strength |B| in microtesla.
func (r Reference) Magnitude() float64 {
	return math.Sqrt(r.Horizontal*r.Horizontal + r.Vertical*r.Vertical)
}

// Default is the mid-latitude reference used by spec.md's boundary
// scenarios and by the calibrator before a GPS fix or user override
// supplies a location-specific value.
var Default = Reference{Horizontal: 20, Vertical: 45, Declination: 0}

// FromLatitude derives a rough reference from geographic latitude in
// degrees, using the well-known dipole-field approximation: horizontal
// component falls off as cos(lat), vertical grows as 2*sin(lat), scaled so
// the result matches Default's magnitude at mid-latitudes (~45 degrees).
// This is intentionally coarse — a full WMM/IGRF model is out of scope —
// and exists only so a GPS fix can nudge the reference away from Default
// rather than leaving it pinned regardless of where the device is.
func FromLatitude(latDeg float64) Reference {
	lat := latDeg * math.Pi / 180
	const totalAtMidLat = 49.24 // Default.Magnitude()
	const refLat = 45 * math.Pi / 180
	scale := totalAtMidLat / math.Sqrt(math.Cos(refLat)*math.Cos(refLat)+4*math.Sin(refLat)*math.Sin(refLat))

	h := scale * math.Cos(lat)
	v := scale * 2 * math.Sin(lat)
	return Reference{Horizontal: h, Vertical: v, Declination: 0}
}
