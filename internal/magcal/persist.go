package magcal

import (
	"encoding/json"
	"fmt"
)

// blob is the JSON-serialized form of everything the calibrator needs to
// resume across sessions. It is opaque to callers (spec.md §6) but must
// round-trip losslessly.
type blob struct {
	Revision uint64  `json:"revision"`
	HardIronX float64 `json:"hardIronX"`
	HardIronY float64 `json:"hardIronY"`
	HardIronZ float64 `json:"hardIronZ"`
	AxisMinX  float64 `json:"axisMinX"`
	AxisMinY  float64 `json:"axisMinY"`
	AxisMinZ  float64 `json:"axisMinZ"`
	AxisMaxX  float64 `json:"axisMaxX"`
	AxisMaxY  float64 `json:"axisMaxY"`
	AxisMaxZ  float64 `json:"axisMaxZ"`
	EarthMean  float64 `json:"earthMean"`
	EarthM2    float64 `json:"earthM2"`
	EarthCount int     `json:"earthCount"`
	MeanResidual float64 `json:"meanResidual"`
	TotalSamples uint64  `json:"totalSamples"`
}

// Save serializes the calibrator's internal state to a blob, bumping the
// monotonic revision counter. Callers persist the returned bytes keyed by
// device identity; the revision lets a caller resolve the on-transition
// vs. periodic save race described in spec.md §9 by keeping whichever
// blob has the higher revision.
func (c *Calibrator) Save() ([]byte, error) {
	c.revision++
	b := blob{
		Revision:     c.revision,
		HardIronX:    c.axes[0].mid(),
		HardIronY:    c.axes[1].mid(),
		HardIronZ:    c.axes[2].mid(),
		AxisMinX:     c.axes[0].min,
		AxisMinY:     c.axes[1].min,
		AxisMinZ:     c.axes[2].min,
		AxisMaxX:     c.axes[0].max,
		AxisMaxY:     c.axes[1].max,
		AxisMaxZ:     c.axes[2].max,
		EarthMean:    c.earthMean,
		EarthM2:      c.earthM2,
		EarthCount:   c.earthCount,
		MeanResidual: c.meanResidual,
		TotalSamples: c.totalSamples,
	}
	out, err := json.Marshal(b)
	if err != nil {
		return nil, &PersistError{Op: "save", Err: err}
	}
	return out, nil
}

// Load restores calibrator state from a previously-saved blob. Load does
// not compare revisions: when there are two candidate blobs (e.g. from a
// racing periodic save and an on-transition save), BlobRevision picks the
// higher-revision one before Load is called.
func (c *Calibrator) Load(data []byte) error {
	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return &PersistError{Op: "load", Err: err}
	}
	c.revision = b.Revision
	c.axes[0] = axisTracker{min: b.AxisMinX, max: b.AxisMaxX, seen: true}
	c.axes[1] = axisTracker{min: b.AxisMinY, max: b.AxisMaxY, seen: true}
	c.axes[2] = axisTracker{min: b.AxisMinZ, max: b.AxisMaxZ, seen: true}
	c.earthMean = b.EarthMean
	c.earthM2 = b.EarthM2
	c.earthCount = b.EarthCount
	c.meanResidual = b.MeanResidual
	if c.meanResidual != 0 {
		c.residualInit = true
	}
	c.totalSamples = b.TotalSamples
	return nil
}

// Revision returns the blob revision last produced by Save, or loaded by
// Load. Zero means nothing has been saved or loaded yet.
func (c *Calibrator) Revision() uint64 { return c.revision }

// BlobRevision peeks the revision field of a serialized blob without
// loading it, so a caller juggling two candidate blobs (the on-transition
// save racing the periodic save, per spec.md §9) can pick the winner
// before calling Load.
func BlobRevision(data []byte) (uint64, error) {
	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return 0, fmt.Errorf("magcal: peek revision: %w", err)
	}
	return b.Revision, nil
}

func (c *Calibrator) emitSave(hardIron, softIron Vector3, ready bool) {
	c.timeSinceSaveS = 0
	if c.SaveFn == nil {
		return
	}
	data, err := c.Save()
	if err != nil {
		return
	}
	c.SaveFn(data)
}
