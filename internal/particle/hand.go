package particle

// ExtendedHandPose returns the default open-hand position for all five
// fingers relative to the wrist sensor, in millimeters (spec.md §3).
func ExtendedHandPose() [5]Vector3 {
	return [5]Vector3{
		{X: 0, Y: 60, Z: -30},
		{X: 20, Y: 60, Z: -20},
		{X: 0, Y: 60, Z: -10},
		{X: -20, Y: 60, Z: -20},
		{X: -30, Y: 60, Z: -10},
	}
}

// FlexedHandPose returns the default curled-hand position for all five
// fingers: each finger draws in toward the palm, so its distance from the
// wrist sensor shortens relative to ExtendedHandPose (spec.md §3).
func FlexedHandPose() [5]Vector3 {
	return [5]Vector3{
		{X: 0, Y: 25, Z: -10},
		{X: 10, Y: 25, Z: -5},
		{X: 0, Y: 25, Z: 0},
		{X: -10, Y: 25, Z: -5},
		{X: -15, Y: 25, Z: 0},
	}
}

// FlexionFraction projects pos onto the extended->flexed axis and returns
// how far along it pos falls: 0 at the extended reference, 1 at the flexed
// reference, clamped to [0, 1] so filter noise beyond either reference
// point saturates instead of reporting an out-of-range fraction.
func FlexionFraction(pos, extended, flexed Vector3) float64 {
	axis := flexed.Sub(extended)
	axisLenSq := axis.Dot(axis)
	if axisLenSq == 0 {
		return 0
	}
	t := pos.Sub(extended).Dot(axis) / axisLenSq
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
