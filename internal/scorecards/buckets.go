package scorecards

// Fixed reporting buckets and their stage labels.
var (
	BucketLabels = []string{"1-40", "41-60", "61-80", "81-100"}
	StageLabels  = []string{"Adopting", "Growing", "Leading", "Pioneering"}
)

// Bucket maps a normalized score to its reporting bucket label.
// Boundaries sit at the half-points so rounded scores land cleanly.
func Bucket(score float64) string {
	switch {
	case score <= 40.5:
		return BucketLabels[0]
	case score <= 60.5:
		return BucketLabels[1]
	case score <= 80.5:
		return BucketLabels[2]
	default:
		return BucketLabels[3]
	}
}

// Stage maps a normalized score to its stage label.
func Stage(score float64) string {
	switch {
	case score <= 40.5:
		return StageLabels[0]
	case score <= 60.5:
		return StageLabels[1]
	case score <= 80.5:
		return StageLabels[2]
	default:
		return StageLabels[3]
	}
}
