package core

// The backend is authoritative for points; the bands below are estimates
// shown to the puller before the drop is scored.

func offerPointsBand(distanceKm float64) string {
	switch {
	case distanceKm <= 2:
		return "10"
	case distanceKm <= 5:
		return "8-10"
	default:
		return "5-10"
	}
}

func navPointsBand(remainingMeters float64) string {
	switch {
	case remainingMeters <= 50:
		return "8-10"
	case remainingMeters <= 100:
		return "5-8"
	default:
		return "Review"
	}
}

func completionBanner(points int) string {
	switch {
	case points >= 10:
		return "PERFECT DROP"
	case points >= 8:
		return "GREAT"
	case points >= 5:
		return "GOOD"
	case points > 0:
		return "COMPLETED"
	default:
		return "UNDER REVIEW"
	}
}
