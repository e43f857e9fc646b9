package game

// Stars maps an attempt count and hint count to a 0-3 star rating.
// Computed once, at the moment a challenge completes; recomputing from
// the persisted attempts/hints reproduces the same value.
func Stars(attempts, hintsUsed int) int {
	stars := 3
	// Each attempt after the first costs a star.
	if attempts > 1 {
		stars--
	}
	if attempts > 2 {
		stars--
	}
	// The first hint is free; the second and third cost stars.
	if hintsUsed > 1 {
		stars--
	}
	if hintsUsed > 2 {
		stars--
	}
	if stars < 0 {
		return 0
	}
	if stars > 3 {
		return 3
	}
	return stars
}

// MaxStarsAfterHints is the displayed ceiling on what a perfect solve can
// still earn after taking hints. Same subtraction rule restricted to the
// hint term, floored at one so the display never promises zero.
func MaxStarsAfterHints(hintsUsed int) int {
	stars := 3
	if hintsUsed > 1 {
		stars--
	}
	if hintsUsed > 2 {
		stars--
	}
	if stars < 1 {
		return 1
	}
	return stars
}
