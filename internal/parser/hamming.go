package parser

// maxStreetDistance is the largest number of differing characters tolerated
// between an extracted street and a known one of the same length.
const maxStreetDistance = 2

// HammingDistance counts the positions at which a and b differ, comparing
// characters rather than bytes. ok is false when the strings differ in
// length, in which case no distance is defined.
func HammingDistance(a, b string) (distance int, ok bool) {
	ra, rb := []rune(a), []rune(b)
	if len(ra) != len(rb) {
		return 0, false
	}
	for i := range ra {
		if ra[i] != rb[i] {
			distance++
		}
	}
	return distance, true
}

// similar reports whether a and b are equal or same-length near misses.
func similar(a, b string) bool {
	if a == b {
		return true
	}
	d, ok := HammingDistance(a, b)
	return ok && d <= maxStreetDistance
}
