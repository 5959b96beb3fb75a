package match

import (
	"strconv"

	"dupsieve/internal/hash"
)

// Similarity returns the cut-off a pair must reach: threshold percent as a
// fraction rounded to two decimals. Rounding applies to the exact binary
// value, so 97.5 gives 0.97.
func Similarity(thresholdPercent float64) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(thresholdPercent/100, 'f', 2, 64), 64)
	if err != nil {
		return thresholdPercent / 100
	}
	return v
}

// IsDuplicate reports whether 1 - distance(a, b) reaches the threshold.
// Incompatible or empty hashes return an error.
func IsDuplicate(a, b hash.Fingerprint, thresholdPercent float64) (bool, error) {
	d, err := hash.Distance(a, b)
	if err != nil {
		return false, err
	}
	return 1-d >= Similarity(thresholdPercent), nil
}

// CompareText parses both hash texts and returns their distance and whether
// they are duplicates at thresholdPercent
func CompareText(a, b string, thresholdPercent float64) (float64, bool, error) {
	ha, err := hash.Parse(a)
	if err != nil {
		return 0, false, err
	}
	hb, err := hash.Parse(b)
	if err != nil {
		return 0, false, err
	}
	d, err := hash.Distance(ha, hb)
	if err != nil {
		return 0, false, err
	}
	return d, 1-d >= Similarity(thresholdPercent), nil
}
