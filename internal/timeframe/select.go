package timeframe

import (
	"fmt"
)

// SelectSourceInterval picks the stored interval to aggregate from: the
// largest one whose width does not exceed the target. Equal widths resolve
// to the lexicographically smallest label. Unparseable labels are ignored.
func SelectSourceInterval(available []string, target string) (string, error) {
	targetInterval, err := Parse(target)
	if err != nil {
		return "", err
	}

	var (
		chosen        string
		chosenMinutes int64 = -1
	)
	for _, label := range available {
		iv, err := Parse(label)
		if err != nil {
			continue
		}
		m := iv.Minutes()
		if m > targetInterval.Minutes() {
			continue
		}
		if m > chosenMinutes || (m == chosenMinutes && label < chosen) {
			chosen = label
			chosenMinutes = m
		}
	}

	if chosenMinutes < 0 {
		return "", fmt.Errorf("%w: nothing stored at or below %s", ErrNoSuitableInterval, target)
	}
	return chosen, nil
}
