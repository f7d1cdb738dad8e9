package attendance

import "time"

// Round snaps a punch time to the half hour the way the office counts it.
//
// Minutes up to :04 count as the full hour, :26 to :34 as the half hour
// and :56 or later as the next hour. What is left is then floored to the
// half hour for an exit and raised to it for an entry. Seconds are
// dropped.
func Round(at time.Time, exit bool) time.Time {
	y, mo, d := at.Date()
	base := time.Date(y, mo, d, at.Hour(), 0, 0, 0, at.Location())

	m := at.Minute()
	switch {
	case m <= 4:
		m = 0
	case m >= 26 && m <= 34:
		m = 30
	case m >= 56:
		base = base.Add(time.Hour)
		m = 0
	}

	if exit {
		m = m / 30 * 30
	} else {
		m = (m + 29) / 30 * 30
	}
	return base.Add(time.Duration(m) * time.Minute)
}
