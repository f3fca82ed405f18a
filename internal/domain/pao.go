package domain

import "time"

// ParsePeriodMonths reads the month count out of a period-after-opening
// descriptor such as "12M", "6 months" or "24". The first run of ASCII digits
// wins. A descriptor without digits yields (0, false), meaning expiry is unset.
func ParsePeriodMonths(descriptor string) (int, bool) {
	start := -1
	for i := 0; i < len(descriptor); i++ {
		c := descriptor[i]
		if c >= '0' && c <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return atoiDigits(descriptor[start:i])
		}
	}
	if start < 0 {
		return 0, false
	}
	return atoiDigits(descriptor[start:])
}

// maxPeriodMonths caps absurd descriptors so date arithmetic stays sane.
const maxPeriodMonths = 1200

func atoiDigits(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
		if n > maxPeriodMonths {
			return maxPeriodMonths, true
		}
	}
	return n, true
}

// ComputeExpiry derives the expiry date from an open date and a
// period-after-opening descriptor. It returns nil when either input is absent
// or the descriptor carries no month count.
func ComputeExpiry(openDate *time.Time, periodAfterOpening string) *time.Time {
	if openDate == nil {
		return nil
	}
	months, ok := ParsePeriodMonths(periodAfterOpening)
	if !ok {
		return nil
	}
	expiry := AddMonthsClamped(*openDate, months)
	return &expiry
}

// AddMonthsClamped adds calendar months to t. When the day of month does not
// exist in the target month the result is that month's last day, so
// Jan 31 + 1 month is Feb 28 (or 29).
func AddMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	first := time.Date(y, m+time.Month(months), 1, hh, mm, ss, t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
