package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DisplayLayout is how local wall-clock instants are rendered to users.
const DisplayLayout = "2006/01/02 15:04"

// Clock converts between the bot's local wall clock and UTC using a fixed
// offset (no DST). The default deployment runs at UTC+9; a timezone database
// would change the observable arithmetic, so one is deliberately not used.
type Clock struct {
	loc *time.Location
}

// NewClock builds a Clock with the given offset in whole hours from UTC.
func NewClock(offsetHours int) Clock {
	name := fmt.Sprintf("UTC%+d", offsetHours)
	return Clock{loc: time.FixedZone(name, offsetHours*60*60)}
}

// ParseLocal interprets dateStr ("YYYY/MM/DD") and timeStr ("HH:mm") as a
// local wall-clock instant. Only field shape and integer parsing are
// validated; out-of-range fields (e.g. day 31 in a 30-day month) normalize
// the way native date construction does. Accepted behavior, not corrected.
func (c Clock) ParseLocal(dateStr, timeStr string) (time.Time, error) {
	dateParts := strings.Split(dateStr, "/")
	timeParts := strings.Split(timeStr, ":")
	if len(dateParts) != 3 || len(timeParts) != 2 {
		return time.Time{}, fmt.Errorf("%w: %q %q", ErrBadDateTime, dateStr, timeStr)
	}

	fields := make([]int, 0, 5)
	for _, s := range append(dateParts[:3:3], timeParts...) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q %q", ErrBadDateTime, dateStr, timeStr)
		}
		fields = append(fields, n)
	}

	year, month, day, hour, minute := fields[0], fields[1], fields[2], fields[3], fields[4]
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, c.loc), nil
}

// ToUTC returns the absolute instant for a local wall-clock time.
// For UTC+9 this is plain "local minus nine hours" arithmetic.
func (c Clock) ToUTC(local time.Time) time.Time {
	return local.UTC()
}

// FormatLocal renders a UTC instant as local wall-clock text.
func (c Clock) FormatLocal(utc time.Time) string {
	return utc.In(c.loc).Format(DisplayLayout)
}

// Now returns the current instant expressed in the local zone.
func (c Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// ValidateFuture reports ErrPastSchedule unless the instant is strictly
// after now. Enforced at creation only; never re-checked later.
func ValidateFuture(instant, now time.Time) error {
	if !instant.After(now) {
		return ErrPastSchedule
	}
	return nil
}
