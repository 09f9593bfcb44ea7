package chat

import "github.com/kalambet/leaveflow/internal/storage"

// DatePicker tracks day clicks for a leave date range. The first click
// selects a single day, the second extends to the min/max range of the two
// (click order does not matter), the third starts over with a single day.
type DatePicker struct {
	start  storage.Date
	end    storage.Date
	clicks int
}

// Click registers a day selection.
func (p *DatePicker) Click(d storage.Date) {
	switch p.clicks {
	case 1:
		if d.Before(p.start.Time) {
			p.end = p.start
			p.start = d
		} else {
			p.end = d
		}
		p.clicks = 2
	default:
		p.start = d
		p.end = d
		p.clicks = 1
	}
}

// HasSelection reports whether any day has been picked.
func (p *DatePicker) HasSelection() bool {
	return p.clicks > 0
}

// Range returns the selected start and end. Equal dates mean a one-day leave.
func (p *DatePicker) Range() (start, end storage.Date) {
	return p.start, p.end
}

// Days returns the inclusive day count of the selection.
func (p *DatePicker) Days() int {
	if p.clicks == 0 {
		return 0
	}
	return p.start.InclusiveDays(p.end)
}

// Phrase synthesizes the message the picker submits.
func (p *DatePicker) Phrase() string {
	return RangePhrase(p.start, p.end)
}
