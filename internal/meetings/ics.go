package meetings

import (
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/aura-erp/meeting-scheduler/internal/models"
)

const icsProductID = "-//aura-erp//meeting-scheduler//EN"

// BuildICS renders a single-event iCalendar (RFC 5545) invite for a finalized meeting.
// The UID is stable per meeting so a rescheduled invite replaces the earlier one in calendar clients.
func BuildICS(m models.Meeting, start, end time.Time, link string, stamp time.Time) []byte {
	cal := ics.NewCalendar()
	cal.SetProductId(icsProductID)
	cal.SetMethod(ics.MethodPublish)

	event := cal.AddEvent(m.ID.String() + "@meeting-scheduler")
	event.SetDtStampTime(stamp.UTC())
	event.SetStartAt(start.UTC())
	event.SetEndAt(end.UTC())
	event.SetSummary(icsText(m.Title))
	if m.Purpose != "" {
		event.SetDescription(icsText(m.Purpose))
	}
	if m.Venue != nil {
		event.SetLocation(icsSingleLine(*m.Venue))
	}
	switch {
	case m.MeetingLink != nil:
		event.SetURL(icsSingleLine(*m.MeetingLink))
	case link != "":
		event.SetURL(icsSingleLine(link))
	}
	status := "CONFIRMED"
	if m.Status == models.MeetingStatusCancelled {
		status = "CANCELLED"
	}
	event.SetProperty(ics.ComponentPropertyStatus, status)

	return []byte(cal.Serialize())
}

// icsText keeps line breaks as plain "\n", which the encoder escapes, and drops every other
// control character so no value can start a new content line.
func icsText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// icsSingleLine is for values that are written unescaped, such as URL.
func icsSingleLine(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
}
