package main

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// DisplayLayout renders an instant in the wearer's local time, e.g.
// "2024-01-15 10:30 AM (-08:00)".
const DisplayLayout = "2006-01-02 03:04 PM (-07:00)"

// naive timestamps carry no offset and are read as UTC.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseOffset parses a Whoop timezone offset of the form ±HH:MM.
// A zero offset yields time.UTC.
func ParseOffset(offset string) (*time.Location, error) {
	if len(offset) != 6 || (offset[0] != '+' && offset[0] != '-') || offset[3] != ':' {
		return nil, fmt.Errorf("invalid timezone offset %q: want ±HH:MM", offset)
	}
	if !isDigits(offset[1:3]) || !isDigits(offset[4:6]) {
		return nil, fmt.Errorf("invalid timezone offset %q: want ±HH:MM", offset)
	}

	hours, _ := strconv.Atoi(offset[1:3])
	minutes, _ := strconv.Atoi(offset[4:6])
	if hours > 23 || minutes > 59 {
		return nil, fmt.Errorf("timezone offset %q out of range", offset)
	}

	seconds := hours*3600 + minutes*60
	if seconds == 0 {
		return time.UTC, nil
	}
	if offset[0] == '-' {
		seconds = -seconds
	}
	return time.FixedZone(offset, seconds), nil
}

// NormalizeRecord converts the record's timestamps into the timezone the event was
// recorded in and adds derived fields. It mutates rec and returns it.
//
// With a timezone_offset, start and end become display strings (DisplayLayout) and
// the machine-readable instants are kept in start_local and end_local. Without one,
// start and end are left as the API sent them. duration_hours is written for every
// record that has a start field, null unless both ends resolve.
func NormalizeRecord(rec Record) Record {
	if rec == nil {
		return rec
	}

	var loc *time.Location
	if offset, ok := rec["timezone_offset"].(string); ok && offset != "" {
		if l, err := ParseOffset(offset); err == nil {
			loc = l
		}
	}

	start, hasStart := recordInstant(rec, "start")
	end, hasEnd := recordInstant(rec, "end")

	if loc != nil {
		if hasStart {
			local := start.In(loc)
			rec["start"] = local.Format(DisplayLayout)
			rec["start_local"] = local.Format(time.RFC3339)
		}
		if hasEnd {
			local := end.In(loc)
			rec["end"] = local.Format(DisplayLayout)
			rec["end_local"] = local.Format(time.RFC3339)
		}
		for _, field := range []string{"created_at", "updated_at"} {
			if t, ok := parseInstant(rec[field]); ok {
				rec[field] = t.In(loc).Format(time.RFC3339Nano)
			}
		}
	}

	if _, ok := rec["start"]; !ok {
		return rec
	}

	if hasStart && hasEnd {
		rec["duration_hours"] = math.Round(end.Sub(start).Hours()*100) / 100
	} else {
		rec["duration_hours"] = nil
	}

	if hasStart {
		day := start
		if hasEnd {
			day = end
		}
		if loc != nil {
			day = day.In(loc)
		}
		rec["date"] = day.Format("2006-01-02")
		rec["weekday"] = day.Weekday().String()
		rec["is_weekend"] = day.Weekday() == time.Saturday || day.Weekday() == time.Sunday
	}

	return rec
}

// NormalizeEnvelope normalizes every element of a records collection, or the
// response itself when it is a single record. Error envelopes pass through.
func NormalizeEnvelope(resp Record) Record {
	if resp == nil {
		return resp
	}

	switch records := resp["records"].(type) {
	case []Record:
		for _, rec := range records {
			NormalizeRecord(rec)
		}
		return resp
	case []interface{}:
		for _, item := range records {
			if m, ok := item.(map[string]interface{}); ok {
				NormalizeRecord(Record(m))
			}
		}
		return resp
	}

	if _, ok := resp["error"]; ok {
		return resp
	}
	return NormalizeRecord(resp)
}

// NormalizePage normalizes each record of a paginated result.
func NormalizePage(page *Page) *Page {
	if page == nil {
		return page
	}
	for _, rec := range page.Records {
		NormalizeRecord(rec)
	}
	return page
}

// recordInstant prefers the <field>_local value written by an earlier pass,
// which keeps NormalizeRecord safe to run twice.
func recordInstant(rec Record, field string) (time.Time, bool) {
	if t, ok := parseInstant(rec[field+"_local"]); ok {
		return t, true
	}
	return parseInstant(rec[field])
}

func parseInstant(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
