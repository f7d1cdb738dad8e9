// Package attendance models badge punches: parsing the terminal feed,
// rounding punch times to the half hour and printing the daily report.
package attendance

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout and ClockLayout are the stored forms of a punch.
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04:05"

	feedLayout = "20060102150405"
	badgeLen   = 6
)

// Punch is one badge transit at the terminal.
type Punch struct {
	At    time.Time `validate:"required"`
	Badge string    `validate:"required,len=6,alphanum"`
	Exit  bool
	Raw   string `validate:"required"`
}

// Key identifies a punch in the store.
type Key struct {
	Date  string
	Time  string
	Badge string
}

// Key returns the storage key of p.
func (p Punch) Key() Key {
	return Key{
		Date:  p.At.Format(DateLayout),
		Time:  p.At.Format(ClockLayout),
		Badge: p.Badge,
	}
}

// Day returns the calendar day of the punch at midnight.
func (p Punch) Day() time.Time {
	y, m, d := p.At.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.At.Location())
}

// ParseFeed reads the terminal export. The first non-blank line is a
// header. Every other line has four fields, "<time> <badge> <id> <x>":
// the badge is the first six characters of the second field, the
// timestamp sits at columns 9-23 as YYYYMMDDhhmmss, and the last digit of
// the first field is 1 for an exit.
//
// Only badges in whitelist are kept. Lines with the same date, time and
// badge collapse into the last one. The result is sorted by key.
func ParseFeed(data []byte, whitelist []string, loc *time.Location) ([]Punch, error) {
	if loc == nil {
		loc = time.Local
	}
	allowed := make(map[string]bool, len(whitelist))
	for _, b := range whitelist {
		allowed[b] = true
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading feed: %w", err)
	}
	if len(lines) <= 1 {
		return nil, nil
	}

	byKey := map[Key]Punch{}
	for n, line := range lines[1:] {
		p, ok, err := parseLine(line, allowed, loc)
		if err != nil {
			return nil, fmt.Errorf("feed line %d: %w", n+2, err)
		}
		if ok {
			byKey[p.Key()] = p
		}
	}

	out := make([]Punch, 0, len(byKey))
	for _, p := range byKey {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key(), out[j].Key()
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.Badge < b.Badge
	})
	return out, nil
}

// parseLine splits a feed line. Lines of badges outside allowed are only
// checked for their field count and reported with ok false.
func parseLine(line string, allowed map[string]bool, loc *time.Location) (p Punch, ok bool, err error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Punch{}, false, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}

	badge := fields[1]
	if len(badge) > badgeLen {
		badge = badge[:badgeLen]
	}
	if !allowed[badge] {
		return Punch{}, false, nil
	}

	if len(line) < 23 {
		return Punch{}, false, fmt.Errorf("line too short for a timestamp")
	}
	at, err := time.ParseInLocation(feedLayout, line[9:23], loc)
	if err != nil {
		return Punch{}, false, fmt.Errorf("bad timestamp: %w", err)
	}

	flag := fields[0][len(fields[0])-1:]
	exit, err := strconv.Atoi(flag)
	if err != nil {
		return Punch{}, false, fmt.Errorf("bad exit flag %q", flag)
	}

	return Punch{At: at, Badge: badge, Exit: exit != 0, Raw: line}, true, nil
}
