package attendance

import (
	"fmt"
	"io"
	"sort"
	"time"
)

const (
	fridayNote    = "DAI CHE SI FA L'APE!!!!!!"
	missedWarning = "WARNING: non hai timbrato, sciocco!"
	stampLayout   = "2006-01-02 15:04:05"
)

// ReportOptions tunes Report.
type ReportOptions struct {
	// Maw shows the rounded time next to every punch and uses the rounded
	// times for the running total.
	Maw bool

	// Now is the reference for "today" and the running total. Zero means
	// time.Now().
	Now time.Time
}

// Report prints one block per day, oldest first.
//
// A day with four punches shows the hours worked, raw and rounded. Today
// with three punches shows the running total, with a note on Fridays.
// Any other past day is flagged as having missing punches.
func Report(w io.Writer, punches []Punch, opts ReportOptions) error {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	days := map[time.Time][]Punch{}
	for _, p := range punches {
		day := p.Day()
		days[day] = append(days[day], p)
	}
	order := make([]time.Time, 0, len(days))
	for day := range days {
		order = append(order, day)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	for _, day := range order {
		if err := printDay(w, day, days[day], opts); err != nil {
			return err
		}
	}
	return nil
}

func printDay(w io.Writer, day time.Time, punches []Punch, opts ReportOptions) error {
	sort.Slice(punches, func(i, j int) bool {
		if !punches[i].At.Equal(punches[j].At) {
			return punches[i].At.Before(punches[j].At)
		}
		return !punches[i].Exit && punches[j].Exit
	})

	times := make([]time.Time, len(punches))
	rounded := make([]time.Time, len(punches))
	for i, p := range punches {
		times[i] = p.At
		rounded[i] = Round(p.At, p.Exit)
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("[%s]", day.Format(DateLayout)))
	for i, p := range punches {
		if opts.Maw {
			kind := "e"
			if p.Exit {
				kind = "u"
			}
			lines = append(lines, fmt.Sprintf("%s %s\t=>\t%s", kind, times[i].Format(stampLayout), rounded[i].Format(stampLayout)))
		} else {
			lines = append(lines, times[i].Format(stampLayout))
		}
	}

	today := sameDay(day, opts.Now)
	switch {
	case len(times) == 4:
		lines = append(lines,
			"Ore sgobbate: "+FormatDuration(worked(times)),
			"Ore sgobbate secondo maw: "+FormatDuration(worked(rounded)),
		)
	case len(times) == 3 && today:
		ref := times
		if opts.Maw {
			ref = rounded
		}
		sofar := opts.Now.Sub(ref[2]) + ref[1].Sub(ref[0])
		note := ""
		if day.Weekday() == time.Friday {
			note = fridayNote
		}
		lines = append(lines, fmt.Sprintf("Siamo a: %s ore... %s", FormatDuration(sofar.Truncate(time.Second)), note))
	case !today:
		lines = append(lines, missedWarning)
	}
	lines = append(lines, "")

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// worked sums the morning and afternoon spans of four punches.
func worked(t []time.Time) time.Duration {
	return t[3].Sub(t[2]) + t[1].Sub(t[0])
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FormatDuration renders d as "H:MM:SS", prefixed by whole days when it
// spans more than one.
func FormatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	secs := int64(d / time.Second)
	days := secs / 86400
	secs %= 86400

	clock := fmt.Sprintf("%d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
	switch {
	case days == 1:
		return sign + "1 day, " + clock
	case days > 1:
		return fmt.Sprintf("%s%d days, %s", sign, days, clock)
	}
	return sign + clock
}
