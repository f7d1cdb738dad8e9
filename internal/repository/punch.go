package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/deppfellow/abaita/internal/attendance"
	"github.com/deppfellow/abaita/internal/orm"
)

// PunchRepository stores badge punches in the reflected abaita table:
// (date, time, badge) key, uscita exit flag and the raw feed line.
type PunchRepository struct {
	typ *orm.Type
	loc *time.Location
}

// NewPunchRepository wraps the mapped abaita type. Stored dates and times
// are read in the local time zone.
func NewPunchRepository(typ *orm.Type) *PunchRepository {
	return &PunchRepository{typ: typ, loc: time.Local}
}

// Type returns the mapped type behind the repository.
func (r *PunchRepository) Type() *orm.Type { return r.typ }

func attrs(p attendance.Punch) orm.Attrs {
	key := p.Key()
	return orm.Attrs{
		"date":   key.Date,
		"time":   key.Time,
		"badge":  key.Badge,
		"uscita": p.Exit,
		"raw":    p.Raw,
	}
}

// Insert writes p right away. A punch already stored reports
// orm.AlreadyExists instead of failing the unit of work.
func (r *PunchRepository) Insert(ctx context.Context, p attendance.Punch) (orm.InsertResult, error) {
	return r.typ.Insert(ctx, attrs(p))
}

// Commit commits the current unit of work of the connection.
func (r *PunchRepository) Commit(ctx context.Context) error {
	return r.typ.Commit(ctx)
}

// Rollback discards the current unit of work of the connection.
func (r *PunchRepository) Rollback(ctx context.Context) error {
	return r.typ.Rollback(ctx)
}

// ExistingKeys returns the keys of every stored punch of the badges.
func (r *PunchRepository) ExistingKeys(ctx context.Context, badges []string) (map[attendance.Key]bool, error) {
	insts, err := r.typ.LoadAnd(ctx, orm.Attrs{"badge": badges}).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading stored punches: %w", err)
	}
	keys := make(map[attendance.Key]bool, len(insts))
	for _, inst := range insts {
		p, err := r.punch(inst)
		if err != nil {
			return nil, err
		}
		keys[p.Key()] = true
	}
	return keys, nil
}

// ByBadge returns the punches of badge ordered by time. A non-nil day
// restricts them to that calendar day.
func (r *PunchRepository) ByBadge(ctx context.Context, badge string, day *time.Time) ([]attendance.Punch, error) {
	filters := orm.Attrs{"badge": badge}
	if day != nil {
		filters["date"] = day.Format(attendance.DateLayout)
	}
	insts, err := r.typ.Load(ctx, filters).OrderBy("date", "time").All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading punches of %s: %w", badge, err)
	}

	out := make([]attendance.Punch, 0, len(insts))
	for _, inst := range insts {
		p, err := r.punch(inst)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *PunchRepository) punch(inst *orm.Instance) (attendance.Punch, error) {
	day, err := dateOf(inst.Get("date"))
	if err != nil {
		return attendance.Punch{}, fmt.Errorf("%s: date: %w", inst, err)
	}
	clock, err := clockOf(inst.Get("time"))
	if err != nil {
		return attendance.Punch{}, fmt.Errorf("%s: time: %w", inst, err)
	}
	exit, err := flagOf(inst.Get("uscita"))
	if err != nil {
		return attendance.Punch{}, fmt.Errorf("%s: uscita: %w", inst, err)
	}

	y, m, d := day.Date()
	at := time.Date(y, m, d, 0, 0, 0, 0, r.loc).Add(clock)
	badge, _ := inst.Get("badge").(string)
	raw, _ := inst.Get("raw").(string)
	return attendance.Punch{At: at, Badge: badge, Exit: exit, Raw: raw}, nil
}

// dateOf accepts the driver forms of a date column: time.Time (PostgreSQL
// date, SQLite DATE) or text.
func dateOf(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		if len(x) >= len(attendance.DateLayout) {
			x = x[:len(attendance.DateLayout)]
		}
		return time.Parse(attendance.DateLayout, x)
	}
	return time.Time{}, fmt.Errorf("unexpected value %v (%T)", v, v)
}

// clockOf returns the time of day as an offset from midnight. Text may
// carry fractional seconds, which are dropped.
func clockOf(v any) (time.Duration, error) {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case string:
		if len(x) > len(attendance.ClockLayout) {
			x = x[:len(attendance.ClockLayout)]
		}
		parsed, err := time.Parse(attendance.ClockLayout, x)
		if err != nil {
			return 0, err
		}
		t = parsed
	default:
		return 0, fmt.Errorf("unexpected value %v (%T)", v, v)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

func flagOf(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case string:
		return strconv.ParseBool(x)
	}
	return false, fmt.Errorf("unexpected value %v (%T)", v, v)
}
