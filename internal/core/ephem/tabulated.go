package ephem

import (
	"fmt"
	"sort"
	"time"
)

// Timed is a sample tagged with the instant it is valid for.
type Timed struct {
	Time   time.Time
	Sample Sample
}

// Tabulated interpolates a table of timed samples with cubic Hermite
// splines, using the sample velocities as tangents. Instants outside the
// table are clamped to the first or last sample.
type Tabulated struct {
	points []Timed
}

func NewTabulated(points []Timed) (*Tabulated, error) {
	if len(points) == 0 {
		return nil, ErrEmptyTable
	}
	sorted := make([]Timed, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Time.Equal(sorted[i-1].Time) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTime, sorted[i].Time.UTC().Format(time.RFC3339Nano))
		}
	}
	return &Tabulated{points: sorted}, nil
}

func (tb *Tabulated) Len() int { return len(tb.points) }

// Span returns the first and last tabulated instants, zero for an empty table.
func (tb *Tabulated) Span() (time.Time, time.Time) {
	if len(tb.points) == 0 {
		return time.Time{}, time.Time{}
	}
	return tb.points[0].Time, tb.points[len(tb.points)-1].Time
}

func (tb *Tabulated) At(t time.Time) (Sample, error) {
	if len(tb.points) == 0 {
		return Sample{}, ErrEmptyTable
	}
	first, last := tb.points[0], tb.points[len(tb.points)-1]
	if !t.After(first.Time) {
		return first.Sample, nil
	}
	if !t.Before(last.Time) {
		return last.Sample, nil
	}

	i := sort.Search(len(tb.points), func(i int) bool { return tb.points[i].Time.After(t) })
	a, b := tb.points[i-1], tb.points[i]

	h := b.Time.Sub(a.Time).Seconds() / secondsPerDay
	s := t.Sub(a.Time).Seconds() / secondsPerDay / h
	s2, s3 := s*s, s*s*s

	h00, h10, h01, h11 := 2*s3-3*s2+1, s3-2*s2+s, -2*s3+3*s2, s3-s2
	d00, d10, d01, d11 := 6*s2-6*s, 3*s2-4*s+1, -6*s2+6*s, 3*s2-2*s

	p0, p1 := a.Sample.Position(), b.Sample.Position()
	m0, m1 := a.Sample.Velocity().Mul(h), b.Sample.Velocity().Mul(h)

	pos := p0.Mul(h00).Add(m0.Mul(h10)).Add(p1.Mul(h01)).Add(m1.Mul(h11))
	vel := p0.Mul(d00).Add(m0.Mul(d10)).Add(p1.Mul(d01)).Add(m1.Mul(d11)).Mul(1 / h)
	return NewSample(pos, vel), nil
}
