package stats

import (
	"context"

	"github.com/verte-zerg/speedlesen/internal/model"
	"github.com/verte-zerg/speedlesen/internal/scoring"
)

// Reader is the read side of the store used by reports.
type Reader interface {
	Groups(ctx context.Context) ([]model.Group, error)
	GroupWeeks(ctx context.Context, groupID string) ([]model.Week, error)
}

// GroupReport contains precomputed data for one group.
type GroupReport struct {
	GroupID     string
	Members     []model.Person
	Weeks       []model.Week
	Cumulative  float64
	Level       scoring.Level
	LastLevelUp int
	MedianWCPM  float64
}

// BuildReports loads every group and prepares its report, ordered by id.
func BuildReports(ctx context.Context, r Reader) ([]GroupReport, error) {
	groups, err := r.Groups(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]GroupReport, 0, len(groups))
	for _, g := range groups {
		weeks, err := r.GroupWeeks(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		reports = append(reports, NewGroupReport(g, weeks))
	}
	return reports, nil
}

// BuildGroupReport prepares the report of one group. A group that does not
// exist yields an empty report.
func BuildGroupReport(ctx context.Context, r Reader, groupID string) (GroupReport, error) {
	groups, err := r.Groups(ctx)
	if err != nil {
		return GroupReport{}, err
	}
	g := model.Group{ID: model.CleanID(groupID)}
	for _, candidate := range groups {
		if candidate.ID == g.ID {
			g = candidate
			break
		}
	}
	weeks, err := r.GroupWeeks(ctx, g.ID)
	if err != nil {
		return GroupReport{}, err
	}
	return NewGroupReport(g, weeks), nil
}

// NewGroupReport derives the report fields from a group and its weeks.
// Cumulative points are summed from the weeks rather than read from the
// last stored total.
func NewGroupReport(g model.Group, weeks []model.Week) GroupReport {
	cum := 0.0
	for _, w := range weeks {
		cum += model.Finite(w.PointsNormalized)
	}
	return GroupReport{
		GroupID:     g.ID,
		Members:     g.Members,
		Weeks:       weeks,
		Cumulative:  cum,
		Level:       scoring.LevelFor(cum),
		LastLevelUp: scoring.LastLevelUpWeek(weeks),
		MedianWCPM:  scoring.MedianWCPMLastWeek(weeks),
	}
}

// ReaderProgress summarizes one roster entry across the weeks it was measured in.
type ReaderProgress struct {
	Person   model.Person
	Weeks    int
	FirstWPM float64
	LastWPM  float64
	LastWCPM float64
}

// Progress returns one entry per roster member in roster order.
func (r GroupReport) Progress() []ReaderProgress {
	out := make([]ReaderProgress, 0, len(r.Members))
	index := make(map[string]int, len(r.Members))
	for _, m := range r.Members {
		index[m.PID] = len(out)
		out = append(out, ReaderProgress{Person: m})
	}
	for _, w := range r.Weeks {
		for _, p := range w.Persons {
			i, ok := index[p.PID]
			if !ok {
				continue
			}
			pr := &out[i]
			if pr.Weeks == 0 {
				pr.FirstWPM = p.WPM
			}
			pr.Weeks++
			pr.LastWPM = p.WPM
			pr.LastWCPM = p.WCPM
		}
	}
	return out
}

// CumulativeSeries returns the running total of normalized points per week.
func (r GroupReport) CumulativeSeries() []float64 {
	out := make([]float64, len(r.Weeks))
	var sum float64
	for i, w := range r.Weeks {
		sum += model.Finite(w.PointsNormalized)
		out[i] = sum
	}
	return out
}
