package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bekhruz1723-collab/sTaskManager/internal/model"
	"github.com/bekhruz1723-collab/sTaskManager/internal/repository"
)

// Period selects the calendar granularity and the lookback window for the
// productivity series.
type Period string

const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod maps user input onto a known period.
func ParsePeriod(s string) (Period, bool) {
	switch Period(s) {
	case PeriodHour, PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return Period(s), true
	}
	return "", false
}

// StatusCounts tallies root tasks per computed status.
type StatusCounts struct {
	NotStarted int `json:"not_started"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
}

// BucketCount is one calendar bucket of completed root tasks.
type BucketCount struct {
	Period string `json:"period"`
	Count  int    `json:"count"`
}

// Statistics is the aggregate view both front ends render.
type Statistics struct {
	Status       StatusCounts   `json:"status"`
	Productivity []BucketCount  `json:"productivity"`
	TopPeriods   []BucketCount  `json:"top_periods"`
	Priorities   map[string]int `json:"priorities"`
	Total        int            `json:"total"`
}

// StatsService aggregates productivity numbers over root tasks. Bucketing
// happens here rather than in SQL so one code path serves both engines.
type StatsService struct {
	tasks *repository.TaskRepository
}

func NewStatsService(tasks *repository.TaskRepository) *StatsService {
	return &StatsService{tasks: tasks}
}

// Statistics computes the full aggregate for one owner. Only root tasks
// count; subtasks influence the result solely through the status rollup.
func (s *StatsService) Statistics(ctx context.Context, userID uint, period Period, now time.Time) (*Statistics, error) {
	roots, err := s.tasks.ListRoots(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := Statistics{
		Priorities: make(map[string]int),
		Total:      len(roots),
	}

	for _, root := range roots {
		stats.Priorities[string(root.Priority)]++

		subs, err := s.tasks.ListSubtasks(ctx, root.ID)
		if err != nil {
			return nil, err
		}
		if len(subs) == 0 {
			// A task with nothing to be partway through is either done
			// or not started.
			if root.Status == model.StatusDone {
				stats.Status.Done++
			} else {
				stats.Status.NotStarted++
			}
			continue
		}
		switch model.ComputedStatus(root, subs) {
		case model.StatusDone:
			stats.Status.Done++
		case model.StatusInProgress:
			stats.Status.InProgress++
		default:
			stats.Status.NotStarted++
		}
	}

	windowStart := now.Add(-lookback(period))
	windowed := make(map[string]int)
	allTime := make(map[string]int)

	for _, root := range roots {
		if root.Status != model.StatusDone || root.CompletedAt == nil {
			continue
		}
		key := bucketKey(*root.CompletedAt, period)
		allTime[key]++
		if !root.CompletedAt.Before(windowStart) {
			windowed[key]++
		}
	}

	stats.Productivity = sortedByKey(windowed)
	stats.TopPeriods = topBuckets(allTime, 5)
	return &stats, nil
}

func lookback(period Period) time.Duration {
	switch period {
	case PeriodHour:
		return 24 * time.Hour
	case PeriodDay:
		return 7 * 24 * time.Hour
	case PeriodWeek:
		return 12 * 7 * 24 * time.Hour
	case PeriodMonth:
		return 365 * 24 * time.Hour
	default:
		return 3 * 365 * 24 * time.Hour
	}
}

// bucketKey renders a completion timestamp as its calendar bucket. Keys
// sort lexicographically in chronological order within one period.
func bucketKey(t time.Time, period Period) string {
	switch period {
	case PeriodHour:
		return t.Format("2006-01-02 15")
	case PeriodDay:
		return t.Format("2006-01-02")
	case PeriodWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case PeriodMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006")
	}
}

func sortedByKey(buckets map[string]int) []BucketCount {
	out := make([]BucketCount, 0, len(buckets))
	for key, count := range buckets {
		out = append(out, BucketCount{Period: key, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// topBuckets ranks buckets by count descending, breaking ties on the
// bucket key ascending so the result is stable across engines.
func topBuckets(buckets map[string]int, limit int) []BucketCount {
	out := make([]BucketCount, 0, len(buckets))
	for key, count := range buckets {
		out = append(out, BucketCount{Period: key, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Period < out[j].Period
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
