package detectors

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// Window is a daily local time-of-day range [Hour:Minute, +Minutes).
type Window struct {
	Hour    int
	Minute  int
	Minutes int
}

// Contains reports whether t falls inside the window on t's own day.
func (w Window) Contains(t time.Time) bool {
	start := time.Date(t.Year(), t.Month(), t.Day(), w.Hour, w.Minute, 0, 0, t.Location())
	end := start.Add(time.Duration(w.Minutes) * time.Minute)
	return !t.Before(start) && t.Before(end)
}

// number reads a numeric state field regardless of how it was decoded.
func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// stringSet reads a list of ids stored as []string or decoded []interface{}.
func stringSet(v interface{}) map[string]struct{} {
	set := map[string]struct{}{}
	switch list := v.(type) {
	case []string:
		for _, s := range list {
			set[s] = struct{}{}
		}
	case []interface{}:
		for _, item := range list {
			switch s := item.(type) {
			case string:
				set[s] = struct{}{}
			case float64:
				set[strconv.FormatFloat(s, 'f', -1, 64)] = struct{}{}
			case json.Number:
				set[s.String()] = struct{}{}
			}
		}
	}
	return set
}

func setKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sortIDs(out)
	return out
}

// sortIDs orders numeric ids numerically and everything else lexically,
// numeric ids first.
func sortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, errA := strconv.ParseInt(ids[i], 10, 64)
		b, errB := strconv.ParseInt(ids[j], 10, 64)
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
}
