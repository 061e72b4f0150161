package annotations

import (
	"sort"
	"time"
)

// Epsilon is the window, in seconds, within which two annotation
// timestamps are treated as the same instant.
const Epsilon = 0.1

// tombstoneBump separates a superseded bookmark from the entry that
// replaced it.
const tombstoneBump = time.Millisecond

type order int

const (
	sameInstant order = iota
	localNewer
	remoteNewer
)

func (o order) String() string {
	switch o {
	case localNewer:
		return "local"
	case remoteNewer:
		return "remote"
	default:
		return "same"
	}
}

func compareEpochs(local, remote float64) order {
	switch {
	case local > remote+Epsilon:
		return localNewer
	case remote > local+Epsilon:
		return remoteNewer
	default:
		return sameInstant
	}
}

func compareDates(local, remote time.Time) order {
	return compareEpochs(epochOf(local), epochOf(remote))
}

func epochOf(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// TimeOf converts a fractional Unix timestamp to a UTC time.
func TimeOf(epoch float64) time.Time {
	return time.Unix(0, int64(epoch*float64(time.Second))).UTC()
}

// newestFirst sorts so the candidate of a group comes first. Removals win
// exact ties so that repeated merges agree on the candidate.
func newestFirst[T any](items []T, date func(T) time.Time, removed func(T) bool) {
	sort.SliceStable(items, func(i, j int) bool {
		di, dj := date(items[i]), date(items[j])
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return removed(items[i]) && !removed(items[j])
	})
}
