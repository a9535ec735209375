// Package events groups photos into trips and occasions by time proximity
// and location. Detection is batch and deterministic: the same catalog state
// always yields the same events.
package events

import (
	"fmt"
	"time"

	"github.com/mbianchi/photarc/pkg/catalog"
	"github.com/mbianchi/photarc/pkg/geo"
)

const (
	// MaxGap is the time gap that splits consecutive photos into separate
	// events.
	MaxGap = 6 * time.Hour

	// MaxJumpKm splits an event when consecutive geotagged photos are
	// farther apart than this.
	MaxJumpKm = 50.0

	// MinPhotos is the smallest photo count that forms an event. A pair of
	// photos taken close together is already an occasion; only singletons
	// stay unattached.
	MinPhotos = 2
)

// Detect clusters photos into event drafts. photos must be sorted ascending
// by capture time and carry a non-nil DateTaken; the catalog query
// PhotosWithCaptureTime guarantees both.
func Detect(photos []catalog.Photo) []catalog.EventDraft {
	var drafts []catalog.EventDraft
	var cluster []catalog.Photo

	flush := func() {
		if len(cluster) >= MinPhotos {
			drafts = append(drafts, buildDraft(cluster))
		}
		cluster = nil
	}

	for _, p := range photos {
		if p.DateTaken == nil {
			continue
		}
		if len(cluster) > 0 {
			prev := cluster[len(cluster)-1]
			if p.DateTaken.Sub(*prev.DateTaken) > MaxGap || locationJump(prev, p) {
				flush()
			}
		}
		cluster = append(cluster, p)
	}
	flush()
	return drafts
}

// locationJump reports whether two consecutive photos are too far apart to
// belong to one event. Photos without GPS never split on location.
func locationJump(a, b catalog.Photo) bool {
	if a.GPSLatitude == nil || a.GPSLongitude == nil ||
		b.GPSLatitude == nil || b.GPSLongitude == nil {
		return false
	}
	d := geo.HaversineKm(*a.GPSLatitude, *a.GPSLongitude, *b.GPSLatitude, *b.GPSLongitude)
	return d > MaxJumpKm
}

func buildDraft(cluster []catalog.Photo) catalog.EventDraft {
	start := *cluster[0].DateTaken
	end := *cluster[len(cluster)-1].DateTaken

	city, country := dominantPlace(cluster)
	fileIDs := make([]string, len(cluster))
	for i, p := range cluster {
		fileIDs[i] = p.FileID
	}

	return catalog.EventDraft{
		Name:      eventName(city, start, end),
		StartTime: start,
		EndTime:   end,
		City:      city,
		Country:   country,
		CoverFile: cluster[0].FileID,
		FileIDs:   fileIDs,
	}
}

// dominantPlace returns the most frequent resolved city in the cluster,
// with its country. First occurrence wins ties.
func dominantPlace(cluster []catalog.Photo) (string, string) {
	counts := make(map[string]int)
	countries := make(map[string]string)
	var order []string
	for _, p := range cluster {
		if p.LocationCity == "" {
			continue
		}
		if counts[p.LocationCity] == 0 {
			order = append(order, p.LocationCity)
			countries[p.LocationCity] = p.LocationCountry
		}
		counts[p.LocationCity]++
	}

	best := ""
	for _, city := range order {
		if best == "" || counts[city] > counts[best] {
			best = city
		}
	}
	return best, countries[best]
}

// eventName builds the display name: place and date, with the range
// collapsed when the event fits one day.
func eventName(city string, start, end time.Time) string {
	var when string
	switch {
	case start.Format("2006-01-02") == end.Format("2006-01-02"):
		when = start.Format("Jan 2, 2006")
	case start.Year() == end.Year():
		when = fmt.Sprintf("%s - %s", start.Format("Jan 2"), end.Format("Jan 2, 2006"))
	default:
		when = fmt.Sprintf("%s - %s", start.Format("Jan 2, 2006"), end.Format("Jan 2, 2006"))
	}
	if city == "" {
		return when
	}
	return fmt.Sprintf("%s, %s", city, when)
}
