package pipeline

// Stage names one unit of per-photo work. The string values are what the
// work ledger stores; renaming one orphans its ledger rows.
type Stage string

const (
	StageExif    Stage = "exif"
	StageGeocode Stage = "geocode"
	StageThumbs  Stage = "thumbs"
	StageMotion  Stage = "motion"
	StagePhash   Stage = "phash"
	StageFaces   Stage = "faces"
	StageTags    Stage = "tags"
	StageCaption Stage = "caption"
)

// Flow lists every per-photo stage, in the order snapshots and ledger
// enumerations report them. Execution order comes from the stage graph
// below, not from this list. Event detection is not a per-photo stage: it
// runs as a batch barrier after the flow drains.
var Flow = []Stage{
	StageExif,
	StageGeocode,
	StageThumbs,
	StageMotion,
	StagePhash,
	StageFaces,
	StageTags,
	StageCaption,
}

// Entry names the stages discovery feeds directly. They run in parallel
// per photo; none of them needs another stage's output.
var Entry = []Stage{
	StageExif,
	StageThumbs,
	StageMotion,
	StagePhash,
}

// Downstream is the static stage graph. A finished (or skipped) stage fans
// the file identifier out to every listed queue. Geocoding waits on exif
// for GPS coordinates; the pixel-reading enrichment stages wait on thumbs,
// which proves the file decodes before the expensive work starts.
var Downstream = map[Stage][]Stage{
	StageExif:    {StageGeocode},
	StageGeocode: nil,
	StageThumbs:  {StageFaces, StageTags, StageCaption},
	StageMotion:  nil,
	StagePhash:   nil,
	StageFaces:   nil,
	StageTags:    nil,
	StageCaption: nil,
}

// Versions is the current algorithm version per stage. Bumping one
// invalidates every done ledger row for that stage on the next scan.
var Versions = map[Stage]int{
	StageExif:    1,
	StageGeocode: 1,
	StageThumbs:  1,
	StageMotion:  1,
	StagePhash:   1,
	StageFaces:   1,
	StageTags:    1,
	StageCaption: 1,
}

// FlowNames returns the flow as the plain strings the catalog consumes.
func FlowNames() []string {
	names := make([]string, len(Flow))
	for i, s := range Flow {
		names[i] = string(s)
	}
	return names
}
