package pipeline

import (
	"bytes"
	"context"
	"image"

	"github.com/disintegration/imaging"

	"github.com/mbianchi/photarc/internal/logger"
	"github.com/mbianchi/photarc/pkg/catalog"
	"github.com/mbianchi/photarc/pkg/faces"
)

// runFaces detects faces, saves their crops, and folds the embeddings into
// the person clusters. Without a detector the stage is skipped.
func (p *Pipeline) runFaces(ctx context.Context, fileID string) error {
	if !p.detector.Available() {
		return UnavailableStageError("no face detector configured")
	}
	photo, err := p.store.GetPhoto(fileID)
	if err != nil {
		return err
	}
	abs := p.absPath(photo)

	detections, err := p.detector.Detect(ctx, abs)
	if err != nil {
		return err
	}

	version := Versions[StageFaces]
	if len(detections) == 0 {
		_, err := p.store.WriteFaces(fileID, nil, version)
		return err
	}

	img, err := imaging.Open(abs, imaging.AutoOrientation(true))
	if err != nil {
		return PermanentStageError("failed to decode %s: %v", photo.FilePath, err)
	}

	results := make([]catalog.FaceResult, len(detections))
	for i, d := range detections {
		crop := imaging.Crop(img, image.Rect(d.X, d.Y, d.X+d.W, d.Y+d.H))
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, crop, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
			return err
		}
		// Crop artifacts are keyed by detection index; WriteFaces replaces
		// all rows for the photo, so the indexes stay stable per version.
		thumbPath := p.artifacts.FacePath(fileID, uint(i))
		if err := p.artifacts.Write(thumbPath, buf.Bytes()); err != nil {
			return err
		}
		results[i] = catalog.FaceResult{
			BboxX:     d.X,
			BboxY:     d.Y,
			BboxW:     d.W,
			BboxH:     d.H,
			Embedding: faces.EncodeEmbedding(d.Embedding),
			ThumbPath: thumbPath,
		}
	}

	faceIDs, err := p.store.WriteFaces(fileID, results, version)
	if err != nil {
		return err
	}
	return p.clusterNewFaces(faceIDs, detections)
}

// clusterNewFaces assigns freshly written faces to persons and triggers the
// periodic full re-cluster. Clustering errors are logged, not propagated:
// the face rows are already committed and a later pass can relabel them.
func (p *Pipeline) clusterNewFaces(faceIDs []uint, detections []faces.Detection) error {
	p.clusterMu.Lock()
	defer p.clusterMu.Unlock()

	if p.clusterer == nil {
		members, err := p.loadMembers()
		if err != nil {
			return err
		}
		p.clusterer = faces.NewClusterer(members)
	}

	for i, faceID := range faceIDs {
		emb := detections[i].Embedding
		a := p.clusterer.Assign(emb)
		if a.NewPerson {
			person, err := p.store.CreatePerson("", faceID)
			if err != nil {
				logger.Error("failed to create person", "face_id", faceID, "error", err)
				continue
			}
			p.clusterer.AddPerson(person.PersonID, emb)
			a.PersonID = person.PersonID
		}
		if err := p.store.AssignFaces([]uint{faceID}, a.PersonID); err != nil {
			logger.Error("failed to assign face", "face_id", faceID, "error", err)
		}
	}

	if p.clusterer.NeedsRecluster() {
		if err := p.recluster(); err != nil {
			logger.Error("full re-cluster failed", "error", err)
		}
	}
	return nil
}

func (p *Pipeline) loadMembers() ([]faces.Member, error) {
	rows, err := p.store.AllFaces()
	if err != nil {
		return nil, err
	}
	members := make([]faces.Member, 0, len(rows))
	for _, row := range rows {
		emb, err := faces.DecodeEmbedding(row.Embedding)
		if err != nil {
			continue
		}
		m := faces.Member{FaceID: row.FaceID, Embedding: emb}
		if row.PersonID != nil {
			m.PersonID = *row.PersonID
		}
		members = append(members, m)
	}
	return members, nil
}

// recluster relabels every face from scratch. Existing persons are kept
// where a new cluster mostly matches an old one, so names survive.
func (p *Pipeline) recluster() error {
	members, err := p.loadMembers()
	if err != nil {
		return err
	}
	labels := faces.Recluster(members)

	// Group faces by new label, remembering which old persons they had.
	type group struct {
		faceIDs []uint
		persons map[uint]int
	}
	groups := make(map[int]*group)
	for _, m := range members {
		label, ok := labels[m.FaceID]
		if !ok {
			continue
		}
		g := groups[label]
		if g == nil {
			g = &group{persons: make(map[uint]int)}
			groups[label] = g
		}
		g.faceIDs = append(g.faceIDs, m.FaceID)
		if m.PersonID != 0 {
			g.persons[m.PersonID]++
		}
	}

	for _, g := range groups {
		var personID uint
		best := 0
		for id, n := range g.persons {
			if n > best {
				best = n
				personID = id
			}
		}
		if personID == 0 {
			person, err := p.store.CreatePerson("", g.faceIDs[0])
			if err != nil {
				return err
			}
			personID = person.PersonID
		}
		if err := p.store.AssignFaces(g.faceIDs, personID); err != nil {
			return err
		}
	}

	if err := p.store.RefreshPersonCounts(); err != nil {
		return err
	}
	p.clusterer = nil // rebuild lazily from the new labeling
	return nil
}

// runTags asks the vision model for content labels.
func (p *Pipeline) runTags(ctx context.Context, fileID string) error {
	photo, err := p.store.GetPhoto(fileID)
	if err != nil {
		return err
	}
	tags, err := p.vision.Tags(ctx, p.absPath(photo))
	if err != nil {
		return err
	}
	return p.store.WriteTags(fileID, tags, Versions[StageTags])
}

// runCaption asks the vision model for a one-sentence description.
func (p *Pipeline) runCaption(ctx context.Context, fileID string) error {
	photo, err := p.store.GetPhoto(fileID)
	if err != nil {
		return err
	}
	caption, err := p.vision.Caption(ctx, p.absPath(photo))
	if err != nil {
		return err
	}
	return p.store.WriteCaption(fileID, caption, p.vision.Model(), Versions[StageCaption])
}
