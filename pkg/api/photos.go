package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mbianchi/photarc/pkg/artifacts"
	"github.com/mbianchi/photarc/pkg/catalog"
)

// photoFilterFromQuery maps the list endpoint's query parameters onto a
// catalog filter.
func photoFilterFromQuery(r *http.Request) catalog.PhotoFilter {
	q := r.URL.Query()
	return catalog.PhotoFilter{
		Directory:  q.Get("directory"),
		Year:       queryInt(r, "year", 0),
		Month:      queryInt(r, "month", 0),
		PersonID:   queryUint(r, "person_id"),
		EventID:    queryUint(r, "event_id"),
		TagID:      queryUint(r, "tag_id"),
		Country:    q.Get("country"),
		City:       q.Get("city"),
		Favorite:   queryBool(r, "favorite"),
		MinSize:    queryInt64(r, "min_size"),
		DupGroupID: queryUint(r, "group_id"),
		Search:     q.Get("q"),
	}
}

func (h *handlers) listPhotos(w http.ResponseWriter, r *http.Request) {
	page, err := h.deps.Store.ListPhotos(photoFilterFromQuery(r),
		queryInt(r, "page", 1), queryInt(r, "page_size", 100))
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, page)
}

// photoDetail is the single-photo response with its derived metadata.
type photoDetail struct {
	catalog.Photo
	Tags    []string         `json:"tags,omitempty"`
	Caption *catalog.Caption `json:"caption,omitempty"`
	Faces   []catalog.Face   `json:"faces,omitempty"`
}

func (h *handlers) getPhoto(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	photo, err := h.deps.Store.GetPhoto(fileID)
	if err != nil {
		storeError(w, err)
		return
	}

	detail := photoDetail{Photo: *photo}
	if tags, err := h.deps.Store.TagsFor(fileID); err == nil {
		detail.Tags = tags
	}
	if caption, err := h.deps.Store.CaptionFor(fileID); err == nil {
		detail.Caption = caption
	}
	if faces, err := h.deps.Store.FacesFor(fileID); err == nil {
		detail.Faces = faces
	}
	OK(w, detail)
}

func (h *handlers) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	fav, err := h.deps.Store.ToggleFavorite(fileID)
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, map[string]any{"file_id": fileID, "is_favorite": fav})
}

func (h *handlers) serveOriginal(w http.ResponseWriter, r *http.Request) {
	photo, err := h.deps.Store.GetPhoto(chi.URLParam(r, "fileID"))
	if err != nil {
		storeError(w, err)
		return
	}

	abs := filepath.Join(h.deps.PhotosRoot, filepath.FromSlash(photo.FilePath))
	// The stored path is root-relative, but never trust a join blindly.
	root, _ := filepath.Abs(h.deps.PhotosRoot)
	if resolved, err := filepath.Abs(abs); err != nil ||
		!strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		Error(w, http.StatusForbidden, "path escapes photo root")
		return
	}
	http.ServeFile(w, r, abs)
}

func (h *handlers) serveThumbnail(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	size := queryInt(r, "size", 600)

	rc, err := h.deps.Artifacts.Open(h.deps.Artifacts.ThumbPath(fileID, size))
	if err != nil {
		artifactError(w, err)
		return
	}
	defer rc.Close()
	serveArtifact(w, rc, "image/jpeg")
}

func (h *handlers) serveLiveVideo(w http.ResponseWriter, r *http.Request) {
	photo, err := h.deps.Store.GetPhoto(chi.URLParam(r, "fileID"))
	if err != nil {
		storeError(w, err)
		return
	}

	switch {
	case photo.MotionPhoto:
		// Extracted from the photo bytes; LivePhotoVideo is the artifact path.
		rc, err := h.deps.Artifacts.Open(photo.LivePhotoVideo)
		if err != nil {
			artifactError(w, err)
			return
		}
		defer rc.Close()
		serveArtifact(w, rc, "video/mp4")
	case photo.LivePhotoVideo != "":
		// Live Photo sidecar next to the original.
		abs := filepath.Join(h.deps.PhotosRoot, filepath.FromSlash(photo.LivePhotoVideo))
		http.ServeFile(w, r, abs)
	default:
		Error(w, http.StatusNotFound, "photo has no motion video")
	}
}

func (h *handlers) serveFaceCrop(w http.ResponseWriter, r *http.Request) {
	faceID, ok := pathUint(chi.URLParam(r, "faceID"))
	if !ok {
		Error(w, http.StatusBadRequest, "invalid face id")
		return
	}
	face, err := h.deps.Store.GetFace(faceID)
	if err != nil {
		storeError(w, err)
		return
	}
	rc, err := h.deps.Artifacts.Open(face.ThumbPath)
	if err != nil {
		artifactError(w, err)
		return
	}
	defer rc.Close()
	serveArtifact(w, rc, "image/jpeg")
}

func serveArtifact(w http.ResponseWriter, rc io.Reader, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = io.Copy(w, rc)
}

func artifactError(w http.ResponseWriter, err error) {
	if errors.Is(err, artifacts.ErrArtifactNotFound) {
		Error(w, http.StatusNotFound, "artifact not found")
		return
	}
	Error(w, http.StatusInternalServerError, err.Error())
}
