package api

import (
	"net/http"

	"github.com/mbianchi/photarc/pkg/catalog"
)

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		Error(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	page, err := h.deps.Store.ListPhotos(catalog.PhotoFilter{Search: term},
		queryInt(r, "page", 1), queryInt(r, "page_size", 100))
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, page)
}

func (h *handlers) directories(w http.ResponseWriter, r *http.Request) {
	tree, err := h.deps.Store.DirectoryTree()
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, tree)
}

func (h *handlers) timeline(w http.ResponseWriter, r *http.Request) {
	granularity := r.URL.Query().Get("granularity")
	if granularity == "" {
		granularity = "month"
	}
	if granularity != "month" && granularity != "day" {
		Error(w, http.StatusBadRequest, "granularity must be month or day")
		return
	}
	groups, err := h.deps.Store.Timeline(granularity)
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, groups)
}

func (h *handlers) years(w http.ResponseWriter, r *http.Request) {
	years, err := h.deps.Store.Years()
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, years)
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Store.Stats()
	if err != nil {
		storeError(w, err)
		return
	}
	artifactStats, err := h.deps.Artifacts.Stats()
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, map[string]any{"library": stats, "artifacts": artifactStats})
}

func (h *handlers) tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.deps.Store.Tags()
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, tags)
}

func (h *handlers) duplicates(w http.ResponseWriter, r *http.Request) {
	sets, err := h.deps.Store.ListDuplicateSets()
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, sets)
}

// largeFiles lists the biggest photos, a reclaim-space view.
func (h *handlers) largeFiles(w http.ResponseWriter, r *http.Request) {
	minSize := queryInt64(r, "min_size")
	if minSize <= 0 {
		minSize = 10 << 20
	}
	page, err := h.deps.Store.ListPhotos(catalog.PhotoFilter{MinSize: minSize},
		queryInt(r, "page", 1), queryInt(r, "page_size", 100))
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, page)
}

func (h *handlers) countries(w http.ResponseWriter, r *http.Request) {
	rows, err := h.deps.Store.Countries()
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, rows)
}

func (h *handlers) cities(w http.ResponseWriter, r *http.Request) {
	rows, err := h.deps.Store.Cities(r.URL.Query().Get("country"))
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, rows)
}

func (h *handlers) mapPoints(w http.ResponseWriter, r *http.Request) {
	points, err := h.deps.Store.MapPoints(queryInt(r, "limit", 0))
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, points)
}
