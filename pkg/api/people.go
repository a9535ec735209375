package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mbianchi/photarc/pkg/catalog"
)

func (h *handlers) listPersons(w http.ResponseWriter, r *http.Request) {
	persons, err := h.deps.Store.ListPersons()
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, persons)
}

func (h *handlers) renamePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(chi.URLParam(r, "personID"))
	if !ok {
		Error(w, http.StatusBadRequest, "invalid person id")
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		Error(w, http.StatusBadRequest, "body must be {\"name\": ...}")
		return
	}
	if err := h.deps.Store.RenamePerson(id, body.Name); err != nil {
		storeError(w, err)
		return
	}
	person, err := h.deps.Store.GetPerson(id)
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, person)
}

func (h *handlers) mergePersons(w http.ResponseWriter, r *http.Request) {
	dst, ok := pathUint(chi.URLParam(r, "personID"))
	if !ok {
		Error(w, http.StatusBadRequest, "invalid person id")
		return
	}
	var body struct {
		SourceID uint `json:"source_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SourceID == 0 {
		Error(w, http.StatusBadRequest, "body must be {\"source_id\": ...}")
		return
	}
	if err := h.deps.Store.MergePersons(dst, body.SourceID); err != nil {
		storeError(w, err)
		return
	}
	person, err := h.deps.Store.GetPerson(dst)
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, person)
}

func (h *handlers) personPhotos(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(chi.URLParam(r, "personID"))
	if !ok {
		Error(w, http.StatusBadRequest, "invalid person id")
		return
	}
	page, err := h.deps.Store.ListPhotos(catalog.PhotoFilter{PersonID: id},
		queryInt(r, "page", 1), queryInt(r, "page_size", 100))
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, page)
}

func (h *handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.deps.Store.ListEvents()
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, events)
}

func (h *handlers) getEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(chi.URLParam(r, "eventID"))
	if !ok {
		Error(w, http.StatusBadRequest, "invalid event id")
		return
	}
	event, err := h.deps.Store.GetEvent(id)
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, event)
}

func (h *handlers) renameEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(chi.URLParam(r, "eventID"))
	if !ok {
		Error(w, http.StatusBadRequest, "invalid event id")
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		Error(w, http.StatusBadRequest, "body must be {\"name\": ...}")
		return
	}
	if err := h.deps.Store.RenameEvent(id, body.Name); err != nil {
		storeError(w, err)
		return
	}
	event, err := h.deps.Store.GetEvent(id)
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, event)
}

func (h *handlers) eventPhotos(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(chi.URLParam(r, "eventID"))
	if !ok {
		Error(w, http.StatusBadRequest, "invalid event id")
		return
	}
	photos, err := h.deps.Store.EventPhotos(id)
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, photos)
}
