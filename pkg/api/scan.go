package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mbianchi/photarc/pkg/catalog"
	"github.com/mbianchi/photarc/pkg/pipeline"
)

func (h *handlers) triggerScan(w http.ResponseWriter, r *http.Request) {
	runID, started, err := h.deps.Supervisor.TriggerScan(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !started {
		Error(w, http.StatusConflict, fmt.Sprintf("a scan is already running (run %s)", runID))
		return
	}
	JSON(w, http.StatusAccepted, Response{Status: "ok", Timestamp: time.Now().UTC(), Data: map[string]any{
		"run_id":  runID,
		"started": true,
	}})
}

func (h *handlers) stopScan(w http.ResponseWriter, r *http.Request) {
	stopped := h.deps.Supervisor.StopScan()
	if !stopped {
		Error(w, http.StatusConflict, "no scan is running")
		return
	}
	OK(w, map[string]any{"stopped": true})
}

func (h *handlers) scanStatus(w http.ResponseWriter, r *http.Request) {
	active, err := h.deps.Store.ActiveScanRun()
	if err != nil {
		storeError(w, err)
		return
	}
	last, err := h.deps.Store.LastScanRun()
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		storeError(w, err)
		return
	}
	OK(w, map[string]any{"active": active, "last": last})
}

func (h *handlers) pipelineSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Supervisor.Snapshot()
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, snap)
}

// pipelineFlow reports the static stage graph: entry stages, stage
// versions, and each stage's downstream fan-out.
func (h *handlers) pipelineFlow(w http.ResponseWriter, r *http.Request) {
	type stageInfo struct {
		Name       string   `json:"name"`
		Version    int      `json:"version"`
		Downstream []string `json:"downstream,omitempty"`
	}
	entry := make([]string, len(pipeline.Entry))
	for i, stage := range pipeline.Entry {
		entry[i] = string(stage)
	}
	stages := make([]stageInfo, len(pipeline.Flow))
	for i, stage := range pipeline.Flow {
		info := stageInfo{Name: string(stage), Version: pipeline.Versions[stage]}
		for _, ds := range pipeline.Downstream[stage] {
			info.Downstream = append(info.Downstream, string(ds))
		}
		stages[i] = info
	}
	OK(w, map[string]any{"entry": entry, "stages": stages})
}

func (h *handlers) pipelineFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := h.deps.Store.FailedItems(queryInt(r, "limit", 100))
	if err != nil {
		storeError(w, err)
		return
	}
	OK(w, failures)
}

func (h *handlers) clearIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Supervisor.ClearIndex(); err != nil {
		if errors.Is(err, pipeline.ErrScanActive) {
			Error(w, http.StatusConflict, "cannot clear the index while a scan is running")
			return
		}
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	OK(w, map[string]any{"cleared": true})
}
