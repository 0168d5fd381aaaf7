package http

import (
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/julienschmidt/httprouter"

	"github.com/srg/hapd/internal/session"
)

type prepareRequest struct {
	TTL uint64 `json:"ttl"`
	PID uint64 `json:"pid"`
}

// handlePrepare implements `POST /prepare` (spec.md §4.6): records a
// timed-write transaction redeemable by a matching `pid` on a subsequent
// `PUT /characteristics`.
func (d *Deps) handlePrepare(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c := connFromRequest(r)
	if !c.Ctx.IsEncrypted() {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var req prepareRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	now := d.System.MonotonicMillis()
	c.Ctx.SetPending(&session.PendingWrite{PID: req.PID, Expiration: now + int64(req.TTL)})

	writeJSON(w, http.StatusOK, struct {
		Status int `json:"status"`
	}{Status: 0})
}

// handleIdentify implements `POST /identify` (spec.md §4.6): only valid on
// an unpaired, unencrypted connection.
func (d *Deps) handleIdentify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c := connFromRequest(r)
	if c.Ctx.IsEncrypted() || !d.PairingStore.IsEmpty() {
		writeJSON(w, http.StatusBadRequest, struct {
			Status int    `json:"status"`
			Reason string `json:"reason,omitempty"`
		}{Status: -70401, Reason: "already paired"})
		return
	}
	if d.Identify == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := d.Identify(); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
