package http

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/julienschmidt/httprouter"

	"github.com/srg/hapd/internal/model"
	"github.com/srg/hapd/internal/session"
)

type charReadResult struct {
	AID    uint64      `json:"aid"`
	IID    uint16      `json:"iid"`
	Value  interface{} `json:"value,omitempty"`
	Status int         `json:"status,omitempty"`
}

type charReadResponse struct {
	Characteristics []charReadResult `json:"characteristics"`
}

type charWriteEntry struct {
	AID   uint64      `json:"aid"`
	IID   uint16      `json:"iid"`
	EV    *bool       `json:"ev,omitempty"`
	Value interface{} `json:"value,omitempty"`
	PID   *uint64     `json:"pid,omitempty"`
}

type charWriteRequest struct {
	Characteristics []charWriteEntry `json:"characteristics"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/hap+json")
	w.WriteHeader(status)
	body, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = w.Write(body)
}

// handleGetAccessories implements `GET /accessories` (spec.md §4.6).
func (d *Deps) handleGetAccessories(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c := connFromRequest(r)
	if !c.Ctx.IsEncrypted() {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, d.DB.ToJSONAccessories())
}

// handleGetCharacteristics implements `GET /characteristics?id=a.i[,a.i]…`.
func (d *Deps) handleGetCharacteristics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c := connFromRequest(r)
	if !c.Ctx.IsEncrypted() {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	idParam := r.URL.Query().Get("id")
	if idParam == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	results := make([]charReadResult, 0, 4)
	anyError := false
	for _, pair := range strings.Split(idParam, ",") {
		aid, iid, ok := parseAIDIID(pair)
		if !ok {
			continue
		}
		res := charReadResult{AID: aid, IID: iid}
		_, _, ch, found := d.DB.Find(aid, iid)
		switch {
		case !found:
			res.Status = int(model.StatusResourceDoesNotExist)
		case !ch.Perms.Has(model.PermPairedRead):
			res.Status = int(model.StatusWriteOnlyCharacteristic)
		default:
			v := ch.Value
			if ch.OnRead != nil {
				read, err := ch.OnRead()
				if err != nil {
					res.Status = int(model.StatusServiceCommunicationFail)
					break
				}
				v = read
			}
			res.Value = model.ValueAsJSON(v)
		}
		if res.Status != 0 {
			anyError = true
		}
		results = append(results, res)
	}

	status := http.StatusOK
	if anyError {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, charReadResponse{Characteristics: results})
}

// handlePutCharacteristics implements `PUT /characteristics` (spec.md §4.6).
func (d *Deps) handlePutCharacteristics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
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
	var req charWriteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	results := make([]charReadResult, 0, len(req.Characteristics))
	anyError := false
	anyWriteResponse := false
	connID := c.Ctx.ID

	for _, entry := range req.Characteristics {
		res := charReadResult{AID: entry.AID, IID: entry.IID}
		status, echoed, writeResp := d.applyWrite(c, connID, entry)
		res.Status = int(status)
		if echoed != nil {
			res.Value = echoed
		}
		if writeResp {
			anyWriteResponse = true
		}
		if res.Status != 0 {
			anyError = true
		}
		results = append(results, res)
	}

	switch {
	case anyError:
		writeJSON(w, http.StatusMultiStatus, charReadResponse{Characteristics: results})
	case anyWriteResponse:
		writeJSON(w, http.StatusOK, charReadResponse{Characteristics: results})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// applyWrite handles a single PUT /characteristics entry: the ev toggle and
// the value write are independent, per spec.md §4.6.
func (d *Deps) applyWrite(c *Conn, connID string, entry charWriteEntry) (model.Status, interface{}, bool) {
	_, _, ch, found := d.DB.Find(entry.AID, entry.IID)
	if !found {
		return model.StatusResourceDoesNotExist, nil, false
	}
	key := session.CharKey{AID: entry.AID, IID: entry.IID}

	if entry.EV != nil {
		if !ch.Perms.Has(model.PermNotify) {
			return model.StatusNotificationNotSupported, nil, false
		}
		if *entry.EV {
			d.Subscriptions.Subscribe(c.Ctx, key)
		} else {
			d.Subscriptions.Unsubscribe(c.Ctx, key)
		}
	}

	if entry.Value == nil {
		return model.StatusSuccess, nil, false
	}
	if !ch.Perms.Has(model.PermPairedWrite) {
		return model.StatusReadOnlyCharacteristic, nil, false
	}
	if ch.Perms.Has(model.PermTimedWrite) {
		if entry.PID == nil {
			return model.StatusInvalidValueInRequest, nil, false
		}
		if _, ok := c.Ctx.TakePending(*entry.PID, d.System.MonotonicMillis()); !ok {
			return model.StatusInvalidValueInRequest, nil, false
		}
	}

	v, err := model.ValueFromJSON(ch.Format, entry.Value)
	if err != nil {
		return model.StatusInvalidValueInRequest, nil, false
	}
	if ch.OnWrite != nil {
		if err := ch.OnWrite(v); err != nil {
			return model.StatusServiceCommunicationFail, nil, false
		}
	}
	ch.Value = v

	if d.OnValueChange != nil {
		srcID := connID
		raw, _ := model.EncodeBinary(v)
		d.OnValueChange(session.ValueChange{Key: key, Value: raw, SourceConnectionID: &srcID})
	}

	if ch.Perms.Has(model.PermWriteResponse) {
		return model.StatusSuccess, model.ValueAsJSON(v), true
	}
	return model.StatusSuccess, nil, false
}

func parseAIDIID(s string) (uint64, uint16, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ".", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	aid, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	iid, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return 0, 0, false
	}
	return aid, uint16(iid), true
}
