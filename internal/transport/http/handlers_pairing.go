package http

import (
	"crypto/ed25519"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/srg/hapd/internal/pairing"
	"github.com/srg/hapd/internal/session"
	"github.com/srg/hapd/internal/tlv8"
)

const contentTypePairingTLV8 = "application/pairing+tlv8"

func newSecureSessionFromResult(r *pairing.VerifyResult) *session.SecureSession {
	return session.NewSecureSession(r.ReadKey, r.WriteKey)
}

func writeTLV8(w http.ResponseWriter, items tlv8.Items) {
	body := tlv8.Encode(items)
	w.Header().Set("Content-Type", contentTypePairingTLV8)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (d *Deps) handlePairSetup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c := connFromRequest(r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if c.SetupEngine == nil {
		c.SetupEngine = pairing.NewSetupEngine(d.AccessoryPairingID, d.AccessoryLTPK, d.AccessoryLTSK, d.SetupCode, d.PairingStore, d.RateLimiter, d.Log)
	}
	resp := c.SetupEngine.Step(body)
	w.Header().Set("Content-Type", contentTypePairingTLV8)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

func (d *Deps) handlePairVerify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c := connFromRequest(r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if c.VerifyEngine == nil {
		c.VerifyEngine = pairing.NewVerifyEngine(d.AccessoryPairingID, d.AccessoryLTSK, d.PairingStore, d.Log)
	}
	resp := c.VerifyEngine.Step(body)
	w.Header().Set("Content-Type", contentTypePairingTLV8)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)

	if result := c.VerifyEngine.Result(); result != nil {
		sess := newSecureSessionFromResult(result)
		rec, ok := d.PairingStore.Get(result.ControllerID)
		c.Ctx.InstallSession(sess, result.ControllerID, ok && rec.Admin)
		c.VerifyEngine = nil
	}
}

// /pairings (spec.md §4.6): Add/Remove/List-Pairing, admin-only, over an
// already-encrypted session.
func (d *Deps) handlePairings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
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
	in := tlv8.Decode(body)
	methodByte, ok := in.GetByte(pairing.TLVMethod)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !c.Ctx.IsAdmin() {
		writeTLV8(w, tlv8.Items{}.AddByte(pairing.TLVState, byte(pairing.M2)).AddByte(pairing.TLVError, byte(pairing.ErrAuthentication)))
		return
	}

	switch pairing.Method(methodByte) {
	case pairing.MethodAddPairing:
		d.handleAddPairing(w, in)
	case pairing.MethodRemovePairing:
		d.handleRemovePairing(w, c, in)
	case pairing.MethodListPairings:
		d.handleListPairings(w)
	default:
		writeTLV8(w, tlv8.Items{}.AddByte(pairing.TLVState, byte(pairing.M2)).AddByte(pairing.TLVError, byte(pairing.ErrUnknown)))
	}
}

func (d *Deps) handleAddPairing(w http.ResponseWriter, in tlv8.Items) {
	id, ok := in.GetString(pairing.TLVIdentifier)
	ltpkItem, ok2 := in.First(pairing.TLVPublicKey)
	if !ok || !ok2 || len(ltpkItem.Value) != ed25519.PublicKeySize {
		writeTLV8(w, tlv8.Items{}.AddByte(pairing.TLVState, byte(pairing.M2)).AddByte(pairing.TLVError, byte(pairing.ErrUnknown)))
		return
	}
	admin := false
	if permItem, ok := in.First(pairing.TLVPermissions); ok && len(permItem.Value) == 1 {
		admin = permItem.Value[0] == 1
	}
	if err := d.PairingStore.Add(id, ed25519.PublicKey(ltpkItem.Value), admin); err != nil {
		writeTLV8(w, tlv8.Items{}.AddByte(pairing.TLVState, byte(pairing.M2)).AddByte(pairing.TLVError, byte(pairing.ErrUnknown)))
		return
	}
	writeTLV8(w, tlv8.Items{}.AddByte(pairing.TLVState, byte(pairing.M2)))
}

func (d *Deps) handleRemovePairing(w http.ResponseWriter, c *Conn, in tlv8.Items) {
	id, ok := in.GetString(pairing.TLVIdentifier)
	if !ok {
		writeTLV8(w, tlv8.Items{}.AddByte(pairing.TLVState, byte(pairing.M2)).AddByte(pairing.TLVError, byte(pairing.ErrUnknown)))
		return
	}
	if err := d.PairingStore.Remove(id); err != nil {
		writeTLV8(w, tlv8.Items{}.AddByte(pairing.TLVState, byte(pairing.M2)).AddByte(pairing.TLVError, byte(pairing.ErrUnknown)))
		return
	}
	if id == c.Ctx.ControllerID() {
		c.Ctx.RequestClose()
	}
	writeTLV8(w, tlv8.Items{}.AddByte(pairing.TLVState, byte(pairing.M2)))
}

func (d *Deps) handleListPairings(w http.ResponseWriter) {
	out := tlv8.Items{}.AddByte(pairing.TLVState, byte(pairing.M2))
	first := true
	d.PairingStore.Range(func(id string, rec pairing.Record) bool {
		if !first {
			out = out.AddByte(pairing.TLVSeparator, 0)
		}
		first = false
		perm := byte(0)
		if rec.Admin {
			perm = 1
		}
		out = out.AddString(pairing.TLVIdentifier, id).
			Add(pairing.TLVPublicKey, rec.LTPK).
			AddByte(pairing.TLVPermissions, perm)
		return true
	})
	writeTLV8(w, out)
}
