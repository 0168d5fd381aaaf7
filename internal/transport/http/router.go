package http

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// NewRouter builds the exact method+path routing table spec.md §4.6
// specifies. httprouter's trie does exact method+path matching with the
// query string excluded, which is what the spec requires.
func NewRouter(deps *Deps) http.Handler {
	r := httprouter.New()
	r.POST("/pair-setup", deps.handlePairSetup)
	r.POST("/pair-verify", deps.handlePairVerify)
	r.POST("/pairings", deps.handlePairings)
	r.GET("/accessories", deps.handleGetAccessories)
	r.GET("/characteristics", deps.handleGetCharacteristics)
	r.PUT("/characteristics", deps.handlePutCharacteristics)
	r.POST("/prepare", deps.handlePrepare)
	r.POST("/identify", deps.handleIdentify)
	return r
}
