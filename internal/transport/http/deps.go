package http

import (
	"crypto/ed25519"

	"github.com/sirupsen/logrus"

	"github.com/srg/hapd/internal/model"
	"github.com/srg/hapd/internal/pairing"
	"github.com/srg/hapd/internal/platform"
	"github.com/srg/hapd/internal/session"
)

// Deps are the collaborators every connection's handlers share. One Deps
// is constructed by the orchestrator (pkg/hap) and reused across every
// accepted IP connection.
type Deps struct {
	DB            *model.Database
	PairingStore  *pairing.Store
	Subscriptions *session.SubscriptionManager
	System        platform.System
	Log           *logrus.Entry

	AccessoryPairingID string
	AccessoryLTPK       ed25519.PublicKey
	AccessoryLTSK       ed25519.PrivateKey
	SetupCode           string
	RateLimiter         pairing.RateLimiter

	// OnValueChange is invoked by PUT /characteristics after a successful
	// application write, so the orchestrator sees every
	// connection-originated change exactly once.
	OnValueChange func(session.ValueChange)

	// Identify is the application's identify callback for POST /identify.
	Identify func() error

	// OnDisconnect is invoked with the connection's ID after its
	// subscriptions have been torn down, so the orchestrator can drop its
	// own connID->*Conn bookkeeping.
	OnDisconnect func(connID string)
}
