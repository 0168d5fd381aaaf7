// Package session implements the AEAD-framed secure session, the
// per-connection context it lives on, and the (aid,iid) subscription
// fan-out that turns an attribute value-change into pushed events.
package session

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/srg/hapd/internal/hapcrypto"
)

// MaxFramePlaintext is the largest plaintext chunk a single IP frame may
// carry before it must be split into another frame (spec.md §4.5).
const MaxFramePlaintext = 1024

// ErrSessionAuthFailed is returned by Decoder.Feed when an inbound frame
// fails AEAD verification. The caller must tear the connection down; per
// spec.md §4.5 the receive buffer is cleared and the session is no longer
// usable.
var ErrSessionAuthFailed = errors.New("session: frame authentication failed")

// SecureSession holds the two 32-byte transport keys and per-direction
// nonce counters established by Pair Verify M4. Counters start at 0 and
// never reset for the lifetime of the session.
type SecureSession struct {
	mu sync.Mutex

	readKey  []byte // accessory -> controller (used to encrypt outbound)
	writeKey []byte // controller -> accessory (used to decrypt inbound)

	outCounter uint64
	inCounter  uint64
}

// NewSecureSession wraps the keys derived by pairing.VerifyResult.
func NewSecureSession(readKey, writeKey []byte) *SecureSession {
	return &SecureSession{readKey: readKey, writeKey: writeKey}
}

// EncryptMessage splits plaintext into ≤1024-byte frames and seals each
// one as `u16_le(len) || ciphertext || tag16`, with the length prefix as
// AAD. Frame counters increment monotonically, one per frame.
func (s *SecureSession) EncryptMessage(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []byte
	for len(plaintext) > 0 {
		n := len(plaintext)
		if n > MaxFramePlaintext {
			n = MaxFramePlaintext
		}
		chunk := plaintext[:n]
		plaintext = plaintext[n:]

		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(chunk)))
		sealed, err := hapcrypto.Seal(s.readKey, hapcrypto.Nonce(s.outCounter), lenBuf[:], chunk)
		if err != nil {
			return nil, err
		}
		s.outCounter++
		out = append(out, lenBuf[:]...)
		out = append(out, sealed...)
	}
	return out, nil
}

// Decoder buffers inbound bytes for one connection and yields complete
// decrypted frame payloads as they become available.
type Decoder struct {
	session *SecureSession
	buf     []byte
}

// NewDecoder returns a frame decoder bound to session's write (inbound) key
// and counter.
func NewDecoder(session *SecureSession) *Decoder {
	return &Decoder{session: session}
}

// Feed appends newly-received bytes and returns every fully-buffered,
// decrypted frame payload. A decryption failure returns ErrSessionAuthFailed
// after clearing the internal buffer; any frames successfully decoded
// earlier in this call are still returned alongside the error.
func (d *Decoder) Feed(data []byte) ([][]byte, error) {
	d.buf = append(d.buf, data...)

	var out [][]byte
	for {
		if len(d.buf) < 2 {
			break
		}
		l := int(binary.LittleEndian.Uint16(d.buf[:2]))
		need := 2 + l + 16
		if len(d.buf) < need {
			break
		}

		lenBytes := d.buf[:2]
		sealed := d.buf[2:need]
		d.session.mu.Lock()
		plain, err := hapcrypto.Open(d.session.writeKey, hapcrypto.Nonce(d.session.inCounter), lenBytes, sealed)
		if err == nil {
			d.session.inCounter++
		}
		d.session.mu.Unlock()
		if err != nil {
			d.buf = nil
			return out, ErrSessionAuthFailed
		}
		out = append(out, plain)
		d.buf = d.buf[need:]
	}
	return out, nil
}
