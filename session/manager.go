////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package session maintains the ephemeral, time-boxed signing credential
// that authorizes threshold-decryption requests. A manager runs in exactly
// one of two modes, fixed at construction: external, where the caller owns
// the credential and swaps it in, or managed, where the manager mints and
// refreshes the credential itself from a caller-supplied signing function.
package session

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Error messages.
const (
	newSessionKeyErr = "failed to generate session key pair: %+v"
	signSessionErr   = "wallet signer refused the session intent: %+v"
	encodeProofErr   = "failed to encode session proof: %+v"
)

var (
	// NotExternalErr is returned by UpdateSessionKey when the manager mints
	// its own credentials.
	NotExternalErr = errors.New(
		"session manager is not configured for external credentials")

	// NotManagedErr is returned by RefreshSessionKey when the credential is
	// supplied externally.
	NotManagedErr = errors.New(
		"session manager is not configured to mint credentials")

	// ExpiredErr is returned when an externally supplied credential has
	// lapsed; only the caller can replace it.
	ExpiredErr = errors.New("session credential has expired")

	// NilCredentialErr is returned when an external manager is constructed
	// or updated with no credential.
	NilCredentialErr = errors.New("session credential is nil")
)

// DefaultTTL is how long a managed session credential remains valid.
const DefaultTTL = 30 * time.Minute

// sessionIntent is the domain-separation prefix of the message the wallet
// signer signs to endorse a session key.
const sessionIntent = "quorumchat-session-key:"

// SignerFunc signs a session intent with the caller's long-lived wallet
// key. It is only invoked in managed mode.
type SignerFunc func(ctx context.Context, message []byte) ([]byte, error)

// Credential is one signing session: an ephemeral key pair endorsed by the
// wallet key until ExpiresAt.
type Credential struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey

	// Endorsement is the wallet signature over the session intent.
	Endorsement []byte

	ExpiresAt time.Time
}

// Expired reports whether the credential has lapsed.
func (c *Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

type mode uint8

const (
	modeExternal mode = iota + 1
	modeManaged
)

// Manager holds the current session credential and produces session proofs
// for the threshold-encryption service. It satisfies envelope.Prover.
type Manager struct {
	mode   mode
	signer SignerFunc
	ttl    time.Duration

	mux  sync.Mutex
	cred *Credential
}

// NewExternal constructs a manager around a caller-owned credential. The
// caller is responsible for replacing it via UpdateSessionKey before it
// expires.
func NewExternal(cred *Credential) (*Manager, error) {
	if cred == nil {
		return nil, NilCredentialErr
	}
	return &Manager{mode: modeExternal, cred: cred}, nil
}

// NewManaged constructs a manager that mints its own credentials with the
// given wallet signer. A ttl of zero selects DefaultTTL. The first
// credential is minted lazily on the first Proof call.
func NewManaged(signer SignerFunc, ttl time.Duration) *Manager {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Manager{mode: modeManaged, signer: signer, ttl: ttl}
}

// UpdateSessionKey swaps in a new externally supplied credential. It errors
// in managed mode.
func (m *Manager) UpdateSessionKey(cred *Credential) error {
	if m.mode != modeExternal {
		return NotExternalErr
	}
	if cred == nil {
		return NilCredentialErr
	}

	m.mux.Lock()
	defer m.mux.Unlock()
	m.cred = cred
	jww.INFO.Printf("[SESSION] Session credential replaced; expires %s",
		cred.ExpiresAt.Format(time.RFC3339))
	return nil
}

// RefreshSessionKey forces regeneration of the managed credential. It
// errors in external mode.
func (m *Manager) RefreshSessionKey(ctx context.Context) error {
	if m.mode != modeManaged {
		return NotManagedErr
	}

	m.mux.Lock()
	defer m.mux.Unlock()
	return m.mint(ctx)
}

// Proof returns the encoded session proof for the current credential,
// minting or refreshing it first when the manager is in managed mode and
// the credential is missing or lapsed. In external mode a lapsed credential
// is an error, since only the caller can replace it.
func (m *Manager) Proof(ctx context.Context) ([]byte, error) {
	m.mux.Lock()
	defer m.mux.Unlock()

	now := time.Now()
	if m.cred == nil || m.cred.Expired(now) {
		if m.mode != modeManaged {
			return nil, ExpiredErr
		}
		if err := m.mint(ctx); err != nil {
			return nil, err
		}
	}

	proof, err := cbor.Marshal(sessionProof{
		PublicKey:   m.cred.PublicKey,
		Endorsement: m.cred.Endorsement,
		ExpiresAt:   m.cred.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, errors.Errorf(encodeProofErr, err)
	}
	return proof, nil
}

// sessionProof is the wire form presented to the threshold service.
type sessionProof struct {
	PublicKey   []byte `cbor:"1,keyasint"`
	Endorsement []byte `cbor:"2,keyasint"`
	ExpiresAt   int64  `cbor:"3,keyasint"`
}

// mint generates a fresh session key pair and has the wallet signer endorse
// it. Callers must hold the mutex.
func (m *Manager) mint(ctx context.Context) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return errors.Errorf(newSessionKeyErr, err)
	}

	expiresAt := time.Now().Add(m.ttl)
	intent := buildIntent(pub, expiresAt)
	endorsement, err := m.signer(ctx, intent)
	if err != nil {
		return errors.Errorf(signSessionErr, err)
	}

	m.cred = &Credential{
		PublicKey:   pub,
		PrivateKey:  priv,
		Endorsement: endorsement,
		ExpiresAt:   expiresAt,
	}

	jww.INFO.Printf("[SESSION] Minted session credential; expires %s",
		expiresAt.Format(time.RFC3339))
	return nil
}

// buildIntent constructs the message the wallet signer endorses:
// intent prefix ∥ session public key ∥ expiry unix seconds.
func buildIntent(pub ed25519.PublicKey, expiresAt time.Time) []byte {
	intent := make([]byte, 0, len(sessionIntent)+ed25519.PublicKeySize+8)
	intent = append(intent, sessionIntent...)
	intent = append(intent, pub...)
	for shift := 56; shift >= 0; shift -= 8 {
		intent = append(intent, byte(expiresAt.Unix()>>shift))
	}
	return intent
}
