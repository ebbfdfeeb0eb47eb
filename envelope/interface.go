////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package envelope implements the channel encryption engine: per-channel
// data-encryption-key (DEK) lifecycle against a threshold-encryption
// service, and the symmetric AEAD used for message text and attachments.
// Plaintext DEKs never leave the calling process and are never persisted.
package envelope

import "context"

// Client is the threshold-encryption collaborator. The cryptographic
// protocol behind it is out of scope; the engine only depends on these two
// calls.
type Client interface {
	// Encrypt encrypts plaintext under the derived policy identity such
	// that threshold cooperating key servers are required to decrypt it.
	Encrypt(ctx context.Context, threshold int, identity []byte,
		plaintext []byte) ([]byte, error)

	// Decrypt recovers the plaintext of an encrypted blob. The session
	// proof authenticates the caller's signing session and the
	// authorization bytes are a read-only ledger payload proving channel
	// membership.
	Decrypt(ctx context.Context, blob, sessionProof,
		authorization []byte) ([]byte, error)
}

// Prover supplies a live session proof for threshold-decryption requests.
// It is implemented by the session key manager.
type Prover interface {
	Proof(ctx context.Context) ([]byte, error)
}
