////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package envelope

import (
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"gitlab.com/quorumchat/client/ledger"
)

// Error messages.
const (
	encodeEnvelopeErr    = "failed to encode DEK envelope: %+v"
	decodeEnvelopeErr    = "failed to decode DEK envelope: %+v"
	legacyEnvelopeLenErr = "legacy envelope is %d bytes; minimum is %d"
	versionMismatchErr   = "envelope encodes key version %d; expected %d"
)

// policyNonceLen is the length of the random nonce mixed into the policy
// identity derivation.
const policyNonceLen = 16

// EncryptedSymmetricKey is one entry of a channel's encryption-key history:
// the threshold-encrypted DEK blob and its monotonic version number. The
// bytes are opaque to the ledger; decrypting them requires presenting a
// valid MemberCap to the threshold-encryption service.
type EncryptedSymmetricKey struct {
	Bytes   []byte `cbor:"1,keyasint"`
	Version uint32 `cbor:"2,keyasint"`
}

// dekEnvelope is the decoded structure inside EncryptedSymmetricKey.Bytes.
type dekEnvelope struct {
	// PolicyNonce is the random nonce that was mixed into the policy
	// identity when the DEK was threshold-encrypted.
	PolicyNonce []byte `cbor:"1,keyasint"`

	// Blob is the threshold-encrypted DEK.
	Blob []byte `cbor:"2,keyasint"`
}

func (e dekEnvelope) encode() ([]byte, error) {
	data, err := cbor.Marshal(e)
	if err != nil {
		return nil, errors.Errorf(encodeEnvelopeErr, err)
	}
	return data, nil
}

// decodeEnvelope parses EncryptedSymmetricKey.Bytes.
//
// The current encoding is CBOR. Envelopes produced before the encoding
// change are a raw little-endian framing: a 4-byte little-endian key
// version, a 16-byte policy nonce, then the blob. Those envelopes live in
// append-only key histories and cannot be rewritten, so the legacy path is
// kept behind Params.LegacyLittleEndian.
func decodeEnvelope(key EncryptedSymmetricKey, legacy bool) (
	dekEnvelope, error) {
	if legacy {
		const minLen = 4 + policyNonceLen
		if len(key.Bytes) < minLen {
			return dekEnvelope{}, errors.Wrapf(MalformedEnvelopeErr,
				legacyEnvelopeLenErr, len(key.Bytes), minLen)
		}
		version := binary.LittleEndian.Uint32(key.Bytes[:4])
		if version != key.Version {
			return dekEnvelope{}, errors.Wrapf(MalformedEnvelopeErr,
				versionMismatchErr, version, key.Version)
		}
		return dekEnvelope{
			PolicyNonce: key.Bytes[4 : 4+policyNonceLen],
			Blob:        key.Bytes[4+policyNonceLen:],
		}, nil
	}

	var env dekEnvelope
	if err := cbor.Unmarshal(key.Bytes, &env); err != nil {
		return dekEnvelope{}, errors.Wrapf(MalformedEnvelopeErr,
			decodeEnvelopeErr, err)
	}
	return env, nil
}

// deriveIdentity computes the threshold-encryption policy identity for a
// channel key: BLAKE2b-256(channelID ∥ policyNonce ∥ big-endian version).
// The derivation is deterministic so the same envelope always resolves to
// the same policy.
func deriveIdentity(channelID ledger.ObjectID, policyNonce []byte,
	version uint32) []byte {
	versionBytes := make([]byte, keyVersionLen)
	binary.BigEndian.PutUint32(versionBytes, version)

	h, _ := blake2b.New256(nil)
	h.Write(channelID.Bytes())
	h.Write(policyNonce)
	h.Write(versionBytes)
	return h.Sum(nil)
}
