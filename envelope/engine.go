////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package envelope

import (
	"context"
	"crypto/rand"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/quorumchat/client/ledger"
)

// Error messages.
const (
	newDekErr         = "failed to generate channel DEK: %+v"
	newPolicyNonceErr = "failed to generate policy nonce: %+v"
	thresholdEncErr   = "threshold service failed to encrypt channel DEK: %+v"
	thresholdDecErr   = "threshold service refused to decrypt channel DEK: %+v"
	sessionProofErr   = "failed to obtain session proof: %+v"
	buildAuthErr      = "failed to build authorization payload: %+v"
)

// firstKeyVersion is the version assigned to a channel's initial DEK.
const firstKeyVersion = 1

// Engine drives the per-channel DEK lifecycle against the
// threshold-encryption service.
type Engine struct {
	thresh Client
	prover Prover
	params Params
}

// NewEngine constructs an engine from the threshold client, the session
// prover, and engine parameters.
func NewEngine(thresh Client, prover Prover, params Params) *Engine {
	return &Engine{
		thresh: thresh,
		prover: prover,
		params: params,
	}
}

// GenerateChannelKey generates a fresh random DEK for the channel, derives
// its policy identity from the channel ID and a random nonce, and returns
// the threshold-encrypted envelope at version 1. The plaintext DEK is
// discarded before returning.
func (e *Engine) GenerateChannelKey(ctx context.Context,
	channelID ledger.ObjectID) (EncryptedSymmetricKey, error) {
	if channelID.IsZero() {
		return EncryptedSymmetricKey{}, errors.Wrapf(InvalidChannelIdErr,
			"channel ID %s", channelID)
	}

	dek := make([]byte, KeyLen)
	if _, err := rand.Read(dek); err != nil {
		return EncryptedSymmetricKey{}, errors.Errorf(newDekErr, err)
	}

	policyNonce := make([]byte, policyNonceLen)
	if _, err := rand.Read(policyNonce); err != nil {
		return EncryptedSymmetricKey{}, errors.Errorf(newPolicyNonceErr, err)
	}

	identity := deriveIdentity(channelID, policyNonce, firstKeyVersion)

	blob, err := e.thresh.Encrypt(ctx, e.params.Threshold, identity, dek)
	if err != nil {
		return EncryptedSymmetricKey{}, errors.Errorf(thresholdEncErr, err)
	}

	encoded, err := dekEnvelope{PolicyNonce: policyNonce, Blob: blob}.encode()
	if err != nil {
		return EncryptedSymmetricKey{}, err
	}

	jww.INFO.Printf("[ENV] Generated channel key for %s at threshold %d",
		channelID, e.params.Threshold)

	return EncryptedSymmetricKey{
		Bytes:   encoded,
		Version: firstKeyVersion,
	}, nil
}

// DecryptChannelDEK recovers the plaintext DEK from an encrypted envelope.
// It builds the read-only authorization payload pinning the channel and the
// caller's MemberCap, obtains a session proof, and submits both to the
// threshold-encryption service. A refusal here is surfaced, unlike
// message-level decryption failures.
func (e *Engine) DecryptChannelDEK(ctx context.Context, channel,
	capability ledger.Ref, key EncryptedSymmetricKey) ([]byte, error) {
	env, err := decodeEnvelope(key, e.params.LegacyLittleEndian)
	if err != nil {
		return nil, err
	}

	authorization, err := ledger.NewAuthorizationPayload(channel, capability)
	if err != nil {
		return nil, errors.Errorf(buildAuthErr, err)
	}

	proof, err := e.prover.Proof(ctx)
	if err != nil {
		return nil, errors.Errorf(sessionProofErr, err)
	}

	dek, err := e.thresh.Decrypt(ctx, env.Blob, proof, authorization)
	if err != nil {
		return nil, errors.Errorf(thresholdDecErr, err)
	}

	jww.DEBUG.Printf("[ENV] Decrypted channel DEK v%d for channel %s",
		key.Version, channel.ID)

	return dek, nil
}
