////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package envelope

import "github.com/pkg/errors"

var (
	// InvalidChannelIdErr is returned when a channel identifier passed to
	// key generation is not well formed.
	InvalidChannelIdErr = errors.New(
		"cannot generate a key for a malformed channel ID")

	// DecryptionFailedErr is returned when an AEAD open fails. Callers
	// paginating a message window treat it as message-scoped and
	// recoverable; a channel-key decryption failure is surfaced.
	DecryptionFailedErr = errors.New("decryption failed")

	// MalformedEnvelopeErr is returned when an encrypted DEK envelope cannot
	// be decoded under the configured encoding.
	MalformedEnvelopeErr = errors.New("malformed encryption-key envelope")
)
