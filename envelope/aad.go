////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package envelope

import (
	"bytes"
	"encoding/binary"

	"gitlab.com/quorumchat/client/ledger"
)

// keyVersionLen is the width of the key-version field in the AAD.
const keyVersionLen = 4

// AADContext binds a ciphertext to its channel, key epoch, and sender. A
// ciphertext sealed under one context cannot be opened under another, which
// blocks cross-channel and cross-version replay.
type AADContext struct {
	ChannelID  ledger.ObjectID
	KeyVersion uint32
	Sender     ledger.Address
}

// Bytes returns the additional-authenticated-data encoding of the context:
// channelID ∥ big-endian keyVersion ∥ sender.
func (c AADContext) Bytes() []byte {
	version := make([]byte, keyVersionLen)
	binary.BigEndian.PutUint32(version, c.KeyVersion)

	buff := bytes.NewBuffer(nil)
	buff.Grow(ledger.IDLen + keyVersionLen + ledger.IDLen)
	buff.Write(c.ChannelID.Bytes())
	buff.Write(version)
	buff.Write(c.Sender.Bytes())
	return buff.Bytes()
}
