////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import (
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"gitlab.com/quorumchat/client/blobstore"
	"gitlab.com/quorumchat/client/ledger"
)

// Error messages.
const (
	encodeMessageErr = "failed to encode message record: %+v"
	decodeMessageErr = "failed to decode message record: %+v"
)

// UndecryptablePlaceholder is substituted for the body of a message whose
// ciphertext cannot be opened. The failure is message-scoped; the rest of
// the fetched window is unaffected.
const UndecryptablePlaceholder = "[undecryptable]"

// Attachment is the stored form of one message attachment: encrypted
// metadata held inline and a reference to the encrypted payload in blob
// storage. Metadata and data carry independent nonces so the metadata can
// be read without downloading the payload.
type Attachment struct {
	BlobRef           blobstore.Reference
	EncryptedMetadata []byte
	MetadataNonce     []byte
	DataNonce         []byte
}

// Message is one immutable entry of a channel's message table. Its position
// in the table equals its insertion index.
type Message struct {
	Sender      ledger.Address
	CreatedAt   time.Time
	KeyVersion  uint32
	Ciphertext  []byte
	Nonce       []byte
	Attachments []Attachment
}

// DecodedMessage is a fetched message after body decryption. Attachments
// remain encrypted until downloaded.
type DecodedMessage struct {
	Position    uint64
	Sender      ledger.Address
	CreatedAt   time.Time
	KeyVersion  uint32
	Text        string
	Attachments []Attachment

	// Undecryptable marks a message whose body failed to decrypt; Text then
	// holds UndecryptablePlaceholder.
	Undecryptable bool
}

type attachmentRecord struct {
	BlobRef           string `cbor:"1,keyasint"`
	EncryptedMetadata []byte `cbor:"2,keyasint"`
	MetadataNonce     []byte `cbor:"3,keyasint"`
	DataNonce         []byte `cbor:"4,keyasint"`
}

type messageRecord struct {
	Sender      ledger.Address     `cbor:"1,keyasint"`
	CreatedAt   int64              `cbor:"2,keyasint"`
	KeyVersion  uint32             `cbor:"3,keyasint"`
	Ciphertext  []byte             `cbor:"4,keyasint"`
	Nonce       []byte             `cbor:"5,keyasint"`
	Attachments []attachmentRecord `cbor:"6,keyasint,omitempty"`
}

// encodeMessage serializes a message to its table wire form.
func encodeMessage(msg Message) ([]byte, error) {
	rec := messageRecord{
		Sender:     msg.Sender,
		CreatedAt:  msg.CreatedAt.UnixNano(),
		KeyVersion: msg.KeyVersion,
		Ciphertext: msg.Ciphertext,
		Nonce:      msg.Nonce,
	}
	for _, att := range msg.Attachments {
		rec.Attachments = append(rec.Attachments, attachmentRecord{
			BlobRef:           string(att.BlobRef),
			EncryptedMetadata: att.EncryptedMetadata,
			MetadataNonce:     att.MetadataNonce,
			DataNonce:         att.DataNonce,
		})
	}

	data, err := cbor.Marshal(rec)
	if err != nil {
		return nil, errors.Errorf(encodeMessageErr, err)
	}
	return data, nil
}

// decodeMessage parses a message table entry.
func decodeMessage(data []byte) (Message, error) {
	var rec messageRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return Message{}, errors.Errorf(decodeMessageErr, err)
	}

	msg := Message{
		Sender:     rec.Sender,
		CreatedAt:  time.Unix(0, rec.CreatedAt),
		KeyVersion: rec.KeyVersion,
		Ciphertext: rec.Ciphertext,
		Nonce:      rec.Nonce,
	}
	for _, att := range rec.Attachments {
		msg.Attachments = append(msg.Attachments, Attachment{
			BlobRef:           blobstore.Reference(att.BlobRef),
			EncryptedMetadata: att.EncryptedMetadata,
			MetadataNonce:     att.MetadataNonce,
			DataNonce:         att.DataNonce,
		})
	}
	return msg, nil
}
