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

	"gitlab.com/quorumchat/client/envelope"
	"gitlab.com/quorumchat/client/ledger"
)

// Error messages.
const (
	decodeChannelErr   = "failed to decode channel %s contents: %+v"
	decodeMemberCapErr = "failed to decode MemberCap %s contents: %+v"
)

// Ledger type tags for the objects this client reads and mints.
const (
	ChannelType    = "quorumchat::channel::Channel"
	CreatorCapType = "quorumchat::channel::CreatorCap"
	MemberCapType  = "quorumchat::channel::MemberCap"
)

// Permission is the bitmask of rights granted to one capability.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermSend
	PermDecrypt
	PermAdmin
)

// PermMember is the right set granted to every MemberCap.
const PermMember = PermRead | PermSend | PermDecrypt

// Has reports whether the permission set includes all rights in p.
func (perm Permission) Has(p Permission) bool {
	return perm&p == p
}

// KeyHistory is a channel's ordered list of encrypted DEK envelopes. The
// latest version only ever increases; envelopes are appended, never
// rewritten.
type KeyHistory struct {
	LatestVersion uint32
	Keys          []envelope.EncryptedSymmetricKey
}

// Latest returns the envelope at the latest version, or false when the
// history is empty (the window between channel creation and key
// attachment).
func (h KeyHistory) Latest() (envelope.EncryptedSymmetricKey, bool) {
	return h.ByVersion(h.LatestVersion)
}

// ByVersion returns the envelope with the given version number.
func (h KeyHistory) ByVersion(version uint32) (
	envelope.EncryptedSymmetricKey, bool) {
	for _, key := range h.Keys {
		if key.Version == version {
			return key, true
		}
	}
	return envelope.EncryptedSymmetricKey{}, false
}

// Channel is the client's decoded view of a shared channel object.
// MessagesCount only increases; message positions [0, MessagesCount) are
// the sole addressing scheme for pagination.
type Channel struct {
	ID      ledger.ObjectID
	Version uint64

	CreatedAt time.Time
	UpdatedAt time.Time

	MessagesCount  uint64
	MessageTableID ledger.ObjectID

	KeyHistory KeyHistory

	// Auth maps each issued capability ID to its permission set. Membership
	// is reconstructed from this map by resolving capability owners; the
	// ledger tracks no address list.
	Auth map[ledger.ObjectID]Permission

	// LastMessage is the channel's cached most recent message, when the
	// ledger provides one.
	LastMessage *Message
}

// Ref returns the channel's pinned object reference.
func (c *Channel) Ref() ledger.Ref {
	return ledger.Ref{ID: c.ID, Version: c.Version}
}

// Member is one resolved channel member: the owner of a listed MemberCap.
type Member struct {
	Address     ledger.Address
	CapID       ledger.ObjectID
	Permissions Permission
}

// channelRecord is the CBOR wire form of a channel object's contents.
type channelRecord struct {
	CreatedAt      int64             `cbor:"1,keyasint"`
	UpdatedAt      int64             `cbor:"2,keyasint"`
	MessagesCount  uint64            `cbor:"3,keyasint"`
	MessageTableID ledger.ObjectID   `cbor:"4,keyasint"`
	LatestVersion  uint32            `cbor:"5,keyasint,omitempty"`
	Keys           []envelope.EncryptedSymmetricKey `cbor:"6,keyasint,omitempty"`
	Auth           []authEntry       `cbor:"7,keyasint,omitempty"`
	LastMessage    []byte            `cbor:"8,keyasint,omitempty"`
}

type authEntry struct {
	Cap  ledger.ObjectID `cbor:"1,keyasint"`
	Perm Permission      `cbor:"2,keyasint"`
}

// decodeChannel decodes a channel object read from the ledger.
func decodeChannel(obj ledger.Object) (*Channel, error) {
	if obj.TypeTag != ChannelType {
		return nil, errors.Wrapf(NotAChannelErr, "object %s has type %q",
			obj.ID, obj.TypeTag)
	}

	var rec channelRecord
	if err := cbor.Unmarshal(obj.Contents, &rec); err != nil {
		return nil, errors.Errorf(decodeChannelErr, obj.ID, err)
	}

	ch := &Channel{
		ID:             obj.ID,
		Version:        obj.Version,
		CreatedAt:      time.Unix(0, rec.CreatedAt),
		UpdatedAt:      time.Unix(0, rec.UpdatedAt),
		MessagesCount:  rec.MessagesCount,
		MessageTableID: rec.MessageTableID,
		KeyHistory: KeyHistory{
			LatestVersion: rec.LatestVersion,
			Keys:          rec.Keys,
		},
		Auth: make(map[ledger.ObjectID]Permission, len(rec.Auth)),
	}
	for _, entry := range rec.Auth {
		ch.Auth[entry.Cap] = entry.Perm
	}

	if len(rec.LastMessage) > 0 {
		msg, err := decodeMessage(rec.LastMessage)
		if err != nil {
			return nil, err
		}
		ch.LastMessage = &msg
	}

	return ch, nil
}

// encodeChannel produces the wire form of a channel's contents. The client
// never writes channels directly; this exists for test doubles emulating
// the ledger.
func encodeChannel(ch *Channel) ([]byte, error) {
	rec := channelRecord{
		CreatedAt:      ch.CreatedAt.UnixNano(),
		UpdatedAt:      ch.UpdatedAt.UnixNano(),
		MessagesCount:  ch.MessagesCount,
		MessageTableID: ch.MessageTableID,
		LatestVersion:  ch.KeyHistory.LatestVersion,
		Keys:           ch.KeyHistory.Keys,
	}
	for capID, perm := range ch.Auth {
		rec.Auth = append(rec.Auth, authEntry{Cap: capID, Perm: perm})
	}
	if ch.LastMessage != nil {
		encoded, err := encodeMessage(*ch.LastMessage)
		if err != nil {
			return nil, err
		}
		rec.LastMessage = encoded
	}
	return cbor.Marshal(rec)
}

// memberCapRecord is the CBOR wire form of a MemberCap's contents. The
// capability is bound to exactly one channel.
type memberCapRecord struct {
	Channel ledger.ObjectID `cbor:"1,keyasint"`
}

func decodeMemberCap(obj ledger.Object) (memberCapRecord, error) {
	var rec memberCapRecord
	if err := cbor.Unmarshal(obj.Contents, &rec); err != nil {
		return memberCapRecord{}, errors.Errorf(decodeMemberCapErr,
			obj.ID, err)
	}
	return rec, nil
}
