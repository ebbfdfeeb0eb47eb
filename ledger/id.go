////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// Error messages.
const (
	idLengthErr  = "identifier %q decodes to %d bytes; expected %d"
	idDecodeErr  = "identifier %q is not valid hex: %+v"
	idEmptyErr   = "identifier is empty"
	idNoPrefixEr = "identifier %q is missing the 0x prefix"
)

// IDLen is the length, in bytes, of all ledger identifiers.
const IDLen = 32

// ObjectID uniquely identifies an object on the ledger. Channels,
// capabilities, message-table entries, and encryption-key envelopes are all
// addressed by an ObjectID.
type ObjectID [IDLen]byte

// Address identifies an account on the ledger. Capabilities are transferred
// to addresses, and message senders are recorded by address.
type Address [IDLen]byte

// ParseObjectID decodes a 0x-prefixed hex string into an ObjectID. Malformed
// identifiers are rejected with InvalidIdentifierErr before any network call
// is made.
func ParseObjectID(s string) (ObjectID, error) {
	b, err := parseID(s)
	if err != nil {
		return ObjectID{}, err
	}
	var oid ObjectID
	copy(oid[:], b)
	return oid, nil
}

// ParseAddress decodes a 0x-prefixed hex string into an Address.
func ParseAddress(s string) (Address, error) {
	b, err := parseID(s)
	if err != nil {
		return Address{}, err
	}
	var addr Address
	copy(addr[:], b)
	return addr, nil
}

func parseID(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.Wrap(InvalidIdentifierErr, idEmptyErr)
	}
	if !strings.HasPrefix(s, "0x") {
		return nil, errors.Wrapf(InvalidIdentifierErr, idNoPrefixEr, s)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, errors.Wrapf(InvalidIdentifierErr, idDecodeErr, s, err)
	}
	if len(b) != IDLen {
		return nil, errors.Wrapf(InvalidIdentifierErr, idLengthErr, s, len(b),
			IDLen)
	}
	return b, nil
}

// Bytes returns a copy of the raw identifier bytes.
func (oid ObjectID) Bytes() []byte {
	b := make([]byte, IDLen)
	copy(b, oid[:])
	return b
}

// String returns the canonical 0x-prefixed hex form of the ObjectID. This
// function satisfies the fmt.Stringer interface.
func (oid ObjectID) String() string {
	return "0x" + hex.EncodeToString(oid[:])
}

// IsZero reports whether the ObjectID is the all-zero identifier.
func (oid ObjectID) IsZero() bool {
	return oid == ObjectID{}
}

// Cmp returns an integer comparing two ObjectIDs lexicographically.
func (oid ObjectID) Cmp(other ObjectID) int {
	return bytes.Compare(oid[:], other[:])
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, IDLen)
	copy(b, a[:])
	return b
}

// String returns the canonical 0x-prefixed hex form of the Address. This
// function satisfies the fmt.Stringer interface.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the Address is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler so identifiers serialize to
// their canonical hex form in JSON and CBOR maps.
func (oid ObjectID) MarshalText() ([]byte, error) {
	return []byte(oid.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (oid *ObjectID) UnmarshalText(text []byte) error {
	parsed, err := ParseObjectID(string(text))
	if err != nil {
		return err
	}
	*oid = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
