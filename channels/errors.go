////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import "github.com/pkg/errors"

var (
	// NotAMemberErr is returned when the caller holds no MemberCap for the
	// channel. It is surfaced, not retried.
	NotAMemberErr = errors.New(
		"no membership capability found for this channel")

	// SequenceErr is returned when a channel-creation step is invoked
	// before its prerequisite has completed. It indicates a programmer
	// error and is fatal to the saga.
	SequenceErr = errors.New("channel creation step out of sequence")

	// CursorOutOfBoundsErr is returned when a pagination cursor points at
	// or past the end of the message table.
	CursorOutOfBoundsErr = errors.New("pagination cursor is out of bounds")

	// NoEncryptionKeyErr is returned when an operation needs a channel DEK
	// but the channel's key history is empty. This happens in the window
	// between channel creation and key attachment; callers must not send
	// in that window.
	NoEncryptionKeyErr = errors.New("channel has no encryption key attached")

	// KeyVersionNotFoundErr is returned when a message references a key
	// version absent from the channel's key history.
	KeyVersionNotFoundErr = errors.New(
		"key version not present in channel key history")

	// NotAChannelErr is returned when the object behind a channel ID has a
	// different type.
	NotAChannelErr = errors.New("object is not a channel")

	// StorageConfigErr is returned when the storage configuration does not
	// resolve to exactly one adapter variant.
	StorageConfigErr = errors.New(
		"storage config must select exactly one of adapter or aggregator")
)
