////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package channels implements the channel protocol client: the
// channel-creation saga, capability-based membership, end-to-end encrypted
// message sending, and deterministic pagination over the channel's
// append-only message table.
//
// All channel state lives on the ledger and is mutated only through
// submitted operation batches. The client holds no local state beyond
// append-only caches of committed capabilities; long-lived processes must
// re-resolve membership after an add-member operation.
package channels

import (
	"context"

	"gitlab.com/quorumchat/client/envelope"
	"gitlab.com/quorumchat/client/ledger"
)

// Manager is the channel protocol client.
type Manager interface {
	// NewCreation starts the channel-creation saga with the given initial
	// member addresses. Duplicates are removed and the creator's own
	// address is filtered out with a warning, since the creator is granted
	// a capability automatically.
	NewCreation(initialMembers []ledger.Address) *Creation

	// ResumeCreation re-enters a creation saga whose first transaction
	// already committed, using that transaction's digest. It only reads
	// committed effects and never replays the first step; resume from it
	// after a crash between channel creation and key attachment.
	ResumeCreation(ctx context.Context, digest string) (*Creation, error)

	// FetchChannel reads and decodes the channel object.
	FetchChannel(ctx context.Context, channelID ledger.ObjectID) (
		*Channel, error)

	// ResolveMemberCap finds the caller's MemberCap for the channel,
	// scanning owned objects on first use and serving an append-only cache
	// afterwards. Returns NotAMemberErr when the scan is exhausted without
	// a match.
	ResolveMemberCap(ctx context.Context, channelID ledger.ObjectID) (
		ledger.Ref, error)

	// SendMessage encrypts the text and any attachments under the
	// channel's latest DEK, uploads attachment payloads through the
	// storage adapter, and appends one message to the channel. It refuses
	// to send into a channel with no attached encryption key.
	SendMessage(ctx context.Context, channelID ledger.ObjectID, text []byte,
		attachments []AttachmentUpload) (*SendReport, error)

	// GetChannelMessages fetches and decrypts one pagination window of the
	// channel's message table. A single message's decryption failure
	// yields a placeholder for that message only.
	GetChannelMessages(ctx context.Context, channelID ledger.ObjectID,
		opts PageOpts) (*MessagePage, error)

	// GetLatestMessages fetches only the messages that arrived since the
	// last poll recorded in state, updating state in place. When nothing
	// changed it returns an empty page carrying the same cursor.
	GetLatestMessages(ctx context.Context, state *PollingState) (
		*MessagePage, error)

	// AddMembers mints and transfers one MemberCap per unique new address.
	// It requires the channel's CreatorCap. An address list that is empty
	// after deduplication is a reported no-op.
	AddMembers(ctx context.Context, channelID, memberCapID,
		creatorCapID ledger.ObjectID, newAddresses []ledger.Address) (
		*AddMembersResult, error)

	// GetChannelMembers reconstructs the member list from the channel's
	// authorization map by resolving the owner of each listed capability.
	// Capabilities not owned by a plain address are skipped with a
	// warning.
	GetChannelMembers(ctx context.Context, channelID ledger.ObjectID) (
		[]Member, error)

	// DownloadAttachment downloads and decrypts one attachment of a
	// fetched message, returning the plaintext payload and its metadata.
	DownloadAttachment(ctx context.Context, channelID ledger.ObjectID,
		msg DecodedMessage, index int) ([]byte, envelope.Metadata, error)
}
