////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import (
	"context"
	"encoding/binary"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"gitlab.com/quorumchat/client/ledger"
)

// Error messages.
const (
	fetchWindowErr = "failed to fetch message window [%d, %d): %+v"
)

// positionLen is the fixed width of the position integer in the key
// derivation. Changing it would silently re-address every stored message.
const positionLen = 8

// Direction selects which way a pagination window moves through the
// message table.
type Direction uint8

const (
	// Backward pages from newest to oldest. A nil cursor starts at the
	// newest message; a cursor is the exclusive upper bound of the next
	// window.
	Backward Direction = iota + 1

	// Forward pages from oldest to newest. A nil cursor starts at position
	// zero; a cursor is the last fetched position, so the next window
	// starts one past it.
	Forward
)

// String returns the name of the direction. This function satisfies the
// fmt.Stringer interface.
func (d Direction) String() string {
	switch d {
	case Backward:
		return "backward"
	case Forward:
		return "forward"
	default:
		return "INVALID DIRECTION"
	}
}

// PageOpts selects one pagination window. A zero Limit uses the manager's
// default page size; a zero Direction defaults to Backward.
type PageOpts struct {
	Cursor    *uint64
	Limit     uint64
	Direction Direction
}

// MessagePage is one fetched and decrypted window.
type MessagePage struct {
	// Messages are in ascending position order within the window.
	Messages []DecodedMessage

	// Cursor resumes pagination in the same direction; nil when the table
	// is exhausted.
	Cursor *uint64

	HasMore bool
}

// window is a half-open position range [start, end).
type window struct {
	start, end uint64
}

func (w window) size() uint64 {
	return w.end - w.start
}

// computeWindow maps (cursor, limit, direction, total) to the fetch range.
// A cursor at or past total is a hard CursorOutOfBoundsErr, not a silent
// empty result.
func computeWindow(cursor *uint64, limit, total uint64, dir Direction) (
	window, error) {
	if cursor != nil && *cursor >= total {
		return window{}, errors.Wrapf(CursorOutOfBoundsErr,
			"cursor %d, table size %d", *cursor, total)
	}

	switch dir {
	case Forward:
		if cursor == nil {
			return window{start: 0, end: min(limit, total)}, nil
		}
		start := *cursor + 1
		return window{start: start, end: min(start+limit, total)}, nil

	default: // Backward
		if cursor == nil {
			return window{start: subFloor(total, limit), end: total}, nil
		}
		return window{start: subFloor(*cursor, limit), end: *cursor}, nil
	}
}

// nextCursor computes the resume cursor and has-more flag for a fetched
// window.
func nextCursor(w window, total uint64, dir Direction) (*uint64, bool) {
	switch dir {
	case Forward:
		if w.end >= total {
			return nil, false
		}
		cursor := w.end - 1
		return &cursor, true

	default: // Backward
		if w.start == 0 {
			return nil, false
		}
		cursor := w.start
		return &cursor, true
	}
}

// subFloor returns a-b, floored at zero.
func subFloor(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

// MessageKey derives the ledger object ID of the message at a table
// position: BLAKE2b-256(tableID ∥ big-endian 64-bit position). The
// derivation is deterministic, so positions are addressed without a prior
// existence check.
func MessageKey(tableID ledger.ObjectID, position uint64) ledger.ObjectID {
	posBytes := make([]byte, positionLen)
	binary.BigEndian.PutUint64(posBytes, position)

	h, _ := blake2b.New256(nil)
	h.Write(tableID.Bytes())
	h.Write(posBytes)

	var key ledger.ObjectID
	copy(key[:], h.Sum(nil))
	return key
}

// GetChannelMessages fetches and decrypts one window of the channel's
// message table.
func (m *manager) GetChannelMessages(ctx context.Context,
	channelID ledger.ObjectID, opts PageOpts) (*MessagePage, error) {
	ch, err := m.FetchChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return m.getMessages(ctx, ch, opts)
}

func (m *manager) getMessages(ctx context.Context, ch *Channel,
	opts PageOpts) (*MessagePage, error) {
	// Reading is members-only, even when the table is empty.
	if _, err := m.ResolveMemberCap(ctx, ch.ID); err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit == 0 {
		limit = m.params.PageSize
	}
	dir := opts.Direction
	if dir == 0 {
		dir = Backward
	}

	w, err := computeWindow(opts.Cursor, limit, ch.MessagesCount, dir)
	if err != nil {
		return nil, err
	}
	cursor, hasMore := nextCursor(w, ch.MessagesCount, dir)

	jww.TRACE.Printf("[CH] Fetching %s window [%d, %d) of channel %s "+
		"(total %d)", dir, w.start, w.end, ch.ID, ch.MessagesCount)

	if w.size() == 0 {
		return &MessagePage{Cursor: cursor, HasMore: hasMore}, nil
	}

	ids := make([]ledger.ObjectID, 0, w.size())
	for pos := w.start; pos < w.end; pos++ {
		ids = append(ids, MessageKey(ch.MessageTableID, pos))
	}

	objs, err := m.net.GetObjects(ctx, ids)
	if err != nil {
		return nil, errors.Errorf(fetchWindowErr, w.start, w.end, err)
	}

	decoded, err := m.decryptWindow(ctx, ch, w, objs)
	if err != nil {
		return nil, err
	}

	return &MessagePage{Messages: decoded, Cursor: cursor,
		HasMore: hasMore}, nil
}

// decryptWindow decrypts every message of a fetched window concurrently.
// Failures are message-scoped: an entry that cannot be decoded or
// decrypted becomes a placeholder and the rest of the window is returned.
// Only a channel-key decryption failure aborts the window.
func (m *manager) decryptWindow(ctx context.Context, ch *Channel, w window,
	objs []ledger.Object) ([]DecodedMessage, error) {
	deks, err := m.windowDEKs(ctx, ch, objs)
	if err != nil {
		return nil, err
	}

	decoded := make([]DecodedMessage, len(objs))
	eg, _ := errgroup.WithContext(ctx)
	for i, obj := range objs {
		position := w.start + uint64(i)
		eg.Go(func() error {
			decoded[i] = m.decryptOne(ch, position, obj, deks)
			return nil
		})
	}
	// Join; decryptOne never returns an error, order is restored by index.
	_ = eg.Wait()

	return decoded, nil
}

// windowDEKs decrypts the channel DEK for every key version appearing in
// the window. A message referencing a version absent from the key history
// is message-scoped: its version is skipped and decryptOne downgrades it to
// the placeholder. Empty-history and threshold refusals are surfaced.
func (m *manager) windowDEKs(ctx context.Context, ch *Channel,
	objs []ledger.Object) (map[uint32][]byte, error) {
	deks := make(map[uint32][]byte)
	for _, obj := range objs {
		if obj.ID.IsZero() {
			continue
		}
		msg, err := decodeMessage(obj.Contents)
		if err != nil {
			continue
		}
		if _, exists := deks[msg.KeyVersion]; exists {
			continue
		}
		dek, err := m.channelDEK(ctx, ch, msg.KeyVersion)
		if err != nil {
			if errors.Is(err, KeyVersionNotFoundErr) {
				jww.WARN.Printf("[CH] Message in channel %s references "+
					"unknown key version %d; skipping", ch.ID, msg.KeyVersion)
				continue
			}
			return nil, err
		}
		deks[msg.KeyVersion] = dek
	}
	return deks, nil
}

// decryptOne produces the decoded view of one table entry, downgrading any
// message-scoped failure to the placeholder.
func (m *manager) decryptOne(ch *Channel, position uint64,
	obj ledger.Object, deks map[uint32][]byte) DecodedMessage {
	placeholder := DecodedMessage{
		Position:      position,
		Text:          UndecryptablePlaceholder,
		Undecryptable: true,
	}

	if obj.ID.IsZero() {
		jww.WARN.Printf("[CH] Message at position %d of channel %s is "+
			"missing", position, ch.ID)
		return placeholder
	}

	msg, err := decodeMessage(obj.Contents)
	if err != nil {
		jww.WARN.Printf("[CH] Undecodable message at position %d of "+
			"channel %s: %v", position, ch.ID, err)
		return placeholder
	}

	placeholder.Sender = msg.Sender
	placeholder.CreatedAt = msg.CreatedAt
	placeholder.KeyVersion = msg.KeyVersion
	placeholder.Attachments = msg.Attachments

	dek, exists := deks[msg.KeyVersion]
	if !exists {
		return placeholder
	}

	text, err := decryptBody(dek, ch.ID, msg)
	if err != nil {
		jww.WARN.Printf("[CH] Undecryptable message at position %d of "+
			"channel %s: %v", position, ch.ID, err)
		return placeholder
	}

	return DecodedMessage{
		Position:    position,
		Sender:      msg.Sender,
		CreatedAt:   msg.CreatedAt,
		KeyVersion:  msg.KeyVersion,
		Text:        string(text),
		Attachments: msg.Attachments,
	}
}
