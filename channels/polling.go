////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import (
	"context"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/quorumchat/client/ledger"
)

// PollingState is caller-held cursor state for delta polling of one
// channel. The zero value (with ChannelID set) polls from the beginning.
type PollingState struct {
	ChannelID ledger.ObjectID

	// LastMessageCount is the table size observed by the previous poll.
	LastMessageCount uint64

	// LastCursor is the pagination cursor returned by the previous poll.
	LastCursor *uint64
}

// GetLatestMessages fetches only the messages that arrived since the poll
// recorded in state. When the message count is unchanged it returns an
// empty page carrying the same cursor and leaves state untouched, so
// back-to-back polls are idempotent. Otherwise it fetches the newest
// messages, bounded by the configured page size, and advances state.
func (m *manager) GetLatestMessages(ctx context.Context,
	state *PollingState) (*MessagePage, error) {
	if state == nil {
		return nil, errors.New("polling state is nil")
	}

	ch, err := m.FetchChannel(ctx, state.ChannelID)
	if err != nil {
		return nil, err
	}

	if ch.MessagesCount == state.LastMessageCount {
		jww.TRACE.Printf("[CH] No new messages in channel %s (count %d)",
			ch.ID, ch.MessagesCount)
		return &MessagePage{Cursor: state.LastCursor}, nil
	}

	newCount := ch.MessagesCount - state.LastMessageCount
	limit := min(newCount, m.params.PageSize)

	page, err := m.getMessages(ctx, ch, PageOpts{
		Limit:     limit,
		Direction: Backward,
	})
	if err != nil {
		return nil, err
	}

	state.LastMessageCount = ch.MessagesCount
	state.LastCursor = page.Cursor
	return page, nil
}
