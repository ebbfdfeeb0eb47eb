////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"

	"gitlab.com/quorumchat/client/ledger"
)

func cursorAt(c uint64) *uint64 { return &c }

// Tests the fetch-range computation for every cursor/direction combination
// in the addressing contract.
func TestComputeWindow(t *testing.T) {
	tests := []struct {
		name       string
		cursor     *uint64
		limit      uint64
		total      uint64
		dir        Direction
		start, end uint64
	}{
		{"backward nil full", nil, 10, 47, Backward, 37, 47},
		{"backward nil short table", nil, 10, 4, Backward, 0, 4},
		{"backward cursor exclusive", cursorAt(37), 10, 47, Backward, 27, 37},
		{"backward cursor clamped", cursorAt(7), 10, 47, Backward, 0, 7},
		{"forward nil", nil, 10, 47, Forward, 0, 10},
		{"forward nil short table", nil, 10, 4, Forward, 0, 4},
		{"forward cursor inclusive", cursorAt(9), 10, 47, Forward, 10, 20},
		{"forward cursor clamped", cursorAt(44), 10, 47, Forward, 45, 47},
		{"empty table backward", nil, 10, 0, Backward, 0, 0},
		{"empty table forward", nil, 10, 0, Forward, 0, 0},
	}

	for _, tt := range tests {
		w, err := computeWindow(tt.cursor, tt.limit, tt.total, tt.dir)
		if err != nil {
			t.Errorf("%s: computeWindow() returned an error: %+v",
				tt.name, err)
			continue
		}
		if w.start != tt.start || w.end != tt.end {
			t.Errorf("%s: unexpected window."+
				"\nexpected: [%d, %d)\nreceived: [%d, %d)",
				tt.name, tt.start, tt.end, w.start, w.end)
		}
		if w.size() > tt.limit {
			t.Errorf("%s: window size %d exceeds limit %d",
				tt.name, w.size(), tt.limit)
		}
		if w.end > tt.total {
			t.Errorf("%s: window end %d exceeds total %d",
				tt.name, w.end, tt.total)
		}
	}
}

// Error path: a cursor at or past the table size is a hard error in both
// directions, not a silent empty result.
func TestComputeWindow_CursorOutOfBounds(t *testing.T) {
	for _, dir := range []Direction{Backward, Forward} {
		for _, cursor := range []uint64{47, 52} {
			_, err := computeWindow(cursorAt(cursor), 10, 47, dir)
			if !errors.Is(err, CursorOutOfBoundsErr) {
				t.Errorf("computeWindow(%d, %s) did not fail with "+
					"CursorOutOfBoundsErr.\nreceived: %+v",
					cursor, dir, err)
			}
		}
	}
}

// Property: iterating backward from a nil cursor to exhaustion visits
// every position exactly once, in strictly decreasing order.
func TestPagination_BackwardPartition(t *testing.T) {
	const total, limit = 47, 10

	visited := make(map[uint64]int)
	var order []uint64

	cursor := (*uint64)(nil)
	for iterations := 0; ; iterations++ {
		if iterations > total {
			t.Fatal("pagination did not terminate")
		}

		w, err := computeWindow(cursor, limit, total, Backward)
		if err != nil {
			t.Fatalf("computeWindow() returned an error: %+v", err)
		}
		for pos := w.end; pos > w.start; pos-- {
			visited[pos-1]++
			order = append(order, pos-1)
		}

		next, hasMore := nextCursor(w, total, Backward)
		if !hasMore {
			break
		}
		cursor = next
	}

	if len(visited) != total {
		t.Errorf("pagination did not visit every position."+
			"\nexpected: %d\nreceived: %d", total, len(visited))
	}
	for pos, count := range visited {
		if count != 1 {
			t.Errorf("position %d visited %d times", pos, count)
		}
	}
	for i := 1; i < len(order); i++ {
		if order[i] >= order[i-1] {
			t.Fatalf("positions not strictly decreasing at index %d: "+
				"%d then %d", i, order[i-1], order[i])
		}
	}
}

// Property: iterating forward from a nil cursor visits every position
// exactly once, in strictly increasing order.
func TestPagination_ForwardPartition(t *testing.T) {
	const total, limit = 23, 5

	var order []uint64
	cursor := (*uint64)(nil)
	for {
		w, err := computeWindow(cursor, limit, total, Forward)
		if err != nil {
			t.Fatalf("computeWindow() returned an error: %+v", err)
		}
		for pos := w.start; pos < w.end; pos++ {
			order = append(order, pos)
		}

		next, hasMore := nextCursor(w, total, Forward)
		if !hasMore {
			break
		}
		cursor = next
	}

	if len(order) != total {
		t.Fatalf("expected %d positions, received %d", total, len(order))
	}
	for i, pos := range order {
		if pos != uint64(i) {
			t.Fatalf("position %d visited out of order (index %d)", pos, i)
		}
	}
}

// Tests that the position-key derivation is deterministic, position
// sensitive, and table sensitive.
func TestMessageKey(t *testing.T) {
	prng := rand.New(rand.NewSource(55))
	var tableA, tableB ledger.ObjectID
	prng.Read(tableA[:])
	prng.Read(tableB[:])

	if MessageKey(tableA, 7) != MessageKey(tableA, 7) {
		t.Error("MessageKey() is not deterministic")
	}
	if MessageKey(tableA, 7) == MessageKey(tableA, 8) {
		t.Error("MessageKey() ignores the position")
	}
	if MessageKey(tableA, 7) == MessageKey(tableB, 7) {
		t.Error("MessageKey() ignores the table ID")
	}

	// The fixed-width encoding must distinguish positions that share low
	// bytes.
	if MessageKey(tableA, 1) == MessageKey(tableA, 1<<32+1) {
		t.Error("MessageKey() position encoding is not 8 bytes wide")
	}
}
