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

	"github.com/stretchr/testify/require"

	"gitlab.com/quorumchat/client/ledger"
)

// Tests that adding three distinct addresses to a creator-only channel
// yields four members, each mapped to its own capability.
func TestAddMembers(t *testing.T) {
	env := newTestEnv(t, 200, nil, nil)
	prng := rand.New(rand.NewSource(201))
	newcomers := randAddresses(prng, 3)

	caps := env.createChannel(t, nil)

	result, err := env.m.AddMembers(t.Context(), caps.ChannelID,
		caps.MemberCap.ID, caps.CreatorCap.ID, newcomers)
	require.NoError(t, err)
	require.False(t, result.NoOp)
	require.Len(t, result.Added, 3)
	for _, addr := range newcomers {
		require.Contains(t, result.Added, addr)
	}

	members, err := env.m.GetChannelMembers(t.Context(), caps.ChannelID)
	require.NoError(t, err)
	require.Len(t, members, 4)

	byAddr := make(map[ledger.Address]Member, len(members))
	for _, member := range members {
		byAddr[member.Address] = member
	}
	for _, addr := range newcomers {
		member, exists := byAddr[addr]
		require.True(t, exists, "new member %s missing from channel", addr)
		require.Equal(t, result.Added[addr], member.CapID)
	}
}

// Tests that duplicates in the input mint a single capability per address.
func TestAddMembers_Dedup(t *testing.T) {
	env := newTestEnv(t, 202, nil, nil)
	prng := rand.New(rand.NewSource(203))
	addr := randAddresses(prng, 1)[0]

	caps := env.createChannel(t, nil)

	result, err := env.m.AddMembers(t.Context(), caps.ChannelID,
		caps.MemberCap.ID, caps.CreatorCap.ID,
		[]ledger.Address{addr, addr, addr})
	require.NoError(t, err)
	require.Len(t, result.Added, 1)

	members, err := env.m.GetChannelMembers(t.Context(), caps.ChannelID)
	require.NoError(t, err)
	require.Len(t, members, 2)
}

// Edge case: an address list that empties out after deduplication is a
// reported no-op and submits no transaction.
func TestAddMembers_EmptyAfterDedup(t *testing.T) {
	env := newTestEnv(t, 204, nil, nil)

	caps := env.createChannel(t, nil)
	txBefore := env.net.txCount

	result, err := env.m.AddMembers(t.Context(), caps.ChannelID,
		caps.MemberCap.ID, caps.CreatorCap.ID, nil)
	require.NoError(t, err)
	require.True(t, result.NoOp)
	require.Empty(t, result.Added)
	require.Empty(t, result.Digest)
	require.Equal(t, txBefore, env.net.txCount,
		"no-op add must not submit a transaction")
}

// Error path: zero identifiers are rejected before any network call.
func TestAddMembers_ZeroIdentifiers(t *testing.T) {
	env := newTestEnv(t, 205, nil, nil)
	prng := rand.New(rand.NewSource(206))
	addr := randAddresses(prng, 1)[0]

	caps := env.createChannel(t, nil)

	_, err := env.m.AddMembers(t.Context(), ledger.ObjectID{},
		caps.MemberCap.ID, caps.CreatorCap.ID, []ledger.Address{addr})
	require.ErrorIs(t, err, ledger.InvalidIdentifierErr)

	_, err = env.m.AddMembers(t.Context(), caps.ChannelID,
		caps.MemberCap.ID, ledger.ObjectID{}, []ledger.Address{addr})
	require.ErrorIs(t, err, ledger.InvalidIdentifierErr)
}

// Tests that capabilities minted with a non-address owner are skipped in
// both the add result and the reconstructed member list, without failing
// either call.
func TestAddMembers_ObjectOwnedCapability(t *testing.T) {
	env := newTestEnv(t, 207, nil, nil)
	prng := rand.New(rand.NewSource(208))
	addrs := randAddresses(prng, 2)
	env.net.objectOwnedRecipients[addrs[1]] = true

	caps := env.createChannel(t, nil)

	result, err := env.m.AddMembers(t.Context(), caps.ChannelID,
		caps.MemberCap.ID, caps.CreatorCap.ID, addrs)
	require.NoError(t, err)
	require.Len(t, result.Added, 1)
	require.Contains(t, result.Added, addrs[0])

	members, err := env.m.GetChannelMembers(t.Context(), caps.ChannelID)
	require.NoError(t, err)
	require.Len(t, members, 2, "object-owned capability should be skipped")
}

// Tests that the creator appears exactly once, attributed to their
// MemberCap: the CreatorCap also sits in the channel's authorization map
// but does not make its holder a second member.
func TestGetChannelMembers_CreatorOnce(t *testing.T) {
	env := newTestEnv(t, 211, nil, nil)

	caps := env.createChannel(t, nil)

	members, err := env.m.GetChannelMembers(t.Context(), caps.ChannelID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, env.me, members[0].Address)
	require.Equal(t, caps.MemberCap.ID, members[0].CapID)
	require.Equal(t, PermMember, members[0].Permissions)
}

// Tests that the member list is sorted by address for stable output.
func TestGetChannelMembers_Sorted(t *testing.T) {
	env := newTestEnv(t, 209, nil, nil)
	prng := rand.New(rand.NewSource(210))
	initial := randAddresses(prng, 5)

	caps := env.createChannel(t, initial)

	members, err := env.m.GetChannelMembers(t.Context(), caps.ChannelID)
	require.NoError(t, err)
	require.Len(t, members, 6)
	for i := 1; i < len(members); i++ {
		require.Less(t, members[i-1].Address.String(),
			members[i].Address.String())
	}
}
