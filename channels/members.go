////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/quorumchat/client/ledger"
)

// Error messages.
const (
	addMembersExecErr = "add-members transaction failed: %+v"
	capLookupErr      = "failed to look up channel capabilities: %+v"
	emptyAfterDedupMsg = "[CH] Add-members request for channel %s is empty " +
		"after deduplication; nothing to do"
)

// AddMembersResult reports the outcome of an AddMembers call.
type AddMembersResult struct {
	// NoOp is set when the address list was empty after deduplication and
	// no transaction was submitted.
	NoOp bool

	// Added maps each new member address to its minted capability.
	Added map[ledger.Address]ledger.ObjectID

	Digest string
}

// dedupAddresses removes duplicate addresses, preserving first-seen order.
func dedupAddresses(addrs []ledger.Address) []ledger.Address {
	seen := make(map[ledger.Address]struct{}, len(addrs))
	unique := make([]ledger.Address, 0, len(addrs))
	for _, addr := range addrs {
		if _, exists := seen[addr]; exists {
			continue
		}
		seen[addr] = struct{}{}
		unique = append(unique, addr)
	}
	return unique
}

// AddMembers mints one MemberCap per unique new address and transfers it,
// authorized by the channel's CreatorCap. Multiple capabilities for the
// same owner are a de-duplicated anomaly, not elevated privilege, so the
// input is deduplicated up front; a list that empties out is a reported
// no-op.
func (m *manager) AddMembers(ctx context.Context, channelID, memberCapID,
	creatorCapID ledger.ObjectID,
	newAddresses []ledger.Address) (*AddMembersResult, error) {
	if channelID.IsZero() || memberCapID.IsZero() || creatorCapID.IsZero() {
		return nil, errors.Wrap(ledger.InvalidIdentifierErr,
			"channel and capability IDs must be set")
	}

	unique := dedupAddresses(newAddresses)
	if len(unique) == 0 {
		jww.WARN.Printf(emptyAfterDedupMsg, channelID)
		return &AddMembersResult{NoOp: true}, nil
	}

	batch := ledger.NewBatch(m.me)
	for _, addr := range unique {
		batch.Add(ledger.Op{
			Kind:       ledger.OpMintMemberCap,
			Channel:    channelID,
			Capability: creatorCapID,
			Recipient:  addr,
		})
	}

	result, err := m.net.ExecuteBatch(ctx, batch)
	if err != nil {
		return nil, errors.Errorf(addMembersExecErr, err)
	}
	if err = result.Err(); err != nil {
		return nil, err
	}

	added := resolveCapOwners(result.CreatedOfType(MemberCapType))

	jww.INFO.Printf("[CH] Added %d members to channel %s in transaction %s",
		len(added), channelID, result.Digest)

	return &AddMembersResult{Added: added, Digest: result.Digest}, nil
}

// resolveCapOwners maps created capabilities to their post-transaction
// owner addresses. Ownership kinds other than plain address ownership
// cannot be attributed to a member and are skipped with a warning rather
// than failing the batch.
func resolveCapOwners(created []ledger.CreatedObject) (
	map[ledger.Address]ledger.ObjectID) {
	owners := make(map[ledger.Address]ledger.ObjectID, len(created))
	for _, c := range created {
		if c.Owner.Kind != ledger.OwnerAddress {
			jww.WARN.Printf("[CH] Skipping capability %s with unsupported "+
				"owner kind %s", c.ID, c.Owner.Kind)
			continue
		}
		owners[c.Owner.Address] = c.ID
	}
	return owners
}

// GetChannelMembers reconstructs the member list from the channel's
// authorization map by resolving the owner of each listed capability. The
// map also carries the CreatorCap; only MemberCaps count as members, so the
// creator, who holds both, appears once. Object-owned capabilities cannot
// be attributed to an address and are skipped with a warning.
func (m *manager) GetChannelMembers(ctx context.Context,
	channelID ledger.ObjectID) ([]Member, error) {
	ch, err := m.FetchChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	capIDs := make([]ledger.ObjectID, 0, len(ch.Auth))
	for capID := range ch.Auth {
		capIDs = append(capIDs, capID)
	}
	sort.Slice(capIDs, func(i, j int) bool {
		return capIDs[i].Cmp(capIDs[j]) < 0
	})

	objs, err := m.net.GetObjects(ctx, capIDs)
	if err != nil {
		return nil, errors.Errorf(capLookupErr, err)
	}

	var members []Member
	for i, obj := range objs {
		if obj.ID.IsZero() {
			jww.WARN.Printf("[CH] Capability %s in channel %s auth map "+
				"no longer exists; skipping", capIDs[i], channelID)
			continue
		}
		if obj.TypeTag != MemberCapType {
			continue
		}
		if obj.Owner.Kind != ledger.OwnerAddress {
			jww.WARN.Printf("[CH] Skipping capability %s with unsupported "+
				"owner kind %s", obj.ID, obj.Owner.Kind)
			continue
		}
		members = append(members, Member{
			Address:     obj.Owner.Address,
			CapID:       obj.ID,
			Permissions: ch.Auth[obj.ID],
		})
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].Address.String() < members[j].Address.String()
	})
	return members, nil
}
