////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import (
	"context"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/quorumchat/client/envelope"
	"gitlab.com/quorumchat/client/ledger"
)

// Error messages.
const (
	sequenceErrFmt     = "step %q requires step %q to have completed"
	buildExecuteErr    = "channel-creation transaction failed: %+v"
	attachExecuteErr   = "key-attachment transaction failed: %+v"
	resumeDigestErr    = "failed to read effects of transaction %s: %+v"
	noChannelObjErr    = "execution effects contain no created channel"
	noCreatorCapErr    = "execution effects contain %d CreatorCaps; expected 1"
	noCreatorMemberErr = "execution effects contain no MemberCap owned by " +
		"the creator"
	generateKeyErr   = "failed to generate channel encryption key: %+v"
	encodeKeyErr     = "failed to encode encryption-key payload: %+v"
	creatorFilterMsg = "[CH] Creator %s was listed as an initial member; " +
		"dropping it, the creator receives a capability automatically"
)

// Saga step names, used in sequence errors.
const (
	stepBuild     = "build"
	stepCaps      = "getGeneratedCaps"
	stepAttachKey = "generateAndAttachEncryptionKey"
	stepKey       = "getGeneratedEncryptionKey"
)

// GeneratedCaps holds the capability objects resolved from the creation
// transaction's effects.
type GeneratedCaps struct {
	ChannelID ledger.ObjectID

	// CreatorCap is the unique creation capability, owned by the creator.
	CreatorCap ledger.Ref

	// MemberCap is the creator's own membership capability.
	MemberCap ledger.Ref

	// MemberCaps maps each initial member address to its minted capability.
	MemberCaps map[ledger.Address]ledger.ObjectID
}

// AttachedKey is the result of the key-attachment step.
type AttachedKey struct {
	ChannelID ledger.ObjectID
	Key       envelope.EncryptedSymmetricKey
}

// Creation is the four-step channel-creation saga. Key material can only be
// generated once the channel identifier exists, so creation spans two
// separately committed transactions with a keyless window in between;
// callers must not send messages until the final step completes.
//
// Each step caches its result: repeating a completed step is an idempotent
// read, and running a step before its prerequisite fails with SequenceErr.
type Creation struct {
	m              *manager
	initialMembers []ledger.Address

	mux          sync.Mutex
	buildResult  *ledger.ExecutionResult
	caps         *GeneratedCaps
	attachResult *ledger.ExecutionResult
	key          *AttachedKey
}

// NewCreation starts the channel-creation saga.
func (m *manager) NewCreation(initialMembers []ledger.Address) *Creation {
	members := dedupAddresses(initialMembers)

	filtered := members[:0]
	for _, addr := range members {
		if addr == m.me {
			jww.WARN.Printf(creatorFilterMsg, m.me)
			continue
		}
		filtered = append(filtered, addr)
	}

	return &Creation{m: m, initialMembers: filtered}
}

// ResumeCreation re-enters a saga whose creation transaction committed with
// the given digest. It reads the already-committed effects and never
// replays the first step.
func (m *manager) ResumeCreation(ctx context.Context, digest string) (
	*Creation, error) {
	result, err := m.net.GetExecutionResult(ctx, digest)
	if err != nil {
		return nil, errors.Errorf(resumeDigestErr, digest, err)
	}
	if err = result.Err(); err != nil {
		return nil, err
	}

	jww.INFO.Printf("[CH] Resumed channel creation from transaction %s",
		digest)
	return &Creation{m: m, buildResult: result}, nil
}

// Build submits the first transaction: one atomic batch that creates the
// channel, mints the CreatorCap and the creator's MemberCap, mints and
// transfers a MemberCap to each initial member, and shares the channel.
func (c *Creation) Build(ctx context.Context) (*ledger.ExecutionResult,
	error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.buildResult != nil {
		return c.buildResult, nil
	}

	batch := ledger.NewBatch(c.m.me).
		Add(ledger.Op{Kind: ledger.OpCreateChannel}).
		Add(ledger.Op{Kind: ledger.OpMintCreatorCap}).
		Add(ledger.Op{Kind: ledger.OpMintMemberCap, Recipient: c.m.me})
	for _, addr := range c.initialMembers {
		batch.Add(ledger.Op{Kind: ledger.OpMintMemberCap, Recipient: addr})
	}
	batch.Add(ledger.Op{Kind: ledger.OpShareChannel})

	result, err := c.m.net.ExecuteBatch(ctx, batch)
	if err != nil {
		return nil, errors.Errorf(buildExecuteErr, err)
	}
	if err = result.Err(); err != nil {
		return nil, err
	}

	jww.INFO.Printf("[CH] Created channel with %d initial members in "+
		"transaction %s", len(c.initialMembers), result.Digest)

	c.buildResult = result
	return result, nil
}

// GeneratedCaps resolves the created capability objects from the creation
// transaction's effects. The creator's own MemberCap is identified by
// matching its owner against the CreatorCap's owner.
func (c *Creation) GeneratedCaps() (*GeneratedCaps, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.caps != nil {
		return c.caps, nil
	}
	if c.buildResult == nil {
		return nil, errors.Wrapf(SequenceErr, sequenceErrFmt, stepCaps,
			stepBuild)
	}

	channels := c.buildResult.CreatedOfType(ChannelType)
	if len(channels) == 0 {
		return nil, errors.New(noChannelObjErr)
	}
	channelID := channels[0].ID

	creatorCaps := c.buildResult.CreatedOfType(CreatorCapType)
	if len(creatorCaps) != 1 {
		return nil, errors.Errorf(noCreatorCapErr, len(creatorCaps))
	}
	creatorCap := creatorCaps[0]

	caps := &GeneratedCaps{
		ChannelID:  channelID,
		CreatorCap: creatorCap.Ref(),
		MemberCaps: make(map[ledger.Address]ledger.ObjectID),
	}

	for _, memberCap := range c.buildResult.CreatedOfType(MemberCapType) {
		if memberCap.Owner.Kind != ledger.OwnerAddress {
			jww.WARN.Printf("[CH] Skipping MemberCap %s with unsupported "+
				"owner kind %s", memberCap.ID, memberCap.Owner.Kind)
			continue
		}
		if memberCap.Owner.Address == creatorCap.Owner.Address {
			caps.MemberCap = memberCap.Ref()
			continue
		}
		caps.MemberCaps[memberCap.Owner.Address] = memberCap.ID
	}

	if caps.MemberCap.ID.IsZero() {
		return nil, errors.New(noCreatorMemberErr)
	}

	c.m.cacheMemberCap(channelID, caps.MemberCap)
	c.caps = caps
	return caps, nil
}

// AttachEncryptionKey submits the second transaction: it generates the
// channel's first DEK envelope and attaches it to the channel, authorized
// by the creator's MemberCap.
func (c *Creation) AttachEncryptionKey(ctx context.Context) (
	*ledger.ExecutionResult, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.attachResult != nil {
		return c.attachResult, nil
	}
	if c.caps == nil {
		return nil, errors.Wrapf(SequenceErr, sequenceErrFmt, stepAttachKey,
			stepCaps)
	}

	key, err := c.m.engine.GenerateChannelKey(ctx, c.caps.ChannelID)
	if err != nil {
		return nil, errors.Errorf(generateKeyErr, err)
	}

	payload, err := cbor.Marshal(key)
	if err != nil {
		return nil, errors.Errorf(encodeKeyErr, err)
	}

	batch := ledger.NewBatch(c.m.me).Add(ledger.Op{
		Kind:       ledger.OpAttachEncryptionKey,
		Channel:    c.caps.ChannelID,
		Capability: c.caps.MemberCap.ID,
		Payload:    payload,
	})

	result, err := c.m.net.ExecuteBatch(ctx, batch)
	if err != nil {
		return nil, errors.Errorf(attachExecuteErr, err)
	}
	if err = result.Err(); err != nil {
		return nil, err
	}

	jww.INFO.Printf("[CH] Attached encryption key v%d to channel %s",
		key.Version, c.caps.ChannelID)

	c.attachResult = result
	c.key = &AttachedKey{ChannelID: c.caps.ChannelID, Key: key}
	return result, nil
}

// GeneratedEncryptionKey returns the channel identifier and the encrypted
// DEK envelope once key attachment has committed.
func (c *Creation) GeneratedEncryptionKey() (*AttachedKey, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.key == nil {
		return nil, errors.Wrapf(SequenceErr, sequenceErrFmt, stepKey,
			stepAttachKey)
	}
	return c.key, nil
}
