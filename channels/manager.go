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

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/quorumchat/client/blobstore"
	"gitlab.com/quorumchat/client/envelope"
	"gitlab.com/quorumchat/client/ledger"
)

// Error messages.
const (
	nilLedgerErr    = "config is missing the ledger service"
	nilThresholdErr = "config is missing the threshold-encryption client"
	nilProverErr    = "config is missing the session prover"
	zeroIdentityErr = "config is missing the caller identity address"
	fetchChannelErr = "failed to fetch channel %s: %+v"
	ownedQueryErr   = "owned-object query for %s failed: %+v"
)

// StorageConfig selects the blob storage backend. Exactly one variant must
// be set: a ready-made Adapter, or aggregator settings for the built-in
// gateway adapter. The choice is resolved once, at construction.
type StorageConfig struct {
	Adapter blobstore.Adapter

	AggregatorURL    string
	AggregatorParams blobstore.AggregatorParams
}

func (sc StorageConfig) resolve() (blobstore.Adapter, error) {
	switch {
	case sc.Adapter != nil && sc.AggregatorURL != "":
		return nil, errors.Wrap(StorageConfigErr, "both variants set")
	case sc.Adapter != nil:
		return sc.Adapter, nil
	case sc.AggregatorURL != "":
		// NewAggregator fills in unset params fields.
		return blobstore.NewAggregator(sc.AggregatorURL,
			sc.AggregatorParams), nil
	default:
		return nil, errors.Wrap(StorageConfigErr, "no variant set")
	}
}

// Config wires the manager to its three external collaborators and the
// caller's identity.
type Config struct {
	Ledger    ledger.Service
	Threshold envelope.Client
	Session   envelope.Prover

	// Identity is the caller's ledger address; it signs batches and
	// receives the creator capabilities.
	Identity ledger.Address

	Storage StorageConfig
}

// manager implements Manager.
type manager struct {
	net    ledger.Service
	engine *envelope.Engine
	blobs  blobstore.Adapter
	me     ledger.Address
	params Params

	// memberCaps caches resolved membership capabilities per channel. The
	// cache is append-only; there is no invalidation protocol.
	mux        sync.Mutex
	memberCaps map[ledger.ObjectID]ledger.Ref
}

// NewManager constructs the channel protocol client.
func NewManager(cfg Config, params Params) (Manager, error) {
	switch {
	case cfg.Ledger == nil:
		return nil, errors.New(nilLedgerErr)
	case cfg.Threshold == nil:
		return nil, errors.New(nilThresholdErr)
	case cfg.Session == nil:
		return nil, errors.New(nilProverErr)
	case cfg.Identity.IsZero():
		return nil, errors.New(zeroIdentityErr)
	}

	blobs, err := cfg.Storage.resolve()
	if err != nil {
		return nil, err
	}

	return &manager{
		net:        cfg.Ledger,
		engine:     envelope.NewEngine(cfg.Threshold, cfg.Session, params.Envelope),
		blobs:      blobs,
		me:         cfg.Identity,
		params:     params,
		memberCaps: make(map[ledger.ObjectID]ledger.Ref),
	}, nil
}

// FetchChannel reads and decodes the channel object.
func (m *manager) FetchChannel(ctx context.Context,
	channelID ledger.ObjectID) (*Channel, error) {
	if channelID.IsZero() {
		return nil, errors.Wrap(ledger.InvalidIdentifierErr,
			"channel ID is zero")
	}

	objs, err := m.net.GetObjects(ctx, []ledger.ObjectID{channelID})
	if err != nil {
		return nil, errors.Errorf(fetchChannelErr, channelID, err)
	}
	if len(objs) != 1 || objs[0].ID.IsZero() {
		return nil, errors.Wrapf(ledger.ObjectNotFoundErr, "channel %s",
			channelID)
	}

	return decodeChannel(objs[0])
}

// ResolveMemberCap finds the caller's MemberCap for the channel.
func (m *manager) ResolveMemberCap(ctx context.Context,
	channelID ledger.ObjectID) (ledger.Ref, error) {
	m.mux.Lock()
	cached, exists := m.memberCaps[channelID]
	m.mux.Unlock()
	if exists {
		return cached, nil
	}

	var cursor *ledger.ObjectID
	for {
		page, err := m.net.GetOwnedObjects(ctx, m.me, MemberCapType, cursor,
			m.params.OwnedQueryPageSize)
		if err != nil {
			return ledger.Ref{}, errors.Errorf(ownedQueryErr, m.me, err)
		}

		for _, obj := range page.Objects {
			rec, err := decodeMemberCap(obj)
			if err != nil {
				jww.WARN.Printf("[CH] Skipping undecodable MemberCap %s: %v",
					obj.ID, err)
				continue
			}
			if rec.Channel == channelID {
				ref := obj.Ref()
				m.cacheMemberCap(channelID, ref)
				return ref, nil
			}
		}

		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}

	return ledger.Ref{}, errors.Wrapf(NotAMemberErr, "address %s, channel %s",
		m.me, channelID)
}

func (m *manager) cacheMemberCap(channelID ledger.ObjectID, ref ledger.Ref) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.memberCaps[channelID] = ref
}

// channelDEK resolves the caller's capability and decrypts the channel DEK
// envelope at the given version.
func (m *manager) channelDEK(ctx context.Context, ch *Channel,
	version uint32) ([]byte, error) {
	key, exists := ch.KeyHistory.ByVersion(version)
	if !exists {
		if len(ch.KeyHistory.Keys) == 0 {
			return nil, errors.Wrapf(NoEncryptionKeyErr, "channel %s", ch.ID)
		}
		return nil, errors.Wrapf(KeyVersionNotFoundErr,
			"channel %s, version %d", ch.ID, version)
	}

	capRef, err := m.ResolveMemberCap(ctx, ch.ID)
	if err != nil {
		return nil, err
	}

	return m.engine.DecryptChannelDEK(ctx, ch.Ref(), capRef, key)
}
