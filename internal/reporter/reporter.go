// Package reporter sends the periodic per-group digest of active and
// pending proposals. It walks the same subscriptions as the lifecycle
// poller but keeps no bookkeeping of its own and never consults the
// seen markers.
package reporter

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonvote/votebot/internal/notifier"
	"github.com/tonvote/votebot/internal/schedule"
	"github.com/tonvote/votebot/internal/storage"
	"github.com/tonvote/votebot/internal/tonvote"
)

const maxConcurrentFetches = 8

// GovernanceClient is the read contract the reporter depends on.
type GovernanceClient interface {
	GetDao(ctx context.Context, address string) (*tonvote.Dao, error)
	GetProposal(ctx context.Context, address string) (*tonvote.Proposal, error)
}

// Store is the slice of the subscription store the reporter uses.
type Store interface {
	GetAll() ([]storage.Subscription, error)
}

// Reporter aggregates every group's subscriptions into one digest
// message per group.
type Reporter struct {
	store    Store
	client   GovernanceClient
	sender   notifier.Sender
	composer *notifier.Composer
	clock    schedule.Clock
	interval time.Duration
	log      *slog.Logger
}

// New creates a Reporter on the system clock.
func New(store Store, client GovernanceClient, sender notifier.Sender, composer *notifier.Composer, interval time.Duration, log *slog.Logger) *Reporter {
	return NewWithClock(store, client, sender, composer, interval, log, schedule.SystemClock{})
}

// NewWithClock creates a Reporter on an explicit clock.
func NewWithClock(store Store, client GovernanceClient, sender notifier.Sender, composer *notifier.Composer, interval time.Duration, log *slog.Logger, clock schedule.Clock) *Reporter {
	return &Reporter{
		store:    store,
		client:   client,
		sender:   sender,
		composer: composer,
		clock:    clock,
		interval: interval,
		log:      log,
	}
}

// Start runs the digest loop until ctx is cancelled. The first digest
// goes out after one full interval, not at startup.
func (r *Reporter) Start(ctx context.Context) {
	r.log.Info("digest reporter started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("digest reporter stopped")
			return
		case <-ticker.C:
			r.Report(ctx)
		}
	}
}

// Report runs one digest pass: one aggregated message per group that
// has at least one active or pending proposal across its subscriptions.
func (r *Reporter) Report(ctx context.Context) {
	subs, err := r.store.GetAll()
	if err != nil {
		r.log.Error("get subscriptions", "error", err)
		return
	}

	byGroup := make(map[int64][]storage.Subscription)
	for _, sub := range subs {
		byGroup[sub.GroupID] = append(byGroup[sub.GroupID], sub)
	}

	// stable group order so a pass is reproducible in tests and logs
	groupIDs := make([]int64, 0, len(byGroup))
	for groupID := range byGroup {
		groupIDs = append(groupIDs, groupID)
	}
	sort.Slice(groupIDs, func(i, j int) bool { return groupIDs[i] < groupIDs[j] })

	for _, groupID := range groupIDs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sections := r.collectSections(ctx, byGroup[groupID])
		if len(sections) == 0 {
			r.log.Debug("nothing to report", "group_id", groupID)
			continue
		}

		msg := r.composer.Digest(sections)
		if err := r.sender.Send(ctx, groupID, msg); err != nil {
			r.log.Error("send digest", "group_id", groupID, "error", err)
		}
	}
}

// collectSections builds one digest section per subscribed DAO,
// dropping DAOs that are unreachable or have nothing active or pending.
func (r *Reporter) collectSections(ctx context.Context, subs []storage.Subscription) []notifier.DaoDigest {
	var sections []notifier.DaoDigest

	for _, sub := range subs {
		dao, err := r.client.GetDao(ctx, sub.DaoAddress)
		if err != nil {
			r.log.Warn("fetch dao", "dao", sub.DaoAddress, "error", err)
			continue
		}

		daoName := dao.Name
		if daoName == "" {
			daoName = sub.DaoName
		}

		section := notifier.DaoDigest{DaoName: daoName}
		now := r.clock.Now()

		for _, prop := range r.fetchProposals(ctx, dao.Proposals) {
			switch prop.StatusAt(now) {
			case tonvote.StatusPending:
				section.Pending = append(section.Pending, prop)
			case tonvote.StatusActive:
				section.Active = append(section.Active, prop)
			case tonvote.StatusEnded:
				// ended proposals are not part of the digest
			}
		}

		if !section.IsEmpty() {
			sections = append(sections, section)
		}
	}

	return sections
}

func (r *Reporter) fetchProposals(ctx context.Context, addresses []string) []*tonvote.Proposal {
	fetched := make([]*tonvote.Proposal, len(addresses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	for i, addr := range addresses {
		i, addr := i, addr
		g.Go(func() error {
			prop, err := r.client.GetProposal(gctx, addr)
			if err != nil {
				r.log.Warn("fetch proposal", "proposal", addr, "error", err)
				return nil
			}
			fetched[i] = prop
			return nil
		})
	}
	g.Wait()

	proposals := make([]*tonvote.Proposal, 0, len(fetched))
	for _, prop := range fetched {
		if prop != nil {
			proposals = append(proposals, prop)
		}
	}
	return proposals
}
