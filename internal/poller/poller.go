// Package poller implements the proposal lifecycle poller: the
// recurring task that diffs upstream proposal state against persisted
// seen markers and turns unseen transitions into notifications and
// one-shot timers.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonvote/votebot/internal/notifier"
	"github.com/tonvote/votebot/internal/schedule"
	"github.com/tonvote/votebot/internal/storage"
	"github.com/tonvote/votebot/internal/tonvote"
)

const maxConcurrentFetches = 8

// GovernanceClient is the read contract of the TON Vote API the poller
// depends on.
type GovernanceClient interface {
	GetDao(ctx context.Context, address string) (*tonvote.Dao, error)
	GetProposal(ctx context.Context, address string) (*tonvote.Proposal, error)
}

// Store is the slice of the subscription store the poller uses.
type Store interface {
	GetAll() ([]storage.Subscription, error)
	ContainsSeenProposal(proposalAddress string, groupID int64) (bool, error)
	InsertSeenProposal(proposalAddress string, groupID int64) error
}

// Scheduler arms the one-shot start/end timers.
type Scheduler interface {
	Arm(ctx context.Context, name string, fireAt time.Time, action schedule.Action)
}

// Poller periodically checks every subscription for proposal lifecycle
// events.
type Poller struct {
	store     Store
	client    GovernanceClient
	sender    notifier.Sender
	composer  *notifier.Composer
	scheduler Scheduler
	clock     schedule.Clock
	interval  time.Duration
	log       *slog.Logger
}

// New creates a Poller on the system clock.
func New(store Store, client GovernanceClient, sender notifier.Sender, composer *notifier.Composer, scheduler Scheduler, interval time.Duration, log *slog.Logger) *Poller {
	return NewWithClock(store, client, sender, composer, scheduler, interval, log, schedule.SystemClock{})
}

// NewWithClock creates a Poller on an explicit clock.
func NewWithClock(store Store, client GovernanceClient, sender notifier.Sender, composer *notifier.Composer, scheduler Scheduler, interval time.Duration, log *slog.Logger, clock schedule.Clock) *Poller {
	return &Poller{
		store:     store,
		client:    client,
		sender:    sender,
		composer:  composer,
		scheduler: scheduler,
		clock:     clock,
		interval:  interval,
		log:       log,
	}
}

// Start runs the polling loop until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	p.log.Info("poller started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopped")
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one polling pass over every subscription. Each subscription
// is processed independently; one failing never aborts the others.
func (p *Poller) Poll(ctx context.Context) {
	subs, err := p.store.GetAll()
	if err != nil {
		p.log.Error("get subscriptions", "error", err)
		return
	}

	if len(subs) == 0 {
		p.log.Debug("no subscriptions to poll")
		return
	}

	p.log.Debug("polling subscriptions", "count", len(subs))

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return
		default:
			p.checkSubscription(ctx, sub)
		}
	}
}

// checkSubscription fetches one subscription's DAO state and processes
// its proposals. Upstream failures are logged and retried next tick.
func (p *Poller) checkSubscription(ctx context.Context, sub storage.Subscription) {
	dao, err := p.client.GetDao(ctx, sub.DaoAddress)
	if err != nil {
		p.log.Warn("fetch dao", "dao", sub.DaoAddress, "group_id", sub.GroupID, "error", err)
		return
	}

	daoName := dao.Name
	if daoName == "" {
		daoName = sub.DaoName
	}

	for _, prop := range p.fetchProposals(ctx, dao.Proposals) {
		if err := p.processProposal(ctx, sub, daoName, prop); err != nil {
			p.log.Error("process proposal",
				"proposal", prop.Address,
				"group_id", sub.GroupID,
				"error", err,
			)
		}
	}
}

// fetchProposals resolves proposal addresses concurrently and returns
// whichever succeeded, in input order. A failed fetch leaves its
// proposal unseen so the next tick retries it.
func (p *Poller) fetchProposals(ctx context.Context, addresses []string) []*tonvote.Proposal {
	fetched := make([]*tonvote.Proposal, len(addresses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	for i, addr := range addresses {
		i, addr := i, addr
		g.Go(func() error {
			prop, err := p.client.GetProposal(gctx, addr)
			if err != nil {
				// settle-all: one failure must not cancel the batch
				p.log.Warn("fetch proposal", "proposal", addr, "error", err)
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

// processProposal handles the first sighting of a proposal for a group:
// announce it if voting has not started, arm the start and end timers
// that still lie ahead, then durably mark the pair seen. Once marked,
// the pair is never evaluated again.
func (p *Poller) processProposal(ctx context.Context, sub storage.Subscription, daoName string, prop *tonvote.Proposal) error {
	seen, err := p.store.ContainsSeenProposal(prop.Address, sub.GroupID)
	if err != nil {
		return fmt.Errorf("check seen marker: %w", err)
	}
	if seen {
		return nil
	}

	groupID := sub.GroupID
	now := p.clock.Now()

	if now.Unix() < prop.StartTime {
		msg := p.composer.NewProposal(daoName, prop)
		if err := p.sender.Send(ctx, groupID, msg); err != nil {
			p.log.Error("send new proposal alert", "proposal", prop.Address, "group_id", groupID, "error", err)
		}

		p.scheduler.Arm(ctx, "vote-started:"+prop.Address, prop.Start(), func(ctx context.Context) error {
			return p.sender.Send(ctx, groupID, p.composer.VoteStarted(daoName, prop))
		})
	}

	if now.Unix() < prop.EndTime {
		addr := prop.Address
		p.scheduler.Arm(ctx, "vote-ended:"+addr, prop.End(), func(ctx context.Context) error {
			// re-fetch so the message carries the final tally, which
			// does not exist before the end time
			final, err := p.client.GetProposal(ctx, addr)
			if err != nil {
				return fmt.Errorf("refetch proposal: %w", err)
			}
			return p.sender.Send(ctx, groupID, p.composer.VoteEnded(daoName, final))
		})
	}

	// Marked last so a fetch-level failure above leaves the proposal
	// retryable. A proposal first sighted past its end time reaches
	// this point without any message sent.
	if err := p.store.InsertSeenProposal(prop.Address, sub.GroupID); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}
