package poller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tonvote/votebot/internal/notifier"
	"github.com/tonvote/votebot/internal/schedule"
	"github.com/tonvote/votebot/internal/storage"
	"github.com/tonvote/votebot/internal/tonvote"
)

// mockClient serves DAOs and proposals from maps, with per-address
// error injection.
type mockClient struct {
	mu        sync.Mutex
	daos      map[string]*tonvote.Dao
	proposals map[string]*tonvote.Proposal
	daoErrs   map[string]error
	propErrs  map[string]error
}

func newMockClient() *mockClient {
	return &mockClient{
		daos:      make(map[string]*tonvote.Dao),
		proposals: make(map[string]*tonvote.Proposal),
		daoErrs:   make(map[string]error),
		propErrs:  make(map[string]error),
	}
}

func (c *mockClient) GetDao(ctx context.Context, address string) (*tonvote.Dao, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.daoErrs[address]; err != nil {
		return nil, err
	}
	dao, ok := c.daos[address]
	if !ok {
		return nil, fmt.Errorf("dao %s: API error 404", address)
	}
	return dao, nil
}

func (c *mockClient) GetProposal(ctx context.Context, address string) (*tonvote.Proposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.propErrs[address]; err != nil {
		return nil, err
	}
	prop, ok := c.proposals[address]
	if !ok {
		return nil, fmt.Errorf("proposal %s: API error 404", address)
	}
	return prop, nil
}

func (c *mockClient) setProposal(p *tonvote.Proposal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proposals[p.Address] = p
}

// mockStore is an in-memory stand-in for the sqlite store.
type mockStore struct {
	mu      sync.Mutex
	subs    []storage.Subscription
	seen    map[string]bool
	seenErr error
}

func newMockStore(subs ...storage.Subscription) *mockStore {
	return &mockStore{subs: subs, seen: make(map[string]bool)}
}

func (s *mockStore) GetAll() ([]storage.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.Subscription(nil), s.subs...), nil
}

func (s *mockStore) ContainsSeenProposal(proposalAddress string, groupID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seenErr != nil {
		return false, s.seenErr
	}
	return s.seen[storage.SeenProposalID(proposalAddress, groupID)], nil
}

func (s *mockStore) InsertSeenProposal(proposalAddress string, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[storage.SeenProposalID(proposalAddress, groupID)] = true
	return nil
}

func (s *mockStore) isSeen(proposalAddress string, groupID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[storage.SeenProposalID(proposalAddress, groupID)]
}

// mockSender records every delivered message.
type sentMessage struct {
	groupID int64
	msg     notifier.Message
}

type mockSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *mockSender) Send(ctx context.Context, groupID int64, msg notifier.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{groupID: groupID, msg: msg})
	return nil
}

func (s *mockSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

// mockScheduler records armed timers instead of running them, so tests
// can fire actions by hand.
type armedTimer struct {
	name   string
	fireAt time.Time
	action schedule.Action
}

type mockScheduler struct {
	mu     sync.Mutex
	timers []armedTimer
}

func (s *mockScheduler) Arm(ctx context.Context, name string, fireAt time.Time, action schedule.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers = append(s.timers, armedTimer{name: name, fireAt: fireAt, action: action})
}

func (s *mockScheduler) armed() []armedTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]armedTimer(nil), s.timers...)
}

// fixedClock pins now for deterministic classification.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time                         { return c.now }
func (c fixedClock) After(d time.Duration) <-chan time.Time { return make(chan time.Time) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
