package poller

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tonvote/votebot/internal/notifier"
	"github.com/tonvote/votebot/internal/storage"
	"github.com/tonvote/votebot/internal/tonvote"
)

var testNow = time.Unix(1_700_000_000, 0)

type pollerFixture struct {
	poller    *Poller
	client    *mockClient
	store     *mockStore
	sender    *mockSender
	scheduler *mockScheduler
}

func newPollerFixture(subs ...storage.Subscription) *pollerFixture {
	client := newMockClient()
	store := newMockStore(subs...)
	sender := &mockSender{}
	scheduler := &mockScheduler{}

	p := NewWithClock(
		store, client, sender,
		notifier.NewComposer("https://ton.vote"),
		scheduler,
		time.Minute,
		discardLogger(),
		fixedClock{now: testNow},
	)

	return &pollerFixture{
		poller:    p,
		client:    client,
		store:     store,
		sender:    sender,
		scheduler: scheduler,
	}
}

func subscription(groupID int64, daoAddress string) storage.Subscription {
	return storage.Subscription{
		ID:         storage.SubscriptionID(groupID, daoAddress),
		GroupID:    groupID,
		UserID:     7,
		DaoAddress: daoAddress,
		DaoName:    "Test DAO",
	}
}

func testProposal(address string, start, end time.Time) *tonvote.Proposal {
	return &tonvote.Proposal{
		Address:     address,
		DaoAddress:  "DAO1",
		Title:       "Implement Web4",
		Description: "Web4 is the next evolution of the web.",
		StartTime:   start.Unix(),
		EndTime:     end.Unix(),
	}
}

func TestPollUpcomingProposal(t *testing.T) {
	f := newPollerFixture(subscription(100, "DAO1"))
	f.client.daos["DAO1"] = &tonvote.Dao{Address: "DAO1", Name: "Test DAO", Proposals: []string{"P1"}}
	f.client.setProposal(testProposal("P1", testNow.Add(time.Hour), testNow.Add(25*time.Hour)))

	f.poller.Poll(context.Background())

	// one announcement to the group
	sent := f.sender.messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].groupID != 100 {
		t.Errorf("expected group 100, got %d", sent[0].groupID)
	}
	if !strings.Contains(sent[0].msg.Text, "New proposal") {
		t.Errorf("expected an announcement, got %q", sent[0].msg.Text)
	}
	if !strings.Contains(sent[0].msg.Text, "Implement Web4") {
		t.Errorf("expected the proposal title, got %q", sent[0].msg.Text)
	}

	// start and end timers armed at the proposal boundaries
	timers := f.scheduler.armed()
	if len(timers) != 2 {
		t.Fatalf("expected 2 timers, got %d", len(timers))
	}
	if !timers[0].fireAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("start timer at %v, want %v", timers[0].fireAt, testNow.Add(time.Hour))
	}
	if !timers[1].fireAt.Equal(testNow.Add(25 * time.Hour)) {
		t.Errorf("end timer at %v, want %v", timers[1].fireAt, testNow.Add(25*time.Hour))
	}

	if !f.store.isSeen("P1", 100) {
		t.Error("expected (P1, 100) marked seen")
	}

	// a second pass emits nothing further
	f.poller.Poll(context.Background())
	if len(f.sender.messages()) != 1 {
		t.Errorf("second poll re-emitted the announcement")
	}
	if len(f.scheduler.armed()) != 2 {
		t.Errorf("second poll re-armed timers")
	}
}

func TestPollStartedProposal(t *testing.T) {
	f := newPollerFixture(subscription(100, "DAO1"))
	f.client.daos["DAO1"] = &tonvote.Dao{Address: "DAO1", Name: "Test DAO", Proposals: []string{"P1"}}
	f.client.setProposal(testProposal("P1", testNow.Add(-time.Hour), testNow.Add(time.Hour)))

	f.poller.Poll(context.Background())

	// the announcement window has passed
	if len(f.sender.messages()) != 0 {
		t.Errorf("expected no announcement for a started proposal")
	}

	// only the end timer remains relevant
	timers := f.scheduler.armed()
	if len(timers) != 1 {
		t.Fatalf("expected 1 timer, got %d", len(timers))
	}
	if timers[0].name != "vote-ended:P1" {
		t.Errorf("expected the end timer, got %s", timers[0].name)
	}

	if !f.store.isSeen("P1", 100) {
		t.Error("expected (P1, 100) marked seen")
	}
}

func TestPollStartBoundary(t *testing.T) {
	// startTime == now counts as started: no announcement
	f := newPollerFixture(subscription(100, "DAO1"))
	f.client.daos["DAO1"] = &tonvote.Dao{Address: "DAO1", Name: "Test DAO", Proposals: []string{"P1"}}
	f.client.setProposal(testProposal("P1", testNow, testNow.Add(time.Hour)))

	f.poller.Poll(context.Background())

	if len(f.sender.messages()) != 0 {
		t.Errorf("expected no announcement at the start boundary")
	}
	if len(f.scheduler.armed()) != 1 {
		t.Errorf("expected only the end timer, got %d", len(f.scheduler.armed()))
	}
}

func TestPollEndedProposal(t *testing.T) {
	f := newPollerFixture(subscription(100, "DAO1"))
	f.client.daos["DAO1"] = &tonvote.Dao{Address: "DAO1", Name: "Test DAO", Proposals: []string{"P1"}}
	f.client.setProposal(testProposal("P1", testNow.Add(-25*time.Hour), testNow.Add(-time.Hour)))

	f.poller.Poll(context.Background())

	// marked seen silently, nothing sent, nothing armed
	if len(f.sender.messages()) != 0 {
		t.Errorf("expected no messages for an ended proposal")
	}
	if len(f.scheduler.armed()) != 0 {
		t.Errorf("expected no timers for an ended proposal")
	}
	if !f.store.isSeen("P1", 100) {
		t.Error("expected (P1, 100) marked seen")
	}
}

func TestPollPartialFetchFailure(t *testing.T) {
	f := newPollerFixture(subscription(100, "DAO1"))
	f.client.daos["DAO1"] = &tonvote.Dao{Address: "DAO1", Name: "Test DAO", Proposals: []string{"PX", "PY", "PZ"}}
	f.client.propErrs["PX"] = errors.New("API error 500")
	f.client.setProposal(testProposal("PY", testNow.Add(time.Hour), testNow.Add(25*time.Hour)))
	f.client.setProposal(testProposal("PZ", testNow.Add(2*time.Hour), testNow.Add(26*time.Hour)))

	f.poller.Poll(context.Background())

	// the failed proposal stays unseen, the others proceed
	if f.store.isSeen("PX", 100) {
		t.Error("failed fetch must leave PX unseen")
	}
	if !f.store.isSeen("PY", 100) || !f.store.isSeen("PZ", 100) {
		t.Error("expected PY and PZ marked seen")
	}
	if len(f.sender.messages()) != 2 {
		t.Errorf("expected 2 announcements, got %d", len(f.sender.messages()))
	}

	// next tick picks PX up once the upstream recovers
	delete(f.client.propErrs, "PX")
	f.client.setProposal(testProposal("PX", testNow.Add(time.Hour), testNow.Add(25*time.Hour)))

	f.poller.Poll(context.Background())

	if !f.store.isSeen("PX", 100) {
		t.Error("expected PX marked seen after retry")
	}
	if len(f.sender.messages()) != 3 {
		t.Errorf("expected 3 announcements after retry, got %d", len(f.sender.messages()))
	}
}

func TestPollDaoFailureIsolation(t *testing.T) {
	f := newPollerFixture(subscription(100, "DAO1"), subscription(200, "DAO2"))
	f.client.daoErrs["DAO1"] = errors.New("API error 500")
	f.client.daos["DAO2"] = &tonvote.Dao{Address: "DAO2", Name: "Other DAO", Proposals: []string{"P2"}}
	f.client.setProposal(&tonvote.Proposal{
		Address:    "P2",
		DaoAddress: "DAO2",
		Title:      "Fund the treasury",
		StartTime:  testNow.Add(time.Hour).Unix(),
		EndTime:    testNow.Add(25 * time.Hour).Unix(),
	})

	f.poller.Poll(context.Background())

	// the healthy subscription is unaffected by the broken one
	sent := f.sender.messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].groupID != 200 {
		t.Errorf("expected group 200, got %d", sent[0].groupID)
	}
	if !f.store.isSeen("P2", 200) {
		t.Error("expected (P2, 200) marked seen")
	}
}

func TestPollPerGroupMarkers(t *testing.T) {
	// two groups subscribed to the same DAO each get their own alert
	f := newPollerFixture(subscription(100, "DAO1"), subscription(200, "DAO1"))
	f.client.daos["DAO1"] = &tonvote.Dao{Address: "DAO1", Name: "Test DAO", Proposals: []string{"P1"}}
	f.client.setProposal(testProposal("P1", testNow.Add(time.Hour), testNow.Add(25*time.Hour)))

	f.poller.Poll(context.Background())

	if len(f.sender.messages()) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(f.sender.messages()))
	}
	if !f.store.isSeen("P1", 100) || !f.store.isSeen("P1", 200) {
		t.Error("expected both groups marked seen")
	}
}

func TestEndTimerRefetchesResults(t *testing.T) {
	f := newPollerFixture(subscription(100, "DAO1"))
	f.client.daos["DAO1"] = &tonvote.Dao{Address: "DAO1", Name: "Test DAO", Proposals: []string{"P1"}}
	f.client.setProposal(testProposal("P1", testNow.Add(-time.Hour), testNow.Add(time.Hour)))

	f.poller.Poll(context.Background())

	timers := f.scheduler.armed()
	if len(timers) != 1 {
		t.Fatalf("expected the end timer, got %d timers", len(timers))
	}

	// the tally only exists after the end time; the timer must pick up
	// the fresh state, not the poll-time snapshot
	final := testProposal("P1", testNow.Add(-time.Hour), testNow.Add(time.Hour))
	final.Result = &tonvote.VoteResult{Yes: 100, No: 0, Abstain: 0}
	f.client.setProposal(final)

	if err := timers[0].action(context.Background()); err != nil {
		t.Fatalf("end timer action: %v", err)
	}

	sent := f.sender.messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if !strings.Contains(sent[0].msg.Text, "Voting has ended") {
		t.Errorf("expected an ended alert, got %q", sent[0].msg.Text)
	}
	if !strings.Contains(sent[0].msg.Text, "Yes 100") {
		t.Errorf("expected the final tally, got %q", sent[0].msg.Text)
	}
}

func TestStartTimerSendsStartedAlert(t *testing.T) {
	f := newPollerFixture(subscription(100, "DAO1"))
	f.client.daos["DAO1"] = &tonvote.Dao{Address: "DAO1", Name: "Test DAO", Proposals: []string{"P1"}}
	f.client.setProposal(testProposal("P1", testNow.Add(time.Hour), testNow.Add(25*time.Hour)))

	f.poller.Poll(context.Background())

	timers := f.scheduler.armed()
	if len(timers) != 2 {
		t.Fatalf("expected 2 timers, got %d", len(timers))
	}

	if err := timers[0].action(context.Background()); err != nil {
		t.Fatalf("start timer action: %v", err)
	}

	sent := f.sender.messages()
	last := sent[len(sent)-1]
	if !strings.Contains(last.msg.Text, "Voting has started") {
		t.Errorf("expected a started alert, got %q", last.msg.Text)
	}
}

func TestPollSeenCheckFailure(t *testing.T) {
	f := newPollerFixture(subscription(100, "DAO1"))
	f.client.daos["DAO1"] = &tonvote.Dao{Address: "DAO1", Name: "Test DAO", Proposals: []string{"P1"}}
	f.client.setProposal(testProposal("P1", testNow.Add(time.Hour), testNow.Add(25*time.Hour)))
	f.store.seenErr = errors.New("disk I/O error")

	f.poller.Poll(context.Background())

	// a storage failure must not spuriously notify or mark
	if len(f.sender.messages()) != 0 {
		t.Errorf("expected no messages on storage failure")
	}
	if f.store.isSeen("P1", 100) {
		t.Error("expected P1 to stay unseen")
	}
}
