package battlevoting_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"testing"
	"time"

	battlevoting "battlevoter/contexts/live-events/battle-voting"
	"battlevoter/contexts/live-events/battle-voting/adapters/credential"
	"battlevoter/contexts/live-events/battle-voting/adapters/memory"
	"battlevoter/contexts/live-events/battle-voting/application/livefeed"
	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	domainerrors "battlevoter/contexts/live-events/battle-voting/domain/errors"
	httptransport "battlevoter/contexts/live-events/battle-voting/transport/http"

	"golang.org/x/sync/errgroup"
)

type fixture struct {
	module  battlevoting.Module
	private ed25519.PrivateKey
	token   string
}

func newFixture(t *testing.T, opts battlevoting.InMemoryOptions) fixture {
	t.Helper()
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	opts.Credentials = credential.Verifier{PublicKey: public}
	module := battlevoting.NewInMemoryModule([]entities.Contest{
		{ContestID: "contest-open", EventID: "event-1", ParticipantA: "MC Alpha", ParticipantB: "MC Beta", Status: entities.ContestStatusOpen},
		{ContestID: "contest-scheduled", EventID: "event-1", Status: entities.ContestStatusScheduled},
		{ContestID: "contest-closed", EventID: "event-1", Status: entities.ContestStatusClosed},
		{ContestID: "contest-other", EventID: "event-2", Status: entities.ContestStatusOpen},
	}, opts, nil)
	t.Cleanup(func() { _ = module.Hub.Close() })

	return fixture{
		module:  module,
		private: private,
		token:   mintToken(t, private, "event-1"),
	}
}

func mintToken(t *testing.T, private ed25519.PrivateKey, eventID string) string {
	t.Helper()
	token, err := credential.Mint(private, credential.EventToken{
		EventID:   eventID,
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (f fixture) vote(contestID string, device string, choice string, source string) (httptransport.SubmitVoteResponse, error) {
	return f.module.Handler.SubmitVoteHandler(context.Background(), f.token, source, httptransport.SubmitVoteRequest{
		ContestID:         contestID,
		DeviceFingerprint: device,
		Choice:            choice,
	})
}

type viewer struct {
	events chan livefeed.Event
	cancel context.CancelFunc
	done   chan error
}

func attach(f fixture, contestID string) *viewer {
	ctx, cancel := context.WithCancel(context.Background())
	v := &viewer{
		events: make(chan livefeed.Event, 32),
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() {
		v.done <- f.module.Handler.StreamTallyHandler(ctx, contestID, func(event livefeed.Event) error {
			v.events <- event
			return nil
		})
	}()
	return v
}

func (v *viewer) next(t *testing.T) livefeed.Event {
	t.Helper()
	select {
	case event := <-v.events:
		return event
	case err := <-v.done:
		t.Fatalf("stream ended early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for live event")
	}
	return livefeed.Event{}
}

func (v *viewer) detach(t *testing.T) {
	t.Helper()
	v.cancel()
	select {
	case err := <-v.done:
		if err != nil {
			t.Fatalf("stream returned error on detach: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not stop after detach")
	}
}

func requireTally(t *testing.T, tally *httptransport.TallyResponse, a int, b int) {
	t.Helper()
	if tally == nil {
		t.Fatalf("expected tally in vote response")
	}
	if tally.A != a || tally.B != b {
		t.Fatalf("expected tally {A:%d B:%d}, got {A:%d B:%d}", a, b, tally.A, tally.B)
	}
}

func TestVotingScenarioWithLateViewer(t *testing.T) {
	f := newFixture(t, battlevoting.InMemoryOptions{})

	resp, err := f.vote("contest-open", "device-1", "A", "203.0.113.1")
	if err != nil {
		t.Fatalf("D1 vote A failed: %v", err)
	}
	if !resp.Success || resp.WasUpdate {
		t.Fatalf("expected fresh successful vote, got %+v", resp)
	}
	requireTally(t, resp.Tally, 1, 0)

	resp, err = f.vote("contest-open", "device-1", "B", "203.0.113.1")
	if err != nil {
		t.Fatalf("D1 revote B failed: %v", err)
	}
	if !resp.WasUpdate {
		t.Fatalf("expected revote to be reported as update")
	}
	requireTally(t, resp.Tally, 0, 1)

	resp, err = f.vote("contest-open", "device-2", "a", "203.0.113.2")
	if err != nil {
		t.Fatalf("D2 vote A failed: %v", err)
	}
	requireTally(t, resp.Tally, 1, 1)

	if rows := f.module.Store.VoteCount("contest-open"); rows != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", rows)
	}

	v := attach(f, "contest-open")
	defer v.detach(t)
	event := v.next(t)
	if event.Kind != livefeed.EventSnapshot {
		t.Fatalf("expected snapshot first, got %s", event.Kind)
	}
	if event.Tally.Count(entities.ChoiceA) != 1 || event.Tally.Count(entities.ChoiceB) != 1 {
		t.Fatalf("expected initial snapshot {A:1 B:1}, got %v", event.Tally.Counts)
	}
}

func TestConcurrentDistinctDevicesAreAllCounted(t *testing.T) {
	f := newFixture(t, battlevoting.InMemoryOptions{})
	const voters = 300
	const votersForA = 120

	var group errgroup.Group
	for i := 0; i < voters; i++ {
		i := i
		group.Go(func() error {
			choice := "B"
			if i < votersForA {
				choice = "A"
			}
			_, err := f.vote("contest-open", fmt.Sprintf("device-%d", i), choice, fmt.Sprintf("198.51.100.%d:%d", i%250, i))
			return err
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatalf("concurrent vote failed: %v", err)
	}

	tally, err := f.module.Handler.GetTallyHandler(context.Background(), "contest-open")
	if err != nil {
		t.Fatalf("get tally failed: %v", err)
	}
	if tally.A != votersForA || tally.B != voters-votersForA || tally.Total != voters {
		t.Fatalf("expected {A:%d B:%d}, got %+v", votersForA, voters-votersForA, tally)
	}
	if rows := f.module.Store.VoteCount("contest-open"); rows != voters {
		t.Fatalf("expected %d ledger rows, got %d", voters, rows)
	}
}

func TestConcurrentRevotesFromOneDeviceCountOnce(t *testing.T) {
	f := newFixture(t, battlevoting.InMemoryOptions{RateLimit: 1000})

	var group errgroup.Group
	for i := 0; i < 50; i++ {
		i := i
		group.Go(func() error {
			choice := "A"
			if i%2 == 0 {
				choice = "B"
			}
			_, err := f.vote("contest-open", "device-1", choice, "203.0.113.5")
			return err
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatalf("concurrent revote failed: %v", err)
	}

	tally, err := f.module.Handler.GetTallyHandler(context.Background(), "contest-open")
	if err != nil {
		t.Fatalf("get tally failed: %v", err)
	}
	if tally.Total != 1 {
		t.Fatalf("expected exactly one counted vote, got %+v", tally)
	}
	stored, found, _ := f.module.Store.GetVote(context.Background(), "contest-open", "device-1")
	if !found {
		t.Fatalf("expected stored vote")
	}
	if tally.A+tally.B != 1 || (stored.Choice == entities.ChoiceA) != (tally.A == 1) {
		t.Fatalf("tally %+v disagrees with ledger choice %s", tally, stored.Choice)
	}
}

func TestClosedContestRejectedRegardlessOfCredentialAndRate(t *testing.T) {
	f := newFixture(t, battlevoting.InMemoryOptions{RateLimit: 1})

	// exhaust the source's budget first
	if _, err := f.vote("contest-open", "device-x", "A", "203.0.113.9"); err != nil {
		t.Fatalf("priming vote failed: %v", err)
	}

	for _, contestID := range []string{"contest-scheduled", "contest-closed"} {
		for _, bearer := range []string{f.token, "not-a-token", ""} {
			_, err := f.module.Handler.SubmitVoteHandler(context.Background(), bearer, "203.0.113.9", httptransport.SubmitVoteRequest{
				ContestID:         contestID,
				DeviceFingerprint: "device-1",
				Choice:            "A",
			})
			if !errors.Is(err, domainerrors.ErrContestNotOpen) {
				t.Fatalf("%s with bearer %q: expected ErrContestNotOpen, got %v", contestID, bearer, err)
			}
		}
		if rows := f.module.Store.VoteCount(contestID); rows != 0 {
			t.Fatalf("expected no ledger rows for %s, got %d", contestID, rows)
		}
	}
}

func TestContestStateIsCheckedOnEveryVote(t *testing.T) {
	f := newFixture(t, battlevoting.InMemoryOptions{})

	if _, err := f.vote("contest-open", "device-1", "A", "203.0.113.1"); err != nil {
		t.Fatalf("vote while open failed: %v", err)
	}
	f.module.Store.SetContestStatus("contest-open", entities.ContestStatusClosed)
	if _, err := f.vote("contest-open", "device-2", "A", "203.0.113.1"); !errors.Is(err, domainerrors.ErrContestNotOpen) {
		t.Fatalf("expected ErrContestNotOpen after close, got %v", err)
	}
}

func TestEligibilityFailures(t *testing.T) {
	f := newFixture(t, battlevoting.InMemoryOptions{})
	otherEvent := mintToken(t, f.private, "event-2")

	cases := []struct {
		name      string
		bearer    string
		contestID string
		want      error
	}{
		{name: "unknown contest", bearer: f.token, contestID: "contest-missing", want: domainerrors.ErrContestNotFound},
		{name: "garbage credential", bearer: "garbage", contestID: "contest-open", want: domainerrors.ErrAuthenticationFailure},
		{name: "credential for other event", bearer: otherEvent, contestID: "contest-open", want: domainerrors.ErrContestMismatch},
		{name: "event-1 credential on event-2 contest", bearer: f.token, contestID: "contest-other", want: domainerrors.ErrContestMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.module.Handler.SubmitVoteHandler(context.Background(), tc.bearer, "203.0.113.1", httptransport.SubmitVoteRequest{
				ContestID:         tc.contestID,
				DeviceFingerprint: "device-1",
				Choice:            "A",
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if rows := f.module.Store.VoteCount("contest-open") + f.module.Store.VoteCount("contest-other"); rows != 0 {
		t.Fatalf("rejected votes must leave no rows, got %d", rows)
	}
}

func TestInvalidVoteInput(t *testing.T) {
	f := newFixture(t, battlevoting.InMemoryOptions{})
	cases := []httptransport.SubmitVoteRequest{
		{ContestID: "contest-open", DeviceFingerprint: "device-1", Choice: "C"},
		{ContestID: "contest-open", DeviceFingerprint: "  ", Choice: "A"},
		{ContestID: "", DeviceFingerprint: "device-1", Choice: "A"},
	}
	for _, req := range cases {
		_, err := f.module.Handler.SubmitVoteHandler(context.Background(), f.token, "203.0.113.1", req)
		if !errors.Is(err, domainerrors.ErrInvalidVoteInput) {
			t.Fatalf("request %+v: expected ErrInvalidVoteInput, got %v", req, err)
		}
	}
}

func TestRateLimitWindow(t *testing.T) {
	f := newFixture(t, battlevoting.InMemoryOptions{RateLimit: 5, RateWindow: 5 * time.Minute})
	now := time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)
	f.module.Store.SetNow(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		if _, err := f.vote("contest-open", fmt.Sprintf("device-%d", i), "A", "198.51.100.7"); err != nil {
			t.Fatalf("vote %d within budget failed: %v", i, err)
		}
	}
	if _, err := f.vote("contest-open", "device-5", "A", "198.51.100.7"); !errors.Is(err, domainerrors.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	if _, found, _ := f.module.Store.GetVote(context.Background(), "contest-open", "device-5"); found {
		t.Fatalf("rate limited vote must not be recorded")
	}
	if _, err := f.vote("contest-open", "device-6", "A", "198.51.100.8"); err != nil {
		t.Fatalf("other source should be unaffected: %v", err)
	}

	now = now.Add(5 * time.Minute)
	if _, err := f.vote("contest-open", "device-5", "A", "198.51.100.7"); err != nil {
		t.Fatalf("expected fresh window after expiry, got %v", err)
	}
}

func TestRejectDuplicatePolicy(t *testing.T) {
	f := newFixture(t, battlevoting.InMemoryOptions{DuplicatePolicy: entities.DuplicatePolicyReject})

	if _, err := f.vote("contest-open", "device-1", "A", "203.0.113.1"); err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	if _, err := f.vote("contest-open", "device-1", "B", "203.0.113.1"); !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
	tally, err := f.module.Handler.GetTallyHandler(context.Background(), "contest-open")
	if err != nil {
		t.Fatalf("get tally failed: %v", err)
	}
	if tally.A != 1 || tally.B != 0 {
		t.Fatalf("expected original ballot to stand, got %+v", tally)
	}
}

func TestLiveViewerReceivesUpdatesAndResyncsOnReconnect(t *testing.T) {
	f := newFixture(t, battlevoting.InMemoryOptions{})

	v := attach(f, "contest-open")
	if event := v.next(t); event.Kind != livefeed.EventSnapshot || event.Tally.Total() != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", event)
	}
	if _, err := f.vote("contest-open", "device-1", "A", "203.0.113.1"); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	update := v.next(t)
	if update.Kind != livefeed.EventUpdate || update.Tally.Count(entities.ChoiceA) != 1 {
		t.Fatalf("expected update {A:1}, got %+v", update)
	}
	v.detach(t)
	if n := f.module.Hub.SubscriberCount("contest-open"); n != 0 {
		t.Fatalf("expected subscription released on detach, %d remain", n)
	}

	// votes missed while disconnected
	for i, choice := range []string{"B", "B", "REPLICA"} {
		if _, err := f.vote("contest-open", fmt.Sprintf("device-%d", i+2), choice, "203.0.113.1"); err != nil {
			t.Fatalf("vote %d failed: %v", i, err)
		}
	}

	again := attach(f, "contest-open")
	defer again.detach(t)
	snapshot := again.next(t)
	if snapshot.Kind != livefeed.EventSnapshot {
		t.Fatalf("expected snapshot on reconnect, got %s", snapshot.Kind)
	}
	if snapshot.Tally.Count(entities.ChoiceA) != 1 ||
		snapshot.Tally.Count(entities.ChoiceB) != 2 ||
		snapshot.Tally.Count(entities.ChoiceReplica) != 1 {
		t.Fatalf("expected current tally on reconnect, got %v", snapshot.Tally.Counts)
	}
}

func TestLiveFeedRejectsUnknownContest(t *testing.T) {
	f := newFixture(t, battlevoting.InMemoryOptions{})
	err := f.module.Handler.StreamTallyHandler(context.Background(), "contest-missing", func(livefeed.Event) error {
		t.Fatalf("no event expected for unknown contest")
		return nil
	})
	if !errors.Is(err, domainerrors.ErrContestNotFound) {
		t.Fatalf("expected ErrContestNotFound, got %v", err)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, entities.TallySnapshot) error {
	return errors.New("broker down")
}

func TestPublishFailureDoesNotFailVote(t *testing.T) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	store := memory.NewStore([]entities.Contest{
		{ContestID: "contest-open", EventID: "event-1", Status: entities.ContestStatusOpen},
	})
	module := battlevoting.NewModule(battlevoting.Dependencies{
		Contests:    store,
		Credentials: credential.Verifier{PublicKey: public},
		Ledger:      store,
		TallyCache:  memory.NewTallyCache(store),
		RateLimiter: memory.NewRateLimiter(5, time.Minute, store),
		Publisher:   failingPublisher{},
		Clock:       store,
		IDGen:       store,
	})

	resp, err := module.Handler.SubmitVoteHandler(context.Background(), mintToken(t, private, "event-1"), "203.0.113.1", httptransport.SubmitVoteRequest{
		ContestID:         "contest-open",
		DeviceFingerprint: "device-1",
		Choice:            "B",
	})
	if err != nil {
		t.Fatalf("expected success despite publish failure, got %v", err)
	}
	requireTally(t, resp.Tally, 0, 1)
}
