package quadraticvoting_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	quadraticvoting "quadvote/contexts/governance/quadratic-voting"
	"quadvote/contexts/governance/quadratic-voting/domain/entities"
	domainerrors "quadvote/contexts/governance/quadratic-voting/domain/errors"
	httptransport "quadvote/contexts/governance/quadratic-voting/transport/http"
)

func createVote(t *testing.T, module quadraticvoting.Module, req httptransport.CreateVoteRequest) httptransport.VoteResponse {
	t.Helper()
	if req.WorkspaceID == "" {
		req.WorkspaceID = "workspace-1"
	}
	if req.ChannelID == "" {
		req.ChannelID = "channel-1"
	}
	vote, err := module.Handler.CreateVoteHandler(context.Background(), "creator-1", req)
	if err != nil {
		t.Fatalf("create vote failed: %v", err)
	}
	return vote
}

func TestRecordResponseSpendsWithinBudget(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:   "Team lunch venue",
		Options: []string{"Tacos", "Ramen", "Pizza"},
	})
	if vote.CreditsPerVoter != entities.DefaultCreditsPerVoter {
		t.Fatalf("expected default budget, got %d", vote.CreditsPerVoter)
	}

	resp, err := module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "voter-1", httptransport.RecordResponseRequest{
		Allocations: []httptransport.AllocationDTO{
			{OptionIndex: 0, Credits: 49},
			{OptionIndex: 2, Credits: 36},
		},
	})
	if err != nil {
		t.Fatalf("record response failed: %v", err)
	}
	if resp.Spent != 85 || resp.Remaining != 15 {
		t.Fatalf("expected spent 85 remaining 15, got %d/%d", resp.Spent, resp.Remaining)
	}
}

func TestRecordResponseBudgetExceededReportsDetails(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:   "Quarter focus",
		Options: []string{"Reliability", "Velocity"},
	})

	_, err := module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "voter-1", httptransport.RecordResponseRequest{
		Allocations: []httptransport.AllocationDTO{
			{OptionIndex: 0, Credits: 70},
			{OptionIndex: 1, Credits: 50},
		},
	})
	if !errors.Is(err, domainerrors.ErrBudgetExceeded) {
		t.Fatalf("expected budget exceeded, got %v", err)
	}
	var budgetErr *domainerrors.BudgetExceededError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("expected budget error details, got %v", err)
	}
	if budgetErr.Attempted != 120 || budgetErr.Available != 100 {
		t.Fatalf("expected attempted 120 available 100, got %d/%d", budgetErr.Attempted, budgetErr.Available)
	}
}

func TestRecordResponseResubmissionReplacesNotAccumulates(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:   "Offsite city",
		Options: []string{"Lisbon", "Prague"},
	})

	submit := func() (httptransport.RecordResponseResponse, error) {
		return module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "voter-1", httptransport.RecordResponseRequest{
			Allocations: []httptransport.AllocationDTO{
				{OptionIndex: 0, Credits: 60},
				{OptionIndex: 1, Credits: 40},
			},
		})
	}
	if _, err := submit(); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	resp, err := submit()
	if err != nil {
		t.Fatalf("resubmission failed: %v", err)
	}
	if resp.Spent != 100 || resp.Remaining != 0 {
		t.Fatalf("resubmission should replace commitments, got spent %d remaining %d", resp.Spent, resp.Remaining)
	}
}

func TestRecordResponseFailureLeavesPriorStateIntact(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:   "Logo direction",
		Options: []string{"Minimal", "Playful"},
	})

	if _, err := module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "voter-1", httptransport.RecordResponseRequest{
		Allocations: []httptransport.AllocationDTO{
			{OptionIndex: 0, Credits: 40},
			{OptionIndex: 1, Credits: 40},
		},
	}); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}

	_, err := module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "voter-1", httptransport.RecordResponseRequest{
		Allocations: []httptransport.AllocationDTO{
			{OptionIndex: 0, Credits: 50},
			{OptionIndex: 1, Credits: 60},
		},
	})
	if !errors.Is(err, domainerrors.ErrBudgetExceeded) {
		t.Fatalf("expected budget exceeded, got %v", err)
	}

	responses, err := module.Store.ListResponses(context.Background(), vote.VoteID, "voter-1")
	if err != nil {
		t.Fatalf("list responses failed: %v", err)
	}
	total := 0
	for _, response := range responses {
		total += response.Credits
	}
	if total != 80 {
		t.Fatalf("failed submission must not touch stored state, got total %d", total)
	}
}

func TestRecordResponsePartialUpdateRetainsOtherOptions(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:   "Roadmap themes",
		Options: []string{"Search", "Billing", "Mobile"},
	})

	if _, err := module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "voter-1", httptransport.RecordResponseRequest{
		Allocations: []httptransport.AllocationDTO{
			{OptionIndex: 0, Credits: 30},
			{OptionIndex: 1, Credits: 30},
		},
	}); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}

	// Only option 2 is updated; options 0 and 1 keep their stored credits.
	resp, err := module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "voter-1", httptransport.RecordResponseRequest{
		Allocations: []httptransport.AllocationDTO{
			{OptionIndex: 2, Credits: 40},
		},
	})
	if err != nil {
		t.Fatalf("partial update failed: %v", err)
	}
	if resp.Spent != 100 {
		t.Fatalf("expected spent 100 after partial update, got %d", resp.Spent)
	}

	_, err = module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "voter-1", httptransport.RecordResponseRequest{
		Allocations: []httptransport.AllocationDTO{
			{OptionIndex: 2, Credits: 41},
		},
	})
	if !errors.Is(err, domainerrors.ErrBudgetExceeded) {
		t.Fatalf("retained credits must count against the budget, got %v", err)
	}
}

func TestConcurrentResponsesNeverExceedBudget(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	options := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:   "Concurrent spend",
		Options: options,
	})

	var successes atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < len(options); i++ {
		wg.Add(1)
		go func(optionIndex int) {
			defer wg.Done()
			_, err := module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "voter-1", httptransport.RecordResponseRequest{
				Allocations: []httptransport.AllocationDTO{
					{OptionIndex: optionIndex, Credits: 25},
				},
			})
			if err == nil {
				successes.Add(1)
			} else if !errors.Is(err, domainerrors.ErrBudgetExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	responses, err := module.Store.ListResponses(context.Background(), vote.VoteID, "voter-1")
	if err != nil {
		t.Fatalf("list responses failed: %v", err)
	}
	total := 0
	for _, response := range responses {
		total += response.Credits
	}
	if total > entities.DefaultCreditsPerVoter {
		t.Fatalf("budget invariant violated: %d credits stored", total)
	}
	if got := int(successes.Load()); got != 4 {
		t.Fatalf("expected exactly 4 admitted submissions of 25 credits, got %d", got)
	}
}

func TestRecordResponseValidation(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:   "Validation",
		Options: []string{"x", "y"},
	})

	cases := []struct {
		name        string
		allocations []httptransport.AllocationDTO
		want        error
	}{
		{"empty", nil, domainerrors.ErrValidation},
		{"negative credits", []httptransport.AllocationDTO{{OptionIndex: 0, Credits: -1}}, domainerrors.ErrValidation},
		{"duplicate index", []httptransport.AllocationDTO{{OptionIndex: 0, Credits: 1}, {OptionIndex: 0, Credits: 2}}, domainerrors.ErrValidation},
		{"index out of range", []httptransport.AllocationDTO{{OptionIndex: 2, Credits: 1}}, domainerrors.ErrInvalidOption},
		{"negative index", []httptransport.AllocationDTO{{OptionIndex: -1, Credits: 1}}, domainerrors.ErrInvalidOption},
	}
	for _, tc := range cases {
		_, err := module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "voter-1", httptransport.RecordResponseRequest{
			Allocations: tc.allocations,
		})
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestAllowedVotersGateResponses(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:         "Restricted vote",
		Options:       []string{"yes", "no"},
		AllowedVoters: []string{"alice", "carol"},
	})

	_, err := module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "bob", httptransport.RecordResponseRequest{
		Allocations: []httptransport.AllocationDTO{{OptionIndex: 0, Credits: 10}},
	})
	if !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bob, got %v", err)
	}

	if _, err := module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "alice", httptransport.RecordResponseRequest{
		Allocations: []httptransport.AllocationDTO{{OptionIndex: 0, Credits: 10}},
	}); err != nil {
		t.Fatalf("expected alice to be admitted, got %v", err)
	}
}

func TestEndVoteLifecycle(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:   "Lifecycle",
		Options: []string{"keep", "drop"},
	})

	if _, err := module.Handler.EndVoteHandler(context.Background(), vote.VoteID, "stranger"); !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("only the creator may end a vote, got %v", err)
	}

	ended, err := module.Handler.EndVoteHandler(context.Background(), vote.VoteID, "creator-1")
	if err != nil {
		t.Fatalf("end vote failed: %v", err)
	}
	if !ended.Ended || ended.EndedAt == nil {
		t.Fatalf("expected ended vote with timestamp, got %+v", ended)
	}

	if _, err := module.Handler.EndVoteHandler(context.Background(), vote.VoteID, "creator-1"); !errors.Is(err, domainerrors.ErrVoteEnded) {
		t.Fatalf("second end must report already ended, got %v", err)
	}
	if _, err := module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "voter-1", httptransport.RecordResponseRequest{
		Allocations: []httptransport.AllocationDTO{{OptionIndex: 0, Credits: 1}},
	}); !errors.Is(err, domainerrors.ErrVoteEnded) {
		t.Fatalf("ended vote must reject responses, got %v", err)
	}
}

func TestStoreRejectsAllocationsAfterVoteEnds(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:   "Straggler write",
		Options: []string{"a", "b"},
	})

	// A submission's ended pre-check can go stale while an end transition
	// commits. The store must re-check the flag inside its own transaction, so
	// a write arriving after the flip is rejected even when the caller already
	// passed validation.
	updated, err := module.Store.MarkVoteEnded(context.Background(), vote.VoteID, time.Now().UTC())
	if err != nil || !updated {
		t.Fatalf("mark ended failed: updated=%v err=%v", updated, err)
	}

	_, err = module.Store.RecordAllocations(context.Background(), vote.VoteID, "voter-1",
		[]entities.Allocation{{OptionIndex: 0, Credits: 10}},
		entities.DefaultCreditsPerVoter, time.Now().UTC())
	if !errors.Is(err, domainerrors.ErrVoteEnded) {
		t.Fatalf("expected store-level ended rejection, got %v", err)
	}

	responses, err := module.Store.ListResponses(context.Background(), vote.VoteID, "")
	if err != nil {
		t.Fatalf("list responses failed: %v", err)
	}
	if len(responses) != 0 {
		t.Fatalf("rejected write must leave no rows, got %d", len(responses))
	}

	_, err = module.Store.RecordAllocations(context.Background(), "missing", "voter-1",
		[]entities.Allocation{{OptionIndex: 0, Credits: 10}},
		entities.DefaultCreditsPerVoter, time.Now().UTC())
	if !errors.Is(err, domainerrors.ErrVoteNotFound) {
		t.Fatalf("expected not found for unknown vote, got %v", err)
	}
}

func TestConcurrentEndVoteExactlyOneWins(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:   "Race to end",
		Options: []string{"a", "b"},
	})

	const attempts = 8
	var successes atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := module.Handler.EndVoteHandler(context.Background(), vote.VoteID, "creator-1")
			if err == nil {
				successes.Add(1)
			} else if !errors.Is(err, domainerrors.ErrVoteEnded) {
				t.Errorf("unexpected end error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := int(successes.Load()); got != 1 {
		t.Fatalf("expected exactly one successful end transition, got %d", got)
	}
}

func TestEndVoteUsesScheduledEndAsTimestamp(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	scheduled := time.Now().UTC().Add(-30 * time.Minute).Truncate(time.Second)
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:          "Scheduled",
		Options:        []string{"a", "b"},
		ScheduledEndAt: &scheduled,
	})

	ended, err := module.Handler.EndVoteHandler(context.Background(), vote.VoteID, "creator-1")
	if err != nil {
		t.Fatalf("end vote failed: %v", err)
	}
	if ended.EndedAt == nil || !ended.EndedAt.Equal(scheduled) {
		t.Fatalf("expected ended_at %v, got %v", scheduled, ended.EndedAt)
	}
}

func TestResultsQuadraticTally(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:   "Tally",
		Options: []string{"first", "second"},
	})

	if _, err := module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "voter-1", httptransport.RecordResponseRequest{
		Allocations: []httptransport.AllocationDTO{
			{OptionIndex: 0, Credits: 75},
			{OptionIndex: 1, Credits: 25},
		},
	}); err != nil {
		t.Fatalf("record response failed: %v", err)
	}

	results, err := module.Handler.ResultsHandler(context.Background(), vote.VoteID)
	if err != nil {
		t.Fatalf("results failed: %v", err)
	}
	if len(results.Options) != 2 {
		t.Fatalf("expected 2 option rows, got %d", len(results.Options))
	}
	first, second := results.Options[0], results.Options[1]
	if first.Label != "first" || second.Label != "second" {
		t.Fatalf("results must keep original option order, got %q then %q", first.Label, second.Label)
	}
	// sqrt(75) = 8.660... rounds to one decimal; sqrt(25) = 5.0.
	if first.Votes != 8.7 || second.Votes != 5.0 {
		t.Fatalf("expected votes 8.7 and 5.0, got %v and %v", first.Votes, second.Votes)
	}
	if first.Percentage != 64 || second.Percentage != 36 {
		t.Fatalf("expected percentages 64/36, got %d/%d", first.Percentage, second.Percentage)
	}
}

func TestResultsWithNoResponses(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:   "Empty tally",
		Options: []string{"a", "b", "c"},
	})

	results, err := module.Handler.ResultsHandler(context.Background(), vote.VoteID)
	if err != nil {
		t.Fatalf("results failed: %v", err)
	}
	for _, option := range results.Options {
		if option.TotalCredits != 0 || option.Votes != 0 || option.Percentage != 0 {
			t.Fatalf("empty vote must tally to zeros, got %+v", option)
		}
	}
}

func TestCreateVoteValidation(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)

	cases := []struct {
		name string
		req  httptransport.CreateVoteRequest
	}{
		{"missing title", httptransport.CreateVoteRequest{WorkspaceID: "w", ChannelID: "c", Options: []string{"a", "b"}}},
		{"single option", httptransport.CreateVoteRequest{WorkspaceID: "w", ChannelID: "c", Title: "t", Options: []string{"a"}}},
		{"blank options collapse", httptransport.CreateVoteRequest{WorkspaceID: "w", ChannelID: "c", Title: "t", Options: []string{"a", "  "}}},
		{"negative budget", httptransport.CreateVoteRequest{WorkspaceID: "w", ChannelID: "c", Title: "t", Options: []string{"a", "b"}, CreditsPerVoter: -5}},
	}
	for _, tc := range cases {
		if _, err := module.Handler.CreateVoteHandler(context.Background(), "creator-1", tc.req); !errors.Is(err, domainerrors.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestDeleteVoteCascades(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	vote := createVote(t, module, httptransport.CreateVoteRequest{
		Title:   "Disposable",
		Options: []string{"a", "b"},
	})
	if _, err := module.Handler.RecordResponseHandler(context.Background(), vote.VoteID, "voter-1", httptransport.RecordResponseRequest{
		Allocations: []httptransport.AllocationDTO{{OptionIndex: 0, Credits: 9}},
	}); err != nil {
		t.Fatalf("record response failed: %v", err)
	}

	if err := module.Handler.DeleteVoteHandler(context.Background(), vote.VoteID, "stranger"); !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("only the creator may delete, got %v", err)
	}
	if err := module.Handler.DeleteVoteHandler(context.Background(), vote.VoteID, "creator-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := module.Handler.GetVoteHandler(context.Background(), vote.VoteID); !errors.Is(err, domainerrors.ErrVoteNotFound) {
		t.Fatalf("expected vote gone, got %v", err)
	}
	responses, err := module.Store.ListResponses(context.Background(), vote.VoteID, "")
	if err != nil {
		t.Fatalf("list responses failed: %v", err)
	}
	if len(responses) != 0 {
		t.Fatalf("expected responses removed with the vote, got %d", len(responses))
	}
}

func TestUnknownVoteReturnsNotFound(t *testing.T) {
	module := quadraticvoting.NewInMemoryModule(nil, nil)

	if _, err := module.Handler.GetVoteHandler(context.Background(), "missing"); !errors.Is(err, domainerrors.ErrVoteNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := module.Handler.ResultsHandler(context.Background(), "missing"); !errors.Is(err, domainerrors.ErrVoteNotFound) {
		t.Fatalf("expected not found from results, got %v", err)
	}
	if _, err := module.Handler.RecordResponseHandler(context.Background(), "missing", "voter-1", httptransport.RecordResponseRequest{
		Allocations: []httptransport.AllocationDTO{{OptionIndex: 0, Credits: 1}},
	}); !errors.Is(err, domainerrors.ErrVoteNotFound) {
		t.Fatalf("expected not found from responses, got %v", err)
	}
}
