package queries

import (
	"context"
	"math"
	"strings"

	"quadvote/contexts/governance/quadratic-voting/domain/entities"
	"quadvote/contexts/governance/quadratic-voting/ports"
)

// ResultsUseCase computes the ranked tally of a vote. It is a pure read over
// the latest committed responses; it never needs to join the write path's
// transaction.
type ResultsUseCase struct {
	Store ports.VoteStore
}

// VoteResults pairs the tally rows with the vote they belong to.
type VoteResults struct {
	Vote    entities.Vote
	Options []entities.OptionResult
}

// GetVote fetches a single vote for read surfaces.
func (uc ResultsUseCase) GetVote(ctx context.Context, voteID string) (entities.Vote, error) {
	return uc.Store.GetVote(ctx, strings.TrimSpace(voteID))
}

// ComputeResults sums credits per option, applies the quadratic transform
// (voting power = sqrt of credits, one decimal, half away from zero) and
// normalizes percentages over the summed voting powers. Rows come back in
// original option order; a vote with no credits cast tallies to all zeros.
func (uc ResultsUseCase) ComputeResults(ctx context.Context, voteID string) (VoteResults, error) {
	vote, err := uc.Store.GetVote(ctx, strings.TrimSpace(voteID))
	if err != nil {
		return VoteResults{}, err
	}
	responses, err := uc.Store.ListResponses(ctx, vote.VoteID, "")
	if err != nil {
		return VoteResults{}, err
	}

	totals := make([]int, len(vote.Options))
	for _, response := range responses {
		if response.OptionIndex < 0 || response.OptionIndex >= len(totals) {
			continue
		}
		totals[response.OptionIndex] += response.Credits
	}

	options := make([]entities.OptionResult, len(vote.Options))
	votesSum := 0.0
	for index, label := range vote.Options {
		votes := roundToTenth(math.Sqrt(float64(totals[index])))
		votesSum += votes
		options[index] = entities.OptionResult{
			OptionIndex:  index,
			Label:        label,
			TotalCredits: totals[index],
			Votes:        votes,
		}
	}
	if votesSum > 0 {
		for index := range options {
			options[index].Percentage = int(math.Round(options[index].Votes / votesSum * 100))
		}
	}

	return VoteResults{Vote: vote, Options: options}, nil
}

func roundToTenth(value float64) float64 {
	return math.Round(value*10) / 10
}
