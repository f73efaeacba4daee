package httpadapter

import (
	"context"
	"log/slog"

	"quadvote/contexts/governance/quadratic-voting/application/commands"
	"quadvote/contexts/governance/quadratic-voting/application/queries"
	"quadvote/contexts/governance/quadratic-voting/domain/entities"
	httptransport "quadvote/contexts/governance/quadratic-voting/transport/http"
)

type Handler struct {
	Votes   commands.VoteUseCase
	Results queries.ResultsUseCase
	Logger  *slog.Logger
}

func (h Handler) CreateVoteHandler(
	ctx context.Context,
	creatorID string,
	req httptransport.CreateVoteRequest,
) (httptransport.VoteResponse, error) {
	vote, err := h.Votes.CreateVote(ctx, commands.CreateVoteCommand{
		WorkspaceID:     req.WorkspaceID,
		ChannelID:       req.ChannelID,
		CreatorID:       creatorID,
		Title:           req.Title,
		Description:     req.Description,
		Options:         req.Options,
		CreditsPerVoter: req.CreditsPerVoter,
		AllowedVoters:   req.AllowedVoters,
		ScheduledEndAt:  req.ScheduledEndAt,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return mapVote(vote), nil
}

func (h Handler) GetVoteHandler(ctx context.Context, voteID string) (httptransport.VoteResponse, error) {
	vote, err := h.Results.GetVote(ctx, voteID)
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return mapVote(vote), nil
}

func (h Handler) RecordResponseHandler(
	ctx context.Context,
	voteID string,
	voterID string,
	req httptransport.RecordResponseRequest,
) (httptransport.RecordResponseResponse, error) {
	allocations := make([]entities.Allocation, 0, len(req.Allocations))
	for _, allocation := range req.Allocations {
		allocations = append(allocations, entities.Allocation{
			OptionIndex: allocation.OptionIndex,
			Credits:     allocation.Credits,
		})
	}
	result, err := h.Votes.RecordResponse(ctx, commands.RecordResponseCommand{
		VoteID:      voteID,
		VoterID:     voterID,
		Allocations: allocations,
	})
	if err != nil {
		return httptransport.RecordResponseResponse{}, err
	}
	return httptransport.RecordResponseResponse{
		VoteID:    result.VoteID,
		VoterID:   result.VoterID,
		Spent:     result.Spent,
		Remaining: result.Remaining,
	}, nil
}

func (h Handler) EndVoteHandler(ctx context.Context, voteID string, requesterID string) (httptransport.VoteResponse, error) {
	vote, err := h.Votes.EndVote(ctx, commands.EndVoteCommand{
		VoteID:      voteID,
		RequesterID: requesterID,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return mapVote(vote), nil
}

func (h Handler) DeleteVoteHandler(ctx context.Context, voteID string, requesterID string) error {
	return h.Votes.DeleteVote(ctx, commands.DeleteVoteCommand{
		VoteID:      voteID,
		RequesterID: requesterID,
	})
}

func (h Handler) ResultsHandler(ctx context.Context, voteID string) (httptransport.ResultsResponse, error) {
	results, err := h.Results.ComputeResults(ctx, voteID)
	if err != nil {
		return httptransport.ResultsResponse{}, err
	}
	options := make([]httptransport.OptionResultDTO, 0, len(results.Options))
	for _, option := range results.Options {
		options = append(options, httptransport.OptionResultDTO{
			OptionIndex:  option.OptionIndex,
			Label:        option.Label,
			TotalCredits: option.TotalCredits,
			Votes:        option.Votes,
			Percentage:   option.Percentage,
		})
	}
	return httptransport.ResultsResponse{
		VoteID:  results.Vote.VoteID,
		Title:   results.Vote.Title,
		Ended:   results.Vote.Ended,
		Options: options,
	}, nil
}

func mapVote(vote entities.Vote) httptransport.VoteResponse {
	return httptransport.VoteResponse{
		VoteID:          vote.VoteID,
		WorkspaceID:     vote.WorkspaceID,
		ChannelID:       vote.ChannelID,
		CreatorID:       vote.CreatorID,
		Title:           vote.Title,
		Description:     vote.Description,
		Options:         vote.Options,
		CreditsPerVoter: vote.CreditsPerVoter,
		AllowedVoters:   vote.AllowedVoters,
		Ended:           vote.Ended,
		ScheduledEndAt:  vote.ScheduledEndAt,
		EndedAt:         vote.EndedAt,
		CreatedAt:       vote.CreatedAt,
	}
}
