package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "quadvote/contexts/governance/quadratic-voting/application"
	"quadvote/contexts/governance/quadratic-voting/domain/entities"
	domainerrors "quadvote/contexts/governance/quadratic-voting/domain/errors"
	"quadvote/contexts/governance/quadratic-voting/ports"
)

// CreateVoteCommand is the write-model input for vote creation.
type CreateVoteCommand struct {
	WorkspaceID     string
	ChannelID       string
	CreatorID       string
	Title           string
	Description     string
	Options         []string
	CreditsPerVoter int
	AllowedVoters   []string
	ScheduledEndAt  *time.Time
}

// RecordResponseCommand replaces a voter's credit commitments for the listed
// options. Options absent from Allocations keep their stored credits.
type RecordResponseCommand struct {
	VoteID      string
	VoterID     string
	Allocations []entities.Allocation
}

// RecordResponseResult reports the voter's budget position after the write.
type RecordResponseResult struct {
	VoteID    string
	VoterID   string
	Spent     int
	Remaining int
}

// EndVoteCommand requests the open -> ended transition.
type EndVoteCommand struct {
	VoteID      string
	RequesterID string
}

// DeleteVoteCommand removes a vote and, by cascade, all of its responses.
type DeleteVoteCommand struct {
	VoteID      string
	RequesterID string
}

// VoteUseCase orchestrates vote lifecycle and credit accounting. The budget
// invariant itself is enforced inside VoteStore.RecordAllocations; this layer
// owns every precondition that can be checked outside the transaction.
type VoteUseCase struct {
	Store  ports.VoteStore
	Outbox ports.OutboxWriter
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

// CreateVote validates the vote spec and persists it. A zero budget falls
// back to the default; a negative budget is the caller's error.
func (uc VoteUseCase) CreateVote(ctx context.Context, cmd CreateVoteCommand) (entities.Vote, error) {
	logger := application.ResolveLogger(uc.Logger)

	title := strings.TrimSpace(cmd.Title)
	options := normalizeOptions(cmd.Options)
	if title == "" || len(options) < 2 || cmd.CreditsPerVoter < 0 {
		logger.Warn("vote create validation failed",
			"event", "quadvote_create_validation_failed",
			"module", "governance/quadratic-voting",
			"layer", "application",
			"creator_id", strings.TrimSpace(cmd.CreatorID),
			"option_count", len(options),
		)
		return entities.Vote{}, domainerrors.ErrValidation
	}
	if strings.TrimSpace(cmd.WorkspaceID) == "" ||
		strings.TrimSpace(cmd.ChannelID) == "" ||
		strings.TrimSpace(cmd.CreatorID) == "" {
		return entities.Vote{}, domainerrors.ErrValidation
	}

	budget := cmd.CreditsPerVoter
	if budget == 0 {
		budget = entities.DefaultCreditsPerVoter
	}

	now := uc.now()
	voteID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Vote{}, err
	}

	vote := entities.Vote{
		VoteID:          voteID,
		WorkspaceID:     strings.TrimSpace(cmd.WorkspaceID),
		ChannelID:       strings.TrimSpace(cmd.ChannelID),
		CreatorID:       strings.TrimSpace(cmd.CreatorID),
		Title:           title,
		Description:     strings.TrimSpace(cmd.Description),
		Options:         options,
		CreditsPerVoter: budget,
		AllowedVoters:   normalizeVoters(cmd.AllowedVoters),
		ScheduledEndAt:  normalizeOptionalTime(cmd.ScheduledEndAt),
		CreatedAt:       now,
	}
	if err := uc.Store.CreateVote(ctx, vote); err != nil {
		return entities.Vote{}, err
	}
	if err := uc.appendVoteEvent(ctx, "vote.created", vote.VoteID, now, map[string]any{
		"workspace_id": vote.WorkspaceID,
		"channel_id":   vote.ChannelID,
		"creator_id":   vote.CreatorID,
		"title":        vote.Title,
		"option_count": len(vote.Options),
	}); err != nil {
		return entities.Vote{}, err
	}

	logger.Info("vote created",
		"event", "quadvote_created",
		"module", "governance/quadratic-voting",
		"layer", "application",
		"vote_id", vote.VoteID,
		"workspace_id", vote.WorkspaceID,
		"creator_id", vote.CreatorID,
		"credits_per_voter", vote.CreditsPerVoter,
	)
	return vote, nil
}

// RecordResponse applies one voter's submission against the budget. The
// submission is all-or-nothing: if the prospective total would exceed the
// budget, no row is written and the stored state is untouched.
func (uc VoteUseCase) RecordResponse(ctx context.Context, cmd RecordResponseCommand) (RecordResponseResult, error) {
	logger := application.ResolveLogger(uc.Logger)

	voteID := strings.TrimSpace(cmd.VoteID)
	voterID := strings.TrimSpace(cmd.VoterID)
	if voteID == "" || voterID == "" || len(cmd.Allocations) == 0 {
		return RecordResponseResult{}, domainerrors.ErrValidation
	}
	seen := make(map[int]struct{}, len(cmd.Allocations))
	for _, allocation := range cmd.Allocations {
		if allocation.Credits < 0 {
			return RecordResponseResult{}, domainerrors.ErrValidation
		}
		// Duplicate indexes would make the prospective total ambiguous.
		if _, dup := seen[allocation.OptionIndex]; dup {
			return RecordResponseResult{}, domainerrors.ErrValidation
		}
		seen[allocation.OptionIndex] = struct{}{}
	}

	vote, err := uc.Store.GetVote(ctx, voteID)
	if err != nil {
		return RecordResponseResult{}, err
	}
	if vote.Ended {
		return RecordResponseResult{}, domainerrors.ErrVoteEnded
	}
	if !vote.VoterAllowed(voterID) {
		logger.Warn("vote response rejected for unauthorized voter",
			"event", "quadvote_response_unauthorized",
			"module", "governance/quadratic-voting",
			"layer", "application",
			"vote_id", voteID,
			"voter_id", voterID,
		)
		return RecordResponseResult{}, domainerrors.ErrUnauthorized
	}
	for _, allocation := range cmd.Allocations {
		if !vote.OptionInRange(allocation.OptionIndex) {
			return RecordResponseResult{}, domainerrors.ErrInvalidOption
		}
	}

	now := uc.now()
	spent, err := uc.Store.RecordAllocations(ctx, voteID, voterID, cmd.Allocations, vote.CreditsPerVoter, now)
	if err != nil {
		return RecordResponseResult{}, err
	}

	if err := uc.appendVoteEvent(ctx, "vote.response_recorded", voteID, now, map[string]any{
		"voter_id":   voterID,
		"spent":      spent,
		"remaining":  vote.CreditsPerVoter - spent,
		"option_ids": allocationIndexes(cmd.Allocations),
	}); err != nil {
		return RecordResponseResult{}, err
	}

	logger.Info("vote response recorded",
		"event", "quadvote_response_recorded",
		"module", "governance/quadratic-voting",
		"layer", "application",
		"vote_id", voteID,
		"voter_id", voterID,
		"spent", spent,
		"remaining", vote.CreditsPerVoter-spent,
	)
	return RecordResponseResult{
		VoteID:    voteID,
		VoterID:   voterID,
		Spent:     spent,
		Remaining: vote.CreditsPerVoter - spent,
	}, nil
}

// EndVote performs the terminal open -> ended transition. Only the creator
// may end a vote, and the transition is a conditional update so exactly one
// of two concurrent calls succeeds; the loser gets ErrVoteEnded.
func (uc VoteUseCase) EndVote(ctx context.Context, cmd EndVoteCommand) (entities.Vote, error) {
	logger := application.ResolveLogger(uc.Logger)

	voteID := strings.TrimSpace(cmd.VoteID)
	requesterID := strings.TrimSpace(cmd.RequesterID)
	if voteID == "" || requesterID == "" {
		return entities.Vote{}, domainerrors.ErrValidation
	}

	vote, err := uc.Store.GetVote(ctx, voteID)
	if err != nil {
		return entities.Vote{}, err
	}
	// The transport layer gates this too, but the engine never trusts the
	// caller alone.
	if vote.CreatorID != requesterID {
		logger.Warn("vote end rejected for non-creator",
			"event", "quadvote_end_unauthorized",
			"module", "governance/quadratic-voting",
			"layer", "application",
			"vote_id", voteID,
			"requester_id", requesterID,
		)
		return entities.Vote{}, domainerrors.ErrUnauthorized
	}
	if vote.Ended {
		return entities.Vote{}, domainerrors.ErrVoteEnded
	}

	now := uc.now()
	endedAt := now
	if vote.ScheduledEndAt != nil {
		endedAt = vote.ScheduledEndAt.UTC()
	}
	updated, err := uc.Store.MarkVoteEnded(ctx, voteID, endedAt)
	if err != nil {
		return entities.Vote{}, err
	}
	if !updated {
		return entities.Vote{}, domainerrors.ErrVoteEnded
	}

	vote.Ended = true
	vote.EndedAt = &endedAt
	if err := uc.appendVoteEvent(ctx, "vote.ended", voteID, now, map[string]any{
		"channel_id": vote.ChannelID,
		"ended_by":   requesterID,
		"ended_at":   endedAt.Format(time.RFC3339),
	}); err != nil {
		return entities.Vote{}, err
	}

	logger.Info("vote ended",
		"event", "quadvote_ended",
		"module", "governance/quadratic-voting",
		"layer", "application",
		"vote_id", voteID,
		"ended_by", requesterID,
	)
	return vote, nil
}

// DeleteVote removes the vote and all of its responses, e.g. when the owning
// workspace uninstalls the app.
func (uc VoteUseCase) DeleteVote(ctx context.Context, cmd DeleteVoteCommand) error {
	logger := application.ResolveLogger(uc.Logger)

	voteID := strings.TrimSpace(cmd.VoteID)
	requesterID := strings.TrimSpace(cmd.RequesterID)
	if voteID == "" || requesterID == "" {
		return domainerrors.ErrValidation
	}

	vote, err := uc.Store.GetVote(ctx, voteID)
	if err != nil {
		return err
	}
	if vote.CreatorID != requesterID {
		return domainerrors.ErrUnauthorized
	}
	if err := uc.Store.DeleteVoteAndResponses(ctx, voteID); err != nil {
		return err
	}

	logger.Info("vote deleted",
		"event", "quadvote_deleted",
		"module", "governance/quadratic-voting",
		"layer", "application",
		"vote_id", voteID,
		"requester_id", requesterID,
	)
	return nil
}

func (uc VoteUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc VoteUseCase) appendVoteEvent(
	ctx context.Context,
	eventType string,
	voteID string,
	occurredAt time.Time,
	data map[string]any,
) error {
	// Outbox is optional for pure read/test wiring, so nil is treated as no-op.
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"vote_id":     voteID,
		"occurred_at": occurredAt.Format(time.RFC3339),
	}
	for key, value := range data {
		payload[key] = value
	}
	envelope, err := newVoteEnvelope(eventID, eventType, voteID, occurredAt, payload)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}

func normalizeOptions(options []string) []string {
	items := make([]string, 0, len(options))
	for _, option := range options {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}
		items = append(items, option)
	}
	return items
}

func normalizeVoters(voters []string) []string {
	items := make([]string, 0, len(voters))
	for _, voter := range voters {
		voter = strings.TrimSpace(voter)
		if voter == "" {
			continue
		}
		items = append(items, voter)
	}
	return items
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}

func allocationIndexes(allocations []entities.Allocation) []int {
	indexes := make([]int, 0, len(allocations))
	for _, allocation := range allocations {
		indexes = append(indexes, allocation.OptionIndex)
	}
	return indexes
}
