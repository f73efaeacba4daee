package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "quadvote/contexts/governance/quadratic-voting/application"
	"quadvote/contexts/governance/quadratic-voting/application/commands"
	domainerrors "quadvote/contexts/governance/quadratic-voting/domain/errors"
	"quadvote/contexts/governance/quadratic-voting/ports"
)

// ScheduledCloser ends open votes whose scheduled end time has passed. The
// conditional ended update makes the pass safe to run from several worker
// replicas: a vote closed by a racing replica is simply skipped.
type ScheduledCloser struct {
	Store     ports.VoteStore
	Votes     commands.VoteUseCase
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce closes a bounded batch of due votes.
func (c ScheduledCloser) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	limit := c.BatchSize
	if limit <= 0 {
		limit = 50
	}
	now := time.Now().UTC()
	if c.Clock != nil {
		now = c.Clock.Now().UTC()
	}

	due, err := c.Store.ListDueScheduledVotes(ctx, now, limit)
	if err != nil {
		logger.Error("scheduled close listing failed",
			"event", "quadvote_scheduled_close_list_failed",
			"module", "governance/quadratic-voting",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	closed := 0
	for _, vote := range due {
		// The scheduled transition acts on behalf of the creator.
		_, err := c.Votes.EndVote(ctx, commands.EndVoteCommand{
			VoteID:      vote.VoteID,
			RequesterID: vote.CreatorID,
		})
		if err != nil {
			if errors.Is(err, domainerrors.ErrVoteEnded) {
				continue
			}
			logger.Error("scheduled close failed",
				"event", "quadvote_scheduled_close_failed",
				"module", "governance/quadratic-voting",
				"layer", "worker",
				"vote_id", vote.VoteID,
				"error", err.Error(),
			)
			return err
		}
		closed++
	}

	if closed > 0 {
		logger.Info("scheduled close cycle completed",
			"event", "quadvote_scheduled_close_completed",
			"module", "governance/quadratic-voting",
			"layer", "worker",
			"closed_count", closed,
		)
	}
	return nil
}
