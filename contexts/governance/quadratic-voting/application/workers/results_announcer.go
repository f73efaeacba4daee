package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	application "quadvote/contexts/governance/quadratic-voting/application"
	"quadvote/contexts/governance/quadratic-voting/application/queries"
	"quadvote/contexts/governance/quadratic-voting/ports"
)

const (
	voteEndedTopic        = "vote.ended"
	defaultAnnouncerGroup = "quadvote-results-cg"
)

// ResultsAnnouncer consumes vote.ended events, computes the final tally and
// appends a vote.results_announced event for the chat surface to render. The
// announcement goes through the outbox like every other event, so delivery
// survives a crash between consume and publish.
type ResultsAnnouncer struct {
	Subscriber    ports.EventSubscriber
	Results       queries.ResultsUseCase
	Outbox        ports.OutboxWriter
	Clock         ports.Clock
	IDGen         ports.IDGenerator
	ConsumerGroup string
	Logger        *slog.Logger
}

type voteEndedPayload struct {
	VoteID string `json:"vote_id"`
}

func (a ResultsAnnouncer) Start(ctx context.Context) error {
	group := a.ConsumerGroup
	if group == "" {
		group = defaultAnnouncerGroup
	}
	return a.Subscriber.Subscribe(ctx, voteEndedTopic, group, a.handleVoteEnded)
}

func (a ResultsAnnouncer) handleVoteEnded(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(a.Logger)

	var payload voteEndedPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return fmt.Errorf("decode vote.ended payload: %w", err)
	}
	if payload.VoteID == "" {
		return fmt.Errorf("vote.ended event missing vote_id")
	}

	results, err := a.Results.ComputeResults(ctx, payload.VoteID)
	if err != nil {
		logger.Error("results announcement tally failed",
			"event", "quadvote_announce_tally_failed",
			"module", "governance/quadratic-voting",
			"layer", "worker",
			"event_id", event.EventID,
			"vote_id", payload.VoteID,
			"error", err.Error(),
		)
		return err
	}

	now := time.Now().UTC()
	if a.Clock != nil {
		now = a.Clock.Now().UTC()
	}
	eventID, err := a.IDGen.NewID(ctx)
	if err != nil {
		return err
	}

	options := make([]map[string]any, 0, len(results.Options))
	for _, option := range results.Options {
		options = append(options, map[string]any{
			"option_index":  option.OptionIndex,
			"label":         option.Label,
			"total_credits": option.TotalCredits,
			"votes":         option.Votes,
			"percentage":    option.Percentage,
		})
	}
	data, err := json.Marshal(map[string]any{
		"vote_id":    results.Vote.VoteID,
		"channel_id": results.Vote.ChannelID,
		"title":      results.Vote.Title,
		"options":    options,
	})
	if err != nil {
		return err
	}

	if err := a.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          eventID,
		EventType:        "vote.results_announced",
		OccurredAt:       now,
		SourceService:    "quadratic-voting",
		TraceID:          event.TraceID,
		SchemaVersion:    1,
		PartitionKeyPath: "vote_id",
		PartitionKey:     results.Vote.VoteID,
		Data:             data,
	}); err != nil {
		logger.Error("results announcement append failed",
			"event", "quadvote_announce_append_failed",
			"module", "governance/quadratic-voting",
			"layer", "worker",
			"vote_id", payload.VoteID,
			"error", err.Error(),
		)
		return err
	}

	logger.Info("vote results announced",
		"event", "quadvote_results_announced",
		"module", "governance/quadratic-voting",
		"layer", "worker",
		"vote_id", results.Vote.VoteID,
		"option_count", len(results.Options),
	)
	return nil
}
