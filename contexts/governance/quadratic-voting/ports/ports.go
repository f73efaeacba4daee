package ports

import (
	"context"
	"encoding/json"
	"time"

	"quadvote/contexts/governance/quadratic-voting/domain/entities"
)

// VoteStore is the persistence contract the accounting engine depends on.
// RecordAllocations is the single operation that must be atomic: the budget
// re-check and the row upserts run inside one transaction serialized per
// (vote, voter). Implementations must let different voters on the same vote
// proceed without blocking each other.
type VoteStore interface {
	CreateVote(ctx context.Context, vote entities.Vote) error
	GetVote(ctx context.Context, voteID string) (entities.Vote, error)

	// MarkVoteEnded conditionally flips ended from false to true. It returns
	// false with a nil error when the vote was already ended, so exactly one
	// of two concurrent end calls observes the transition.
	MarkVoteEnded(ctx context.Context, voteID string, endedAt time.Time) (bool, error)

	// ListResponses returns the responses of one voter when voterID is
	// non-empty, otherwise every response of the vote.
	ListResponses(ctx context.Context, voteID string, voterID string) ([]entities.VoteResponse, error)

	// RecordAllocations re-checks the vote's ended flag and the budget against
	// the voter's stored rows, then upserts every allocation, all inside one
	// transaction. An ended vote fails with ErrVoteEnded; a budget violation
	// returns a *errors.BudgetExceededError. Either way nothing is written.
	// The returned total is the voter's credit total after the write.
	RecordAllocations(
		ctx context.Context,
		voteID string,
		voterID string,
		allocations []entities.Allocation,
		budget int,
		now time.Time,
	) (int, error)

	// ListDueScheduledVotes returns open votes whose scheduled end has passed.
	ListDueScheduledVotes(ctx context.Context, now time.Time, limit int) ([]entities.Vote, error)

	// DeleteVoteAndResponses cascades: responses cease to exist with the vote.
	DeleteVoteAndResponses(ctx context.Context, voteID string) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// EventEnvelope is the wire shape written to the outbox and published on the
// bus. Notification delivery itself is an external collaborator; the engine
// only appends envelopes.
type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string, consumerGroup string, handler func(context.Context, EventEnvelope) error) error
}
