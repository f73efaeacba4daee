package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"quadvote/contexts/governance/quadratic-voting/domain/entities"
	domainerrors "quadvote/contexts/governance/quadratic-voting/domain/errors"
	"quadvote/contexts/governance/quadratic-voting/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type responseKey struct {
	voteID      string
	voterID     string
	optionIndex int
}

// Store is the in-memory VoteStore used by tests and local wiring. It mirrors
// the postgres adapter's locking scope: submissions serialize per
// (vote, voter) so different voters never wait on each other.
type Store struct {
	mu sync.RWMutex

	votes     map[string]entities.Vote
	responses map[responseKey]entities.VoteResponse
	outbox    map[string]outboxRecord

	lockMu     sync.Mutex
	voterLocks map[string]*sync.Mutex
}

func NewStore(seed []entities.Vote) *Store {
	votes := make(map[string]entities.Vote, len(seed))
	for _, vote := range seed {
		votes[vote.VoteID] = vote
	}
	return &Store{
		votes:      votes,
		responses:  make(map[responseKey]entities.VoteResponse),
		outbox:     make(map[string]outboxRecord),
		voterLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) CreateVote(_ context.Context, vote entities.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	voteID := strings.TrimSpace(vote.VoteID)
	if _, exists := s.votes[voteID]; exists {
		return domainerrors.ErrValidation
	}
	s.votes[voteID] = vote
	return nil
}

func (s *Store) GetVote(_ context.Context, voteID string) (entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vote, ok := s.votes[strings.TrimSpace(voteID)]
	if !ok {
		return entities.Vote{}, domainerrors.ErrVoteNotFound
	}
	return vote, nil
}

func (s *Store) MarkVoteEnded(_ context.Context, voteID string, endedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vote, ok := s.votes[strings.TrimSpace(voteID)]
	if !ok || vote.Ended {
		return false, nil
	}
	timestamp := endedAt.UTC()
	vote.Ended = true
	vote.EndedAt = &timestamp
	s.votes[strings.TrimSpace(voteID)] = vote
	return true, nil
}

func (s *Store) ListResponses(_ context.Context, voteID string, voterID string) ([]entities.VoteResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	voteID = strings.TrimSpace(voteID)
	voterID = strings.TrimSpace(voterID)
	items := make([]entities.VoteResponse, 0)
	for key, response := range s.responses {
		if key.voteID != voteID {
			continue
		}
		if voterID != "" && key.voterID != voterID {
			continue
		}
		items = append(items, response)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].VoterID == items[j].VoterID {
			return items[i].OptionIndex < items[j].OptionIndex
		}
		return items[i].VoterID < items[j].VoterID
	})
	return items, nil
}

func (s *Store) RecordAllocations(
	_ context.Context,
	voteID string,
	voterID string,
	allocations []entities.Allocation,
	budget int,
	now time.Time,
) (int, error) {
	voteID = strings.TrimSpace(voteID)
	voterID = strings.TrimSpace(voterID)

	voterLock := s.voterLock(voteID + "/" + voterID)
	voterLock.Lock()
	defer voterLock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Same gate as the postgres transaction: the caller's ended pre-check may
	// be stale by the time the write runs.
	vote, ok := s.votes[voteID]
	if !ok {
		return 0, domainerrors.ErrVoteNotFound
	}
	if vote.Ended {
		return 0, domainerrors.ErrVoteEnded
	}

	replaced := make(map[int]int, len(allocations))
	attempted := 0
	for _, allocation := range allocations {
		replaced[allocation.OptionIndex] = allocation.Credits
		attempted += allocation.Credits
	}
	retained := 0
	for key, response := range s.responses {
		if key.voteID != voteID || key.voterID != voterID {
			continue
		}
		if _, overridden := replaced[response.OptionIndex]; !overridden {
			retained += response.Credits
		}
	}
	if attempted+retained > budget {
		return 0, &domainerrors.BudgetExceededError{
			Attempted: attempted,
			Available: budget - retained,
		}
	}

	timestamp := now.UTC()
	for _, allocation := range allocations {
		key := responseKey{voteID: voteID, voterID: voterID, optionIndex: allocation.OptionIndex}
		existing, ok := s.responses[key]
		createdAt := timestamp
		if ok {
			createdAt = existing.CreatedAt
		}
		s.responses[key] = entities.VoteResponse{
			VoteID:      voteID,
			VoterID:     voterID,
			OptionIndex: allocation.OptionIndex,
			Credits:     allocation.Credits,
			CreatedAt:   createdAt,
			UpdatedAt:   timestamp,
		}
	}
	return attempted + retained, nil
}

func (s *Store) ListDueScheduledVotes(_ context.Context, now time.Time, limit int) ([]entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	items := make([]entities.Vote, 0)
	for _, vote := range s.votes {
		if vote.Ended || vote.ScheduledEndAt == nil {
			continue
		}
		if vote.ScheduledEndAt.After(now.UTC()) {
			continue
		}
		items = append(items, vote)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ScheduledEndAt.Before(*items[j].ScheduledEndAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) DeleteVoteAndResponses(_ context.Context, voteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	voteID = strings.TrimSpace(voteID)
	delete(s.votes, voteID)
	for key := range s.responses {
		if key.voteID == voteID {
			delete(s.responses, key)
		}
	}
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if _, exists := s.outbox[outboxID]; exists {
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrStore
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) voterLock(key string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.voterLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.voterLocks[key] = lock
	}
	return lock
}

var _ ports.VoteStore = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
