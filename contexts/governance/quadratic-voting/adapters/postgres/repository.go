package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quadvote/contexts/governance/quadratic-voting/domain/entities"
	domainerrors "quadvote/contexts/governance/quadratic-voting/domain/errors"
	"quadvote/contexts/governance/quadratic-voting/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"

	// One transparent retry for serialization failures before surfacing a
	// store error to the engine.
	contentionRetries = 1
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) CreateVote(ctx context.Context, vote entities.Vote) error {
	row := voteModelFromEntity(vote)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrValidation
		}
		return r.storeFailure("quadvote_repo_create_vote_failed", err,
			"vote_id", row.ID,
			"workspace_id", row.WorkspaceID,
		)
	}
	return nil
}

func (r *Repository) GetVote(ctx context.Context, voteID string) (entities.Vote, error) {
	var row voteModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(voteID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Vote{}, domainerrors.ErrVoteNotFound
		}
		return entities.Vote{}, r.storeFailure("quadvote_repo_get_vote_failed", err, "vote_id", strings.TrimSpace(voteID))
	}
	return row.toEntity(), nil
}

// MarkVoteEnded is the compare-and-set half of the lifecycle state machine:
// the WHERE clause only matches an open vote, so concurrent end calls resolve
// to exactly one winner.
func (r *Repository) MarkVoteEnded(ctx context.Context, voteID string, endedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Where("id = ? AND ended = ?", strings.TrimSpace(voteID), false).
		Updates(map[string]any{
			"ended":    true,
			"ended_at": endedAt.UTC(),
		})
	if result.Error != nil {
		return false, r.storeFailure("quadvote_repo_mark_ended_failed", result.Error,
			"vote_id", strings.TrimSpace(voteID),
		)
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) ListResponses(ctx context.Context, voteID string, voterID string) ([]entities.VoteResponse, error) {
	tx := r.db.WithContext(ctx).Model(&responseModel{}).
		Where("vote_id = ?", strings.TrimSpace(voteID))
	if strings.TrimSpace(voterID) != "" {
		tx = tx.Where("voter_id = ?", strings.TrimSpace(voterID))
	}
	var rows []responseModel
	if err := tx.Order("voter_id ASC, option_index ASC").Find(&rows).Error; err != nil {
		return nil, r.storeFailure("quadvote_repo_list_responses_failed", err,
			"vote_id", strings.TrimSpace(voteID),
			"voter_id", strings.TrimSpace(voterID),
		)
	}
	items := make([]entities.VoteResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

// RecordAllocations is the one atomic unit of the engine: budget re-check and
// upserts share a transaction serialized per (vote, voter) by an advisory
// transaction lock. Locking the voter's scope instead of the vote row keeps
// unrelated voters on the same vote from blocking each other, and covers the
// first submission where no response rows exist yet to row-lock.
func (r *Repository) RecordAllocations(
	ctx context.Context,
	voteID string,
	voterID string,
	allocations []entities.Allocation,
	budget int,
	now time.Time,
) (int, error) {
	voteID = strings.TrimSpace(voteID)
	voterID = strings.TrimSpace(voterID)

	var total int
	var lastErr error
	for attempt := 0; attempt <= contentionRetries; attempt++ {
		total, lastErr = r.recordAllocationsOnce(ctx, voteID, voterID, allocations, budget, now)
		if lastErr == nil || !isSerializationFailure(lastErr) {
			break
		}
	}
	if lastErr != nil {
		var budgetErr *domainerrors.BudgetExceededError
		if errors.As(lastErr, &budgetErr) ||
			errors.Is(lastErr, domainerrors.ErrVoteEnded) ||
			errors.Is(lastErr, domainerrors.ErrVoteNotFound) {
			return 0, lastErr
		}
		return 0, r.storeFailure("quadvote_repo_record_allocations_failed", lastErr,
			"vote_id", voteID,
			"voter_id", voterID,
		)
	}
	return total, nil
}

func (r *Repository) recordAllocationsOnce(
	ctx context.Context,
	voteID string,
	voterID string,
	allocations []entities.Allocation,
	budget int,
	now time.Time,
) (int, error) {
	total := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockKey := voteID + "/" + voterID
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", lockKey).Error; err != nil {
			return err
		}

		// The use case pre-checks ended, but that read happens before this
		// transaction. Re-check under the lock so a write racing a concurrent
		// end cannot land after the flag flips.
		var gate voteModel
		if err := tx.Select("ended").Where("id = ?", voteID).First(&gate).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrVoteNotFound
			}
			return err
		}
		if gate.Ended {
			return domainerrors.ErrVoteEnded
		}

		var rows []responseModel
		if err := tx.
			Where("vote_id = ? AND voter_id = ?", voteID, voterID).
			Find(&rows).Error; err != nil {
			return err
		}

		replaced := make(map[int]int, len(allocations))
		attempted := 0
		for _, allocation := range allocations {
			replaced[allocation.OptionIndex] = allocation.Credits
			attempted += allocation.Credits
		}
		retained := 0
		for _, row := range rows {
			if _, overridden := replaced[row.OptionIndex]; !overridden {
				retained += row.Credits
			}
		}
		if attempted+retained > budget {
			return &domainerrors.BudgetExceededError{
				Attempted: attempted,
				Available: budget - retained,
			}
		}

		timestamp := now.UTC()
		for _, allocation := range allocations {
			row := responseModel{
				VoteID:      voteID,
				VoterID:     voterID,
				OptionIndex: allocation.OptionIndex,
				Credits:     allocation.Credits,
				CreatedAt:   timestamp,
				UpdatedAt:   timestamp,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "vote_id"},
					{Name: "voter_id"},
					{Name: "option_index"},
				},
				DoUpdates: clause.Assignments(map[string]any{
					"credits":    row.Credits,
					"updated_at": row.UpdatedAt,
				}),
			}).Create(&row).Error; err != nil {
				return err
			}
		}

		total = attempted + retained
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *Repository) ListDueScheduledVotes(ctx context.Context, now time.Time, limit int) ([]entities.Vote, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []voteModel
	if err := r.db.WithContext(ctx).
		Where("ended = ? AND scheduled_end_at IS NOT NULL AND scheduled_end_at <= ?", false, now.UTC()).
		Order("scheduled_end_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.storeFailure("quadvote_repo_list_due_votes_failed", err)
	}
	items := make([]entities.Vote, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) DeleteVoteAndResponses(ctx context.Context, voteID string) error {
	voteID = strings.TrimSpace(voteID)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("vote_id = ?", voteID).Delete(&responseModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", voteID).Delete(&voteModel{}).Error
	})
	if err != nil {
		return r.storeFailure("quadvote_repo_delete_vote_failed", err, "vote_id", voteID)
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := envelopePayload(envelope)
	if err != nil {
		return r.storeFailure("quadvote_repo_append_outbox_marshal_failed", err,
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.storeFailure("quadvote_repo_append_outbox_failed", create.Error, "outbox_id", row.OutboxID)
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.storeFailure("quadvote_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.storeFailure("quadvote_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrStore
	}
	return nil
}

func (r *Repository) storeFailure(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "governance/quadratic-voting",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("vote repository operation failed", fields...)
	return fmt.Errorf("%w: %v", domainerrors.ErrStore, err)
}

type voteModel struct {
	ID              string     `gorm:"column:id;primaryKey"`
	WorkspaceID     string     `gorm:"column:workspace_id"`
	ChannelID       string     `gorm:"column:channel_id"`
	CreatorID       string     `gorm:"column:creator_id"`
	Title           string     `gorm:"column:title"`
	Description     string     `gorm:"column:description"`
	Options         []string   `gorm:"column:options;serializer:json"`
	CreditsPerVoter int        `gorm:"column:credits_per_voter"`
	AllowedVoters   []string   `gorm:"column:allowed_voters;serializer:json"`
	Ended           bool       `gorm:"column:ended"`
	ScheduledEndAt  *time.Time `gorm:"column:scheduled_end_at"`
	EndedAt         *time.Time `gorm:"column:ended_at"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
}

func (voteModel) TableName() string {
	return "votes"
}

func voteModelFromEntity(vote entities.Vote) voteModel {
	row := voteModel{
		ID:              strings.TrimSpace(vote.VoteID),
		WorkspaceID:     strings.TrimSpace(vote.WorkspaceID),
		ChannelID:       strings.TrimSpace(vote.ChannelID),
		CreatorID:       strings.TrimSpace(vote.CreatorID),
		Title:           strings.TrimSpace(vote.Title),
		Description:     strings.TrimSpace(vote.Description),
		Options:         vote.Options,
		CreditsPerVoter: vote.CreditsPerVoter,
		AllowedVoters:   vote.AllowedVoters,
		Ended:           vote.Ended,
		ScheduledEndAt:  normalizeOptionalTime(vote.ScheduledEndAt),
		EndedAt:         normalizeOptionalTime(vote.EndedAt),
		CreatedAt:       vote.CreatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return row
}

func (m voteModel) toEntity() entities.Vote {
	return entities.Vote{
		VoteID:          m.ID,
		WorkspaceID:     m.WorkspaceID,
		ChannelID:       m.ChannelID,
		CreatorID:       m.CreatorID,
		Title:           m.Title,
		Description:     m.Description,
		Options:         m.Options,
		CreditsPerVoter: m.CreditsPerVoter,
		AllowedVoters:   m.AllowedVoters,
		Ended:           m.Ended,
		ScheduledEndAt:  normalizeOptionalTime(m.ScheduledEndAt),
		EndedAt:         normalizeOptionalTime(m.EndedAt),
		CreatedAt:       m.CreatedAt.UTC(),
	}
}

type responseModel struct {
	VoteID      string    `gorm:"column:vote_id;primaryKey"`
	VoterID     string    `gorm:"column:voter_id;primaryKey"`
	OptionIndex int       `gorm:"column:option_index;primaryKey"`
	Credits     int       `gorm:"column:credits"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (responseModel) TableName() string {
	return "vote_responses"
}

func (m responseModel) toEntity() entities.VoteResponse {
	return entities.VoteResponse{
		VoteID:      m.VoteID,
		VoterID:     m.VoterID,
		OptionIndex: m.OptionIndex,
		Credits:     m.Credits,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "vote_outbox"
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}

func envelopePayload(envelope ports.EventEnvelope) ([]byte, error) {
	return json.Marshal(envelope)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

var _ ports.VoteStore = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)

// SystemClock satisfies ports.Clock with wall time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// UUIDGenerator satisfies ports.IDGenerator with random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
