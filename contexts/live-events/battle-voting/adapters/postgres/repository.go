package postgresadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	domainerrors "battlevoter/contexts/live-events/battle-voting/domain/errors"
	"battlevoter/contexts/live-events/battle-voting/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the durable vote ledger and the read side of the contest
// table maintained by the contest-management service.
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

// Migrate creates the votes table with its uniqueness and tally indexes.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&voteModel{}); err != nil {
		return r.logError("voting_repo_migrate_failed", err)
	}
	return nil
}

func (r *Repository) GetContest(ctx context.Context, contestID string) (entities.Contest, error) {
	var row contestModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(contestID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Contest{}, domainerrors.ErrContestNotFound
		}
		return entities.Contest{}, r.logError("voting_repo_get_contest_failed", err,
			"contest_id", strings.TrimSpace(contestID),
		)
	}
	return row.toEntity(), nil
}

// RecordVote upserts on (contest_id, device_fingerprint). The insert and the
// replace are one statement, so concurrent first votes from the same device
// collapse into a single row.
func (r *Repository) RecordVote(ctx context.Context, vote entities.VoteRecord) (entities.VoteRecord, bool, error) {
	row := voteModelFromEntity(vote)
	var stored voteModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "contest_id"}, {Name: "device_fingerprint"}},
			DoUpdates: clause.Assignments(map[string]any{
				"choice":         row.Choice,
				"source_address": row.SourceAddress,
				"updated_at":     row.UpdatedAt,
			}),
		}).Create(&row)
		if upsert.Error != nil {
			return upsert.Error
		}
		return tx.
			Where("contest_id = ? AND device_fingerprint = ?", row.ContestID, row.DeviceFingerprint).
			First(&stored).
			Error
	})
	if err != nil {
		return entities.VoteRecord{}, false, r.logError("voting_repo_record_vote_failed", err,
			"contest_id", row.ContestID,
			"vote_id", row.ID,
		)
	}
	return stored.toEntity(), stored.ID != row.ID, nil
}

// InsertVote stores a first ballot only; an existing row for the device
// leaves the table untouched and yields ErrAlreadyVoted.
func (r *Repository) InsertVote(ctx context.Context, vote entities.VoteRecord) (entities.VoteRecord, error) {
	row := voteModelFromEntity(vote)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contest_id"}, {Name: "device_fingerprint"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return entities.VoteRecord{}, domainerrors.ErrAlreadyVoted
		}
		return entities.VoteRecord{}, r.logError("voting_repo_insert_vote_failed", create.Error,
			"contest_id", row.ContestID,
			"vote_id", row.ID,
		)
	}
	if create.RowsAffected == 0 {
		return entities.VoteRecord{}, domainerrors.ErrAlreadyVoted
	}
	return row.toEntity(), nil
}

func (r *Repository) GetVote(ctx context.Context, contestID string, deviceFingerprint string) (entities.VoteRecord, bool, error) {
	var row voteModel
	err := r.db.WithContext(ctx).
		Where("contest_id = ?", strings.TrimSpace(contestID)).
		Where("device_fingerprint = ?", strings.TrimSpace(deviceFingerprint)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VoteRecord{}, false, nil
		}
		return entities.VoteRecord{}, false, r.logError("voting_repo_get_vote_failed", err,
			"contest_id", strings.TrimSpace(contestID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) CountByChoice(ctx context.Context, contestID string) (map[entities.Choice]int, error) {
	var rows []choiceCountRow
	err := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Select("choice, COUNT(*) AS total").
		Where("contest_id = ?", strings.TrimSpace(contestID)).
		Group("choice").
		Scan(&rows).
		Error
	if err != nil {
		return nil, r.logError("voting_repo_count_by_choice_failed", err,
			"contest_id", strings.TrimSpace(contestID),
		)
	}
	counts := make(map[entities.Choice]int, len(rows))
	for _, row := range rows {
		counts[entities.Choice(row.Choice)] = int(row.Total)
	}
	return counts, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "live-events/battle-voting",
		"layer", "adapter",
		"error", err.Error(),
	)
	if isUndefinedTable(err) {
		fields = append(fields, "hint", "schema missing; run with --auto-migrate or apply migrations")
	}
	fields = append(fields, attrs...)
	r.logger.Error("voting repository operation failed", fields...)
	return fmt.Errorf("%w: %w", domainerrors.ErrStorageUnavailable, err)
}

type voteModel struct {
	ID                string    `gorm:"column:id;primaryKey"`
	ContestID         string    `gorm:"column:contest_id;not null;uniqueIndex:uq_votes_contest_device,priority:1;index:idx_votes_contest_choice,priority:1"`
	DeviceFingerprint string    `gorm:"column:device_fingerprint;not null;uniqueIndex:uq_votes_contest_device,priority:2"`
	Choice            string    `gorm:"column:choice;not null;index:idx_votes_contest_choice,priority:2"`
	SourceAddress     string    `gorm:"column:source_address"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (voteModel) TableName() string {
	return "votes"
}

func voteModelFromEntity(vote entities.VoteRecord) voteModel {
	row := voteModel{
		ID:                strings.TrimSpace(vote.VoteID),
		ContestID:         strings.TrimSpace(vote.ContestID),
		DeviceFingerprint: strings.TrimSpace(vote.DeviceFingerprint),
		Choice:            string(vote.Choice),
		SourceAddress:     strings.TrimSpace(vote.SourceAddress),
		CreatedAt:         vote.CreatedAt.UTC(),
		UpdatedAt:         vote.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m voteModel) toEntity() entities.VoteRecord {
	return entities.VoteRecord{
		VoteID:            m.ID,
		ContestID:         m.ContestID,
		DeviceFingerprint: m.DeviceFingerprint,
		Choice:            entities.Choice(m.Choice),
		SourceAddress:     m.SourceAddress,
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}

type choiceCountRow struct {
	Choice string
	Total  int64
}

type contestModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	EventID      string    `gorm:"column:event_id"`
	ParticipantA string    `gorm:"column:participant_a"`
	ParticipantB string    `gorm:"column:participant_b"`
	StartsAt     time.Time `gorm:"column:starts_at"`
	EndsAt       time.Time `gorm:"column:ends_at"`
	Status       string    `gorm:"column:status"`
}

func (contestModel) TableName() string {
	return "contests"
}

func (m contestModel) toEntity() entities.Contest {
	return entities.Contest{
		ContestID:    m.ID,
		EventID:      m.EventID,
		ParticipantA: m.ParticipantA,
		ParticipantB: m.ParticipantB,
		StartsAt:     m.StartsAt.UTC(),
		EndsAt:       m.EndsAt.UTC(),
		Status:       entities.ContestStatus(strings.ToLower(strings.TrimSpace(m.Status))),
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

var _ ports.ContestLookup = (*Repository)(nil)
var _ ports.VoteLedger = (*Repository)(nil)
