package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/petpals/internal/logging"
	"github.com/HammerMeetNail/petpals/internal/metrics"
	"github.com/HammerMeetNail/petpals/internal/models"
)

// MaxMessageLength is the longest message body accepted, in characters.
const MaxMessageLength = 4000

const messageColumns = "id, match_id, sender_id, content, created_at"

type MessageService struct {
	db   DB
	feed ChangeFeed
}

func NewMessageService(db DB, feed ChangeFeed) *MessageService {
	return &MessageService{db: db, feed: feed}
}

func scanMessage(row Row) (*models.Message, error) {
	m := &models.Message{}
	if err := row.Scan(&m.ID, &m.MatchID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns a match's conversation oldest first. Messages written
// in the same instant keep insertion order.
func (s *MessageService) ListMessages(ctx context.Context, matchID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE match_id = $1 ORDER BY created_at, seq`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func normalizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", newValidationError("content", "must not be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return "", newValidationError("content", fmt.Sprintf("must be at most %d characters", MaxMessageLength))
	}
	return trimmed, nil
}

func (s *MessageService) Append(ctx context.Context, matchID, senderID uuid.UUID, content string) (*models.Message, error) {
	trimmed, err := normalizeContent(content)
	if err != nil {
		return nil, err
	}

	msg, err := insertMessage(ctx, s.db, matchID, senderID, trimmed, nil)
	if err != nil {
		return nil, err
	}

	metrics.MessagesSentTotal.WithLabelValues("chat").Inc()
	publishChange(ctx, s.feed, messageChangeEvent(msg))
	return msg, nil
}

func insertMessage(ctx context.Context, q DBConn, matchID, senderID uuid.UUID, content string, at *time.Time) (*models.Message, error) {
	msg, err := scanMessage(q.QueryRow(ctx,
		`INSERT INTO messages (match_id, sender_id, content, created_at)
		 VALUES ($1, $2, $3, COALESCE($4::timestamptz, NOW()))
		 RETURNING `+messageColumns,
		matchID, senderID, content, at,
	))
	if isForeignKeyViolation(err) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// NotifyDeletion posts the removal notice from petID into each match. Every
// match is attempted; the ones that failed come back in a
// *PartialFanoutError alongside the notices that were written.
func (s *MessageService) NotifyDeletion(ctx context.Context, petID uuid.UUID, matchIDs []uuid.UUID) ([]models.Message, error) {
	notices, failures, err := writeNotices(ctx, s.db, petID, matchIDs, time.Now().UTC(), false)
	if err != nil {
		return notices, err
	}
	for i := range notices {
		publishChange(ctx, s.feed, messageChangeEvent(&notices[i]))
	}
	if len(failures) > 0 {
		return notices, &PartialFanoutError{Failures: failures}
	}
	return notices, nil
}

// writeNotices inserts one removal notice per match, all stamped at. With
// savepoints set, each insert runs in its own savepoint so a failure inside
// a transaction leaves the transaction usable.
func writeNotices(ctx context.Context, q DBConn, petID uuid.UUID, matchIDs []uuid.UUID, at time.Time, savepoints bool) ([]models.Message, []FanoutFailure, error) {
	notices := make([]models.Message, 0, len(matchIDs))
	var failures []FanoutFailure

	for _, matchID := range matchIDs {
		if savepoints {
			if _, err := q.Exec(ctx, `SAVEPOINT notice`); err != nil {
				return notices, failures, fmt.Errorf("create notice savepoint: %w", err)
			}
		}

		msg, err := insertMessage(ctx, q, matchID, petID, models.PetRemovedNotice, &at)
		if err != nil {
			if ctx.Err() != nil {
				return notices, failures, err
			}
			failures = append(failures, FanoutFailure{MatchID: matchID, Err: err})
			metrics.NoticeFailuresTotal.Inc()
			logging.Error("Failed to post pet removal notice", map[string]interface{}{
				"error":    err.Error(),
				"match_id": matchID.String(),
				"pet_id":   petID.String(),
			})
			if savepoints {
				if _, rbErr := q.Exec(ctx, `ROLLBACK TO SAVEPOINT notice`); rbErr != nil {
					return notices, failures, fmt.Errorf("rollback notice savepoint: %w", errors.Join(err, rbErr))
				}
			}
			continue
		}

		if savepoints {
			if _, err := q.Exec(ctx, `RELEASE SAVEPOINT notice`); err != nil {
				return notices, failures, fmt.Errorf("release notice savepoint: %w", err)
			}
		}
		metrics.MessagesSentTotal.WithLabelValues("notice").Inc()
		notices = append(notices, *msg)
	}
	return notices, failures, nil
}

// Subscribe delivers new messages of one match.
func (s *MessageService) Subscribe(ctx context.Context, matchID uuid.UUID, onChange func(models.ChangeEvent)) (Subscription, error) {
	if s.feed == nil {
		return nil, errors.New("live updates unavailable")
	}
	return s.feed.Subscribe(ctx, Topic{
		Table:  models.TableMessages,
		Column: "match_id",
		Value:  matchID.String(),
	}, onChange)
}

func messageChangeEvent(m *models.Message) models.ChangeEvent {
	return newChangeEvent(models.TableMessages, models.ChangeInsert, m.ID, map[string]string{
		"match_id": m.MatchID.String(),
	}, m)
}
