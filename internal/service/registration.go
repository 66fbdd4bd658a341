package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sprintboard/internal/config"
	"github.com/sprintboard/internal/domain"
)

// RankStore is the ranking side of a registration: Redis sorted sets in
// production, fakes in tests.
type RankStore interface {
	AddResult(ctx context.Context, country string, resultID int64, timeSec float64) error
	Remove(ctx context.Context, country string, resultID int64) error
	CountryRank(ctx context.Context, country string, resultID int64) (int64, error)
	GlobalRank(ctx context.Context, resultID int64) (int64, error)
	PreviewRank(ctx context.Context, country string, timeSec float64) (int64, error)
	TopIDs(ctx context.Context, country string, n int) ([]int64, error)
	TopGlobalIDs(ctx context.Context, n int) ([]int64, error)
}

// ResultStore is the persistence side of a registration
type ResultStore interface {
	InsertResult(ctx context.Context, reg domain.Registration) (int64, time.Time, error)
	GetResult(ctx context.Context, id int64) (*domain.Row, error)
	DeleteResult(ctx context.Context, id int64) error
	ResultsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Row, error)
	TopByCountry(ctx context.Context, country string, n int) ([]domain.Row, error)
	TopGlobal(ctx context.Context, n int) ([]domain.Row, error)
}

// BoardBroadcaster pushes refreshed board slices to live subscribers
type BoardBroadcaster interface {
	BroadcastBoard(country string, rows []domain.Row)
}

// RegistrationService accepts QR sprint results, persists them, ranks them
// and produces the board slices the capture page renders.
type RegistrationService struct {
	ranks   RankStore
	results ResultStore
	config  *config.LeaderboardConfig
	logger  *slog.Logger
	hub     BoardBroadcaster
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(
	ranks RankStore,
	results ResultStore,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		ranks:   ranks,
		results: results,
		config:  cfg,
		logger:  logger,
	}
}

// SetHub sets the broadcaster used to push board updates to subscribers
func (s *RegistrationService) SetHub(hub BoardBroadcaster) {
	s.hub = hub
}

// Register validates and persists a registration, ranks it and returns the
// participant's own ranked row together with the refreshed board slices.
// A reused nonce yields domain.ErrDuplicateEntry.
func (s *RegistrationService) Register(ctx context.Context, reg domain.Registration) (*domain.RegistrationResult, error) {
	normalize(&reg)
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	id, createdAt, err := s.results.InsertResult(ctx, reg)
	if err != nil {
		return nil, err
	}

	me := domain.MeRow{
		Row: domain.Row{
			ID:          &id,
			Name:        reg.Name,
			Age:         reg.Age,
			Gender:      reg.Gender,
			Country:     reg.Country,
			TimeSeconds: reg.TimeSeconds(),
			CreatedAt:   &createdAt,
			TQR:         reg.QRTimestamp(),
		},
	}

	// The stored row is the source of truth; ranks and boards are served
	// from Redis and degrade to unset/Postgres when Redis misbehaves.
	if err := s.ranks.AddResult(ctx, reg.Country, id, me.TimeSeconds); err != nil {
		s.logger.Warn("failed to add result to rank store", "result_id", id, "error", err)
	} else {
		if rank, err := s.ranks.CountryRank(ctx, reg.Country, id); err != nil {
			s.logger.Warn("failed to read country rank", "result_id", id, "error", err)
		} else {
			me.RankCountry = &rank
		}
		if rank, err := s.ranks.GlobalRank(ctx, id); err != nil {
			s.logger.Warn("failed to read global rank", "result_id", id, "error", err)
		} else {
			me.RankGlobal = &rank
		}
	}

	boardCountry, boardGlobal, err := s.Boards(ctx, reg.Country)
	if err != nil {
		return nil, fmt.Errorf("loading boards: %w", err)
	}

	if s.hub != nil {
		s.hub.BroadcastBoard(reg.Country, boardCountry)
		s.hub.BroadcastBoard("", boardGlobal)
	}

	return &domain.RegistrationResult{
		Me:           me,
		BoardCountry: boardCountry,
		BoardGlobal:  boardGlobal,
	}, nil
}

// Result returns a single stored result row by id.
func (s *RegistrationService) Result(ctx context.Context, id int64) (*domain.Row, error) {
	return s.results.GetResult(ctx, id)
}

// RemoveResult withdraws a stored result, for example after a disputed
// heat. The row is deleted from the database and dropped from both rank
// sets, and refreshed boards are pushed to subscribers.
func (s *RegistrationService) RemoveResult(ctx context.Context, id int64) error {
	row, err := s.results.GetResult(ctx, id)
	if err != nil {
		return err
	}

	if err := s.results.DeleteResult(ctx, id); err != nil {
		return err
	}

	if err := s.ranks.Remove(ctx, row.Country, id); err != nil {
		// The rebuild worker reconciles the sets eventually.
		s.logger.Warn("failed to remove result from rank store", "result_id", id, "error", err)
	}

	boardCountry, boardGlobal, err := s.Boards(ctx, row.Country)
	if err != nil {
		s.logger.Warn("failed to load boards after removal", "result_id", id, "error", err)
		return nil
	}
	if s.hub != nil {
		s.hub.BroadcastBoard(row.Country, boardCountry)
		s.hub.BroadcastBoard("", boardGlobal)
	}
	return nil
}

// RankPreview estimates where a time would land on a country's board.
// Best-effort by contract: callers may drop the estimate on error.
func (s *RegistrationService) RankPreview(ctx context.Context, country string, timeSec float64) (int64, error) {
	if country == "" || timeSec <= 0 {
		return 0, domain.ErrInvalidRequest
	}
	return s.ranks.PreviewRank(ctx, country, timeSec)
}

// Boards returns the current top slices: up to CountrySize rows for the
// country and up to GlobalSize rows worldwide, fastest first.
func (s *RegistrationService) Boards(ctx context.Context, country string) ([]domain.Row, []domain.Row, error) {
	boardCountry, err := s.board(ctx, country, s.config.CountrySize)
	if err != nil {
		return nil, nil, fmt.Errorf("country board: %w", err)
	}
	boardGlobal, err := s.board(ctx, "", s.config.GlobalSize)
	if err != nil {
		return nil, nil, fmt.Errorf("global board: %w", err)
	}
	return boardCountry, boardGlobal, nil
}

// board reads the top ids from Redis and hydrates them from Postgres,
// preserving Redis order. On a Redis failure it serves straight from
// Postgres instead.
func (s *RegistrationService) board(ctx context.Context, country string, n int) ([]domain.Row, error) {
	var (
		ids []int64
		err error
	)
	if country == "" {
		ids, err = s.ranks.TopGlobalIDs(ctx, n)
	} else {
		ids, err = s.ranks.TopIDs(ctx, country, n)
	}
	if err != nil {
		s.logger.Warn("rank store unavailable, serving board from database", "country", country, "error", err)
		if country == "" {
			return s.results.TopGlobal(ctx, n)
		}
		return s.results.TopByCountry(ctx, country, n)
	}

	byID, err := s.results.ResultsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.Row, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// normalize trims the participant-entered fields; blank optional fields
// become null so they never reach storage as empty strings.
func normalize(reg *domain.Registration) {
	reg.Name = strings.TrimSpace(reg.Name)
	if reg.Gender != nil && strings.TrimSpace(*reg.Gender) == "" {
		reg.Gender = nil
	}
}
