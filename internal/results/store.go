package results

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kkingfung/CavalryFight-sub004/internal/game"
	"github.com/kkingfung/CavalryFight-sub004/internal/match"
)

// MatchRecord is one finished match.
type MatchRecord struct {
	ID        uint   `gorm:"primarykey"`
	JoinCode  string `gorm:"index"`
	RoomName  string
	Mode      string
	MapID     string
	TimeLimit int
	ScoreGoal int
	EndedAt   time.Time

	Results []PlayerResult `gorm:"foreignKey:MatchID"`
}

// PlayerResult is one player's final line on the scoreboard.
type PlayerResult struct {
	ID        uint `gorm:"primarykey"`
	MatchID   uint `gorm:"index"`
	PlayerID  uint64
	Name      string
	IsCPU     bool
	Score     int
	HitCount  int
	ShotCount int
	Accuracy  float64
	TeamIndex int
	Placement int
}

// Store archives finished matches through gorm. Backend is selected by
// driver: sqlite (embedded, default) or postgres.
type Store struct {
	db *gorm.DB
}

func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown results driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	if err := db.AutoMigrate(&MatchRecord{}, &PlayerResult{}); err != nil {
		return nil, fmt.Errorf("migrate results db: %w", err)
	}
	return &Store{db: db}, nil
}

// StoreMatch implements room.ResultsSink. Standings arrive already sorted;
// placement is 1-based board position.
func (s *Store) StoreMatch(ctx context.Context, joinCode string, settings game.RoomSettings, standings []match.PlayerScore) error {
	rec := MatchRecord{
		JoinCode:  joinCode,
		RoomName:  settings.RoomName,
		Mode:      string(settings.Mode),
		MapID:     settings.MapID,
		TimeLimit: settings.TimeLimit,
		ScoreGoal: settings.ScoreGoal,
		EndedAt:   time.Now().UTC(),
	}
	for i, p := range standings {
		rec.Results = append(rec.Results, PlayerResult{
			PlayerID:  uint64(p.PlayerID),
			Name:      p.Name,
			IsCPU:     p.PlayerID.IsCPU(),
			Score:     p.Score,
			HitCount:  p.HitCount,
			ShotCount: p.ShotCount,
			Accuracy:  p.Accuracy(),
			TeamIndex: p.TeamIndex,
			Placement: i + 1,
		})
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("store match %s: %w", joinCode, err)
	}
	return nil
}

// RecentMatches returns the latest n archived matches with their results.
func (s *Store) RecentMatches(ctx context.Context, n int) ([]MatchRecord, error) {
	var recs []MatchRecord
	err := s.db.WithContext(ctx).
		Preload("Results").
		Order("ended_at desc").
		Limit(n).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("load recent matches: %w", err)
	}
	return recs, nil
}
