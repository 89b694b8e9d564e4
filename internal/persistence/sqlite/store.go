// Package sqlite persists the ledger in an embedded SQLite file through GORM. It backs
// ledgerctl and single-node deployments that run without Postgres and Kafka.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"example.com/fitledger/internal/domain"
)

type settingsRow struct {
	ID               uint `gorm:"primaryKey"`
	MinActiveMinutes uint32
	MinSteps         uint32
	InitializedAt    time.Time
}

func (settingsRow) TableName() string { return "ledger_settings" }

type adminRow struct {
	Principal string `gorm:"primaryKey"`
	Position  int
}

func (adminRow) TableName() string { return "ledger_admins" }

type userRow struct {
	UserID        string `gorm:"primaryKey"`
	ActivityCount uint32
	RegisteredAt  time.Time
}

func (userRow) TableName() string { return "ledger_users" }

type activityRow struct {
	Seq          uint64 `gorm:"primaryKey;autoIncrement:false"`
	ActivityID   string `gorm:"uniqueIndex"`
	UserID       string `gorm:"index"`
	Minutes      uint32
	Steps        uint32
	ActivityDate string
	RecordedBy   string
	RecordedAt   time.Time
}

func (activityRow) TableName() string { return "ledger_activities" }

// Store provides SQLite-backed persistence for the ledger.
type Store struct {
	db *gorm.DB
}

var _ domain.Store = (*Store)(nil)

// Open opens (creating if needed) the ledger database at path and migrates its schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger %s: %w", path, err)
	}
	if err := db.AutoMigrate(&settingsRow{}, &adminRow{}, &userRow{}, &activityRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite ledger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Load reads the full ledger state.
func (s *Store) Load(ctx context.Context) (domain.Snapshot, error) {
	snap := domain.Snapshot{Users: make(map[domain.UserID]uint32)}
	db := s.db.WithContext(ctx)

	var settings settingsRow
	err := db.First(&settings, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	snap.Initialized = true
	snap.Thresholds = domain.Thresholds{MinActiveMinutes: settings.MinActiveMinutes, MinSteps: settings.MinSteps}

	var admins []adminRow
	if err := db.Order("position").Find(&admins).Error; err != nil {
		return snap, err
	}
	for _, a := range admins {
		snap.Admins = append(snap.Admins, domain.Principal(a.Principal))
	}

	var users []userRow
	if err := db.Find(&users).Error; err != nil {
		return snap, err
	}
	for _, u := range users {
		snap.Users[domain.UserID(u.UserID)] = u.ActivityCount
	}

	var activities []activityRow
	if err := db.Order("seq").Find(&activities).Error; err != nil {
		return snap, err
	}
	for _, a := range activities {
		snap.Records = append(snap.Records, domain.ActivityRecord{
			ID:         a.ActivityID,
			Seq:        a.Seq,
			UserID:     domain.UserID(a.UserID),
			Minutes:    a.Minutes,
			Steps:      a.Steps,
			Date:       a.ActivityDate,
			RecordedBy: domain.Principal(a.RecordedBy),
			RecordedAt: a.RecordedAt.UTC(),
		})
	}
	return snap, nil
}

// Initialize writes the genesis admins and thresholds.
func (s *Store) Initialize(ctx context.Context, admins []domain.Principal, thresholds domain.Thresholds) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		settings := settingsRow{
			ID:               1,
			MinActiveMinutes: thresholds.MinActiveMinutes,
			MinSteps:         thresholds.MinSteps,
			InitializedAt:    time.Now().UTC(),
		}
		if err := tx.Create(&settings).Error; err != nil {
			return err
		}
		return replaceAdmins(tx, admins)
	})
}

// SaveAdmins replaces the admin set.
func (s *Store) SaveAdmins(ctx context.Context, admins []domain.Principal) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceAdmins(tx, admins)
	})
}

func replaceAdmins(tx *gorm.DB, admins []domain.Principal) error {
	if err := tx.Where("1 = 1").Delete(&adminRow{}).Error; err != nil {
		return err
	}
	for i, admin := range admins {
		if err := tx.Create(&adminRow{Principal: string(admin), Position: i}).Error; err != nil {
			return err
		}
	}
	return nil
}

// SaveThresholds updates the thresholds.
func (s *Store) SaveThresholds(ctx context.Context, thresholds domain.Thresholds) error {
	res := s.db.WithContext(ctx).Model(&settingsRow{}).Where("id = ?", 1).Updates(map[string]interface{}{
		"min_active_minutes": thresholds.MinActiveMinutes,
		"min_steps":          thresholds.MinSteps,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errors.New("ledger is not initialized")
	}
	return nil
}

// SaveUser registers user, resetting its counter.
func (s *Store) SaveUser(ctx context.Context, user domain.UserID, registeredAt time.Time) error {
	row := userRow{UserID: string(user), ActivityCount: 0, RegisteredAt: registeredAt}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"activity_count", "registered_at"}),
	}).Create(&row).Error
}

// AppendActivity inserts the record and sets the user's counter in one transaction.
func (s *Store) AppendActivity(ctx context.Context, rec domain.ActivityRecord, count uint32) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := activityRow{
			Seq:          rec.Seq,
			ActivityID:   rec.ID,
			UserID:       string(rec.UserID),
			Minutes:      rec.Minutes,
			Steps:        rec.Steps,
			ActivityDate: rec.Date,
			RecordedBy:   string(rec.RecordedBy),
			RecordedAt:   rec.RecordedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		res := tx.Model(&userRow{}).Where("user_id = ?", string(rec.UserID)).Update("activity_count", count)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: %s", domain.ErrUserNotFound, rec.UserID)
		}
		return nil
	})
}
