// persistence/gorm.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/bullscows/config"
	"github.com/wfunc/bullscows/models"
)

// GormStore 使用GORM的房间状态存储，支持 PostgreSQL 和 SQLite
type GormStore struct {
	db     *gorm.DB
	locks  *roomLocks
	sqlite bool
}

func gormConfig() *gorm.Config {
	// 配置GORM日志
	gl := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)
	return &gorm.Config{Logger: gl, TranslateError: true}
}

// OpenPostgres 创建GORM PostgreSQL数据库连接
func OpenPostgres(cfg config.PostgresConfig) (*GormStore, error) {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslmode)

	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewGormStore(db)
}

// OpenSQLite opens a sqlite database file, or an in-memory database for
// DSNs like "file:name?mode=memory&cache=shared".
func OpenSQLite(dsn string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	return NewGormStore(db)
}

// NewGormStore 迁移表结构并返回存储
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(
		&models.GormRoom{},
		&models.GormPlayer{},
		&models.GormGuess{},
		&models.GormTeamStrategy{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{
		db:     db,
		locks:  newRoomLocks(),
		sqlite: db.Dialector.Name() == "sqlite",
	}, nil
}

func (s *GormStore) withTx(tx *gorm.DB) *GormStore {
	return &GormStore{db: tx, locks: s.locks, sqlite: s.sqlite}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

func (s *GormStore) CreateRoom(ctx context.Context, room *models.Room) error {
	err := s.db.WithContext(ctx).Create(models.NewGormRoom(room)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (s *GormStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var r models.GormRoom
	if err := s.db.WithContext(ctx).Where("id = ?", roomID).First(&r).Error; err != nil {
		return nil, notFound(err)
	}
	return r.ToDomain(), nil
}

func (s *GormStore) ListRooms(ctx context.Context, statuses ...models.RoomStatus) ([]*models.Room, error) {
	q := s.db.WithContext(ctx).Order("created_at ASC, id ASC")
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		q = q.Where("status IN ?", names)
	}
	var rows []models.GormRoom
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	rooms := make([]*models.Room, len(rows))
	for i := range rows {
		rooms[i] = rows[i].ToDomain()
	}
	return rooms, nil
}

func (s *GormStore) AddPlayer(ctx context.Context, player *models.Player) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.GormRoom{}).Where("id = ?", player.RoomID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrRecordNotFound
	}
	err := s.db.WithContext(ctx).Create(models.NewGormPlayer(player)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (s *GormStore) GetPlayer(ctx context.Context, roomID, playerID string) (*models.Player, error) {
	var p models.GormPlayer
	if err := s.db.WithContext(ctx).Where("room_id = ? AND id = ?", roomID, playerID).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return p.ToDomain(), nil
}

func (s *GormStore) FindPlayerByName(ctx context.Context, roomID, displayName string) (*models.Player, error) {
	var p models.GormPlayer
	if err := s.db.WithContext(ctx).Where("room_id = ? AND display_name = ?", roomID, displayName).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return p.ToDomain(), nil
}

func (s *GormStore) ListPlayers(ctx context.Context, roomID string) ([]*models.Player, error) {
	var rows []models.GormPlayer
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("joined_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	players := make([]*models.Player, len(rows))
	for i := range rows {
		players[i] = rows[i].ToDomain()
	}
	return players, nil
}

func (s *GormStore) UpdatePlayerTeam(ctx context.Context, roomID, playerID string, team models.Team) error {
	res := s.db.WithContext(ctx).Model(&models.GormPlayer{}).
		Where("room_id = ? AND id = ?", roomID, playerID).
		Update("team", string(team))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// casRoom runs a conditional update on one room row and reports whether it
// matched.
func (s *GormStore) casRoom(ctx context.Context, roomID string, cond string, args []any, values map[string]any) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.GormRoom{}).
		Where("id = ?", roomID).
		Where(cond, args...).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return false, err
	}
	return false, nil
}

func turnValues(turn models.Turn) map[string]any {
	return map[string]any{
		"current_turn_player": turn.PlayerID,
		"current_turn_team":   string(turn.Team),
		"turn_epoch":          turn.Epoch,
	}
}

var secretStatuses = []string{string(models.StatusWaiting), string(models.StatusSettingNumbers)}

func (s *GormStore) CompareAndSwapStatus(ctx context.Context, roomID string, from, to models.RoomStatus) (bool, error) {
	return s.casRoom(ctx, roomID, "status = ?", []any{string(from)},
		map[string]any{"status": string(to)})
}

func (s *GormStore) SetTeamSecret(ctx context.Context, roomID string, team models.Team, secret, setBy string) (bool, error) {
	var secretCol, setByCol string
	switch team {
	case models.TeamA:
		secretCol, setByCol = "team_a_secret", "team_a_set_by"
	case models.TeamB:
		secretCol, setByCol = "team_b_secret", "team_b_set_by"
	default:
		return false, nil
	}
	// 设置者必须仍在该队，换队与设置密码不能交错
	return s.casRoom(ctx, roomID,
		"status IN ? AND ("+secretCol+" = '' OR "+secretCol+" IS NULL)"+
			" AND EXISTS (SELECT 1 FROM players WHERE players.room_id = rooms.id AND players.id = ? AND players.team = ?)",
		[]any{secretStatuses, setBy, string(team)},
		map[string]any{secretCol: secret, setByCol: setBy})
}

func (s *GormStore) StartGame(ctx context.Context, roomID string, turn models.Turn) (bool, error) {
	values := turnValues(turn)
	values["status"] = string(models.StatusPlaying)
	return s.casRoom(ctx, roomID,
		"status IN ? AND team_a_secret <> '' AND team_b_secret <> ''", []any{secretStatuses},
		values)
}

func (s *GormStore) AdvanceTurn(ctx context.Context, roomID string, fence int64, turn models.Turn) (bool, error) {
	return s.casRoom(ctx, roomID, "status = ? AND turn_epoch = ?",
		[]any{string(models.StatusPlaying), fence}, turnValues(turn))
}

var errFenceLost = errors.New("turn fence lost")

func (s *GormStore) CommitGuess(ctx context.Context, guess *models.Guess, fence int64, next *models.Turn) (bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var values map[string]any
		if next == nil {
			// 结束后没有当前回合
			values = turnValues(models.Turn{})
			values["status"] = string(models.StatusFinished)
		} else {
			values = turnValues(*next)
		}
		res := tx.Model(&models.GormRoom{}).
			Where("id = ? AND status = ? AND turn_epoch = ?", guess.RoomID, string(models.StatusPlaying), fence).
			Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errFenceLost
		}

		if next == nil {
			res = tx.Model(&models.GormPlayer{}).
				Where("room_id = ? AND id = ?", guess.RoomID, guess.PlayerID).
				Update("is_winner", true)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return ErrRecordNotFound
			}
		}
		return tx.Create(models.NewGormGuess(guess)).Error
	})
	if errors.Is(err, errFenceLost) {
		if _, gerr := s.GetRoom(ctx, guess.RoomID); gerr != nil {
			return false, gerr
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *GormStore) ListGuesses(ctx context.Context, roomID string) ([]*models.Guess, error) {
	var rows []models.GormGuess
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("timestamp ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	guesses := make([]*models.Guess, len(rows))
	for i := range rows {
		guesses[i] = rows[i].ToDomain()
	}
	return guesses, nil
}

func (s *GormStore) GetStrategy(ctx context.Context, roomID string, team models.Team) (*models.TeamStrategy, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	initial := models.NewTeamStrategy(roomID, team)
	initial.UpdatedAt = time.Now().UTC()
	rec, err := models.NewGormTeamStrategy(initial)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error; err != nil {
		return nil, err
	}

	var row models.GormTeamStrategy
	if err := s.db.WithContext(ctx).Where("room_id = ? AND team = ?", roomID, string(team)).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.ToDomain(), nil
}

func (s *GormStore) UpdateStrategy(ctx context.Context, ts *models.TeamStrategy, expected int) (bool, error) {
	rec, err := models.NewGormTeamStrategy(ts)
	if err != nil {
		return false, err
	}
	res := s.db.WithContext(ctx).Model(&models.GormTeamStrategy{}).
		Where("room_id = ? AND team = ? AND version = ?", ts.RoomID, string(ts.Team), expected).
		Updates(map[string]any{
			"notes":       rec.Notes,
			"slot_digits": rec.SlotDigits,
			"draft_guess": rec.DraftGuess,
			"version":     rec.Version,
			"last_editor": rec.LastEditor,
			"updated_at":  rec.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// WithRoomLock serializes fn in-process and, on postgres, also holds the room
// row lock for the duration of the transaction.
func (s *GormStore) WithRoomLock(ctx context.Context, roomID string, fn func(Store) error) error {
	unlock := s.locks.lock(roomID)
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if !s.sqlite {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var r models.GormRoom
		if err := q.Where("id = ?", roomID).First(&r).Error; err != nil {
			return notFound(err)
		}
		return fn(s.withTx(tx))
	})
}

// Close 关闭数据库连接
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
