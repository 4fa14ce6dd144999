// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/wfunc/bullscows/models"
)

// PostgresArchive 对局归档，写入 game_records 表
type PostgresArchive struct {
	db *sql.DB
}

// NewPostgresArchive 创建 PostgreSQL 归档连接
func NewPostgresArchive(dsn string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initArchiveTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresArchive{db: db}, nil
}

// initArchiveTables 初始化归档表结构
func initArchiveTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS game_records (
            id SERIAL PRIMARY KEY,
            room_id VARCHAR(64) UNIQUE NOT NULL,
            room_name VARCHAR(255) NOT NULL,
            winner_id VARCHAR(64),
            winner_team VARCHAR(1),
            players JSONB NOT NULL,
            guesses INTEGER NOT NULL,
            duration_ms BIGINT NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_game_records_created_at ON game_records(created_at);
        CREATE INDEX IF NOT EXISTS idx_game_records_players ON game_records USING GIN (players);
    `)
	return err
}

// SaveGameRecord 保存游戏记录。同一房间只保留第一条
func (p *PostgresArchive) SaveGameRecord(ctx context.Context, record *models.GameRecord) error {
	players, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
        INSERT INTO game_records (room_id, room_name, winner_id, winner_team, players, guesses, duration_ms, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (room_id) DO NOTHING
    `

	_, err = p.db.ExecContext(ctx, query,
		record.RoomID,
		record.RoomName,
		record.WinnerID,
		string(record.WinnerTeam),
		players,
		record.Guesses,
		record.Duration.Milliseconds(),
		record.CreatedAt,
	)
	return err
}

// PlayerStats 按显示名统计胜负
func (p *PostgresArchive) PlayerStats(ctx context.Context, displayName string) (wins, losses int, err error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter, err := json.Marshal([]map[string]string{{"display_name": displayName}})
	if err != nil {
		return 0, 0, err
	}

	query := `
        SELECT
            COALESCE(SUM(CASE WHEN p->>'outcome' = 'win' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN p->>'outcome' = 'lose' THEN 1 ELSE 0 END), 0)
        FROM game_records, jsonb_array_elements(players) AS p
        WHERE players @> $1 AND p->>'display_name' = $2
    `
	err = p.db.QueryRowContext(ctx, query, filter, displayName).Scan(&wins, &losses)
	return wins, losses, err
}

// Close 关闭数据库连接
func (p *PostgresArchive) Close() error {
	return p.db.Close()
}
