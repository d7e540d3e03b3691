// Package database 用 SQLite 持久化参考音频的音色向量，进程重启后无需重新提取。
package database

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iabetor/accentts/internal/logger"
)

// DB 是音色向量数据库连接，可并发使用。
type DB struct {
	*sql.DB
	path string
}

// Open 打开或创建数据库并完成迁移。
// dbPath 为空时使用 ~/.accentts/embeddings.db。
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			dbPath = filepath.Join(home, ".accentts", "embeddings.db")
		} else {
			dbPath = "./embeddings.db"
		}
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// WAL 模式允许读写并发
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}

	db := &DB{DB: sqlDB, path: dbPath}
	if err := db.Migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)
	return db, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 创建表结构，可重复执行。
func (db *DB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS reference_embeddings (
			path TEXT PRIMARY KEY,
			size INTEGER NOT NULL,
			mod_time INTEGER NOT NULL,
			dim INTEGER NOT NULL,
			embedding BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}
	return nil
}

// LookupEmbedding 返回 path 对应的音色向量。
// 文件大小或修改时间与记录不一致时视为过期，返回 false。
func (db *DB) LookupEmbedding(path string, size int64, modTime time.Time) ([]float32, bool, error) {
	var (
		storedSize, storedMod int64
		blob                  []byte
	)
	err := db.QueryRow(
		`SELECT size, mod_time, embedding FROM reference_embeddings WHERE path = ?`, path,
	).Scan(&storedSize, &storedMod, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("查询音色向量失败: %w", err)
	}

	if storedSize != size || storedMod != modTime.UnixNano() {
		logger.Debugf("[database] 参考音频已变化，忽略旧的音色向量: %s", path)
		return nil, false, nil
	}
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil, false, fmt.Errorf("音色向量数据损坏: %s (%d 字节)", path, len(blob))
	}
	return bytesToFloat32(blob), true, nil
}

// SaveEmbedding 写入或替换 path 对应的音色向量。
func (db *DB) SaveEmbedding(path string, size int64, modTime time.Time, vec []float32) error {
	if len(vec) == 0 {
		return errors.New("音色向量为空")
	}
	_, err := db.Exec(
		`INSERT INTO reference_embeddings (path, size, mod_time, dim, embedding)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mod_time = excluded.mod_time,
			dim = excluded.dim,
			embedding = excluded.embedding,
			created_at = CURRENT_TIMESTAMP`,
		path, size, modTime.UnixNano(), len(vec), float32ToBytes(vec),
	)
	if err != nil {
		return fmt.Errorf("保存音色向量失败: %w", err)
	}
	return nil
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}

// float32ToBytes 将 []float32 序列化为小端字节序 BLOB。
func float32ToBytes(data []float32) []byte {
	buf := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func bytesToFloat32(data []byte) []float32 {
	result := make([]float32, len(data)/4)
	for i := range result {
		result[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return result
}
