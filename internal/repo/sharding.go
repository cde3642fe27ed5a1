package repo

import (
	"context"
	"docuvault/config"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ShardingManager 按分片索引管理各存储节点的元数据库连接
// Each storage node owns database <DB_NAME>_shard_<i>; the reclamation worker
// reaches all of them through one manager.
type ShardingManager struct {
	shardCount int
	databases  map[int]*gorm.DB
	open       func(idx int) (*gorm.DB, error)
	log        logrus.FieldLogger
	mu         sync.RWMutex
}

// NewShardingManager opens shard databases lazily from cfg.
func NewShardingManager(cfg config.Config, shardCount int, log logrus.FieldLogger) *ShardingManager {
	return newShardingManager(shardCount, log, func(idx int) (*gorm.DB, error) {
		return OpenMysql(cfg, ShardDBName(cfg.DBName, idx))
	})
}

func newShardingManager(shardCount int, log logrus.FieldLogger, open func(int) (*gorm.DB, error)) *ShardingManager {
	return &ShardingManager{
		shardCount: shardCount,
		databases:  make(map[int]*gorm.DB),
		open:       open,
		log:        log.WithField("module", "sharding"),
	}
}

func (sm *ShardingManager) ShardCount() int {
	return sm.shardCount
}

// GetShardDB returns the connection for shard idx, opening it on first use.
func (sm *ShardingManager) GetShardDB(idx int) (*gorm.DB, error) {
	if idx < 0 || idx >= sm.shardCount {
		return nil, fmt.Errorf("shard index %d out of range [0, %d)", idx, sm.shardCount)
	}

	sm.mu.RLock()
	if db, ok := sm.databases[idx]; ok {
		sm.mu.RUnlock()
		return db, nil
	}
	sm.mu.RUnlock()

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// 双重检查
	if db, ok := sm.databases[idx]; ok {
		return db, nil
	}

	db, err := sm.open(idx)
	if err != nil {
		return nil, fmt.Errorf("connect shard %d: %w", idx, err)
	}
	sm.databases[idx] = db
	sm.log.WithField("shard", idx).Info("connected shard database")
	return db, nil
}

// Repositories returns one ObjectRepository per shard.
func (sm *ShardingManager) Repositories() ([]ObjectRepository, error) {
	repos := make([]ObjectRepository, 0, sm.shardCount)
	for i := 0; i < sm.shardCount; i++ {
		db, err := sm.GetShardDB(i)
		if err != nil {
			return nil, err
		}
		repos = append(repos, NewGormObjectRepository(db))
	}
	return repos, nil
}

// CloseShardConnections closes every opened shard connection.
func (sm *ShardingManager) CloseShardConnections() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var lastErr error
	for idx, db := range sm.databases {
		sqlDB, err := db.DB()
		if err != nil {
			sm.log.WithError(err).WithField("shard", idx).Warn("get database instance failed")
			continue
		}
		if err := sqlDB.Close(); err != nil {
			sm.log.WithError(err).WithField("shard", idx).Warn("close shard connection failed")
			lastErr = err
		}
	}

	sm.databases = make(map[int]*gorm.DB)
	return lastErr
}

// Ping checks every opened shard connection.
func (sm *ShardingManager) Ping(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for idx, db := range sm.databases {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("shard %d: %w", idx, err)
		}
	}
	return nil
}
