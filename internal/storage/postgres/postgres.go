// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/solmirror/copybot/internal/storage"
	"github.com/solmirror/copybot/internal/storage/models"
	"github.com/solmirror/copybot/internal/types"
)

// gormLogger adapts zap to gorm's logger.Interface.
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}

	if l.logLevel >= logger.Info {
		l.zapLogger.Info("trace", fields...)
	}
}

type postgresStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStore(dsn string, zapLogger *zap.Logger) (storage.Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &postgresStore{
		db:     db,
		logger: zapLogger,
	}, nil
}

func (p *postgresStore) RunMigrations() error {
	var lockObtained bool
	err := p.db.Raw("SELECT pg_try_advisory_lock(101)").Scan(&lockObtained).Error
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !lockObtained {
		return fmt.Errorf("another migration is in progress")
	}
	defer p.db.Exec("SELECT pg_advisory_unlock(101)")

	if err := p.db.AutoMigrate(&models.Position{}, &models.Trade{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (p *postgresStore) CreatePositionWithTrade(ctx context.Context, position *models.Position, trade *models.Trade) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(position).Error; err != nil {
			return fmt.Errorf("failed to create position: %w", err)
		}

		trade.PositionID = position.ID
		if err := tx.Create(trade).Error; err != nil {
			return fmt.Errorf("failed to create trade: %w", err)
		}

		return nil
	})
}

func (p *postgresStore) UpdatePositionWithTrade(ctx context.Context, position *models.Position, trade *models.Trade) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trade.PositionID = position.ID
		if err := tx.Create(trade).Error; err != nil {
			return fmt.Errorf("failed to create trade: %w", err)
		}

		if err := tx.Save(position).Error; err != nil {
			return fmt.Errorf("failed to update position: %w", err)
		}

		return nil
	})
}

func (p *postgresStore) GetAllOpenedPositions(ctx context.Context) ([]*models.Position, error) {
	var positions []*models.Position
	err := p.db.WithContext(ctx).
		Where("status = ?", types.PositionOpened).
		Order("id desc").
		Find(&positions).Error
	return positions, err
}

func (p *postgresStore) GetOpenedPosition(ctx context.Context, mint, wallet string) (*models.Position, error) {
	var position models.Position
	err := p.db.WithContext(ctx).
		Where("mint = ? AND wallet = ? AND status = ?", mint, wallet, types.PositionOpened).
		Order("id desc").
		First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &position, nil
}

func (p *postgresStore) ListTradesByPosition(ctx context.Context, positionID uint) ([]*models.Trade, error) {
	var trades []*models.Trade
	err := p.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("id desc").
		Find(&trades).Error
	return trades, err
}
