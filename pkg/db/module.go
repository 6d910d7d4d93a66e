package db

import (
	"context"
	"time"

	"github.com/smallbiznis/metering/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// EventDB wraps the gorm handle for the ingestion event store. The event
// store is a separate database owned by the ingestion pipeline and is only
// ever read from here.
type EventDB struct {
	*gorm.DB
}

var Module = fx.Module("db",
	fx.Provide(
		providePrimary,
		provideEventStore,
	),
)

func providePrimary(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	conn, err := open(Config{
		Type:            cfg.DBType,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	log.Named("db").Info("primary database connected",
		zap.String("type", cfg.DBType),
		zap.String("name", cfg.DBName),
	)

	registerClose(lc, conn)
	return conn, nil
}

func provideEventStore(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (EventDB, error) {
	conn, err := open(Config{
		Type:            cfg.EventDBType,
		Host:            cfg.EventDBHost,
		Port:            cfg.EventDBPort,
		Name:            cfg.EventDBName,
		User:            cfg.EventDBUser,
		Password:        cfg.EventDBPassword,
		SSLMode:         cfg.EventDBSSLMode,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return EventDB{}, err
	}

	log.Named("db").Info("event store connected",
		zap.String("type", cfg.EventDBType),
		zap.String("name", cfg.EventDBName),
	)

	registerClose(lc, conn)
	return EventDB{DB: conn}, nil
}

func open(cfg Config) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return conn, nil
}

func registerClose(lc fx.Lifecycle, conn *gorm.DB) {
	if lc == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
}
