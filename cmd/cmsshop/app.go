package main

import (
	"context"
	"fmt"
	"time"

	"github.com/example/cmsshop/pkg/catalog"
	"github.com/example/cmsshop/pkg/checkout"
	"github.com/example/cmsshop/pkg/config"
	"github.com/example/cmsshop/pkg/database"
	"github.com/example/cmsshop/pkg/logging"
	"github.com/example/cmsshop/pkg/menu"
	"github.com/example/cmsshop/pkg/payment"
	"github.com/example/cmsshop/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds the connections and services shared by the sub-commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	redis  *repository.RedisRepository
	mongo  *repository.MongoRepository

	menus    *menu.Manager
	catalog  *catalog.Service
	checkout *checkout.Service
}

func loadBase() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// newApp connects to every store. Redis and MongoDB are optional: when they
// cannot be reached the services run without the tree cache, event
// de-duplication or audit log.
func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadBase()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, db: db}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a.redis = repository.NewRedisRepository(&cfg.Redis)
	if err := a.redis.Ping(pingCtx); err != nil {
		logger.Warn("Redis connection failed, running without cache", zap.Error(err))
		_ = a.redis.Close()
		a.redis = nil
	} else {
		logger.Info("Redis connected successfully")
	}

	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB, cfg.Server.Name)
	if err == nil {
		err = mongoRepo.Ping(pingCtx)
		if err != nil {
			_ = mongoRepo.Close(ctx)
		}
	}
	if err != nil {
		logger.Warn("MongoDB connection failed, running without audit log", zap.Error(err))
	} else {
		a.mongo = mongoRepo
		logger.Info("MongoDB connected successfully")
	}

	var menuOpts []menu.Option
	checkoutOpts := []checkout.Option{checkout.WithCurrency(cfg.Payment.Currency)}
	if a.redis != nil {
		menuOpts = append(menuOpts, menu.WithCache(a.redis))
		checkoutOpts = append(checkoutOpts, checkout.WithEventLog(a.redis))
	}
	if a.mongo != nil {
		menuOpts = append(menuOpts, menu.WithAuditor(a.mongo))
		checkoutOpts = append(checkoutOpts, checkout.WithAuditor(a.mongo))
	}

	a.menus = menu.NewManager(menu.NewGormRepository(db), logger.Named("menu"), menuOpts...)
	a.catalog = catalog.NewService(catalog.NewGormStore(db), logger.Named("catalog"))
	a.checkout = checkout.NewService(
		checkout.NewGormStore(db),
		payment.NewStripeProcessor(&cfg.Payment, logger.Named("stripe")),
		logger.Named("checkout"),
		checkoutOpts...,
	)
	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.mongo != nil {
		_ = a.mongo.Close(ctx)
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}
