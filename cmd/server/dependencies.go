package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/kafka"
	appredis "github.com/Ramsey-B/trellis/pkg/redis"
)

type databaseDependency struct {
	app *app
}

func (d *databaseDependency) GetName() string     { return "database" }
func (d *databaseDependency) DependsOn() []string { return nil }

func (d *databaseDependency) Start(ctx context.Context) error {
	cfg := d.app.cfg
	db, err := database.Open(ctx, database.PoolConfig{
		Driver:          "postgres",
		DSN:             cfg.DatabaseDSN(),
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, d.app.logger)
	if err != nil {
		return err
	}
	d.app.db = db
	return nil
}

func (d *databaseDependency) Stop(context.Context) error {
	if d.app.db == nil {
		return nil
	}
	return d.app.db.Close()
}

type migrationDependency struct {
	app *app
}

func (d *migrationDependency) GetName() string     { return "migrations" }
func (d *migrationDependency) DependsOn() []string { return []string{"database"} }

func (d *migrationDependency) Start(context.Context) error {
	cfg := d.app.cfg
	migrations := database.NewMigrationService(d.app.logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return migrations.Migrate(cfg.DatabaseName, d.app.db)
}

func (d *migrationDependency) Stop(context.Context) error { return nil }

type redisDependency struct {
	app *app
}

func (d *redisDependency) GetName() string     { return "redis" }
func (d *redisDependency) DependsOn() []string { return nil }

func (d *redisDependency) Start(ctx context.Context) error {
	cfg := d.app.cfg
	client, err := appredis.NewClient(ctx, appredis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, d.app.logger)
	if err != nil {
		return err
	}
	d.app.redis = client
	return nil
}

func (d *redisDependency) Stop(context.Context) error {
	if d.app.redis == nil {
		return nil
	}
	return d.app.redis.Close()
}

type kafkaDependency struct {
	app *app
}

func (d *kafkaDependency) GetName() string     { return "kafka" }
func (d *kafkaDependency) DependsOn() []string { return nil }

func (d *kafkaDependency) Start(context.Context) error {
	if strings.TrimSpace(d.app.cfg.KafkaBrokers) == "" {
		return errors.New("no kafka brokers configured")
	}
	d.app.producer = kafka.NewProducer(kafka.ParseConfig(d.app.cfg.KafkaBrokers, d.app.cfg.KafkaJobsTopic), d.app.logger)
	return nil
}

func (d *kafkaDependency) Stop(context.Context) error {
	if d.app.producer == nil {
		return nil
	}
	return d.app.producer.Close()
}

// httpDependency wires the services over the started infrastructure and serves the API.
type httpDependency struct {
	app *app
}

func (d *httpDependency) GetName() string { return "http" }
func (d *httpDependency) DependsOn() []string {
	return []string{"migrations", "redis", "kafka"}
}

func (d *httpDependency) Start(ctx context.Context) error {
	if err := d.app.buildServer(ctx); err != nil {
		return err
	}

	go func() {
		if err := d.app.echo.StartServer(d.app.server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.app.serverErrors <- fmt.Errorf("http server: %w", err)
		}
	}()
	d.app.checker.SetReady(true)
	return nil
}

func (d *httpDependency) Stop(ctx context.Context) error {
	if d.app.echo == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return d.app.echo.Shutdown(ctx)
}
