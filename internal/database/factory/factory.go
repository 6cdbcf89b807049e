// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package factory

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"github.com/qolzam/kinit-dal/internal/broker"
	"github.com/qolzam/kinit-dal/internal/database/mongodb"
	"github.com/qolzam/kinit-dal/internal/database/postgres"
	"github.com/qolzam/kinit-dal/internal/database/utils"
	"github.com/qolzam/kinit-dal/internal/pkg/log"
	"github.com/qolzam/kinit-dal/internal/platform/config"
	"github.com/qolzam/kinit-dal/internal/scheduler"
	"github.com/qolzam/kinit-dal/tasks/repository"
	"github.com/qolzam/kinit-dal/tasks/services"
)

// Store names a backing store the factory can connect.
type Store string

const (
	StorePostgres Store = "postgres"
	StoreMongo    Store = "mongo"
	StoreRedis    Store = "redis"
)

// AllStores lists every supported store.
var AllStores = []Store{StorePostgres, StoreMongo, StoreRedis}

// Stores holds the connected clients. A store that was not requested stays nil.
type Stores struct {
	Postgres *postgres.Client
	Mongo    *mongodb.Client
	Redis    redis.UniversalClient
}

// Factory builds store clients from configuration.
type Factory struct {
	cfg *config.Config
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{cfg: cfg}
}

// RetryPolicy is the connection retry policy derived from the configuration.
func (f *Factory) RetryPolicy() *utils.RetryPolicy {
	return utils.NewRetryPolicy(f.cfg.Retry.MaxAttempts, f.cfg.Retry.BaseDelay)
}

// Connect opens the requested stores concurrently. When any of them fails, the ones that
// did connect are closed again and the first error is returned.
func (f *Factory) Connect(ctx context.Context, stores ...Store) (*Stores, error) {
	for _, s := range stores {
		switch s {
		case StorePostgres, StoreMongo, StoreRedis:
		default:
			return nil, fmt.Errorf("unsupported store: %s", s)
		}
	}

	policy := f.RetryPolicy()
	out := &Stores{}
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range stores {
		switch s {
		case StorePostgres:
			g.Go(func() error {
				client, err := postgres.NewClient(gctx, &f.cfg.Postgres, policy)
				out.Postgres = client
				return err
			})
		case StoreMongo:
			g.Go(func() error {
				client, err := mongodb.NewClient(gctx, &f.cfg.Mongo, policy)
				out.Mongo = client
				return err
			})
		case StoreRedis:
			g.Go(func() error {
				client, err := broker.Connect(gctx, &f.cfg.Redis, policy)
				out.Redis = client
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		if closeErr := out.Close(context.Background()); closeErr != nil {
			log.Warn("closing partially connected stores: %v", closeErr)
		}
		return nil, err
	}
	return out, nil
}

// Close closes every connected store and joins their errors.
func (s *Stores) Close(ctx context.Context) error {
	var errs []error
	if s.Postgres != nil {
		errs = append(errs, s.Postgres.Close())
	}
	if s.Mongo != nil {
		errs = append(errs, s.Mongo.Close(ctx))
	}
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	return errors.Join(errs...)
}

// Bridge builds the job enqueue bridge on the connected broker.
func (f *Factory) Bridge(stores *Stores) (*scheduler.Bridge, error) {
	if stores.Redis == nil {
		return nil, errors.New("bridge requires the redis store")
	}
	return scheduler.NewBridge(stores.Redis, f.cfg.Scheduler), nil
}

// TaskService wires the task repository and the bridge.
func (f *Factory) TaskService(stores *Stores) (services.TaskService, error) {
	if stores.Mongo == nil {
		return nil, errors.New("task service requires the mongo store")
	}
	bridge, err := f.Bridge(stores)
	if err != nil {
		return nil, err
	}
	repo := repository.NewMongoRepository(stores.Mongo, f.cfg.Tasks, f.cfg.Location())
	return services.NewTaskService(repo, bridge), nil
}
