// Package testutil starts throwaway PostgreSQL, MongoDB and Redis containers for
// integration tests. Tests using it are skipped unless RUN_DB_TESTS=1.
package testutil

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofrs/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/qolzam/kinit-dal/internal/broker"
	"github.com/qolzam/kinit-dal/internal/database/mongodb"
	"github.com/qolzam/kinit-dal/internal/database/postgres"
	"github.com/qolzam/kinit-dal/internal/database/utils"
	"github.com/qolzam/kinit-dal/internal/platform/config"
)

// EnvRunDBTests enables integration tests when set to "1".
const EnvRunDBTests = "RUN_DB_TESTS"

// RequireDBTests skips t unless integration tests are enabled.
func RequireDBTests(t testing.TB) {
	t.Helper()
	if os.Getenv(EnvRunDBTests) != "1" {
		t.Skip("RUN_DB_TESTS not set, skipping database test")
	}
}

// Environment holds shared connections to the test containers.
type Environment struct {
	Config   *config.Config
	Postgres *postgres.Client
	Mongo    *mongodb.Client
	Redis    redis.UniversalClient
}

var (
	envOnce   sync.Once
	sharedEnv *Environment
	envErr    error
)

// Setup starts the containers once per test binary and returns the shared environment.
// The containers live until the process exits.
func Setup(t *testing.T) *Environment {
	t.Helper()
	RequireDBTests(t)

	envOnce.Do(func() {
		sharedEnv, envErr = start()
	})
	if envErr != nil {
		t.Fatalf("testutil: failed to set up test stores: %v", envErr)
	}
	return sharedEnv
}

func start() (*Environment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	var pg, mg, rd endpoint
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pg, err = startPostgres(gctx)
		return err
	})
	g.Go(func() (err error) {
		mg, err = startMongo(gctx)
		return err
	})
	g.Go(func() (err error) {
		rd, err = startRedis(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cfg, err := config.LoadFromMap(map[string]string{
		"POSTGRES_HOST":     pg.host,
		"POSTGRES_PORT":     pg.port,
		"POSTGRES_USER":     postgresUser,
		"POSTGRES_PASSWORD": postgresPassword,
		"POSTGRES_DATABASE": postgresDatabase,
		"POSTGRES_SSL_MODE": "disable",
		"MONGO_HOST":        mg.host,
		"MONGO_PORT":        mg.port,
		"MONGO_DATABASE":    "kinit_test",
		"REDIS_ADDRESSES":   rd.host + ":" + rd.port,
		"DB_RETRY_ATTEMPTS": "5",
	})
	if err != nil {
		return nil, err
	}

	policy := utils.NewRetryPolicy(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay)
	env := &Environment{Config: cfg}
	if env.Postgres, err = postgres.NewClient(ctx, &cfg.Postgres, policy); err != nil {
		return nil, err
	}
	if err := migrate(ctx, env.Postgres); err != nil {
		return nil, err
	}
	if env.Mongo, err = mongodb.NewClient(ctx, &cfg.Mongo, policy); err != nil {
		return nil, err
	}
	if env.Redis, err = broker.Connect(ctx, &cfg.Redis, policy); err != nil {
		return nil, err
	}
	return env, nil
}

// ResetPostgres truncates every migrated table and restarts their id sequences.
func (e *Environment) ResetPostgres(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	var tables []string
	err := e.Postgres.DB().SelectContext(ctx, &tables,
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename <> 'goose_db_version'`)
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	if len(tables) == 0 {
		return
	}
	if _, err := e.Postgres.DB().ExecContext(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

// MongoDatabase returns a client bound to a database private to t, dropped on cleanup.
func (e *Environment) MongoDatabase(t *testing.T) *mongodb.Client {
	t.Helper()
	db := e.Mongo.Database().Client().Database(uniqueName(t))
	t.Cleanup(func() {
		if err := db.Drop(context.Background()); err != nil {
			t.Logf("drop %s: %v", db.Name(), err)
		}
	})
	return mongodb.NewClientFromDatabase(db)
}

// Channel returns a pub/sub channel name private to t.
func (e *Environment) Channel(t *testing.T) string {
	return uniqueName(t)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// SanitizeTestName turns a test name into an identifier usable as a database name.
func SanitizeTestName(name string) string {
	s := strings.ToLower(unsafeChars.ReplaceAllString(name, "_"))
	if len(s) > 32 {
		s = s[:32]
	}
	return strings.Trim(s, "_")
}

func uniqueName(t *testing.T) string {
	suffix := strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", "")[:12]
	return fmt.Sprintf("test_%s_%s", SanitizeTestName(t.Name()), suffix)
}
