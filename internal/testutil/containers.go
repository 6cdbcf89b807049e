package testutil

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/qolzam/kinit-dal/internal/database/postgres"
)

//go:embed testdata/migrations/*.sql
var migrations embed.FS

const (
	postgresUser     = "kinit"
	postgresPassword = "kinit"
	postgresDatabase = "kinit_test"
)

type endpoint struct {
	host string
	port string
}

func startContainer(ctx context.Context, req testcontainers.ContainerRequest) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start %s: %w", req.Image, err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("get %s host: %w", req.Image, err)
	}
	return container, host, nil
}

func startPostgres(ctx context.Context) (endpoint, error) {
	container, host, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDatabase,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	})
	if err != nil {
		return endpoint{}, err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return endpoint{}, fmt.Errorf("get postgres port: %w", err)
	}
	return endpoint{host: host, port: port.Port()}, nil
}

func startMongo(ctx context.Context) (endpoint, error) {
	container, host, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(60 * time.Second),
	})
	if err != nil {
		return endpoint{}, err
	}
	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		return endpoint{}, fmt.Errorf("get mongo port: %w", err)
	}
	return endpoint{host: host, port: port.Port()}, nil
}

func startRedis(ctx context.Context) (endpoint, error) {
	container, host, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	})
	if err != nil {
		return endpoint{}, err
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return endpoint{}, fmt.Errorf("get redis port: %w", err)
	}
	return endpoint{host: host, port: port.Port()}, nil
}

// migrate applies the embedded test schema with goose.
func migrate(ctx context.Context, client *postgres.Client) error {
	fsys, err := fs.Sub(migrations, "testdata/migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, client.DB().DB, fsys)
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
