// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package mongodb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/qolzam/kinit-dal/internal/database/interfaces"
	"github.com/qolzam/kinit-dal/internal/database/utils"
	"github.com/qolzam/kinit-dal/internal/pkg/log"
	"github.com/qolzam/kinit-dal/internal/platform/config"
)

// Server error codes reported on bad credentials or missing privileges.
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
)

// Client owns the driver connection and the configured database.
type Client struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewClient connects and pings the primary, retrying transient failures.
func NewClient(ctx context.Context, cfg *config.MongoConfig, policy *utils.RetryPolicy) (*Client, error) {
	clientOptions := options.Client().ApplyURI(buildConnectionURI(cfg))
	if cfg.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	}
	if cfg.Timeout > 0 {
		clientOptions.SetConnectTimeout(cfg.Timeout)
		clientOptions.SetServerSelectionTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	err = utils.ExecuteWithRetry(ctx, policy, "mongo ping", func(ctx context.Context) error {
		return MapError("ping", client.Ping(ctx, readpref.Primary()))
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Info("Connected to MongoDB at %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return &Client{client: client, database: client.Database(cfg.Database)}, nil
}

// NewClientFromDatabase wraps an already connected database handle.
func NewClientFromDatabase(db *mongo.Database) *Client {
	return &Client{client: db.Client(), database: db}
}

// buildConnectionURI prefers an explicit URI, otherwise builds a single-host one.
func buildConnectionURI(cfg *config.MongoConfig) string {
	if cfg.URI != "" {
		return cfg.URI
	}

	u := url.URL{Scheme: "mongodb", Host: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)}
	if cfg.Username != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			u.User = url.User(cfg.Username)
		}
	}
	return u.String()
}

func (c *Client) Database() *mongo.Database {
	return c.database
}

// Collection returns a handle on name in the configured database.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

func (c *Client) Ping(ctx context.Context) error {
	return MapError("ping", c.client.Ping(ctx, readpref.Primary()))
}

func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// MapError classifies driver errors. Network, timeout and authentication failures become
// StoreUnavailable; everything else is wrapped with op.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var repoErr *interfaces.RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	if isUnavailable(err) {
		return interfaces.StoreUnavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.HasErrorCode(codeAuthenticationFailed) || serverErr.HasErrorCode(codeUnauthorized)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
