// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"github.com/qolzam/kinit-dal/internal/database/interfaces"
)

// PostgreSQL error classes and codes treated as an unavailable store.
var unavailableClasses = map[pq.ErrorClass]struct{}{
	"08": {}, // connection exception
	"28": {}, // invalid authorization
	"53": {}, // insufficient resources
	"57": {}, // operator intervention (shutdown, cannot connect now)
}

// MapError classifies err for op. Connection, authentication and timeout failures become
// StoreUnavailable; everything else is wrapped with op. sql.ErrNoRows passes through
// wrapped so callers can still test for it.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if interfaces.ErrorCode(err) != "" {
		return err
	}
	if isUnavailable(err) {
		return interfaces.StoreUnavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		_, ok := unavailableClasses[pqErr.Code.Class()]
		return ok
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
