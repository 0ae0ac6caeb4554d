package persistence

import (
	"fmt"

	"github.com/erp/qbconnector/internal/domain/connector"
)

// storeError tags a storage failure so callers can match connector.ErrStoreUnavailable
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, connector.ErrStoreUnavailable, err)
}
