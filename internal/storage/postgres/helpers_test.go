// This file contains test helpers only available during testing.
package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from every table. It is intended for
// use in tests only. The method is defined in the postgres package (not
// the _test package) so it has access to the unexported db field.
func (s *RecordStore) TruncateForTest(ctx context.Context) error {
	for _, table := range []string{"records", "conflict_audit", "maintenance_runs"} {
		if _, err := s.db.ExecContext(ctx, "TRUNCATE TABLE "+table+" RESTART IDENTITY CASCADE"); err != nil {
			return fmt.Errorf("postgres: failed to truncate %s: %w", table, err)
		}
	}
	return nil
}
