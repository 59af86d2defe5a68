package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/coversync/coversync-server/internal/domain"
)

// SaveLastReport overwrites the stored report of the most recent pass.
func (s *Store) SaveLastReport(ctx context.Context, r *domain.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set([]byte(lastReportKey), r)
}

// LastReport returns the most recent pass report, or nil when no pass has completed.
func (s *Store) LastReport(ctx context.Context) (*domain.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var r domain.Report
	err := s.get([]byte(lastReportKey), &r)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last report: %w", err)
	}
	return &r, nil
}
