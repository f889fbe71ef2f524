// Package mirror keeps a remote shadow copy of the local dataset.
package mirror

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/observability"
	"github.com/mamadbah2/lambtrial/internal/repository"
)

const pushTimeout = 10 * time.Second

// Remote is the shadow copy the local store is mirrored to.
type Remote interface {
	Push(ctx context.Context, snap models.Snapshot, collections ...repository.Collection) error
	Pull(ctx context.Context) (snap models.Snapshot, found []repository.Collection, err error)
}

// Store wraps the local store. Writes land locally first; the touched
// collections are then pushed whole to the remote. A failed push is logged
// and counted but never fails the write.
type Store struct {
	local   repository.Store
	remote  Remote
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewStore builds the decorator. A nil remote disables mirroring.
func NewStore(local repository.Store, remote Remote, metrics *observability.Metrics, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{local: local, remote: remote, metrics: metrics, logger: logger}
}

// Snapshot reads from the local store.
func (s *Store) Snapshot(ctx context.Context) (models.Snapshot, error) {
	return s.local.Snapshot(ctx)
}

// Replace writes locally then mirrors the same collections.
func (s *Store) Replace(ctx context.Context, snap models.Snapshot, collections ...repository.Collection) error {
	if err := s.local.Replace(ctx, snap, collections...); err != nil {
		return err
	}
	for _, c := range collections {
		s.metrics.RecordWrite(string(c))
	}

	if s.remote == nil {
		return nil
	}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()

	if err := s.remote.Push(pushCtx, snap, collections...); err != nil {
		s.metrics.RecordMirrorFailure()
		s.logger.Error("mirror push failed", zap.Error(err), zap.Any("collections", collections))
		return nil
	}

	s.logger.Debug("collections mirrored", zap.Any("collections", collections))
	return nil
}

// PullIntoLocal replaces the local collections the remote holds a copy of.
// Collections missing from the remote keep their local contents. It returns
// the restored collections.
func (s *Store) PullIntoLocal(ctx context.Context) ([]repository.Collection, error) {
	if s.remote == nil {
		return nil, nil
	}

	snap, found, err := s.remote.Pull(ctx)
	if err != nil {
		return nil, fmt.Errorf("pull mirror: %w", err)
	}
	if len(found) == 0 {
		s.logger.Info("mirror is empty, keeping local dataset")
		return nil, nil
	}

	if err := s.local.Replace(ctx, snap, found...); err != nil {
		return nil, fmt.Errorf("restore local dataset: %w", err)
	}

	s.logger.Info("local dataset restored from mirror", zap.Any("collections", found))
	return found, nil
}

// PushAll copies every local collection to the remote, overwriting it.
func (s *Store) PushAll(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}

	snap, err := s.local.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("load local dataset: %w", err)
	}
	if err := s.remote.Push(ctx, snap, repository.AllCollections...); err != nil {
		s.metrics.RecordMirrorFailure()
		return fmt.Errorf("push mirror: %w", err)
	}

	s.logger.Info("local dataset pushed to mirror",
		zap.Int("animals", len(snap.Animals)),
		zap.Int("weighings", len(snap.Weighings)),
		zap.Int("feed", len(snap.FeedRecords)),
		zap.Int("incidents", len(snap.Incidents)))
	return nil
}
