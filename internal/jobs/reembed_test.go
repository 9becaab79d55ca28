package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/service"
)

// MockReembedRepository is a mock implementation of ReembedRepository
type MockReembedRepository struct {
	mock.Mock
}

func (m *MockReembedRepository) ListForReembed(ctx context.Context, primaryTier string, maxFailures, limit int) ([]*domain.Document, error) {
	args := m.Called(ctx, primaryTier, maxFailures, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockReembedRepository) IncrementReembedFailures(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockReprocessor is a mock implementation of Reprocessor
type MockReprocessor struct {
	mock.Mock
}

func (m *MockReprocessor) Reprocess(ctx context.Context, sourceID string) (*service.IngestResult, error) {
	args := m.Called(ctx, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestResult), args.Error(1)
}

func staleDoc(id string, failures int) *domain.Document {
	return &domain.Document{
		ID:              id,
		ObjectKey:       "sources/" + id,
		EmbeddingTier:   "local",
		ReembedFailures: failures,
	}
}

func reembedded(id string) *service.IngestResult {
	return &service.IngestResult{ID: id, ChunkCount: 2, EmbeddingTier: "dedicated"}
}

func newTestReembedWorker(repo *MockReembedRepository, svc *MockReprocessor) *ReembedWorker {
	return NewReembedWorker(repo, svc, ReembedConfig{PrimaryTier: "dedicated"}, nil)
}

func TestReembedWorker_NothingToDo(t *testing.T) {
	repo := new(MockReembedRepository)
	svc := new(MockReprocessor)
	repo.On("ListForReembed", mock.Anything, "dedicated", DefaultMaxReembedFailures, DefaultReembedBatch).
		Return([]*domain.Document{}, nil)

	stats, err := newTestReembedWorker(repo, svc).RunRound(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ReembedStats{}, stats)
	svc.AssertNotCalled(t, "Reprocess", mock.Anything, mock.Anything)
}

func TestReembedWorker_ReembedsEveryCandidate(t *testing.T) {
	repo := new(MockReembedRepository)
	svc := new(MockReprocessor)
	repo.On("ListForReembed", mock.Anything, "dedicated", 3, 10).
		Return([]*domain.Document{staleDoc("a", 0), staleDoc("b", 1)}, nil)
	svc.On("Reprocess", mock.Anything, "a").Return(reembedded("a"), nil)
	svc.On("Reprocess", mock.Anything, "b").Return(reembedded("b"), nil)

	stats, err := newTestReembedWorker(repo, svc).RunRound(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ReembedStats{Candidates: 2, Reembedded: 2}, stats)
	svc.AssertExpectations(t)
	repo.AssertNotCalled(t, "IncrementReembedFailures", mock.Anything, mock.Anything)
}

func TestReembedWorker_StopsWhenPrimaryTierStillDown(t *testing.T) {
	repo := new(MockReembedRepository)
	svc := new(MockReprocessor)
	repo.On("ListForReembed", mock.Anything, "dedicated", 3, 10).
		Return([]*domain.Document{staleDoc("a", 0), staleDoc("b", 0)}, nil)
	svc.On("Reprocess", mock.Anything, "a").
		Return(&service.IngestResult{ID: "a", ChunkCount: 2, EmbeddingTier: "local"}, nil)

	stats, err := newTestReembedWorker(repo, svc).RunRound(context.Background())

	require.NoError(t, err)
	assert.True(t, stats.Deferred)
	assert.Zero(t, stats.Reembedded)
	svc.AssertNotCalled(t, "Reprocess", mock.Anything, "b")
}

func TestReembedWorker_OutageDefersWithoutCountingFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"embedding unavailable", domain.EmbeddingUnavailable(errors.New("all tiers failed"))},
		{"index unavailable", domain.IndexUnavailable("insert", errors.New("connection refused"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockReembedRepository)
			svc := new(MockReprocessor)
			repo.On("ListForReembed", mock.Anything, "dedicated", 3, 10).
				Return([]*domain.Document{staleDoc("a", 0), staleDoc("b", 0)}, nil)
			svc.On("Reprocess", mock.Anything, "a").Return(nil, tt.err)

			stats, err := newTestReembedWorker(repo, svc).RunRound(context.Background())

			require.NoError(t, err)
			assert.True(t, stats.Deferred)
			repo.AssertNotCalled(t, "IncrementReembedFailures", mock.Anything, mock.Anything)
			svc.AssertNotCalled(t, "Reprocess", mock.Anything, "b")
		})
	}
}

func TestReembedWorker_DocumentFailureIsCountedAndRoundContinues(t *testing.T) {
	repo := new(MockReembedRepository)
	svc := new(MockReprocessor)
	repo.On("ListForReembed", mock.Anything, "dedicated", 3, 10).
		Return([]*domain.Document{staleDoc("gone", 2), staleDoc("b", 0)}, nil)
	svc.On("Reprocess", mock.Anything, "gone").
		Return(nil, domain.NewDomainError(domain.ErrCodeNotFound, "stored source not found"))
	svc.On("Reprocess", mock.Anything, "b").Return(reembedded("b"), nil)
	repo.On("IncrementReembedFailures", mock.Anything, "gone").Return(nil)

	stats, err := newTestReembedWorker(repo, svc).RunRound(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ReembedStats{Candidates: 2, Reembedded: 1, Failed: 1}, stats)
	repo.AssertExpectations(t)
	svc.AssertExpectations(t)
}

func TestReembedWorker_ListError(t *testing.T) {
	repo := new(MockReembedRepository)
	svc := new(MockReprocessor)
	repo.On("ListForReembed", mock.Anything, "dedicated", 3, 10).Return(nil, errors.New("database error"))

	err := newTestReembedWorker(repo, svc).Process(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list documents for re-embedding")
}

func TestReembedWorker_CancelledContext(t *testing.T) {
	repo := new(MockReembedRepository)
	svc := new(MockReprocessor)
	repo.On("ListForReembed", mock.Anything, "dedicated", 3, 10).
		Return([]*domain.Document{staleDoc("a", 0)}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestReembedWorker(repo, svc).RunRound(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	svc.AssertNotCalled(t, "Reprocess", mock.Anything, mock.Anything)
}

func TestNewReembedWorker_Defaults(t *testing.T) {
	w := NewReembedWorker(nil, nil, ReembedConfig{PrimaryTier: "dedicated", BatchSize: -1}, nil)

	assert.Equal(t, DefaultReembedBatch, w.cfg.BatchSize)
	assert.Equal(t, DefaultMaxReembedFailures, w.cfg.MaxFailures)
	assert.NotNil(t, w.logger)
}
