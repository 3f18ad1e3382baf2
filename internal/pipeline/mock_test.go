package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/adscout/adscout-cli/internal/model"
	"github.com/adscout/adscout-cli/pkg/sscom"
)

// --- Store mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindActiveID(ctx context.Context, description, typ, year string) (int64, bool, error) {
	args := m.Called(ctx, description, typ, year)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *mockStore) InsertAdvert(ctx context.Context, c model.Candidate) (int64, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) ExpireAllExcept(ctx context.Context, survivorIDs []int64) (int64, error) {
	args := m.Called(ctx, survivorIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) CountByStatus(ctx context.Context) (map[model.AdvertStatus]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.AdvertStatus]int64), args.Error(1)
}

func (m *mockStore) ListRecent(ctx context.Context, limit int) ([]model.Advert, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Advert), args.Error(1)
}

func (m *mockStore) CreateScrapeRun(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockStore) CompleteScrapeRun(ctx context.Context, runID string, counters model.Counters) error {
	args := m.Called(ctx, runID, counters)
	return args.Error(0)
}

func (m *mockStore) FailScrapeRun(ctx context.Context, runID string, errMsg string) error {
	args := m.Called(ctx, runID, errMsg)
	return args.Error(0)
}

func (m *mockStore) ListScrapeRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScrapeRun), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Site client mock ---

type mockSite struct {
	mock.Mock
}

func (m *mockSite) FetchFiltered(ctx context.Context, f sscom.Filters) (string, error) {
	args := m.Called(ctx, f)
	return args.String(0), args.Error(1)
}

// --- Notifier mock ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyNewAdvert(ctx context.Context, c model.Candidate) {
	m.Called(ctx, c)
}
