package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techserve/support-api/internal/dto"
	"github.com/techserve/support-api/internal/model"
)

type mockServiceRepo struct {
	services map[uuid.UUID]*model.Service
}

func newMockServiceRepo() *mockServiceRepo {
	return &mockServiceRepo{services: make(map[uuid.UUID]*model.Service)}
}

func (m *mockServiceRepo) Create(_ context.Context, svc *model.Service) error {
	svc.ID = uuid.New()
	svc.CreatedAt = time.Now()
	svc.UpdatedAt = time.Now()
	m.services[svc.ID] = svc
	return nil
}

func (m *mockServiceRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Service, error) {
	return m.services[id], nil
}

func (m *mockServiceRepo) List(_ context.Context, limit, offset int, _, _, _ string, _ *uuid.UUID) ([]model.Service, int, error) {
	var all []model.Service
	for _, s := range m.services {
		all = append(all, *s)
	}
	total := len(all)
	if offset > len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *mockServiceRepo) Update(_ context.Context, svc *model.Service) error {
	if _, ok := m.services[svc.ID]; ok {
		m.services[svc.ID] = svc
	}
	return nil
}

func (m *mockServiceRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.services, id)
	return nil
}

func (m *mockServiceRepo) add(title string, price float64) *model.Service {
	svc := &model.Service{
		ID:              uuid.New(),
		CategoryID:      uuid.New(),
		Title:           title,
		Price:           decimal.NewFromFloat(price),
		DurationMinutes: 60,
		Active:          true,
	}
	m.services[svc.ID] = svc
	return svc
}

func TestCatalogService_Resolve_NotFound(t *testing.T) {
	svc := NewCatalogService(newMockServiceRepo(), nil)
	_, err := svc.Resolve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestCatalogService_Create(t *testing.T) {
	repo := newMockServiceRepo()
	svc := NewCatalogService(repo, nil)

	resp, err := svc.Create(context.Background(), dto.CreateServiceRequest{
		CategoryID:      uuid.New(),
		Title:           "Laptop diagnostics",
		Description:     "Full hardware checkup",
		Price:           decimal.NewFromFloat(49.99),
		DurationMinutes: 45,
	})
	require.NoError(t, err)
	assert.True(t, resp.Active)
	assert.Len(t, repo.services, 1)
}

func TestCatalogService_Update(t *testing.T) {
	repo := newMockServiceRepo()
	svc := NewCatalogService(repo, nil)
	existing := repo.add("Virus removal", 79.99)

	newTitle := "Malware removal"
	newPrice := decimal.NewFromFloat(89.99)
	resp, err := svc.Update(context.Background(), existing.ID, dto.UpdateServiceRequest{
		Title: &newTitle,
		Price: &newPrice,
	})
	require.NoError(t, err)
	assert.Equal(t, "Malware removal", resp.Title)
	assert.True(t, newPrice.Equal(resp.Price))
}

func TestCatalogService_Update_NotFound(t *testing.T) {
	svc := NewCatalogService(newMockServiceRepo(), nil)
	title := "x"
	_, err := svc.Update(context.Background(), uuid.New(), dto.UpdateServiceRequest{Title: &title})
	assert.ErrorIs(t, err, ErrServiceNotFound)
}
