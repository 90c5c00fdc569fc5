package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/techserve/support-api/internal/dto"
	"github.com/techserve/support-api/internal/model"
	"github.com/techserve/support-api/internal/repository"
)

var ErrServiceNotFound = errors.New("service not found")

const serviceCacheTTL = 60 * time.Second

type CatalogService struct {
	serviceRepo repository.ServiceRepository
	redisClient *redis.Client
}

func NewCatalogService(serviceRepo repository.ServiceRepository, redisClient *redis.Client) *CatalogService {
	return &CatalogService{serviceRepo: serviceRepo, redisClient: redisClient}
}

// Resolve fetches a catalog service by id, cache first. Cart loading calls
// this once per cart row, so the cache carries most of the read traffic.
func (s *CatalogService) Resolve(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	cacheKey := "service:" + id.String()

	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var svc model.Service
			if json.Unmarshal([]byte(cached), &svc) == nil {
				return &svc, nil
			}
		}
	}

	svc, err := s.serviceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	if svc == nil {
		return nil, ErrServiceNotFound
	}

	if s.redisClient != nil {
		if data, err := json.Marshal(svc); err == nil {
			s.redisClient.Set(ctx, cacheKey, data, serviceCacheTTL)
		}
	}

	return svc, nil
}

func (s *CatalogService) Create(ctx context.Context, req dto.CreateServiceRequest) (*dto.ServiceResponse, error) {
	svc := &model.Service{
		CategoryID:      req.CategoryID,
		Title:           req.Title,
		Description:     req.Description,
		Price:           req.Price,
		DurationMinutes: req.DurationMinutes,
		Active:          true,
	}
	if err := s.serviceRepo.Create(ctx, svc); err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	resp := toServiceResponse(svc)
	return &resp, nil
}

func (s *CatalogService) GetByID(ctx context.Context, id uuid.UUID) (*dto.ServiceResponse, error) {
	svc, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toServiceResponse(svc)
	return &resp, nil
}

func (s *CatalogService) List(ctx context.Context, req dto.ListServicesRequest) (*dto.ServiceListResponse, error) {
	offset := (req.Page - 1) * req.Limit
	services, total, err := s.serviceRepo.List(ctx, req.Limit, offset, req.Search, req.Sort, req.Order, req.CategoryID())
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	var items []dto.ServiceResponse
	for _, svc := range services {
		items = append(items, toServiceResponse(&svc))
	}

	return &dto.ServiceListResponse{Services: items, Total: total, Page: req.Page, Limit: req.Limit}, nil
}

func (s *CatalogService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateServiceRequest) (*dto.ServiceResponse, error) {
	svc, err := s.serviceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	if svc == nil {
		return nil, ErrServiceNotFound
	}

	if req.CategoryID != nil {
		svc.CategoryID = *req.CategoryID
	}
	if req.Title != nil {
		svc.Title = *req.Title
	}
	if req.Description != nil {
		svc.Description = *req.Description
	}
	if req.Price != nil {
		svc.Price = *req.Price
	}
	if req.DurationMinutes != nil {
		svc.DurationMinutes = *req.DurationMinutes
	}
	if req.Active != nil {
		svc.Active = *req.Active
	}

	if err := s.serviceRepo.Update(ctx, svc); err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}

	s.invalidateCache(ctx, id)
	resp := toServiceResponse(svc)
	return &resp, nil
}

func (s *CatalogService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.serviceRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	s.invalidateCache(ctx, id)
	return nil
}

func (s *CatalogService) invalidateCache(ctx context.Context, id uuid.UUID) {
	if s.redisClient != nil {
		s.redisClient.Del(ctx, "service:"+id.String())
	}
}

func toServiceResponse(svc *model.Service) dto.ServiceResponse {
	return dto.ServiceResponse{
		ID:              svc.ID,
		CategoryID:      svc.CategoryID,
		Title:           svc.Title,
		Description:     svc.Description,
		Price:           svc.Price,
		DurationMinutes: svc.DurationMinutes,
		Active:          svc.Active,
		CreatedAt:       svc.CreatedAt,
		UpdatedAt:       svc.UpdatedAt,
	}
}
