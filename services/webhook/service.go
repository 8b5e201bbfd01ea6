package webhook

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storekit-keyplane/pkg/config"
	"storekit-keyplane/pkg/db/option"
	"storekit-keyplane/pkg/db/pagination"
	"storekit-keyplane/pkg/errutil"
	"storekit-keyplane/pkg/logger"
	"storekit-keyplane/pkg/repository"
	"storekit-keyplane/pkg/security"
)

const secretBytes = 24

type CreateEndpointRequest struct {
	URL         string   `json:"url" binding:"required"`
	Description string   `json:"description"`
	EventTypes  []string `json:"event_types"`
}

// UpdateEndpointRequest patches an endpoint. Nil fields stay untouched.
type UpdateEndpointRequest struct {
	URL         *string  `json:"url"`
	Description *string  `json:"description"`
	EventTypes  []string `json:"event_types"`
	Disabled    *bool    `json:"disabled"`
}

// CreatedEndpoint is the create response: the endpoint plus the plaintext
// signing secret, which is never returned again.
type CreatedEndpoint struct {
	*Endpoint
	Secret string `json:"secret"`
}

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	aesKey [32]byte
	repo   repository.Repository[Endpoint]
}

func NewService(db *gorm.DB, node *snowflake.Node, cfg *config.Config) *Service {
	if cfg.SecretAES == "" {
		zap.L().Warn("[Webhook] SECRET_AES not configured, signing secrets sealed under an empty passphrase")
	}

	return &Service{
		db:     db,
		node:   node,
		aesKey: security.DeriveKey(cfg.SecretAES),
		repo:   repository.ProvideStore[Endpoint](db),
	}
}

func (s *Service) Create(ctx context.Context, req CreateEndpointRequest) (*CreatedEndpoint, error) {
	zapLog := logger.FromContext(ctx)

	if req.URL == "" {
		return nil, errutil.BadRequest("url is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "url", Message: "required"}))
	}

	secret, err := security.GenerateToken(SecretPrefix, secretBytes)
	if err != nil {
		zapLog.Error("failed to generate signing secret", zap.Error(err))
		return nil, errutil.Internal("failed to generate signing secret", err)
	}

	sealed, err := security.Seal([]byte(secret), s.aesKey)
	if err != nil {
		zapLog.Error("failed to seal signing secret", zap.Error(err))
		return nil, errutil.Internal("failed to seal signing secret", err)
	}

	endpoint := &Endpoint{
		ID:          s.node.Generate().String(),
		URL:         req.URL,
		Description: req.Description,
		EventTypes:  pq.StringArray(req.EventTypes),
		Secret:      sealed,
	}

	if err := s.repo.Create(ctx, endpoint); err != nil {
		zapLog.Error("failed to create webhook endpoint", zap.Error(err))
		return nil, errutil.Internal("failed to create webhook endpoint", err)
	}

	zapLog.Info("webhook endpoint created",
		zap.String("endpoint_id", endpoint.ID),
		zap.String("url", endpoint.URL),
	)

	return &CreatedEndpoint{Endpoint: endpoint, Secret: secret}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Endpoint, error) {
	endpoint, err := s.repo.FindOne(ctx, &Endpoint{ID: id})
	if err != nil {
		logger.FromContext(ctx).Error("failed query get webhook endpoint", zap.Error(err))
		return nil, errutil.Internal("failed to get webhook endpoint", err)
	}

	if endpoint == nil {
		return nil, errutil.NotFound("webhook endpoint not found", nil)
	}

	return endpoint, nil
}

func (s *Service) List(ctx context.Context, page pagination.Pagination) ([]*Endpoint, pagination.PageInfo, error) {
	page = page.Normalize()

	count, err := s.repo.Count(ctx, &Endpoint{})
	if err != nil {
		logger.FromContext(ctx).Error("failed to count webhook endpoints", zap.Error(err))
		return nil, pagination.PageInfo{}, errutil.Internal("failed to list webhook endpoints", err)
	}

	endpoints, err := s.repo.Find(ctx, &Endpoint{},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.ApplyPagination(page),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list webhook endpoints", zap.Error(err))
		return nil, pagination.PageInfo{}, errutil.Internal("failed to list webhook endpoints", err)
	}

	return endpoints, pagination.BuildPageInfo(count, page), nil
}

func (s *Service) Update(ctx context.Context, id string, req UpdateEndpointRequest) (*Endpoint, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.URL != nil {
		updates["url"] = *req.URL
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.EventTypes != nil {
		updates["event_types"] = pq.StringArray(req.EventTypes)
	}
	if req.Disabled != nil {
		updates["disabled"] = *req.Disabled
	}

	if len(updates) == 0 {
		return s.Get(ctx, id)
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		logger.FromContext(ctx).Error("failed to update webhook endpoint", zap.Error(err))
		return nil, errutil.Internal("failed to update webhook endpoint", err)
	}

	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		logger.FromContext(ctx).Error("failed to delete webhook endpoint", zap.Error(err))
		return errutil.Internal("failed to delete webhook endpoint", err)
	}

	logger.FromContext(ctx).Info("webhook endpoint deleted", zap.String("endpoint_id", id))
	return nil
}

// Subscribers returns the enabled endpoints subscribed to an event name.
// Subscription matching runs in memory so the store needs no array
// containment support.
func (s *Service) Subscribers(ctx context.Context, eventName string) ([]*Endpoint, error) {
	endpoints, err := s.repo.Find(ctx, &Endpoint{}, option.ApplyOperator(option.Condition{
		Field:    "disabled",
		Operator: option.EQ,
		Value:    false,
	}))
	if err != nil {
		logger.FromContext(ctx).Error("failed to list webhook subscribers", zap.Error(err))
		return nil, errutil.Internal("failed to list webhook subscribers", err)
	}

	subscribed := endpoints[:0]
	for _, endpoint := range endpoints {
		if endpoint.Subscribed(eventName) {
			subscribed = append(subscribed, endpoint)
		}
	}

	return subscribed, nil
}

// SigningSecret unseals the endpoint's stored secret for delivery signing.
func (s *Service) SigningSecret(endpoint *Endpoint) (string, error) {
	secret, err := security.Open(endpoint.Secret, s.aesKey)
	if err != nil {
		return "", errutil.Internal("failed to open signing secret", err)
	}
	return secret, nil
}
