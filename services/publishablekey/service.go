package publishablekey

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storekit-keyplane/pkg/db/option"
	"storekit-keyplane/pkg/db/pagination"
	"storekit-keyplane/pkg/errutil"
	"storekit-keyplane/pkg/eventbus"
	"storekit-keyplane/pkg/logger"
	"storekit-keyplane/pkg/rediskey"
	"storekit-keyplane/pkg/repository"
	"storekit-keyplane/pkg/security"
)

// tokenBytes of entropy per token; hex-encoded that is 48 characters
// after the pk_ prefix.
const tokenBytes = 24

type CreateKeyRequest struct {
	Title string `json:"title"`
}

// ListFilter narrows listings. Zero values mean no constraint.
type ListFilter struct {
	CreatedBy string    `form:"created_by"`
	Status    KeyStatus `form:"status"`
}

func (f ListFilter) query() *PublishableKey {
	return &PublishableKey{CreatedBy: f.CreatedBy}
}

func (f ListFilter) options() []option.QueryOption {
	var opts []option.QueryOption
	switch f.Status {
	case KeyStatusActive:
		opts = append(opts, option.WithNull("revoked_by", true))
	case KeyStatusRevoked:
		opts = append(opts, option.WithNull("revoked_by", false))
	}
	return opts
}

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	emitter eventbus.Emitter
	cache   *ValidityCache
	repo    repository.Repository[PublishableKey]
}

func NewService(db *gorm.DB, node *snowflake.Node, emitter eventbus.Emitter, cache *ValidityCache) *Service {
	return &Service{
		db:      db,
		node:    node,
		emitter: emitter,
		cache:   cache,
		repo:    repository.ProvideStore[PublishableKey](db),
	}
}

// Create persists a new key owned by creatorID and records the created
// event on the same transaction.
func (s *Service) Create(ctx context.Context, creatorID string, req CreateKeyRequest) (*PublishableKey, error) {
	zapLog := logger.FromContext(ctx)

	if creatorID == "" {
		return nil, errutil.BadRequest("creator is required", nil)
	}

	token, err := security.GenerateToken(TokenPrefix, tokenBytes)
	if err != nil {
		zapLog.Error("failed to generate key token", zap.Error(err))
		return nil, errutil.Internal("failed to generate key token", err)
	}

	key := &PublishableKey{
		ID:        s.node.Generate().String(),
		Token:     token,
		Title:     req.Title,
		CreatedBy: creatorID,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTrx(tx).Create(ctx, key); err != nil {
			return errutil.Internal("failed to create publishable api key", err)
		}

		return s.emitter.Emit(ctx, tx, EventCreated, EventPayload{ID: key.ID})
	}); err != nil {
		zapLog.Error("failed to create publishable api key", zap.Error(err))
		return nil, err
	}

	zapLog.Info("publishable api key created",
		zap.String("key_id", key.ID),
		zap.String("created_by", creatorID),
	)

	return key, nil
}

func (s *Service) Get(ctx context.Context, id string) (*PublishableKey, error) {
	key, err := s.repo.FindOne(ctx, &PublishableKey{ID: id})
	if err != nil {
		logger.FromContext(ctx).Error("failed query get publishable api key", zap.Error(err))
		return nil, errutil.Internal("failed to get publishable api key", err)
	}

	if key == nil {
		return nil, errutil.NotFound("publishable api key not found", nil)
	}

	return key, nil
}

func (s *Service) GetByToken(ctx context.Context, token string) (*PublishableKey, error) {
	key, err := s.repo.FindOne(ctx, &PublishableKey{Token: token})
	if err != nil {
		logger.FromContext(ctx).Error("failed query get publishable api key by token", zap.Error(err))
		return nil, errutil.Internal("failed to get publishable api key", err)
	}

	if key == nil {
		return nil, errutil.NotFound("publishable api key not found", nil)
	}

	return key, nil
}

// List returns one page of keys plus the total count matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter, page pagination.Pagination) ([]*PublishableKey, pagination.PageInfo, error) {
	page = page.Normalize()

	query := filter.query()
	filterOpts := filter.options()

	count, err := s.repo.Count(ctx, query, filterOpts...)
	if err != nil {
		logger.FromContext(ctx).Error("failed to count publishable api keys", zap.Error(err))
		return nil, pagination.PageInfo{}, errutil.Internal("failed to list publishable api keys", err)
	}

	findOpts := append(filterOpts,
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.ApplyPagination(page),
	)

	keys, err := s.repo.Find(ctx, query, findOpts...)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list publishable api keys", zap.Error(err))
		return nil, pagination.PageInfo{}, errutil.Internal("failed to list publishable api keys", err)
	}

	return keys, pagination.BuildPageInfo(count, page), nil
}

// Revoke moves the key Active -> Revoked. The state check, the mutation
// and the revoked event share one transaction; no row lock is taken, so
// two concurrent revokes race at the store and the last write wins.
func (s *Service) Revoke(ctx context.Context, id, revokerID string) (*PublishableKey, error) {
	zapLog := logger.FromContext(ctx)

	if revokerID == "" {
		return nil, errutil.BadRequest("revoker is required", nil)
	}

	var revoked *PublishableKey
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx)

		key, err := repo.FindOne(ctx, &PublishableKey{ID: id})
		if err != nil {
			return errutil.Internal("failed to get publishable api key", err)
		}
		if key == nil {
			return errutil.NotFound("publishable api key not found", nil)
		}
		if key.RevokedAt != nil {
			return errutil.NotAllowed("publishable api key already revoked", nil)
		}

		now := time.Now()
		if err := repo.Update(ctx, key.ID, map[string]any{
			"revoked_at": now,
			"revoked_by": revokerID,
		}); err != nil {
			return errutil.Internal("failed to revoke publishable api key", err)
		}

		key.RevokedAt = &now
		key.RevokedBy = &revokerID
		revoked = key

		return s.emitter.Emit(ctx, tx, EventRevoked, EventPayload{ID: key.ID})
	}); err != nil {
		zapLog.Error("failed to revoke publishable api key", zap.String("key_id", id), zap.Error(err))
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx,
			rediskey.BuildKeyValidityKey(revoked.ID),
			rediskey.BuildKeyTokenKey(revoked.Token),
		)
	}

	zapLog.Info("publishable api key revoked",
		zap.String("key_id", revoked.ID),
		zap.String("revoked_by", revokerID),
	)

	return revoked, nil
}

// IsValid reports whether the key identified by id is usable.
func (s *Service) IsValid(ctx context.Context, id string) (bool, error) {
	load := func(ctx context.Context) (bool, error) {
		key, err := s.Get(ctx, id)
		if err != nil {
			return false, err
		}
		return key.Active(), nil
	}

	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.Validate(ctx, rediskey.BuildKeyValidityKey(id), load)
}

// ValidateToken is the storefront-facing check. An unknown token is
// NotFound, same as an unknown id.
func (s *Service) ValidateToken(ctx context.Context, token string) (bool, error) {
	load := func(ctx context.Context) (bool, error) {
		key, err := s.GetByToken(ctx, token)
		if err != nil {
			return false, err
		}
		return key.Active(), nil
	}

	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.Validate(ctx, rediskey.BuildKeyTokenKey(token), load)
}
