package publishablekey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storekit-keyplane/pkg/db/option"
	"storekit-keyplane/pkg/db/pagination"
	"storekit-keyplane/pkg/errutil"
	"storekit-keyplane/pkg/eventbus"
	"storekit-keyplane/pkg/repository"
	"storekit-keyplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	findFn    func(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	findOneFn func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	countFn   func(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
}

func (m *repoMock[T]) WithTrx(tx *gorm.DB) repository.Repository[T] { return m }

func (m *repoMock[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	if m.findFn != nil {
		return m.findFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) Create(context.Context, *T) error          { return nil }
func (m *repoMock[T]) Update(context.Context, string, any) error { return nil }
func (m *repoMock[T]) Delete(context.Context, string) error      { return nil }
func (m *repoMock[T]) BatchCreate(context.Context, []*T) error   { return nil }
func (m *repoMock[T]) BatchUpdate(context.Context, []*T) error   { return nil }

func (m *repoMock[T]) Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, query, opts...)
	}
	return 0, nil
}

type fakeEmitter struct {
	names []string
	err   error
}

func (f *fakeEmitter) Emit(ctx context.Context, tx *gorm.DB, name string, payload any) error {
	if f.err != nil {
		return f.err
	}
	if tx == nil {
		return errors.New("emit outside transaction")
	}
	f.names = append(f.names, name)
	return nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &PublishableKey{}, &eventbus.Event{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(db, node, eventbus.NewEmitter(db, node), nil), db
}

func outboxEvents(t *testing.T, db *gorm.DB, name string) []*eventbus.Event {
	t.Helper()

	var events []*eventbus.Event
	require.NoError(t, db.Where(&eventbus.Event{Name: name}).Find(&events).Error)
	return events
}

func TestCreateAndGet(t *testing.T) {
	svc, db := newTestService(t)

	key, err := svc.Create(context.Background(), "usr_1", CreateKeyRequest{Title: "Storefront"})
	require.NoError(t, err)
	require.NotEmpty(t, key.ID)
	require.Equal(t, "usr_1", key.CreatedBy)
	require.Contains(t, key.Token, TokenPrefix)
	require.Len(t, key.Token, len(TokenPrefix)+2*tokenBytes)
	require.Nil(t, key.RevokedAt)
	require.Nil(t, key.RevokedBy)
	require.True(t, key.Active())
	require.Equal(t, KeyStatusActive, key.Status())

	got, err := svc.Get(context.Background(), key.ID)
	require.NoError(t, err)
	require.Equal(t, key.ID, got.ID)
	require.Equal(t, "Storefront", got.Title)
	require.Nil(t, got.RevokedAt)

	events := outboxEvents(t, db, EventCreated)
	require.Len(t, events, 1)

	var payload EventPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	require.Equal(t, key.ID, payload.ID)
}

func TestCreateMissingCreator(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "", CreateKeyRequest{})
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusBadRequest))
}

func TestCreateRollsBackWhenEmitFails(t *testing.T) {
	db := testutil.NewTestDB(t, &PublishableKey{}, &eventbus.Event{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(db, node, &fakeEmitter{err: errors.New("bus down")}, nil)

	_, err = svc.Create(context.Background(), "usr_1", CreateKeyRequest{})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&PublishableKey{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}

func TestRevoke(t *testing.T) {
	svc, db := newTestService(t)

	key, err := svc.Create(context.Background(), "usr_1", CreateKeyRequest{})
	require.NoError(t, err)

	revoked, err := svc.Revoke(context.Background(), key.ID, "usr_2")
	require.NoError(t, err)
	require.NotNil(t, revoked.RevokedAt)
	require.NotNil(t, revoked.RevokedBy)
	require.Equal(t, "usr_2", *revoked.RevokedBy)
	require.False(t, revoked.Active())
	require.Equal(t, KeyStatusRevoked, revoked.Status())

	stored, err := svc.Get(context.Background(), key.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RevokedAt)
	require.Equal(t, "usr_2", *stored.RevokedBy)

	events := outboxEvents(t, db, EventRevoked)
	require.Len(t, events, 1)

	var payload EventPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	require.Equal(t, key.ID, payload.ID)
}

func TestRevokeAlreadyRevoked(t *testing.T) {
	svc, db := newTestService(t)

	key, err := svc.Create(context.Background(), "usr_1", CreateKeyRequest{})
	require.NoError(t, err)

	first, err := svc.Revoke(context.Background(), key.ID, "usr_2")
	require.NoError(t, err)

	_, err = svc.Revoke(context.Background(), key.ID, "usr_3")
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusNotAllowed))

	stored, err := svc.Get(context.Background(), key.ID)
	require.NoError(t, err)
	require.Equal(t, "usr_2", *stored.RevokedBy)
	require.True(t, stored.RevokedAt.Equal(*first.RevokedAt))

	require.Len(t, outboxEvents(t, db, EventRevoked), 1)
}

func TestRevokeNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Revoke(context.Background(), "missing", "usr_2")
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}

func TestRevokeRollsBackWhenEmitFails(t *testing.T) {
	db := testutil.NewTestDB(t, &PublishableKey{}, &eventbus.Event{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(db, node, eventbus.NewEmitter(db, node), nil)
	key, err := svc.Create(context.Background(), "usr_1", CreateKeyRequest{})
	require.NoError(t, err)

	svc.emitter = &fakeEmitter{err: errors.New("bus down")}

	_, err = svc.Revoke(context.Background(), key.ID, "usr_2")
	require.Error(t, err)

	stored, err := svc.Get(context.Background(), key.ID)
	require.NoError(t, err)
	require.Nil(t, stored.RevokedAt)
	require.Nil(t, stored.RevokedBy)
	require.True(t, stored.Active())
}

func TestListDefaultPagination(t *testing.T) {
	svc, _ := newTestService(t)

	for i := 0; i < 25; i++ {
		_, err := svc.Create(context.Background(), "usr_1", CreateKeyRequest{Title: fmt.Sprintf("key %d", i)})
		require.NoError(t, err)
	}

	keys, pageInfo, err := svc.List(context.Background(), ListFilter{}, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, keys, pagination.DefaultLimit)
	require.Equal(t, int64(25), pageInfo.Count)
	require.Equal(t, pagination.DefaultLimit, pageInfo.Limit)
	require.Zero(t, pageInfo.Offset)
}

func TestListFilters(t *testing.T) {
	svc, _ := newTestService(t)

	active, err := svc.Create(context.Background(), "usr_1", CreateKeyRequest{})
	require.NoError(t, err)

	other, err := svc.Create(context.Background(), "usr_2", CreateKeyRequest{})
	require.NoError(t, err)

	_, err = svc.Revoke(context.Background(), other.ID, "usr_1")
	require.NoError(t, err)

	keys, pageInfo, err := svc.List(context.Background(), ListFilter{Status: KeyStatusActive}, pagination.Pagination{})
	require.NoError(t, err)
	require.Equal(t, int64(1), pageInfo.Count)
	require.Len(t, keys, 1)
	require.Equal(t, active.ID, keys[0].ID)

	keys, pageInfo, err = svc.List(context.Background(), ListFilter{Status: KeyStatusRevoked}, pagination.Pagination{})
	require.NoError(t, err)
	require.Equal(t, int64(1), pageInfo.Count)
	require.Equal(t, other.ID, keys[0].ID)

	keys, pageInfo, err = svc.List(context.Background(), ListFilter{CreatedBy: "usr_2"}, pagination.Pagination{})
	require.NoError(t, err)
	require.Equal(t, int64(1), pageInfo.Count)
	require.Equal(t, other.ID, keys[0].ID)
}

func TestListClampsLimit(t *testing.T) {
	svc := &Service{repo: &repoMock[PublishableKey]{}}

	_, pageInfo, err := svc.List(context.Background(), ListFilter{}, pagination.Pagination{Limit: 1000})
	require.NoError(t, err)
	require.Equal(t, pagination.MaxLimit, pageInfo.Limit)
}

func TestListRepositoryError(t *testing.T) {
	repo := &repoMock[PublishableKey]{}
	repo.countFn = func(ctx context.Context, _ *PublishableKey, _ ...option.QueryOption) (int64, error) {
		return 0, errors.New("boom")
	}

	svc := &Service{repo: repo}

	_, _, err := svc.List(context.Background(), ListFilter{}, pagination.Pagination{})
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusInternal))
}

func TestIsValidLifecycle(t *testing.T) {
	svc, _ := newTestService(t)

	key, err := svc.Create(context.Background(), "usr_1", CreateKeyRequest{})
	require.NoError(t, err)

	valid, err := svc.IsValid(context.Background(), key.ID)
	require.NoError(t, err)
	require.True(t, valid)

	_, err = svc.Revoke(context.Background(), key.ID, "usr_2")
	require.NoError(t, err)

	valid, err = svc.IsValid(context.Background(), key.ID)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestIsValidNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.IsValid(context.Background(), "missing")
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}

// isValid reads revoked_by. A row where only revoked_by is set still
// counts as revoked, matching the predicate the service ships with.
func TestIsValidInspectsRevokedBy(t *testing.T) {
	svc, db := newTestService(t)

	key, err := svc.Create(context.Background(), "usr_1", CreateKeyRequest{})
	require.NoError(t, err)

	revoker := "usr_2"
	require.NoError(t, db.Model(&PublishableKey{}).
		Where("id = ?", key.ID).
		Update("revoked_by", revoker).Error)

	valid, err := svc.IsValid(context.Background(), key.ID)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestValidateTokenWithCache(t *testing.T) {
	db := testutil.NewTestDB(t, &PublishableKey{}, &eventbus.Event{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cache := NewValidityCache(testutil.NewTestRedis(t), time.Minute)
	svc := NewService(db, node, eventbus.NewEmitter(db, node), cache)

	key, err := svc.Create(context.Background(), "usr_1", CreateKeyRequest{})
	require.NoError(t, err)

	valid, err := svc.ValidateToken(context.Background(), key.Token)
	require.NoError(t, err)
	require.True(t, valid)

	// served from cache now
	valid, err = svc.ValidateToken(context.Background(), key.Token)
	require.NoError(t, err)
	require.True(t, valid)

	_, err = svc.Revoke(context.Background(), key.ID, "usr_2")
	require.NoError(t, err)

	valid, err = svc.ValidateToken(context.Background(), key.Token)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestValidateTokenUnknown(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ValidateToken(context.Background(), "pk_unknown")
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}
