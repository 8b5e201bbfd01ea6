package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storekit-keyplane/pkg/db/option"
	"storekit-keyplane/pkg/db/pagination"
)

type note struct {
	ID        string `gorm:"primaryKey"`
	AuthorID  string
	Body      string
	Pinned    bool
	Views     int
	DeletedBy *string
	Tags      []noteTag `gorm:"foreignKey:NoteID"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

type noteTag struct {
	ID     string `gorm:"primaryKey"`
	NoteID string `gorm:"index"`
	Label  string
}

func newTestStore(t *testing.T) (Repository[note], *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&note{}, &noteTag{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return ProvideStore[note](db), db
}

func TestCreateAndFindOne(t *testing.T) {
	store, _ := newTestStore(t)

	created := &note{ID: "n1", AuthorID: "alice", Body: "hello"}
	require.NoError(t, store.Create(context.Background(), created))

	found, err := store.FindOne(context.Background(), &note{ID: "n1"})
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "hello", found.Body)
	require.False(t, found.CreatedAt.IsZero())

	missing, err := store.FindOne(context.Background(), &note{ID: "n2"})
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestFindByQueryStruct(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.BatchCreate(context.Background(), []*note{
		{ID: "n1", AuthorID: "alice"},
		{ID: "n2", AuthorID: "alice"},
		{ID: "n3", AuthorID: "bob"},
	}))

	notes, err := store.Find(context.Background(), &note{AuthorID: "alice"})
	require.NoError(t, err)
	require.Len(t, notes, 2)
}

// Struct queries drop zero-value fields, so filtering on false needs an
// explicit operator condition.
func TestZeroValueFilterNeedsOperator(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.BatchCreate(context.Background(), []*note{
		{ID: "n1", Pinned: true},
		{ID: "n2", Pinned: false},
	}))

	notes, err := store.Find(context.Background(), &note{Pinned: false})
	require.NoError(t, err)
	require.Len(t, notes, 2)

	notes, err = store.Find(context.Background(), &note{},
		option.ApplyOperator(option.Condition{Field: "pinned", Operator: option.EQ, Value: false}),
	)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "n2", notes[0].ID)
}

func TestUpdate(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Create(context.Background(), &note{ID: "n1", Body: "draft"}))

	require.NoError(t, store.Update(context.Background(), "n1", map[string]any{
		"body":   "published",
		"pinned": true,
		"views":  7,
	}))

	updated, err := store.FindOne(context.Background(), &note{ID: "n1"})
	require.NoError(t, err)
	require.Equal(t, "published", updated.Body)
	require.True(t, updated.Pinned)
	require.Equal(t, 7, updated.Views)

	// struct updates touch non-zero fields only
	require.NoError(t, store.Update(context.Background(), "n1", &note{Body: "revised"}))

	updated, err = store.FindOne(context.Background(), &note{ID: "n1"})
	require.NoError(t, err)
	require.Equal(t, "revised", updated.Body)
	require.True(t, updated.Pinned)
}

func TestDelete(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Create(context.Background(), &note{ID: "n1"}))
	require.NoError(t, store.Delete(context.Background(), "n1"))

	found, err := store.FindOne(context.Background(), &note{ID: "n1"})
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestBatchUpdate(t *testing.T) {
	store, _ := newTestStore(t)

	first := &note{ID: "n1", Body: "one"}
	second := &note{ID: "n2", Body: "two"}
	require.NoError(t, store.BatchCreate(context.Background(), []*note{first, second}))

	first.Views = 10
	second.Views = 20
	require.NoError(t, store.BatchUpdate(context.Background(), []*note{first, second}))

	updated, err := store.FindOne(context.Background(), &note{ID: "n2"})
	require.NoError(t, err)
	require.Equal(t, 20, updated.Views)
}

func TestCountWithOptions(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.BatchCreate(context.Background(), []*note{
		{ID: "n1", AuthorID: "alice", Views: 1},
		{ID: "n2", AuthorID: "alice", Views: 5},
		{ID: "n3", AuthorID: "bob", Views: 9},
	}))

	count, err := store.Count(context.Background(), &note{})
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	count, err = store.Count(context.Background(), &note{AuthorID: "alice"},
		option.ApplyOperator(option.Condition{Field: "views", Operator: option.GT, Value: 2}),
	)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestSortAndPagination(t *testing.T) {
	store, _ := newTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.BatchCreate(context.Background(), []*note{
		{ID: "n1", Views: 1, CreatedAt: base},
		{ID: "n2", Views: 3, CreatedAt: base.Add(time.Hour)},
		{ID: "n3", Views: 2, CreatedAt: base.Add(2 * time.Hour)},
	}))

	notes, err := store.Find(context.Background(), &note{},
		option.WithSortBy(option.QuerySortBy{SortBy: "views", OrderBy: "DESC", Allow: map[string]bool{"views": true}}),
		option.ApplyPagination(pagination.Pagination{Limit: 1, Offset: 1}),
	)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "n3", notes[0].ID)

	// a column outside the whitelist falls back to created_at
	notes, err = store.Find(context.Background(), &note{},
		option.WithSortBy(option.QuerySortBy{SortBy: "views", Allow: map[string]bool{"created_at": true}}),
	)
	require.NoError(t, err)
	require.Equal(t, "n1", notes[0].ID)
}

func TestWithNull(t *testing.T) {
	store, _ := newTestStore(t)

	remover := "carol"
	require.NoError(t, store.BatchCreate(context.Background(), []*note{
		{ID: "n1"},
		{ID: "n2", DeletedBy: &remover},
	}))

	notes, err := store.Find(context.Background(), &note{}, option.WithNull("deleted_by", true))
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "n1", notes[0].ID)

	notes, err = store.Find(context.Background(), &note{}, option.WithNull("deleted_by", false))
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "n2", notes[0].ID)
}

func TestWithPreload(t *testing.T) {
	store, db := newTestStore(t)

	require.NoError(t, store.Create(context.Background(), &note{ID: "n1"}))
	require.NoError(t, db.Create(&noteTag{ID: "t1", NoteID: "n1", Label: "ops"}).Error)
	require.NoError(t, db.Create(&noteTag{ID: "t2", NoteID: "n1", Label: "infra"}).Error)

	found, err := store.FindOne(context.Background(), &note{ID: "n1"})
	require.NoError(t, err)
	require.Empty(t, found.Tags)

	found, err = store.FindOne(context.Background(), &note{ID: "n1"}, option.WithPreload("Tags"))
	require.NoError(t, err)
	require.Len(t, found.Tags, 2)
}

func TestWithTrx(t *testing.T) {
	store, db := newTestStore(t)

	rollback := fmt.Errorf("abort")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := store.WithTrx(tx).Create(context.Background(), &note{ID: "n1"}); err != nil {
			return err
		}
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	count, err := store.Count(context.Background(), &note{})
	require.NoError(t, err)
	require.Zero(t, count)

	err = db.Transaction(func(tx *gorm.DB) error {
		return store.WithTrx(tx).Create(context.Background(), &note{ID: "n1"})
	})
	require.NoError(t, err)

	count, err = store.Count(context.Background(), &note{})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}
