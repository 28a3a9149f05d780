package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMakeKey(t *testing.T) {
	assert.Equal(t, "public.users", makeKey("public", "users"))
	assert.Equal(t, "public.UserProfiles", makeKey("public", "UserProfiles"))
	assert.Equal(t, ".users", makeKey("", "users"))
}

func sampleTables() []TableInfo {
	return []TableInfo{
		{Schema: "public", Name: "users", Type: "table", Columns: []ColumnInfo{{Name: "id", DataType: "uuid"}}},
		{Schema: "public", Name: "orders", Type: "table"},
	}
}

// =============================================================================
// Lookups
// =============================================================================

func TestSchemaCache_GetTable(t *testing.T) {
	src := &fakeSource{tables: sampleTables()}
	cache := NewSchemaCache(src, nil, time.Minute)

	info, ok, err := cache.GetTable(context.Background(), "public", "users")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "uuid", info.Columns[0].DataType)

	_, ok, err = cache.GetTable(context.Background(), "public", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, src.loadCount())
	assert.Equal(t, 2, cache.TableCount())
}

func TestSchemaCache_GetAllTablesReturnsCopy(t *testing.T) {
	cache := NewSchemaCache(&fakeSource{tables: sampleTables()}, []string{"public"}, time.Minute)

	tables, err := cache.GetAllTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 2)

	tables[0].Name = "mutated"
	again, err := cache.GetAllTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "users", again[0].Name)
}

func TestSchemaCache_TTLExpiry(t *testing.T) {
	src := &fakeSource{tables: sampleTables()}
	cache := NewSchemaCache(src, nil, 10*time.Millisecond)

	_, err := cache.GetAllTables(context.Background())
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = cache.GetAllTables(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, src.loadCount())
}

func TestSchemaCache_Invalidate(t *testing.T) {
	src := &fakeSource{tables: sampleTables()}
	cache := NewSchemaCache(src, nil, time.Hour)

	_, _, err := cache.GetTable(context.Background(), "public", "users")
	require.NoError(t, err)
	cache.Invalidate()
	_, _, err = cache.GetTable(context.Background(), "public", "users")
	require.NoError(t, err)

	assert.Equal(t, 2, src.loadCount())
}

func TestSchemaCache_RefreshError(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	cache := NewSchemaCache(src, nil, time.Hour)

	_, _, err := cache.GetTable(context.Background(), "public", "users")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSchemaCache_ConcurrentMissesLoadOnce(t *testing.T) {
	src := &fakeSource{tables: sampleTables()}
	cache := NewSchemaCache(src, nil, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = cache.GetTable(context.Background(), "public", "users")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, src.loadCount())
}

// =============================================================================
// Scheduled refresh
// =============================================================================

func TestSchemaCache_ScheduledRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("empty spec is a no-op", func(t *testing.T) {
		cache := NewSchemaCache(&fakeSource{}, nil, time.Hour)
		require.NoError(t, cache.StartScheduledRefresh(""))
		cache.Close()
	})

	t.Run("invalid spec", func(t *testing.T) {
		cache := NewSchemaCache(&fakeSource{}, nil, time.Hour)
		err := cache.StartScheduledRefresh("every now and then")
		require.Error(t, err)
		cache.Close()
	})

	t.Run("runs on schedule", func(t *testing.T) {
		src := &fakeSource{tables: sampleTables()}
		cache := NewSchemaCache(src, nil, time.Hour)
		require.NoError(t, cache.StartScheduledRefresh("@every 1s"))

		assert.Eventually(t, func() bool { return src.loadCount() >= 1 }, 3*time.Second, 50*time.Millisecond)
		cache.Close()
		assert.Equal(t, 2, cache.TableCount())
	})

	t.Run("gated runs are skipped", func(t *testing.T) {
		src := &fakeSource{tables: sampleTables()}
		cache := NewSchemaCache(src, nil, time.Hour)
		var checks atomic.Int32
		require.NoError(t, cache.StartScheduledRefresh("@every 1s", OnlyWhen(func() bool {
			checks.Add(1)
			return false
		})))

		assert.Eventually(t, func() bool { return checks.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
		cache.Close()
		assert.Equal(t, 0, src.loadCount())
	})

	t.Run("after refresh hook", func(t *testing.T) {
		src := &fakeSource{tables: sampleTables()}
		cache := NewSchemaCache(src, nil, time.Hour)
		got := make(chan int, 4)
		require.NoError(t, cache.StartScheduledRefresh("@every 1s", AfterRefresh(func(_ context.Context, tables int) {
			got <- tables
		})))

		select {
		case n := <-got:
			assert.Equal(t, 2, n)
		case <-time.After(3 * time.Second):
			t.Fatal("hook not called")
		}
		cache.Close()
	})
}

// =============================================================================
// Errors
// =============================================================================

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsUndefinedTable(&pgconn.PgError{Code: ErrCodeUndefinedTable}))
	assert.False(t, IsUndefinedTable(errors.New("plain")))

	assert.True(t, IsInsufficientPrivilege(&pgconn.PgError{Code: ErrCodeInsufficientPrivilege}))
	assert.False(t, IsInsufficientPrivilege(nil))

	assert.True(t, IsConnectionError(&pgconn.PgError{Code: "08006"}))
	assert.False(t, IsConnectionError(&pgconn.PgError{Code: "42601"}))
	assert.False(t, IsConnectionError(nil))
}

func TestWithOperation(t *testing.T) {
	assert.Equal(t, "select", operationFromContext(context.Background()))
	assert.Equal(t, "enums", operationFromContext(WithOperation(context.Background(), "enums")))
}
