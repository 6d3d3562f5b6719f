package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-catalog/internal/catalogapi"
	"github.com/xenking/kart-catalog/internal/domain/product"
	"github.com/xenking/kart-catalog/internal/storage/memory"
)

// --- Fakes ---

type fakeRemote struct {
	mu sync.Mutex

	records map[int64]catalogapi.Record
	list    []catalogapi.Record
	err     error
	nextID  int64

	calls []string
}

func (f *fakeRemote) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeRemote) ListAll(_ context.Context) ([]catalogapi.Record, error) {
	if err := f.record("list"); err != nil {
		return nil, err
	}
	return f.list, nil
}

func (f *fakeRemote) GetByID(_ context.Context, id int64) (*catalogapi.Record, error) {
	if err := f.record("get"); err != nil {
		return nil, err
	}
	r, ok := f.records[id]
	if !ok {
		return nil, &catalogapi.Error{Op: "get product", Kind: catalogapi.KindNotFound, Status: 404}
	}
	return &r, nil
}

func (f *fakeRemote) Create(_ context.Context, r catalogapi.Record) (*catalogapi.Record, error) {
	if err := f.record("create"); err != nil {
		return nil, err
	}
	r.ID = f.nextID
	return &r, nil
}

func (f *fakeRemote) Update(_ context.Context, _ int64, r catalogapi.Record) (*catalogapi.Record, error) {
	if err := f.record("update"); err != nil {
		return nil, err
	}
	return &r, nil
}

func (f *fakeRemote) Delete(_ context.Context, _ int64) error {
	return f.record("delete")
}

// brokenStore fails every call like an unreachable database.
type brokenStore struct {
	product.Store
}

var errDisk = errors.New("disk on fire")

func (brokenStore) List(context.Context) ([]product.Product, error) { return nil, errDisk }
func (brokenStore) GetByID(context.Context, int64) (*product.Product, error) {
	return nil, errDisk
}
func (brokenStore) Upsert(context.Context, product.Product) error { return errDisk }

// --- Helpers ---

func unreachable() error {
	return &catalogapi.Error{Op: "test", Kind: catalogapi.KindUnreachable, Err: errors.New("connection refused")}
}

func rejected() error {
	return &catalogapi.Error{Op: "test", Kind: catalogapi.KindRejected, Status: 500, Body: "boom"}
}

func newProduct(id int64, name string, price int64) product.Product {
	return product.Product{
		ID:       id,
		Name:     name,
		Price:    decimal.NewFromInt(price),
		Category: "Consolas",
		Stock:    5,
	}
}

func newRepo(t *testing.T, remote Remote, store product.Store, opts Options) *Repository {
	t.Helper()
	repo, err := New(remote, store, opts)
	require.NoError(t, err)
	return repo
}

func seedStore(t *testing.T, store product.Store, products ...product.Product) {
	t.Helper()
	require.NoError(t, store.InsertMany(context.Background(), products))
}

// --- ListProducts ---

func TestListProducts_RemoteSuccess(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProductStore()
	seedStore(t, store, newProduct(9, "Local only", 1))

	remote := &fakeRemote{list: []catalogapi.Record{
		{ID: 1, Name: "Catan", Price: decimal.NewFromInt(29990), Category: "Juegos de Mesa"},
		{ID: 2, Name: "Carcassonne", Price: decimal.NewFromInt(24990)},
	}}
	repo := newRepo(t, remote, store, Options{})

	got, err := repo.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Catan", got[0].Name)
	assert.Equal(t, product.DefaultCategory, got[1].Category)

	// Refresh is off by default, the local store is untouched.
	local, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, int64(9), local[0].ID)
}

func TestListProducts_RefreshLocalOnRemoteSuccess(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProductStore()
	seedStore(t, store, newProduct(9, "Stale", 1))

	remote := &fakeRemote{list: []catalogapi.Record{{ID: 1, Name: "Catan", Price: decimal.NewFromInt(10)}}}
	repo := newRepo(t, remote, store, Options{RefreshLocalOnRemoteSuccess: true})

	_, err := repo.ListProducts(ctx)
	require.NoError(t, err)

	local, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, "Catan", local[0].Name)
}

func TestListProducts_FallsBackOnEveryFailureKind(t *testing.T) {
	kinds := []catalogapi.Kind{
		catalogapi.KindUnreachable,
		catalogapi.KindTimeout,
		catalogapi.KindRejected,
		catalogapi.KindMalformed,
		catalogapi.KindNotFound,
	}

	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			store := memory.NewProductStore()
			seedStore(t, store,
				newProduct(1, "a", 10),
				newProduct(2, "b", 20),
				newProduct(3, "c", 30),
			)
			remote := &fakeRemote{err: &catalogapi.Error{Op: "list products", Kind: kind}}
			repo := newRepo(t, remote, store, Options{})

			got, err := repo.ListProducts(context.Background())
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, []int64{1, 2, 3}, []int64{got[0].ID, got[1].ID, got[2].ID})
		})
	}
}

func TestListProducts_EmptyRemoteFallsBack(t *testing.T) {
	store := memory.NewProductStore()
	seedStore(t, store, newProduct(4, "Cached", 10))

	repo := newRepo(t, &fakeRemote{list: nil}, store, Options{})

	got, err := repo.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Cached", got[0].Name)
}

func TestListProducts_BothEmpty(t *testing.T) {
	for name, remote := range map[string]*fakeRemote{
		"remote empty":  {},
		"remote failed": {err: unreachable()},
	} {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t, remote, memory.NewProductStore(), Options{})

			got, err := repo.ListProducts(context.Background())
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestListProducts_LocalStoreUnavailable(t *testing.T) {
	repo := newRepo(t, &fakeRemote{err: unreachable()}, brokenStore{}, Options{})

	_, err := repo.ListProducts(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, product.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errDisk)
}

func TestListProducts_NilRemoteIsOffline(t *testing.T) {
	store := memory.NewProductStore()
	seedStore(t, store, newProduct(1, "a", 1))

	repo := newRepo(t, nil, store, Options{})

	got, err := repo.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

// --- GetProduct ---

func TestGetProduct_RemoteFirst(t *testing.T) {
	store := memory.NewProductStore()
	seedStore(t, store, newProduct(1, "Local name", 10))

	remote := &fakeRemote{records: map[int64]catalogapi.Record{
		1: {ID: 1, Name: "Remote name", Price: decimal.NewFromInt(15)},
	}}
	repo := newRepo(t, remote, store, Options{})

	got, err := repo.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Remote name", got.Name)
}

func TestGetProduct_FallsBackWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	products := []product.Product{
		newProduct(1, "Catan", 29990),
		newProduct(2, "Carcassonne", 24990),
		newProduct(7, "Silla", 349990),
	}
	store := memory.NewProductStore()
	seedStore(t, store, products...)

	for name, err := range map[string]error{"unreachable": unreachable(), "rejected": rejected()} {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t, &fakeRemote{err: err}, store, Options{})
			for _, want := range products {
				got, err := repo.GetProduct(ctx, want.ID)
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, want, *got)
			}
		})
	}
}

func TestGetProduct_RemoteNotFoundReadsLocal(t *testing.T) {
	store := memory.NewProductStore()
	seedStore(t, store, newProduct(3, "Only local", 10))

	repo := newRepo(t, &fakeRemote{records: map[int64]catalogapi.Record{}}, store, Options{})

	got, err := repo.GetProduct(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Only local", got.Name)
}

func TestGetProduct_AbsentIsNotAnError(t *testing.T) {
	repo := newRepo(t, &fakeRemote{records: map[int64]catalogapi.Record{}}, memory.NewProductStore(), Options{})

	got, err := repo.GetProduct(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetProduct_RefreshUpsertsLocal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProductStore()
	remote := &fakeRemote{records: map[int64]catalogapi.Record{
		5: {ID: 5, Name: "PS5", Price: decimal.NewFromInt(549990), Stock: 3},
	}}
	repo := newRepo(t, remote, store, Options{RefreshLocalOnRemoteSuccess: true})

	_, err := repo.GetProduct(ctx, 5)
	require.NoError(t, err)

	local, err := store.GetByID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "PS5", local.Name)
}

func TestGetProduct_LocalStoreUnavailable(t *testing.T) {
	repo := newRepo(t, &fakeRemote{err: unreachable()}, brokenStore{}, Options{})

	_, err := repo.GetProduct(context.Background(), 1)
	assert.ErrorIs(t, err, product.ErrStoreUnavailable)
}

// --- Writes ---

func TestCreateProduct_UsesServerConfirmedRecord(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProductStore()
	repo := newRepo(t, &fakeRemote{nextID: 77}, store, Options{})

	id, err := repo.CreateProduct(ctx, product.Product{Name: "Nuevo", Price: decimal.NewFromInt(100), Stock: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)

	local, err := store.GetByID(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, "Nuevo", local.Name)
	assert.Equal(t, product.DefaultCategory, local.Category)
}

func TestCreateProduct_RemoteFailureStillWritesLocally(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProductStore()
	seedStore(t, store, newProduct(10, "Existing", 1))
	repo := newRepo(t, &fakeRemote{err: unreachable()}, store, Options{})

	id, err := repo.CreateProduct(ctx, product.Product{Name: "Offline", Price: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)

	local, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Offline", local.Name)
}

func TestCreateProduct_Invalid(t *testing.T) {
	remote := &fakeRemote{}
	repo := newRepo(t, remote, memory.NewProductStore(), Options{})

	_, err := repo.CreateProduct(context.Background(), product.Product{Name: "Bad", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, product.ErrInvalid)
	assert.Empty(t, remote.calls)
}

func TestUpdateProduct_RemoteRejectedStillUpdatesLocal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProductStore()
	seedStore(t, store, newProduct(1, "Old", 10))
	repo := newRepo(t, &fakeRemote{err: rejected()}, store, Options{})

	updated := newProduct(1, "New", 20)
	updated.Stock = 0
	require.NoError(t, repo.UpdateProduct(ctx, updated))

	local, err := store.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, updated, *local)
}

func TestUpdateProduct_MissingLocalRowIsCreated(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProductStore()
	repo := newRepo(t, &fakeRemote{}, store, Options{})

	require.NoError(t, repo.UpdateProduct(ctx, newProduct(3, "Fresh", 1)))

	local, err := store.GetByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Fresh", local.Name)
}

func TestUpdateProduct_LocalStoreUnavailable(t *testing.T) {
	repo := newRepo(t, &fakeRemote{}, brokenStore{}, Options{})

	err := repo.UpdateProduct(context.Background(), newProduct(1, "x", 1))
	assert.ErrorIs(t, err, product.ErrStoreUnavailable)
}

func TestDeleteProduct_AlwaysDeletesLocally(t *testing.T) {
	for name, remote := range map[string]*fakeRemote{
		"remote ok":     {},
		"remote failed": {err: unreachable()},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.NewProductStore()
			p := newProduct(1, "Gone", 1)
			seedStore(t, store, p)
			repo := newRepo(t, remote, store, Options{})

			require.NoError(t, repo.DeleteProduct(ctx, p))

			_, err := store.GetByID(ctx, 1)
			assert.ErrorIs(t, err, product.ErrNotFound)
			assert.Equal(t, []string{"delete"}, remote.calls)
		})
	}
}

func TestClearLocalCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProductStore()
	seedStore(t, store, newProduct(1, "a", 1), newProduct(2, "b", 2))
	remote := &fakeRemote{}
	repo := newRepo(t, remote, store, Options{})

	require.NoError(t, repo.ClearLocalCache(ctx))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, remote.calls)
}

func TestCached(t *testing.T) {
	store := memory.NewProductStore()
	seedStore(t, store, newProduct(1, "a", 1), newProduct(2, "b", 2))
	remote := &fakeRemote{}
	repo := newRepo(t, remote, store, Options{})

	got, err := repo.Cached(context.Background(), []int64{2, 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Empty(t, remote.calls)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProductStore()
	repo := newRepo(t, &fakeRemote{}, store, Options{})

	products, err := DefaultSeed()
	require.NoError(t, err)

	n, err := repo.Seed(ctx, products)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	// A populated store is left alone.
	n, err = repo.Seed(ctx, []product.Product{newProduct(99, "extra", 1)})
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

// --- Abandoned calls ---

func TestRepository_AbandonedCallThenClientTimeoutFallsBack(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	client, err := catalogapi.New(srv.URL, catalogapi.Options{Timeout: time.Second})
	require.NoError(t, err)

	store := memory.NewProductStore()
	seedStore(t, store, newProduct(2, "Dixit", 19990), newProduct(1, "Catan", 29990))
	repo := newRepo(t, client, store, Options{})

	// The first caller gives up while the remote call hangs.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := repo.ListProducts(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, product.ErrStoreUnavailable)
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned ListProducts did not return")
	}

	// A fresh caller still gets the local products once the client times out.
	got, err := repo.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Catan", got[0].Name)
	assert.Equal(t, "Dixit", got[1].Name)

	p, err := repo.GetProduct(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Dixit", p.Name)

	assert.Equal(t, int32(3), hits.Load())
}

func TestRepository_CanceledCallerSkipsLocalStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// brokenStore would turn any local access into ErrStoreUnavailable.
	repo := newRepo(t, &fakeRemote{err: unreachable()}, brokenStore{}, Options{})

	_, err := repo.ListProducts(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, product.ErrStoreUnavailable)

	p, err := repo.GetProduct(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, p)

	err = repo.UpdateProduct(ctx, newProduct(1, "Catan", 10))
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, product.ErrStoreUnavailable)
}

func TestRepository_CanceledCallerLeavesNothingBehind(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := memory.NewProductStore()
	repo := newRepo(t, &fakeRemote{err: unreachable()}, store, Options{})

	_, err := repo.CreateProduct(ctx, newProduct(0, "Azul", 10))
	require.ErrorIs(t, err, context.Canceled)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
