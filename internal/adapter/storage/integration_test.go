package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rl1809/timeless/internal/adapter/storage"
	"github.com/rl1809/timeless/internal/core/domain"
	"github.com/rl1809/timeless/internal/core/service"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	cache   *storage.RedisAdapter
	db      *storage.MySQLAdapter
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/timeless?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	return &testEnv{
		redis: rdb,
		mysql: db,
		cache: storage.NewRedisAdapter(rdb),
		db:    storage.NewMySQLAdapter(db),
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

// fakeProvider accepts every request unless err is set.
type fakeProvider struct {
	calls atomic.Int32
	err   error
}

func (p *fakeProvider) CreateSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	p.calls.Add(1)
	if p.err != nil {
		return domain.CheckoutSession{}, p.err
	}
	return domain.CheckoutSession{ID: "cs_it_" + req.IdempotencyKey, URL: "https://pay.example.com/" + req.IdempotencyKey}, nil
}

func (p *fakeProvider) ParseEvent(payload []byte, signature string) (domain.PaymentEvent, error) {
	return domain.PaymentEvent{}, errors.New("not supported")
}

func (env *testEnv) newUser(t *testing.T) domain.User {
	t.Helper()
	u, err := env.db.CreateUserWithCart(context.Background(), "it-"+uuid.NewString()[:8], "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		env.mysql.ExecContext(context.Background(), `DELETE FROM users WHERE id = ?`, u.ID)
		env.redis.Del(context.Background(), "product:1", "product:2")
	})
	return u
}

func TestIntegration_CartToCheckoutFlow(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	u := env.newUser(t)
	identity := domain.Identity{UserID: u.ID, Username: u.Username, CartID: u.CartID}

	catalog := storage.NewCachedCatalog(env.db, env.cache, time.Minute, zerolog.Nop())
	carts := service.NewCartService(env.db, env.db, zerolog.Nop())
	provider := &fakeProvider{}
	checkout := service.NewCheckoutService(env.db, env.db, provider, env.cache,
		service.CheckoutConfig{QueueSize: 10}, zerolog.Nop())
	recorder := service.NewCheckoutRecorder(env.db, nil, zerolog.Nop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		recorder.Run(0, checkout.GetCheckoutQueue())
	}()

	if _, err := catalog.GetProduct(ctx, 1); err != nil {
		t.Fatalf("catalog read failed: %v", err)
	}

	if _, err := carts.AddItem(ctx, u.CartID, 1, 1); err != nil {
		t.Fatalf("add item failed: %v", err)
	}
	if _, err := carts.AddItem(ctx, u.CartID, 1, 1); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate add, got: %v", err)
	}
	if _, err := carts.SetQuantity(ctx, u.CartID, 2, 3); err != nil {
		t.Fatalf("set quantity failed: %v", err)
	}

	session, err := checkout.CreateCheckoutSession(ctx, identity)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	checkout.Close()
	wg.Wait()

	lines, err := carts.GetCart(ctx, u.CartID)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("expected empty cart after checkout, got %d lines", len(lines))
	}

	recorded, err := env.db.GetCheckoutSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("session not recorded: %v", err)
	}
	if recorded.Status != domain.CheckoutStatusPending {
		t.Errorf("expected pending, got %s", recorded.Status)
	}
	if recorded.AmountTotal != 45000+3*62500 {
		t.Errorf("expected amount %d, got %d", 45000+3*62500, recorded.AmountTotal)
	}

	// shopping continues before the provider reports payment
	if _, err := carts.AddItem(ctx, u.CartID, 1, 1); err != nil {
		t.Fatalf("add item after checkout failed: %v", err)
	}

	// completion webhook path
	if err := checkout.HandleEvent(ctx, domain.PaymentEvent{
		Type: domain.PaymentEventSessionCompleted, SessionID: session.ID, CartID: u.CartID,
	}); err != nil {
		t.Fatalf("handle event failed: %v", err)
	}
	recorded, _ = env.db.GetCheckoutSession(ctx, session.ID)
	if recorded.Status != domain.CheckoutStatusCompleted {
		t.Errorf("expected completed, got %s", recorded.Status)
	}
	lines, _ = carts.GetCart(ctx, u.CartID)
	if len(lines) != 1 {
		t.Errorf("item added after checkout should survive completion, got %d lines", len(lines))
	}
}

func TestIntegration_CompletionKeepsItemsAddedAfterCheckout(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(storage.SeedProducts()...)
	u, err := store.CreateUserWithCart(ctx, "grace", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	carts := service.NewCartService(store, store, zerolog.Nop())
	checkout := service.NewCheckoutService(store, store, &fakeProvider{}, store,
		service.CheckoutConfig{QueueSize: 10}, zerolog.Nop())
	recorder := service.NewCheckoutRecorder(store, nil, zerolog.Nop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		recorder.Run(0, checkout.GetCheckoutQueue())
	}()

	if _, err := carts.AddItem(ctx, u.CartID, 1, 1); err != nil {
		t.Fatalf("add item failed: %v", err)
	}
	session, err := checkout.CreateCheckoutSession(ctx, domain.Identity{UserID: u.ID, CartID: u.CartID})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	checkout.Close()
	wg.Wait()

	if _, err := carts.AddItem(ctx, u.CartID, 2, 3); err != nil {
		t.Fatalf("add item after checkout failed: %v", err)
	}

	if err := checkout.HandleEvent(ctx, domain.PaymentEvent{
		Type: domain.PaymentEventSessionCompleted, SessionID: session.ID, CartID: u.CartID,
	}); err != nil {
		t.Fatalf("handle event failed: %v", err)
	}

	recorded, err := store.GetCheckoutSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("session not recorded: %v", err)
	}
	if recorded.Status != domain.CheckoutStatusCompleted {
		t.Errorf("expected completed, got %s", recorded.Status)
	}

	lines, err := carts.GetCart(ctx, u.CartID)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(lines) != 1 || lines[0].ProductID != 2 || lines[0].Quantity != 3 {
		t.Errorf("expected the post-checkout line to survive, got %+v", lines)
	}
}

func TestIntegration_ProviderFailureKeepsCart(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	u := env.newUser(t)

	carts := service.NewCartService(env.db, env.db, zerolog.Nop())
	provider := &fakeProvider{err: errors.New("stripe: 503")}
	checkout := service.NewCheckoutService(env.db, env.db, provider, env.cache,
		service.CheckoutConfig{QueueSize: 10}, zerolog.Nop())
	defer checkout.Close()

	if _, err := carts.AddItem(ctx, u.CartID, 3, 2); err != nil {
		t.Fatalf("add item failed: %v", err)
	}

	_, err := checkout.CreateCheckoutSession(ctx, domain.Identity{UserID: u.ID, CartID: u.CartID})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got: %v", err)
	}
	if provider.calls.Load() != 1 {
		t.Errorf("expected exactly 1 provider call, got %d", provider.calls.Load())
	}

	lines, _ := carts.GetCart(ctx, u.CartID)
	if len(lines) != 1 || lines[0].Quantity != 2 {
		t.Errorf("cart should be untouched, got %+v", lines)
	}

	// lock must have been released
	if env.redis.Exists(ctx, "checkout:lock:"+strconv.FormatInt(u.CartID, 10)).Val() != 0 {
		t.Error("checkout lock left behind")
	}
}

func TestIntegration_EmptyCartNeverCallsProvider(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	u := env.newUser(t)
	provider := &fakeProvider{}
	checkout := service.NewCheckoutService(env.db, env.db, provider, env.cache,
		service.CheckoutConfig{QueueSize: 10}, zerolog.Nop())
	defer checkout.Close()

	_, err := checkout.CreateCheckoutSession(context.Background(), domain.Identity{UserID: u.ID, CartID: u.CartID})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got: %v", err)
	}
	if provider.calls.Load() != 0 {
		t.Errorf("provider called %d times for empty cart", provider.calls.Load())
	}
}
