package purchase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/app/repository"
	"github.com/ManuelReschke/ReelPass/internal/pkg/cache"
	"github.com/ManuelReschke/ReelPass/internal/pkg/catalog"
	"github.com/ManuelReschke/ReelPass/internal/pkg/config"
	"github.com/ManuelReschke/ReelPass/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReelPass/internal/pkg/pricing"
	"github.com/ManuelReschke/ReelPass/internal/pkg/wallet"
)

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *recordingPublisher) Close() {}

type env struct {
	repos  *repository.Repositories
	wallet *wallet.Service
	coord  *Coordinator
	access *entitlements.AccessResolver
	events *recordingPublisher
}

const user uint = 42

func setup(t *testing.T, funds int64) *env {
	t.Helper()
	ctx := context.Background()
	repos := repository.NewMemoryRepositories()
	c := repos.Content
	require.NoError(t, c.CreateContent(ctx, &models.Content{ID: "film", Kind: models.ContentKindMovie, Title: "Film", Price: 800}))
	require.NoError(t, c.CreateContent(ctx, &models.Content{ID: "gift", Kind: models.ContentKindMovie, Title: "Gift", Free: true}))
	require.NoError(t, c.CreateContent(ctx, &models.Content{ID: "show", Kind: models.ContentKindSeries, Title: "Show", DiscountPercent: 15}))
	require.NoError(t, c.CreateSeason(ctx, &models.Season{ID: "s1", ContentID: "show", Number: 1}))
	for i, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, c.CreateEpisode(ctx, &models.Episode{ID: id, SeasonID: "s1", ContentID: "show", Number: i + 1, Price: 500}))
	}

	w := wallet.NewService(repos, "USD", 0)
	if funds > 0 {
		_, err := w.Credit(ctx, user, wallet.Entry{Amount: funds, Kind: models.WalletTxTopUp})
		require.NoError(t, err)
	}
	pub := &recordingPublisher{}
	coord := NewCoordinator(repos, w, pricing.NewResolver(config.RoundingNearest), WithPublisher(pub))
	return &env{repos: repos, wallet: w, coord: coord, access: entitlements.NewAccessResolver(repos), events: pub}
}

func (e *env) balance(t *testing.T) int64 {
	t.Helper()
	b, err := e.wallet.Balance(context.Background(), user)
	require.NoError(t, err)
	return b.Total
}

func series() catalog.Target { return catalog.Target{Kind: models.TargetSeries, ContentID: "show"} }
func season(id string) catalog.Target {
	return catalog.Target{Kind: models.TargetSeason, ContentID: "show", UnitID: id}
}
func episode(id string) catalog.Target {
	return catalog.Target{Kind: models.TargetEpisode, ContentID: "show", UnitID: id}
}

func TestPurchase_SeriesBundle(t *testing.T) {
	e := setup(t, 2000)

	record, err := e.coord.Purchase(context.Background(), user, series())
	require.NoError(t, err)
	assert.Equal(t, int64(1275), record.PricePaid)
	assert.Equal(t, []string{"e1", "e2", "e3"}, record.SnapshotIDs)
	assert.Equal(t, models.PaymentMethodWallet, record.PaymentMethod)
	assert.Equal(t, int64(725), e.balance(t))
	assert.Equal(t, []string{"purchase.completed"}, e.events.keys)
}

func TestPurchase_TwiceDebitsOnce(t *testing.T) {
	e := setup(t, 2000)
	ctx := context.Background()

	_, err := e.coord.Purchase(ctx, user, episode("e2"))
	require.NoError(t, err)
	_, err = e.coord.Purchase(ctx, user, episode("e2"))
	assert.ErrorIs(t, err, ErrAlreadyOwned)
	assert.Equal(t, int64(1500), e.balance(t))

	txs, err := e.wallet.Transactions(ctx, user, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestPurchase_EpisodeAddedAfterSeries(t *testing.T) {
	e := setup(t, 5000)
	ctx := context.Background()

	_, err := e.coord.Purchase(ctx, user, series())
	require.NoError(t, err)
	require.NoError(t, e.repos.Content.CreateEpisode(ctx, &models.Episode{ID: "e4", SeasonID: "s1", ContentID: "show", Number: 4, Price: 500}))

	d, _, err := e.access.CanAccess(ctx, &models.User{ID: user}, entitlements.PlayableTarget("show", "e4"))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, entitlements.ReasonAddedAfterPurchase, d.Reason)

	_, err = e.coord.Purchase(ctx, user, series())
	assert.ErrorIs(t, err, ErrAlreadyOwned)

	record, err := e.coord.Purchase(ctx, user, episode("e4"))
	require.NoError(t, err)
	assert.Equal(t, int64(500), record.PricePaid)
	assert.Empty(t, record.SnapshotIDs)

	d, _, err = e.access.CanAccess(ctx, &models.User{ID: user}, entitlements.PlayableTarget("show", "e4"))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, entitlements.ReasonEpisodePurchase, d.Reason)

	assert.Equal(t, int64(5000-1275-500), e.balance(t))
}

func TestPurchase_BlockedByBundles(t *testing.T) {
	e := setup(t, 5000)
	ctx := context.Background()

	_, err := e.coord.Purchase(ctx, user, season("s1"))
	require.NoError(t, err)
	_, err = e.coord.Purchase(ctx, user, episode("e1"))
	assert.ErrorIs(t, err, ErrAlreadyOwned)
	_, err = e.coord.Purchase(ctx, user, series())
	assert.ErrorIs(t, err, ErrAlreadyOwned, "every paid episode is already covered")

	other := setup(t, 5000)
	_, err = other.coord.Purchase(ctx, user, series())
	require.NoError(t, err)
	_, err = other.coord.Purchase(ctx, user, season("s1"))
	assert.ErrorIs(t, err, ErrAlreadyOwned)
}

func TestPurchase_InsufficientFundsWritesNothing(t *testing.T) {
	e := setup(t, 1000)
	ctx := context.Background()

	_, err := e.coord.Purchase(ctx, user, series())
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)
	assert.EqualError(t, err, "insufficient balance: need 1275, have 1000")

	lib, err := e.coord.Library(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, lib)
	assert.Equal(t, int64(1000), e.balance(t))
	assert.Empty(t, e.events.keys)
}

func TestPurchase_Rejections(t *testing.T) {
	e := setup(t, 1000)
	ctx := context.Background()

	_, err := e.coord.Purchase(ctx, user, catalog.Target{Kind: models.TargetMovie, ContentID: "gift"})
	assert.ErrorIs(t, err, ErrFreeContent)

	_, err = e.coord.Purchase(ctx, user, catalog.Target{Kind: models.TargetMovie, ContentID: "missing"})
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = e.coord.Purchase(ctx, user, catalog.Target{Kind: models.TargetSeason, ContentID: "show"})
	assert.ErrorIs(t, err, catalog.ErrInvalidTarget)

	require.NoError(t, e.repos.Content.CreateContent(ctx, &models.Content{ID: "broken", Kind: models.ContentKindMovie}))
	_, err = e.coord.Purchase(ctx, user, catalog.Target{Kind: models.TargetMovie, ContentID: "broken"})
	assert.ErrorIs(t, err, pricing.ErrInvalidPricing)

	assert.Equal(t, int64(1000), e.balance(t))
}

func TestPurchase_ConcurrentSameTarget(t *testing.T) {
	e := setup(t, 10000)
	ctx := context.Background()

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.coord.Purchase(ctx, user, catalog.Target{Kind: models.TargetMovie, ContentID: "film"}); err == nil {
				ok.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrAlreadyOwned)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int64(9200), e.balance(t))
	assert.NoError(t, e.wallet.Reconcile(ctx, user))
}

type busyGuard struct{}

func (busyGuard) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, cache.ErrLocked
}

func TestPurchase_InFlightGuard(t *testing.T) {
	e := setup(t, 1000)
	e.coord.guard, e.coord.lockTTL = busyGuard{}, time.Second

	_, err := e.coord.Purchase(context.Background(), user, catalog.Target{Kind: models.TargetMovie, ContentID: "film"})
	assert.ErrorIs(t, err, ErrPurchaseInProgress)
	assert.Equal(t, int64(1000), e.balance(t))
}

func TestQuote(t *testing.T) {
	e := setup(t, 0)
	ctx := context.Background()

	q, err := e.coord.Quote(ctx, user, series())
	require.NoError(t, err)
	assert.Equal(t, int64(1275), q.Price)
	assert.Equal(t, "USD", q.Currency)
	assert.False(t, q.Owned)

	q, err = e.coord.Quote(ctx, user, catalog.Target{Kind: models.TargetMovie, ContentID: "gift"})
	require.NoError(t, err)
	assert.True(t, q.Free)
}

func grant(t *testing.T, e *env, target catalog.Target, paid int64, ref string) *GrantResult {
	t.Helper()
	var res *GrantResult
	err := e.repos.Transaction(context.Background(), func(tx *repository.Repositories) error {
		var err error
		res, err = e.coord.GrantTx(context.Background(), tx, user, target, paid, ref)
		return err
	})
	require.NoError(t, err)
	return res
}

func TestGrantTx_IdempotentWithoutDebit(t *testing.T) {
	e := setup(t, 0)

	first := grant(t, e, series(), 1275, "ref-1")
	require.NotNil(t, first.Record)
	assert.False(t, first.Replayed)
	assert.Equal(t, models.PaymentMethodGateway, first.Record.PaymentMethod)
	assert.Len(t, first.Record.SnapshotIDs, 3)

	again := grant(t, e, series(), 1275, "ref-1")
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Record.ID, again.Record.ID)
	assert.Equal(t, int64(0), e.balance(t))
}

func TestGrantTx_RefundsWhenAlreadyOwned(t *testing.T) {
	e := setup(t, 2000)
	_, err := e.coord.Purchase(context.Background(), user, series())
	require.NoError(t, err)

	res := grant(t, e, episode("e2"), 500, "ref-2")
	assert.True(t, res.Refunded)
	assert.Nil(t, res.Record)
	assert.Equal(t, int64(2000-1275+500), e.balance(t))
}
