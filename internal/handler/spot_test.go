package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taqo-app/taqo-backend/internal/model"
	"github.com/taqo-app/taqo-backend/internal/repository"
	"github.com/taqo-app/taqo-backend/internal/service"
)

type memSpotStore struct {
	spots map[string]*model.Spot
}

func newMemSpotStore() *memSpotStore {
	return &memSpotStore{spots: make(map[string]*model.Spot)}
}

func (m *memSpotStore) Create(_ context.Context, s *model.Spot) error {
	cp := *s
	m.spots[s.ID] = &cp
	return nil
}

func (m *memSpotStore) Get(_ context.Context, id string) (*model.Spot, error) {
	s, ok := m.spots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSpotStore) ConditionalUpdate(_ context.Context, id string, pred func(*model.Spot) bool, mutate func(*model.Spot)) error {
	s, ok := m.spots[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !pred(s) {
		return repository.ErrConflict
	}
	mutate(s)
	return nil
}

func (m *memSpotStore) ListStaleReserved(_ context.Context, _ time.Time) ([]*model.Spot, error) {
	return nil, nil
}

func (m *memSpotStore) CountOpenBySeller(_ context.Context, _ string) (int, error) {
	return 0, nil
}

type noopNotifier struct{}

func (noopNotifier) EnqueuePush(_ context.Context, _ []string, _, _ string, _ map[string]string, _ bool) {
}
func (noopNotifier) EnqueueEmail(_ context.Context, _, _, _ string, _ bool) {}

func newSpotHandlerFixture() (*SpotHandler, *memSpotStore) {
	store := newMemSpotStore()
	return NewSpotHandler(service.NewSpotService(store, noopNotifier{}, 0.25)), store
}

// invoke runs a handler method against POST /v1/spots/:id/<action> with
// the authenticated user already in context, the way the JWT middleware
// leaves it.
func invoke(t *testing.T, h func(echo.Context) error, spotID string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", "buyer-1")
	c.SetParamNames("id")
	c.SetParamValues(spotID)
	require.NoError(t, h(c))
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func seedAvailableSpot(t *testing.T, store *memSpotStore) string {
	t.Helper()
	spot := &model.Spot{
		ID:          "spot-1",
		QueueName:   "Berghain",
		SellerID:    "seller-1",
		Status:      model.SpotAvailable,
		SellerPrice: 8,
		BuyerPrice:  10,
	}
	require.NoError(t, store.Create(context.Background(), spot))
	return spot.ID
}

func TestReserveEndpointHoldsSpot(t *testing.T) {
	h, store := newSpotHandlerFixture()
	spotID := seedAvailableSpot(t, store)

	rec := invoke(t, h.Reserve, spotID)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	spot, err := store.Get(context.Background(), spotID)
	require.NoError(t, err)
	assert.Equal(t, model.SpotReserved, spot.Status)
	require.NotNil(t, spot.ReservedAt)
}

func TestReserveEndpointConflict(t *testing.T) {
	h, store := newSpotHandlerFixture()
	spotID := seedAvailableSpot(t, store)
	require.Equal(t, http.StatusNoContent, invoke(t, h.Reserve, spotID).Code)

	rec := invoke(t, h.Reserve, spotID)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "spot_unavailable", errorCode(t, rec))
}

func TestFreeEndpointReleasesHold(t *testing.T) {
	h, store := newSpotHandlerFixture()
	spotID := seedAvailableSpot(t, store)
	require.Equal(t, http.StatusNoContent, invoke(t, h.Reserve, spotID).Code)

	rec := invoke(t, h.Free, spotID)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	spot, err := store.Get(context.Background(), spotID)
	require.NoError(t, err)
	assert.Equal(t, model.SpotAvailable, spot.Status)
	assert.Nil(t, spot.ReservedAt)
}

func TestFreeEndpointOnUnreservedSpot(t *testing.T) {
	h, store := newSpotHandlerFixture()
	spotID := seedAvailableSpot(t, store)

	rec := invoke(t, h.Free, spotID)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "failed_to_free_spot", errorCode(t, rec))
}
