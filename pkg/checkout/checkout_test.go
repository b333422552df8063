package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu           sync.Mutex
	configHits   atomic.Int32
	configFail   atomic.Bool
	statuses     []string
	statusHits   int
	cancelled    []string
	verified     []Callback
	activeResult bool
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /payment/config", func(w http.ResponseWriter, r *http.Request) {
		f.configHits.Add(1)
		time.Sleep(20 * time.Millisecond)
		if f.configFail.Load() {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": map[string]string{"type": "internal_error", "message": "internal server error"}})
			return
		}
		writeJSON(w, http.StatusOK, Config{Key: "rzp_test_key", Currency: "INR", DefaultAmount: 9900})
	})
	mux.HandleFunc("POST /payment/create-order", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "order_id": "order_1", "amount": 9900, "currency": "INR", "key": "rzp_test_key", "payment_id": "42"})
	})
	mux.HandleFunc("GET /payment/status/{orderId}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("orderId") != "order_1" {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"type": "not_found", "message": "not found"}})
			return
		}
		f.mu.Lock()
		idx := min(f.statusHits, len(f.statuses)-1)
		status := f.statuses[idx]
		f.statusHits++
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"payment": Payment{ID: "42", OrderID: "order_1", Status: status}})
	})
	mux.HandleFunc("GET /payment/user/{userId}/active", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Active{HasActivePayment: f.activeResult})
	})
	mux.HandleFunc("POST /payment/cancel", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.cancelled = append(f.cancelled, body["orderId"])
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("POST /payment/verify", func(w http.ResponseWriter, r *http.Request) {
		var cb Callback
		_ = json.NewDecoder(r.Body).Decode(&cb)
		f.mu.Lock()
		f.verified = append(f.verified, cb)
		f.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]string{"type": "invalid_signature", "message": "invalid signature"}})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type scriptedUI struct {
	result   UIResult
	sessions []Session
}

func (u *scriptedUI) Open(ctx context.Context, session Session) (UIResult, error) {
	u.sessions = append(u.sessions, session)
	return u.result, nil
}

func newTestPoller(t *testing.T, api *fakeAPI, ui CheckoutUI) *Poller {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL)
	return NewPoller(client, nil, ui, PollConfig{
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		MaxElapsed:      300 * time.Millisecond,
	}, nil)
}

func TestLoaderSharesOneFetch(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()
	loader := NewLoader(NewClient(srv.URL))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg, err := loader.Ensure(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "rzp_test_key", cfg.Key)
		}()
	}
	wg.Wait()

	_, err := loader.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.configHits.Load())
}

func TestLoaderDoesNotCacheFailure(t *testing.T) {
	api := &fakeAPI{}
	api.configFail.Store(true)
	srv := httptest.NewServer(api.handler())
	defer srv.Close()
	loader := NewLoader(NewClient(srv.URL))

	_, err := loader.Ensure(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServer))

	api.configFail.Store(false)
	cfg, err := loader.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9900), cfg.DefaultAmount)
	assert.Equal(t, int32(2), api.configHits.Load())
}

func TestBeginReportsSuccessOnlyFromServerStatus(t *testing.T) {
	api := &fakeAPI{statuses: []string{StatusPending, StatusPending, StatusCompleted}, activeResult: true}
	ui := &scriptedUI{result: UIResult{Callback: &Callback{PaymentID: "pay_1", Signature: "forged"}}}
	p := newTestPoller(t, api, ui)

	result, err := p.Begin(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.True(t, result.Active)
	assert.Equal(t, "order_1", result.OrderID)

	require.Len(t, ui.sessions, 1)
	assert.Equal(t, "rzp_test_key", ui.sessions[0].Config.Key)
	assert.Equal(t, "order_1", ui.sessions[0].Order.OrderID)
	require.Len(t, api.verified, 1)
	assert.Equal(t, "order_1", api.verified[0].OrderID)
}

func TestBeginCancelsOnDismiss(t *testing.T) {
	api := &fakeAPI{statuses: []string{StatusPending}}
	p := newTestPoller(t, api, &scriptedUI{result: UIResult{Dismissed: true}})

	result, err := p.Begin(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.True(t, result.Dismissed)
	assert.False(t, result.Succeeded())
	assert.Equal(t, []string{"order_1"}, api.cancelled)
	assert.Zero(t, api.statusHits)
}

func TestRefreshGivesUpWhilePending(t *testing.T) {
	api := &fakeAPI{statuses: []string{StatusPending}}
	p := newTestPoller(t, api, nil)

	result, err := p.Refresh(context.Background(), "u1", "order_1")
	require.ErrorIs(t, err, ErrStillPending)
	require.NotNil(t, result)
	assert.Equal(t, StatusPending, result.Status)
	assert.False(t, result.Succeeded())
}

func TestRefreshReportsFailure(t *testing.T) {
	api := &fakeAPI{statuses: []string{StatusFailed}}
	p := newTestPoller(t, api, nil)

	result, err := p.Refresh(context.Background(), "u1", "order_1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.False(t, result.Active)
}

func TestRefreshStopsOnUnknownOrder(t *testing.T) {
	api := &fakeAPI{statuses: []string{StatusPending}}
	p := newTestPoller(t, api, nil)

	_, err := p.Refresh(context.Background(), "u1", "order_missing")
	require.ErrorIs(t, err, ErrNotFound)
}
