package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/annel0/plotmines/internal/auth"
	"github.com/annel0/plotmines/internal/composition"
	"github.com/annel0/plotmines/internal/eventbus"
	"github.com/annel0/plotmines/internal/geometry"
	"github.com/annel0/plotmines/internal/logging"
	"github.com/annel0/plotmines/internal/mine"
	"github.com/annel0/plotmines/internal/plotmines"
	"github.com/annel0/plotmines/internal/registry"
	"github.com/annel0/plotmines/internal/scheduler"
	"github.com/annel0/plotmines/internal/storage"
	"github.com/annel0/plotmines/internal/world"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testEnv struct {
	server *RestServer
	world  *world.MemoryWorld
	sched  *scheduler.Scheduler
}

func newTestEnv(t *testing.T, secret string, accounts ...auth.Account) *testEnv {
	t.Helper()

	w := world.NewMemoryWorld()
	sched := scheduler.New()
	quiet := logging.NewWriterLogger("api-test", &bytes.Buffer{}, logging.ERROR)

	svc := plotmines.New(plotmines.Options{
		World:     w,
		Store:     storage.NewMemoryMineStore(),
		Scheduler: sched,
		Filler:    composition.NewEngine(w, 3),
		Logger:    quiet,
		Templates: map[string]mine.Template{
			"STONE_MINE": {
				Name:             "STONE_MINE",
				Label:            "Stone Mine",
				Width:            5,
				Depth:            5,
				ResetPercent:     10,
				Border:           world.Bedrock,
				Composition:      composition.Recipe{world.Stone: 1},
				InteractionBlock: world.Beacon,
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx, 200)
	t.Cleanup(cancel)

	server := NewRestServer(Config{
		Service:   svc,
		Tick:      sched,
		JWTSecret: secret,
		Accounts:  accounts,
		Logger:    quiet,
		Timeout:   2 * time.Second,
	})
	return &testEnv{server: server, world: w, sched: sched}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var resp GenericResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func (e *testEnv) token(t *testing.T, player mine.Owner, admin bool) string {
	t.Helper()
	token, _, err := e.server.auth.GenerateJWT(player, admin)
	require.NoError(t, err)
	return token
}

// decodeData перекодирует поле data ответа в out
func decodeData(t *testing.T, resp GenericResponse, out interface{}) {
	t.Helper()
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")

	rec, _ := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestMinesLifecycle_AuthDisabled(t *testing.T) {
	env := newTestEnv(t, "")

	rec, resp := env.do(t, http.MethodPost, "/api/mines", "", CreateMineRequest{
		Template: "STONE_MINE",
		Origin:   world.NewPosition(0, 64, 0, "world"),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.True(t, resp.Success)

	var created MineView
	decodeData(t, resp, &created)
	assert.Equal(t, "console's Stone Mine", created.DisplayName)
	assert.Equal(t, "STONE_MINE", created.Template)
	assert.Equal(t, "active", created.State)
	assert.Equal(t, world.Beacon, env.world.GetBlockMaterial(world.NewPosition(0, 65, 0, "world")))

	rec, resp = env.do(t, http.MethodGet, "/api/mines", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []MineView
	decodeData(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	rec, _ = env.do(t, http.MethodGet, "/api/mines/"+created.ID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodDelete, "/api/mines/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = env.do(t, http.MethodGet, "/api/mines/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateMine_Errors(t *testing.T) {
	env := newTestEnv(t, "")

	rec, _ := env.do(t, http.MethodPost, "/api/mines", "", CreateMineRequest{
		Template: "GOLD_MINE",
		Origin:   world.NewPosition(0, 64, 0, "world"),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/mines", "", map[string]string{"origin": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMine_NotFound(t *testing.T) {
	env := newTestEnv(t, "")

	rec, resp := env.do(t, http.MethodDelete, "/api/mines/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = env.do(t, http.MethodDelete, "/api/mines/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBlockBreak(t *testing.T) {
	env := newTestEnv(t, "")

	_, resp := env.do(t, http.MethodPost, "/api/mines", "", CreateMineRequest{
		Template: "STONE_MINE",
		Origin:   world.NewPosition(0, 64, 0, "world"),
	})
	var created MineView
	decodeData(t, resp, &created)

	inside := created.Minimum.Offset(2, 10, 2)
	rec, resp := env.do(t, http.MethodPost, "/api/events/break", "", BlockBreakRequest{Position: inside})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res plotmines.BreakResult
	decodeData(t, resp, &res)
	assert.True(t, res.Counted)
	assert.False(t, res.Reset)
	assert.Equal(t, world.Air, env.world.GetBlockMaterial(inside))

	rec, _ = env.do(t, http.MethodPost, "/api/events/break", "", BlockBreakRequest{
		Position: world.NewPosition(500, 10, 500, "world"),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, testSecret)

	rec, _ := env.do(t, http.MethodGet, "/api/mines", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/mines", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	player := mine.Owner{ID: uuid.New(), Name: "Steve"}
	rec, _ = env.do(t, http.MethodGet, "/api/mines", env.token(t, player, false), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health не защищён
	rec, _ = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOwnership(t *testing.T) {
	env := newTestEnv(t, testSecret)

	steve := mine.Owner{ID: uuid.New(), Name: "Steve"}
	alex := mine.Owner{ID: uuid.New(), Name: "Alex"}
	steveToken := env.token(t, steve, false)
	alexToken := env.token(t, alex, false)
	adminToken := env.token(t, mine.Owner{ID: uuid.New(), Name: "Admin"}, true)

	rec, resp := env.do(t, http.MethodPost, "/api/mines", steveToken, CreateMineRequest{
		Template: "STONE_MINE",
		Origin:   world.NewPosition(0, 64, 0, "world"),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created MineView
	decodeData(t, resp, &created)
	assert.Equal(t, "Steve's Stone Mine", created.DisplayName)
	assert.Equal(t, steve.ID.String(), created.Owner.ID)

	// Чужой владелец доступен только администратору
	rec, _ = env.do(t, http.MethodPost, "/api/mines", alexToken, CreateMineRequest{
		Template: "STONE_MINE",
		Origin:   world.NewPosition(100, 64, 0, "world"),
		Owner:    &OwnerView{ID: steve.ID.String(), Name: "Steve"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, http.MethodDelete, "/api/mines/"+created.ID, alexToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/mines/"+created.ID+"/reset", steveToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/mines/"+created.ID+"/reset", adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = env.do(t, http.MethodDelete, "/api/mines/"+created.ID, steveToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAdminCreatesForOwner(t *testing.T) {
	env := newTestEnv(t, testSecret)
	adminToken := env.token(t, mine.Owner{ID: uuid.New(), Name: "Admin"}, true)
	steveID := uuid.New()

	rec, resp := env.do(t, http.MethodPost, "/api/mines", adminToken, CreateMineRequest{
		Template: "STONE_MINE",
		Origin:   world.NewPosition(0, 64, 0, "world"),
		Owner:    &OwnerView{ID: steveID.String(), Name: "Steve"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created MineView
	decodeData(t, resp, &created)
	assert.Equal(t, steveID.String(), created.Owner.ID)
	assert.Equal(t, "Steve's Stone Mine", created.DisplayName)
}

func TestLogin(t *testing.T) {
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	env := newTestEnv(t, testSecret, auth.Account{Name: "Admin", PasswordHash: hash, Admin: true})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		bytes.NewBufferString(`{"username":"admin","password":"wrong"}`))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login",
		bytes.NewBufferString(`{"username":"admin","password":"hunter2"}`))
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var login LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.True(t, login.Success)
	assert.True(t, login.IsAdmin)
	require.NotEmpty(t, login.Token)

	claims, err := env.server.auth.ValidateJWT(login.Token)
	require.NoError(t, err)
	assert.Equal(t, login.PlayerID, claims.PlayerID)

	rec2, _ := env.do(t, http.MethodGet, "/api/webhooks", login.Token, nil)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestTemplatesAndStatus(t *testing.T) {
	env := newTestEnv(t, "")

	rec, resp := env.do(t, http.MethodGet, "/api/templates", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var templates []map[string]interface{}
	decodeData(t, resp, &templates)
	require.Len(t, templates, 1)
	assert.Equal(t, "STONE_MINE", templates[0]["name"])
	assert.Equal(t, "Stone Mine", templates[0]["label"])

	rec, resp = env.do(t, http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]interface{}
	decodeData(t, resp, &status)
	assert.EqualValues(t, 0, status["mines"])
	assert.Contains(t, status, "uptime")
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", registry.ErrNotFound), http.StatusNotFound},
		{geometry.ErrInvalidTemplate, http.StatusBadRequest},
		{plotmines.ErrUnknownTemplate, http.StatusBadRequest},
		{geometry.ErrCrossRegion, http.StatusBadRequest},
		{composition.ErrEmptyRecipe, http.StatusBadRequest},
		{mine.ErrDeleted, http.StatusConflict},
		{scheduler.ErrStopped, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, errorStatus(tc.err), tc.err.Error())
	}
}

func TestOutboundWebhooks(t *testing.T) {
	var (
		mu       sync.Mutex
		received []string
		sigs     []string
		bodies   [][]byte
	)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, r.Header.Get("X-Event-Type"))
		sigs = append(sigs, r.Header.Get("X-Webhook-Signature"))
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer target.Close()

	manager := NewOutboundWebhookManager("test-server", []OutboundWebhook{
		{Name: "deletes", URL: target.URL, Secret: "k", Events: []string{eventbus.EventMineDeleted}},
		{Name: "all", URL: target.URL, Events: []string{"*"}},
	})

	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()
	require.NoError(t, manager.Attach(bus))

	ctx := context.Background()
	created, err := eventbus.NewEnvelope("test", eventbus.EventMineCreated, 5, eventbus.MessagePayload{RecipientName: "hi"})
	require.NoError(t, err)
	deleted, err := eventbus.NewEnvelope("test", eventbus.EventMineDeleted, 5, eventbus.MessagePayload{RecipientName: "bye"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, created))
	require.NoError(t, bus.Publish(ctx, deleted))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	}, 2*time.Second, 10*time.Millisecond)
	manager.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{eventbus.EventMineCreated, eventbus.EventMineDeleted, eventbus.EventMineDeleted}, received)

	signed := 0
	for i, sig := range sigs {
		if sig != "" {
			signed++
			assert.Equal(t, generateSignature(bodies[i], "k"), sig)
		}
	}
	assert.Equal(t, 1, signed)

	for _, h := range manager.GetWebhooks() {
		assert.NotNil(t, h.LastUsed, h.Name)
		assert.Zero(t, h.FailureCount, h.Name)
	}
}

func TestOutboundWebhooks_FailureCounted(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer target.Close()

	manager := NewOutboundWebhookManager("test-server", []OutboundWebhook{
		{Name: "broken", URL: target.URL, Events: []string{"*"}, RetryCount: 1},
	})
	manager.backoff = time.Millisecond

	ev, err := eventbus.NewEnvelope("test", eventbus.EventMineReset, 5, eventbus.MessagePayload{RecipientName: "r"})
	require.NoError(t, err)
	manager.SendEvent(ev)
	manager.Close()

	hooks := manager.GetWebhooks()
	require.Len(t, hooks, 1)
	assert.Equal(t, 1, hooks[0].FailureCount)

	// После закрытия события игнорируются
	manager.SendEvent(ev)
}
