package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"escrowflow/internal/dialog"
	"escrowflow/internal/handler"
	"escrowflow/internal/model"
	"escrowflow/internal/repository"
	"escrowflow/internal/service/txclient"
	"escrowflow/internal/service/workflow"
	"escrowflow/internal/session"
	"escrowflow/internal/trustline"
	"escrowflow/internal/validation"
	"escrowflow/pkg/rbac"
	"escrowflow/pkg/util"
)

const testSecret = "test-secret"

type fakeProjects struct{}

func (fakeProjects) FindOwned(_ context.Context, id, userID int) (*model.Project, error) {
	if id != 1 || userID != 7 {
		return nil, repository.ErrNotFound
	}
	return &model.Project{ID: 1, UserID: 7}, nil
}

type fakeMilestones struct{}

func (fakeMilestones) FindByProjectID(context.Context, int) ([]model.Milestone, error) {
	return []model.Milestone{
		{ID: 1, Status: "completed"},
		{ID: 2, Status: "completed"},
		{ID: 3, Status: "pending"},
	}, nil
}

// fakeFlows 按真实协议切换对话框，便于观察 HTTP 层行为
type fakeFlows struct {
	err   error
	calls int
}

func (f *fakeFlows) Fund(_ context.Context, s *session.Scope, req workflow.FundRequest) (*workflow.Outcome, error) {
	if res := validation.ValidateFundingAmount(req.Amount); !res.OK() {
		snap, _ := s.Dialogs.Snapshot()
		return &workflow.Outcome{Operation: "fund", Phase: workflow.PhaseAwaitingInput, Validation: res.Err, Dialogs: snap}, nil
	}
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	_ = s.Dialogs.Close(dialog.Fund)
	_ = s.Dialogs.Open(dialog.Success)
	snap, _ := s.Dialogs.Snapshot()
	return &workflow.Outcome{Operation: "fund", Phase: workflow.PhaseSuccess, TxHash: "0xabc", Dialogs: snap}, nil
}

func (f *fakeFlows) Approve(_ context.Context, s *session.Scope, _ workflow.ApproveRequest) (*workflow.Outcome, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	snap, _ := s.Dialogs.Snapshot()
	return &workflow.Outcome{Operation: "approve", Phase: workflow.PhaseSubmitting, TxHash: "0xpending", Dialogs: snap}, nil
}

func (f *fakeFlows) Release(_ context.Context, _ *session.Scope, _ workflow.ReleaseRequest) (*workflow.Outcome, error) {
	f.calls++
	return nil, f.err
}

type fakeReplayer struct{}

func (fakeReplayer) ReplayEvent(context.Context, int64) error             { return nil }
func (fakeReplayer) ReplayFailedEvents(context.Context, int) (int, error) { return 0, nil }

type testServer struct {
	router   *Router
	sessions *session.Manager
	flows    *fakeFlows
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	l := zap.NewNop()
	sessions := session.NewManager(16, time.Minute, l)
	flows := &fakeFlows{}

	router := NewRouter(Handlers{
		Trustline: handler.NewTrustlineHandler(trustline.Default(), l),
		Project:   handler.NewProjectHandler(fakeProjects{}, fakeMilestones{}, l),
		Session:   handler.NewSessionHandler(sessions, l),
		Escrow:    handler.NewEscrowHandler(flows, sessions, l),
		Admin:     handler.NewAdminHandler(fakeReplayer{}, l),
	}, testSecret, rbac.NewResolver([]int{1}), []ReadinessCheck{
		{Name: "db", Check: func(context.Context) error { return nil }},
	}, l)

	return &testServer{router: router, sessions: sessions, flows: flows}
}

func (s *testServer) do(t *testing.T, method, path string, userID int, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID > 0 {
		token, err := util.GenerateJWT(userID, testSecret, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.Engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", 0, "").Code)

	w := s.do(t, http.MethodGet, "/readyz", 0, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}

func TestTrustlines(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/trustlines?network=testnet", 0, "")
	require.Equal(t, http.StatusOK, w.Code)
	options := decode(t, w)["options"].([]any)
	assert.Len(t, options, 2)

	w = s.do(t, http.MethodGet, "/trustlines?network=futurenet", 0, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["options"])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/trustlines", 0, "").Code)
}

func TestProgressRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/projects/1/progress", 0, "").Code)
}

func TestProgress(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/projects/1/progress", 7, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, float64(2), body["completed"])
	assert.Equal(t, float64(67), body["percent"])

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/projects/2/progress", 7, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/projects/x/progress", 7, "").Code)
}

func TestSessionDialogLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/sessions", 7, "")
	require.Equal(t, http.StatusCreated, w.Code)
	sid := decode(t, w)["session_id"].(string)

	w = s.do(t, http.MethodPut, "/sessions/"+sid+"/dialogs/second", 7, `{"open":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["changed"])

	// 重复关闭已关闭的对话框不报错
	w = s.do(t, http.MethodPut, "/sessions/"+sid+"/dialogs/success", 7, `{"open":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["changed"])

	w = s.do(t, http.MethodGet, "/sessions/"+sid+"/dialogs/second", 7, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["is_open"])

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/sessions/"+sid+"/dialogs/confirm", 7, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/sessions/"+sid+"/dialogs/second", 7, `{}`).Code)

	// 其他用户看不到该会话
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/sessions/"+sid+"/dialogs", 8, "").Code)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/sessions/"+sid, 7, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/sessions/"+sid+"/dialogs", 7, "").Code)
}

func mount(t *testing.T, s *testServer) string {
	scope, err := s.sessions.Mount(7)
	require.NoError(t, err)
	return scope.ID
}

func TestFundValidationIs422(t *testing.T) {
	s := newTestServer(t)
	sid := mount(t, s)

	w := s.do(t, http.MethodPost, "/sessions/"+sid+"/escrows/3/fund", 7, `{"amount":"abc"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	errBody := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "invalid_type", errBody["code"])
	assert.Equal(t, "amount", errBody["field"])
	assert.Equal(t, "Amount must be a number", errBody["message"])
	assert.Equal(t, 0, s.flows.calls)

	w = s.do(t, http.MethodPost, "/sessions/"+sid+"/escrows/3/fund", 7, `{"amount":0}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "not_positive", decode(t, w)["error"].(map[string]any)["code"])
}

func TestFundSuccess(t *testing.T) {
	s := newTestServer(t)
	sid := mount(t, s)

	w := s.do(t, http.MethodPost, "/sessions/"+sid+"/escrows/3/fund", 7, `{"network":"testnet","amount":12.5}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "success", body["phase"])
	assert.Equal(t, true, body["dialogs"].(map[string]any)["success"])
}

func TestApprovePendingIs202(t *testing.T) {
	s := newTestServer(t)
	sid := mount(t, s)

	w := s.do(t, http.MethodPost, "/sessions/"+sid+"/escrows/3/approve", 7, `{"milestone":"2"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestWorkflowErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{workflow.ErrNotApproved, http.StatusConflict},
		{repository.ErrNotFound, http.StatusNotFound},
		{workflow.ErrUnknownToken, http.StatusBadRequest},
		{&txclient.OperationError{Operation: "release", Message: "reverted"}, http.StatusBadGateway},
		{dialog.ErrNoProvider, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		s := newTestServer(t)
		sid := mount(t, s)
		s.flows.err = tc.err

		w := s.do(t, http.MethodPost, "/sessions/"+sid+"/escrows/3/release", 7, `{"milestone":"1"}`)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
	}
}

func TestAdminRequiresRole(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/admin/outbox/replay?id=1", 7, "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/admin/outbox/replay?id=1", 1, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/admin/outbox/replay", 1, "").Code)
}
