package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ce-fello/barter-service/src/internal/api/apiErrors"
	"github.com/ce-fello/barter-service/src/internal/auth"
	"github.com/ce-fello/barter-service/src/internal/model"
	"github.com/ce-fello/barter-service/src/internal/notify"
	"github.com/ce-fello/barter-service/src/internal/service"
	"github.com/ce-fello/barter-service/src/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type APISuite struct {
	suite.Suite
	srv    *httptest.Server
	tokens *auth.TokenService
	stop   context.CancelFunc
	done   chan error
}

func (s *APISuite) SetupTest() {
	logger := zap.NewNop()
	mem := store.NewMemory(logger)
	mem.PutSkill(model.Skill{SkillID: "s-alice", OwnerID: "alice", Title: "Guitar", IsActive: true})
	mem.PutSkill(model.Skill{SkillID: "s-bob", OwnerID: "bob", Title: "Spanish", IsActive: true})
	mem.PutSkill(model.Skill{SkillID: "s-bob-2", OwnerID: "bob", Title: "Chess", IsActive: true})

	dispatcher := notify.NewDispatcher(notify.NewStoreSink(mem), 1, 16, logger)
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- dispatcher.Run(ctx) }()

	svc := service.NewService(mem, mem, mem, dispatcher, logger)
	s.tokens = auth.NewTokenService("test-secret")

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware, LoggerMiddleware(logger), Recoverer(logger))
	RegisterRoutes(r, NewHandler(svc, logger, time.Second), s.tokens)
	s.srv = httptest.NewServer(r)
}

func (s *APISuite) TearDownTest() {
	s.srv.Close()
	s.stop()
	s.Require().NoError(<-s.done)
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) do(method, path, user string, body any) (int, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	s.Require().NoError(err)
	if user != "" {
		token, err := s.tokens.Issue(user, time.Hour)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var out map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func (s *APISuite) createBarter() string {
	status, body := s.do(http.MethodPost, "/barters", "alice", map[string]any{
		"receiver_id":        "bob",
		"offered_skill_id":   "s-alice",
		"requested_skill_id": "s-bob",
		"message":            "swap?",
	})
	s.Require().Equal(http.StatusCreated, status, body)
	b := body["barter"].(map[string]any)
	return b["id"].(string)
}

func (s *APISuite) TestHealth() {
	status, body := s.do(http.MethodGet, "/health", "", nil)

	s.Equal(http.StatusOK, status)
	s.Equal("ok", body["status"])
}

func (s *APISuite) TestRequiresToken() {
	status, body := s.do(http.MethodGet, "/barters/my", "", nil)

	s.Equal(http.StatusUnauthorized, status)
	s.Equal(string(apiErrors.Unauthorized), errorCode(body))
}

func (s *APISuite) TestHappyPath() {
	id := s.createBarter()

	status, body := s.do(http.MethodPut, "/barters/"+id+"/accept", "bob", nil)
	s.Require().Equal(http.StatusOK, status, body)
	barter := body["barter"].(map[string]any)
	s.Equal("accepted", barter["status"])
	s.NotEmpty(barter["conversation_ref"])

	status, body = s.do(http.MethodPut, "/barters/"+id+"/complete", "alice", nil)
	s.Require().Equal(http.StatusOK, status, body)
	s.NotEmpty(body["barter"].(map[string]any)["completed_at"])

	status, body = s.do(http.MethodGet, "/reviews/check/"+id, "alice", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Equal(true, body["eligible"])

	review := map[string]any{"barter_id": id, "rating": 5, "comment": "patient and clear"}
	status, body = s.do(http.MethodPost, "/reviews", "alice", review)
	s.Require().Equal(http.StatusCreated, status, body)

	status, body = s.do(http.MethodPost, "/reviews", "alice", review)
	s.Equal(http.StatusConflict, status)
	s.Equal(string(apiErrors.Conflict), errorCode(body))

	status, body = s.do(http.MethodGet, "/reviews/user/bob", "carol", nil)
	s.Require().Equal(http.StatusOK, status)
	s.InDelta(5.0, body["average_rating"], 0.001)
}

func (s *APISuite) TestStatusMapping() {
	id := s.createBarter()

	status, body := s.do(http.MethodPut, "/barters/"+id+"/accept", "alice", nil)
	s.Equal(http.StatusForbidden, status)
	s.Equal(string(apiErrors.Forbidden), errorCode(body))

	status, body = s.do(http.MethodPut, "/barters/"+id+"/reject", "bob", map[string]any{"reason": "not interested"})
	s.Require().Equal(http.StatusOK, status, body)
	s.Equal("not interested", body["barter"].(map[string]any)["rejection_reason"])

	status, body = s.do(http.MethodPut, "/barters/"+id+"/accept", "bob", nil)
	s.Equal(http.StatusConflict, status)
	s.Equal(string(apiErrors.InvalidState), errorCode(body))

	status, body = s.do(http.MethodGet, "/barters/unknown", "bob", nil)
	s.Equal(http.StatusNotFound, status)
	s.Equal(string(apiErrors.NotFound), errorCode(body))
}

func (s *APISuite) TestRejectWithoutBody() {
	id := s.createBarter()

	status, body := s.do(http.MethodPut, "/barters/"+id+"/reject", "bob", nil)

	s.Require().Equal(http.StatusOK, status, body)
	s.Nil(body["barter"].(map[string]any)["rejection_reason"])
}

func (s *APISuite) TestBodyValidation() {
	status, body := s.do(http.MethodPost, "/barters", "alice", map[string]any{"receiver_id": "bob"})
	s.Equal(http.StatusBadRequest, status)
	s.Equal(string(apiErrors.Validation), errorCode(body))

	id := s.createBarter()
	status, body = s.do(http.MethodPost, "/reports", "bob", map[string]any{
		"barter_id": id, "reported_user_id": "alice", "reason": "rude", "description": "long enough text",
	})
	s.Equal(http.StatusBadRequest, status)
	s.Contains(body["error"].(map[string]any)["message"], "reason")

	status, _ = s.do(http.MethodGet, "/barters/my?page=first", "alice", nil)
	s.Equal(http.StatusBadRequest, status)
}

func (s *APISuite) TestCounterAndReport() {
	id := s.createBarter()

	status, body := s.do(http.MethodPut, "/barters/"+id+"/counter", "bob", map[string]any{
		"message": "chess instead?", "offered_skill_id": "s-bob-2",
	})
	s.Require().Equal(http.StatusOK, status, body)
	counter := body["barter"].(map[string]any)["counter_offer"].(map[string]any)
	s.Equal("s-bob-2", counter["offered_skill_id"])

	status, body = s.do(http.MethodPost, "/reports", "bob", map[string]any{
		"barter_id": id, "reported_user_id": "alice", "reason": "spam", "description": "same offer ten times",
	})
	s.Require().Equal(http.StatusCreated, status, body)
}

func (s *APISuite) TestListsAndStats() {
	s.createBarter()

	status, body := s.do(http.MethodGet, "/barters/my?filter=received_pending", "bob", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Len(body["barters"], 1)
	s.EqualValues(1, body["pagination"].(map[string]any)["total"])

	status, body = s.do(http.MethodGet, "/barters/my?filter=sent", "bob", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Empty(body["barters"])

	status, body = s.do(http.MethodGet, "/barters/stats", "bob", nil)
	s.Require().Equal(http.StatusOK, status)
	s.EqualValues(1, body["pending_received"])
	s.EqualValues(1, body["by_status"].(map[string]any)["pending"])
	s.EqualValues(0, body["by_status"].(map[string]any)["completed"])
}

func (s *APISuite) TestNotificationsInbox() {
	s.createBarter()

	s.Eventually(func() bool {
		status, body := s.do(http.MethodGet, "/notifications", "bob", nil)
		items, _ := body["notifications"].([]any)
		return status == http.StatusOK && len(items) == 1
	}, time.Second, 10*time.Millisecond)
}

func (s *APISuite) TestNotificationReadRoutes() {
	s.createBarter()

	var id string
	s.Require().Eventually(func() bool {
		_, body := s.do(http.MethodGet, "/notifications", "bob", nil)
		items, _ := body["notifications"].([]any)
		if len(items) != 1 {
			return false
		}
		id, _ = items[0].(map[string]any)["id"].(string)
		return true
	}, time.Second, 10*time.Millisecond)

	_, body := s.do(http.MethodGet, "/notifications", "bob", nil)
	s.EqualValues(1, body["unread_count"])

	status, body := s.do(http.MethodPut, "/notifications/"+id+"/read", "alice", nil)
	s.Equal(http.StatusNotFound, status)
	s.Equal(string(apiErrors.NotFound), errorCode(body))

	status, _ = s.do(http.MethodPut, "/notifications/"+id+"/read", "bob", nil)
	s.Require().Equal(http.StatusOK, status)

	_, body = s.do(http.MethodGet, "/notifications", "bob", nil)
	s.EqualValues(0, body["unread_count"])
	s.Equal(true, body["notifications"].([]any)[0].(map[string]any)["is_read"])

	status, body = s.do(http.MethodPut, "/notifications/read-all", "bob", nil)
	s.Require().Equal(http.StatusOK, status)
	s.EqualValues(0, body["updated"])
}

func (s *APISuite) TestMyReviews() {
	id := s.createBarter()
	_, _ = s.do(http.MethodPut, "/barters/"+id+"/accept", "bob", nil)
	_, _ = s.do(http.MethodPut, "/barters/"+id+"/complete", "bob", nil)
	status, body := s.do(http.MethodPost, "/reviews", "bob", map[string]any{"barter_id": id, "rating": 4})
	s.Require().Equal(http.StatusCreated, status, body)

	status, body = s.do(http.MethodGet, "/reviews/my", "bob", nil)
	s.Require().Equal(http.StatusOK, status, body)
	s.Len(body["reviews"], 1)

	status, body = s.do(http.MethodGet, "/reviews/my", "alice", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Empty(body["reviews"])
}

func (s *APISuite) TestListByStatusAndType() {
	id := s.createBarter()
	status, _ := s.do(http.MethodPut, "/barters/"+id+"/cancel", "alice", nil)
	s.Require().Equal(http.StatusOK, status)

	status, body := s.do(http.MethodGet, "/barters/my?status=cancelled&type=received", "bob", nil)
	s.Require().Equal(http.StatusOK, status, body)
	s.Len(body["barters"], 1)

	status, body = s.do(http.MethodGet, "/barters/my?status=all&type=sent", "bob", nil)
	s.Require().Equal(http.StatusOK, status, body)
	s.Empty(body["barters"])

	status, body = s.do(http.MethodGet, "/barters/my?type=both", "bob", nil)
	s.Equal(http.StatusBadRequest, status)
	s.Equal(string(apiErrors.Validation), errorCode(body))
}

func (s *APISuite) TestHugePageIsEmptyNotError() {
	s.createBarter()

	status, body := s.do(http.MethodGet, "/barters/my?page=9223372036854775807", "alice", nil)
	s.Require().Equal(http.StatusOK, status, body)
	s.Empty(body["barters"])
	s.EqualValues(1, body["pagination"].(map[string]any)["total"])

	status, body = s.do(http.MethodGet, "/reviews/user/bob?page=4611686018427387903&limit=100", "alice", nil)
	s.Require().Equal(http.StatusOK, status, body)
	s.Empty(body["reviews"])
}
