package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/router-sms-gateway/internal/config"
	"github.com/jmehdipour/router-sms-gateway/internal/dispatcher"
	"github.com/jmehdipour/router-sms-gateway/internal/jobs"
	"github.com/jmehdipour/router-sms-gateway/internal/model"
	"github.com/jmehdipour/router-sms-gateway/internal/repository"
)

const testKey = "test-key"

type stubDispatcher struct {
	mu      sync.Mutex
	calls   []model.SMS
	err     error
	result  model.SendResult
	nextJob model.Job
}

func (s *stubDispatcher) Submit(_ context.Context, phoneNumber, message string) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, model.SMS{PhoneNumber: phoneNumber, Message: message})
	if s.err != nil {
		return model.Job{}, s.err
	}
	return s.nextJob, nil
}

func (s *stubDispatcher) SubmitAndWait(_ context.Context, phoneNumber, message string) model.SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, model.SMS{PhoneNumber: phoneNumber, Message: message})
	return s.result
}

func (s *stubDispatcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubHistory struct {
	rows      []repository.HistoryRecord
	gotPhone  string
	gotStatus model.JobStatus
}

func (h *stubHistory) Record(context.Context, model.Job) error { return nil }

func (h *stubHistory) List(_ context.Context, phone string, status model.JobStatus, _, _ int) ([]repository.HistoryRecord, error) {
	h.gotPhone, h.gotStatus = phone, status
	return h.rows, nil
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.HTTP.APIKey = testKey
	return cfg
}

func do(t *testing.T, s *Server, method, target, body, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestSendSMSRejectsBadKey(t *testing.T) {
	d := &stubDispatcher{}
	s := NewServer(testConfig(), Deps{Dispatcher: d, Jobs: jobs.NewMemoryStore(time.Hour, 0)})

	for _, key := range []string{"", "nope"} {
		rec := do(t, s, http.MethodPost, "/send-sms", `{"phone_number":"+1","message":"x"}`, key)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.JSONEq(t, `{"error":"invalid api key"}`, rec.Body.String())
	}
	require.Zero(t, d.callCount(), "no job is created")
}

func TestSendSMSAccepted(t *testing.T) {
	d := &stubDispatcher{nextJob: model.Job{ID: "job-1", Status: model.JobPending}}
	s := NewServer(testConfig(), Deps{Dispatcher: d, Jobs: jobs.NewMemoryStore(time.Hour, 0)})

	rec := do(t, s, http.MethodPost, "/send-sms", `{"phone_number":" +1 (555) 123-4567 ","message":" hello "}`, testKey)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"status":"accepted","job_id":"job-1","message":"SMS sending task has been queued"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	require.Equal(t, []model.SMS{{PhoneNumber: "+15551234567", Message: " hello "}}, d.calls)
}

func TestSendSMSWait(t *testing.T) {
	res := model.Success()
	res.ElapsedTime = 2.5
	d := &stubDispatcher{result: res}
	s := NewServer(testConfig(), Deps{Dispatcher: d, Jobs: jobs.NewMemoryStore(time.Hour, 0)})

	rec := do(t, s, http.MethodPost, "/send-sms?wait=true", `{"phone_number":"+1","message":"x"}`, testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"success","message":"SMS sent successfully","elapsed_time":2.5}`, rec.Body.String())
}

func TestSendSMSValidation(t *testing.T) {
	d := &stubDispatcher{}
	s := NewServer(testConfig(), Deps{Dispatcher: d, Jobs: jobs.NewMemoryStore(time.Hour, 0)})

	for _, body := range []string{
		`{"phone_number":"","message":"x"}`,
		`{"phone_number":"+1","message":"   "}`,
		`{"phone_number":"()-","message":"x"}`,
		`not json`,
	} {
		rec := do(t, s, http.MethodPost, "/send-sms", body, testKey)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
	require.Zero(t, d.callCount())
}

func TestSendSMSQueueUnavailable(t *testing.T) {
	d := &stubDispatcher{err: dispatcher.ErrQueueFull}
	s := NewServer(testConfig(), Deps{Dispatcher: d, Jobs: jobs.NewMemoryStore(time.Hour, 0)})

	rec := do(t, s, http.MethodPost, "/send-sms", `{"phone_number":"+1","message":"x"}`, testKey)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSendSMSJobStoreFull(t *testing.T) {
	d := &stubDispatcher{err: fmt.Errorf("create job: %w", jobs.ErrFull)}
	s := NewServer(testConfig(), Deps{Dispatcher: d, Jobs: jobs.NewMemoryStore(time.Hour, 0)})

	rec := do(t, s, http.MethodPost, "/send-sms", `{"phone_number":"+1","message":"x"}`, testKey)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetJob(t *testing.T) {
	store := jobs.NewMemoryStore(time.Hour, 0)
	now := time.Now().UTC()
	require.NoError(t, store.Create(context.Background(), model.Job{
		ID: "abc", PhoneNumber: "+1", Message: "x", Status: model.JobPending, SubmittedAt: now, UpdatedAt: now,
	}))
	s := NewServer(testConfig(), Deps{Dispatcher: &stubDispatcher{}, Jobs: store})

	rec := do(t, s, http.MethodGet, "/job/abc", "", testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	var job model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, "abc", job.ID)
	require.Equal(t, model.JobPending, job.Status)

	rec = do(t, s, http.MethodGet, "/job/missing", "", testKey)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error":"job not found"}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/job/abc", "", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHistoryRoute(t *testing.T) {
	s := NewServer(testConfig(), Deps{Dispatcher: &stubDispatcher{}, Jobs: jobs.NewMemoryStore(time.Hour, 0)})
	require.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/history", "", testKey).Code)

	h := &stubHistory{rows: []repository.HistoryRecord{{ID: 1, JobID: "j1", Status: model.JobCompleted}}}
	s = NewServer(testConfig(), Deps{Dispatcher: &stubDispatcher{}, Jobs: jobs.NewMemoryStore(time.Hour, 0), History: h})

	rec := do(t, s, http.MethodGet, "/history?status=completed&phone=0044%20123", "", testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "+44123", h.gotPhone)
	require.Equal(t, model.JobCompleted, h.gotStatus)

	var body struct {
		Count   int                        `json:"count"`
		Results []repository.HistoryRecord `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	require.Equal(t, "j1", body.Results[0].JobID)

	rec = do(t, s, http.MethodGet, "/history?status=pending", "", testKey)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzIsOpen(t *testing.T) {
	s := NewServer(testConfig(), Deps{Dispatcher: &stubDispatcher{}, Jobs: jobs.NewMemoryStore(time.Hour, 0)})
	rec := do(t, s, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

type instantSender struct{}

func (instantSender) Send(context.Context, string, string) model.SendResult {
	time.Sleep(5 * time.Millisecond)
	return model.Success()
}

func TestSendThenPollJob(t *testing.T) {
	store := jobs.NewMemoryStore(time.Hour, 0)
	coord := dispatcher.NewCoordinator(instantSender{}, store, dispatcher.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = coord.Run(ctx) }()
	defer func() {
		cancel()
		<-coord.Stopped()
	}()

	s := NewServer(testConfig(), Deps{Dispatcher: coord, Jobs: store})

	rec := do(t, s, http.MethodPost, "/send-sms", `{"phone_number":"+15551234567","message":"hello"}`, testKey)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.Equal(t, "accepted", accepted["status"])
	jobID := accepted["job_id"]
	require.NotEmpty(t, jobID)

	var job model.Job
	require.Eventually(t, func() bool {
		rec := do(t, s, http.MethodGet, "/job/"+jobID, "", testKey)
		if rec.Code != http.StatusOK {
			return false
		}
		job = model.Job{}
		return json.Unmarshal(rec.Body.Bytes(), &job) == nil && job.Status == model.JobCompleted
	}, 2*time.Second, 10*time.Millisecond)

	require.NotNil(t, job.Result)
	require.Equal(t, model.ResultSuccess, job.Result.Status)
	require.Equal(t, model.MsgSent, job.Result.Message)
	require.Greater(t, job.Result.ElapsedTime, 0.0)
}
