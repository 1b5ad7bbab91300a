package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/websocket"
	"github.com/jmoiron/sqlx"
	"github.com/mentorlabs/deepresearch/internal/config"
	"github.com/mentorlabs/deepresearch/internal/db"
	"github.com/mentorlabs/deepresearch/internal/streaming"
	"github.com/mentorlabs/deepresearch/internal/workflows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

type startedCall struct {
	options  client.StartWorkflowOptions
	workflow interface{}
	args     []interface{}
}

type signalCall struct {
	workflowID string
	name       string
	arg        interface{}
}

// stubClient records calls and returns canned responses.
type stubClient struct {
	started    []startedCall
	signals    []signalCall
	execErr    error
	signalErr  error
	queryValue interface{}
	queryErr   error
}

type fakeRun struct{ id string }

func (f fakeRun) GetID() string    { return f.id }
func (f fakeRun) GetRunID() string { return "test-run" }
func (f fakeRun) Get(ctx context.Context, valuePtr interface{}) error {
	return nil
}
func (f fakeRun) GetWithOptions(ctx context.Context, valuePtr interface{}, options client.WorkflowRunGetOptions) error {
	return nil
}

type stubEncodedValue struct{ v interface{} }

func (s stubEncodedValue) HasValue() bool { return s.v != nil }
func (s stubEncodedValue) Get(valuePtr interface{}) error {
	b, err := json.Marshal(s.v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, valuePtr)
}

func (s *stubClient) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error) {
	if s.execErr != nil {
		return nil, s.execErr
	}
	s.started = append(s.started, startedCall{options: options, workflow: workflow, args: args})
	return fakeRun{id: options.ID}, nil
}

func (s *stubClient) SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error {
	if s.signalErr != nil {
		return s.signalErr
	}
	s.signals = append(s.signals, signalCall{workflowID: workflowID, name: signalName, arg: arg})
	return nil
}

func (s *stubClient) QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.EncodedValue, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return stubEncodedValue{v: s.queryValue}, nil
}

func testConfig() *config.Config {
	cfg, _ := config.Load("")
	return cfg
}

func newTestHandler(tc WorkflowClient, store *db.Store, streams *streaming.Manager) *Handler {
	return NewHandler(tc, store, streams, testConfig(), nil)
}

func TestStartResearch(t *testing.T) {
	tc := &stubClient{}
	h := newTestHandler(tc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/research",
		strings.NewReader(`{"query": "why is the sky blue", "sequential": true}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp startResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.RunID, "dr-"))

	require.Len(t, tc.started, 1)
	call := tc.started[0]
	assert.Equal(t, "deep-research", call.options.TaskQueue)
	assert.Equal(t, workflows.WorkflowName, call.workflow)
	require.Len(t, call.args, 1)
	input := call.args[0].(workflows.ResearchInput)
	assert.Equal(t, "why is the sky blue", input.Query)
	assert.True(t, input.Sequential)
	assert.Equal(t, resp.RunID, input.RunID)
}

func TestStartResearchRequiresQuery(t *testing.T) {
	h := newTestHandler(&stubClient{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/research", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartResearchUpstreamFailure(t *testing.T) {
	h := newTestHandler(&stubClient{execErr: errors.New("temporal down")}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/research", strings.NewReader(`{"query":"q"}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetStatusLive(t *testing.T) {
	tc := &stubClient{queryValue: workflows.StatusSnapshot{Phase: "researching", Pending: 2, Active: 1}}
	h := newTestHandler(tc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/research/dr-1", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Live)
	assert.Equal(t, "researching", resp.Live.Phase)
	assert.Equal(t, 2, resp.Live.Pending)
}

func TestGetStatusUnknownRun(t *testing.T) {
	tc := &stubClient{queryErr: errors.New("workflow not found")}
	h := newTestHandler(tc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/research/nope", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelSignal(t *testing.T) {
	tc := &stubClient{}
	h := newTestHandler(tc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/research/dr-9/cancel",
		strings.NewReader(`{"reason": "done with it"}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, tc.signals, 1)
	assert.Equal(t, "dr-9", tc.signals[0].workflowID)
	assert.Equal(t, workflows.SignalCancel, tc.signals[0].name)
	cr := tc.signals[0].arg.(workflows.CancelRequest)
	assert.Equal(t, "done with it", cr.Reason)
}

func TestPauseAndResumeSignals(t *testing.T) {
	tc := &stubClient{}
	h := newTestHandler(tc, nil, nil)

	for _, path := range []string{"/research/dr-9/pause", "/research/dr-9/resume"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, req)
		require.Equal(t, http.StatusAccepted, rec.Code, path)
	}
	require.Len(t, tc.signals, 2)
	assert.Equal(t, workflows.SignalPause, tc.signals[0].name)
	assert.Equal(t, workflows.SignalResume, tc.signals[1].name)
}

func TestGetReport(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	store := db.NewStoreWithDB(sqlx.NewDb(mockDB, "sqlmock"), nil)

	rows := sqlmock.NewRows([]string{"run_id", "markdown", "citation_table", "created_at"}).
		AddRow("dr-1", "# Findings", []byte(`[{"key":"S1"}]`), time.Now())
	mock.ExpectQuery("SELECT run_id, markdown").WithArgs("dr-1").WillReturnRows(rows)

	h := newTestHandler(&stubClient{}, store, nil)
	req := httptest.NewRequest(http.MethodGet, "/research/dr-1/report", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# Findings")
	assert.Contains(t, rec.Body.String(), `"key":"S1"`)
}

func TestGetReportNotFound(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	store := db.NewStoreWithDB(sqlx.NewDb(mockDB, "sqlmock"), nil)
	mock.ExpectQuery("SELECT run_id, markdown").WillReturnRows(sqlmock.NewRows([]string{"run_id"}))

	h := newTestHandler(&stubClient{}, store, nil)
	req := httptest.NewRequest(http.MethodGet, "/research/missing/report", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSSEStream(t *testing.T) {
	streams := streaming.NewManager(16, nil, nil)
	h := newTestHandler(&stubClient{}, nil, streams)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/research/dr-1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Publish until the subscriber is registered and the frame observed.
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				streams.Publish("dr-1", streaming.Event{RunID: "dr-1", Type: streaming.EventTopicStarted, TopicID: "t-001"})
			}
		}
	}()
	defer close(done)

	scanner := bufio.NewScanner(resp.Body)
	var sawEvent, sawData bool
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: "+streaming.EventTopicStarted) {
			sawEvent = true
		}
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"t-001"`) {
			sawData = true
		}
		if sawEvent && sawData {
			break
		}
	}
	assert.True(t, sawEvent, "expected event line")
	assert.True(t, sawData, "expected data line")
}

func TestWebSocketStream(t *testing.T) {
	streams := streaming.NewManager(16, nil, nil)
	h := newTestHandler(&stubClient{}, nil, streams)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/research/dr-2/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				streams.Publish("dr-2", streaming.Event{RunID: "dr-2", Type: streaming.EventRunCompleted})
			}
		}
	}()
	defer close(done)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var evt streaming.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, streaming.EventRunCompleted, evt.Type)
	assert.Equal(t, "dr-2", evt.RunID)
}
