package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"spacepredict/db"
	"spacepredict/ml"
	"spacepredict/monitoring"
	"spacepredict/pipeline"
)

// cryoModel transports every passenger in cryosleep.
func cryoModel() ml.Classifier {
	low, high := 0.2, 0.9
	return ml.NewDecisionTree(ml.FeatureNames(), []ml.TreeNode{
		{FeatureIdx: 1, Threshold: 0.5, LeftChild: 1, RightChild: 2},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, ClassLabel: 0, IsLeaf: true, Probability: &low},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, ClassLabel: 1, IsLeaf: true, Probability: &high},
	})
}

type testServer struct {
	handler  http.Handler
	journal  *db.Journal
	registry *prometheus.Registry
	hub      *monitoring.Hub
}

func newTestServer(t *testing.T, withJournal bool) *testServer {
	return buildTestServer(t, withJournal, false)
}

// buildTestServer wires handlers the way main.go does, optionally with the
// journal and the live feed.
func buildTestServer(t *testing.T, withJournal, withFeed bool) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	tables, err := ml.BuildLabelTables()
	require.NoError(t, err)

	ts := &testServer{registry: prometheus.NewRegistry()}
	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(monitoring.NewMetrics(ts.registry)),
		pipeline.WithModelType(ml.ModelTypeDecisionTree),
	}
	if withJournal {
		ts.journal, err = db.OpenJournal(filepath.Join(t.TempDir(), "predictions.db"))
		require.NoError(t, err)
		t.Cleanup(func() { ts.journal.Close() })
		opts = append(opts, pipeline.WithJournal(ts.journal))
	}
	if withFeed {
		ts.hub = monitoring.NewHub(nil)
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		go ts.hub.Run(ctx)
		opts = append(opts, pipeline.WithPublisher(ts.hub))
	}
	predictor, err := pipeline.NewPredictor(tables, ml.NewModelHandle(cryoModel()), opts...)
	require.NoError(t, err)

	handlers := NewHandlers(predictor, logger)
	if withJournal {
		handlers.SetJournal(ts.journal)
	}
	if withFeed {
		handlers.SetFeed(http.HandlerFunc(ts.hub.HandleWebSocket))
	}
	handlers.SetGatherer(ts.registry)
	ts.handler = NewServer(DefaultServerConfig(), handlers, logger).Handler()
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func passengerForm() url.Values {
	return url.Values{
		"HomePlanet":   {"Earth"},
		"CryoSleep":    {"yes"},
		"Cabin":        {"F/1/S"},
		"Destination":  {"TRAPPIST-1e"},
		"Age":          {"30"},
		"VIP":          {"no"},
		"RoomService":  {"0"},
		"FoodCourt":    {"0"},
		"ShoppingMall": {"0"},
		"Spa":          {"0"},
		"VRDeck":       {"0"},
	}
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func postJSON(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

const passengerJSON = `{
	"HomePlanet": "Earth", "CryoSleep": "yes", "Cabin": "F/1/S",
	"Destination": "TRAPPIST-1e", "Age": 30, "VIP": false,
	"RoomService": 0, "FoodCourt": 0, "ShoppingMall": 0, "Spa": 0, "VRDeck": 0
}`

func TestHealthHandler(t *testing.T) {
	ts := newTestServer(t, false)
	rr := ts.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","labels_version":"2024.1"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestFormRenders(t *testing.T) {
	ts := newTestServer(t, false)
	rr := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	for _, name := range ml.FeatureNames() {
		assert.Contains(t, body, `name="`+name+`"`)
	}
	assert.Contains(t, body, "PSO J318.5-22")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestFormSubmitShowsPrediction(t *testing.T) {
	ts := newTestServer(t, false)

	rr := ts.do(postForm(passengerForm()))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "The Passenger was TRANSPORTED!")

	values := passengerForm()
	values.Set("CryoSleep", "NO")
	rr = ts.do(postForm(values))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "The Passenger was NOT transported.")
}

func TestFormSubmitInvalidRerenders(t *testing.T) {
	ts := newTestServer(t, false)
	values := passengerForm()
	values.Set("Age", "thirty")
	values.Set("HomePlanet", "Pluto")

	rr := ts.do(postForm(values))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Invalid number. Try again.")
	assert.Contains(t, body, "Invalid. Choose from")
	assert.NotContains(t, body, "TRANSPORTED")
	// Submitted values survive the round trip.
	assert.Contains(t, body, `value="thirty"`)
}

func TestAPIPredict(t *testing.T) {
	ts := newTestServer(t, false)
	rr := ts.do(postJSON(passengerJSON))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.True(t, result.Transported)
	assert.Equal(t, 1, result.Label)
	assert.InDelta(t, 0.9, result.Probability, 1e-9)
	assert.Equal(t, pipeline.MessageTransported, result.Message)
	assert.Equal(t, 0.0, result.Encoded[ml.FieldHomePlanet])
	assert.Equal(t, 3.0, result.Encoded[ml.FieldCabin])
	assert.Equal(t, "2024.1", result.LabelsVersion)
}

func TestAPIPredictUnknownCabinFallsBack(t *testing.T) {
	ts := newTestServer(t, false)
	body := strings.Replace(passengerJSON, `"F/1/S"`, `"Z/999/Q"`, 1)
	rr := ts.do(postJSON(body))
	require.Equal(t, http.StatusOK, rr.Code)

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, []string{ml.FieldCabin}, result.Fallbacks)
	assert.Equal(t, 4.0, result.Encoded[ml.FieldCabin])
}

func TestAPIPredictErrors(t *testing.T) {
	ts := newTestServer(t, false)

	rr := ts.do(postJSON(`{"HomePlanet":`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(postJSON(`{"HomePlanet":"Earth"}`))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var payload struct {
		Error  string                `json:"error"`
		Fields []pipeline.FieldError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	assert.Equal(t, "invalid input", payload.Error)
	assert.Equal(t, "Enter yes or no.", pipeline.ValidationErrors(payload.Fields).Field(ml.FieldCryoSleep))
	assert.Equal(t, "is required", pipeline.ValidationErrors(payload.Fields).Field(ml.FieldAge))
}

func TestLabelsHandler(t *testing.T) {
	ts := newTestServer(t, false)
	rr := ts.do(httptest.NewRequest(http.MethodGet, "/api/labels", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var payload struct {
		Version  string              `json:"version"`
		Fallback string              `json:"fallback"`
		Tables   map[string][]string `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	assert.Equal(t, "nan", payload.Fallback)
	assert.Equal(t, []string{"Earth", "Europa", "Mars", "nan"}, payload.Tables[ml.FieldHomePlanet])
	for _, field := range ml.CategoricalFields() {
		assert.Contains(t, payload.Tables[field], "nan", field)
	}
}

func TestPredictionsHandler(t *testing.T) {
	ts := newTestServer(t, true)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, ts.do(postJSON(passengerJSON)).Code)
	}

	rr := ts.do(httptest.NewRequest(http.MethodGet, "/api/predictions?limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var payload struct {
		Predictions []db.PredictionRecord `json:"predictions"`
		Count       int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	assert.Equal(t, 2, payload.Count)
	assert.True(t, payload.Predictions[0].Transported)
	assert.Equal(t, ml.ModelTypeDecisionTree, payload.Predictions[0].ModelType)

	n, err := ts.journal.CountPredictions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rr = ts.do(httptest.NewRequest(http.MethodGet, "/api/predictions?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPredictionsHandlerWithoutJournal(t *testing.T) {
	ts := newTestServer(t, false)
	rr := ts.do(httptest.NewRequest(http.MethodGet, "/api/predictions", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsHandler(t *testing.T) {
	ts := newTestServer(t, false)
	require.Equal(t, http.StatusOK, ts.do(postJSON(passengerJSON)).Code)

	rr := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `spacepredict_predictions_total{outcome="transported"} 1`)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, false)
	rr := ts.do(httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPredictionFeedThroughServer(t *testing.T) {
	ts := buildTestServer(t, false, true)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/ws/predictions", nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	resp, err = http.Post(server.URL+"/api/predict", "application/json", strings.NewReader(passengerJSON))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string          `json:"type"`
		Data pipeline.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "prediction", msg.Type)
	assert.True(t, msg.Data.Transported)
	assert.Equal(t, pipeline.MessageTransported, msg.Data.Message)
}
