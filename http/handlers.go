package http

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"spacepredict/db"
	"spacepredict/ml"
	"spacepredict/pipeline"
)

//go:embed templates/form.html
var templateFS embed.FS

var formTemplate = template.Must(template.ParseFS(templateFS, "templates/form.html"))

const (
	defaultPredictionLimit = 50
	maxPredictionLimit     = 500
)

// PredictionLister 读取预测日志
type PredictionLister interface {
	RecentPredictions(ctx context.Context, limit int) ([]db.PredictionRecord, error)
}

// Handlers 表单与JSON接口处理器
type Handlers struct {
	predictor *pipeline.Predictor
	journal   PredictionLister
	feed      http.Handler
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
}

// NewHandlers 创建处理器
func NewHandlers(predictor *pipeline.Predictor, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{predictor: predictor, logger: logger}
}

// SetJournal 启用 /api/predictions
func (h *Handlers) SetJournal(journal PredictionLister) {
	h.journal = journal
}

// SetFeed 启用 /api/ws/predictions
func (h *Handlers) SetFeed(feed http.Handler) {
	h.feed = feed
}

// SetGatherer 启用 /metrics
func (h *Handlers) SetGatherer(gatherer prometheus.Gatherer) {
	h.gatherer = gatherer
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleForm)
	mux.HandleFunc("POST /{$}", h.handleFormSubmit)

	mux.HandleFunc("POST /api/predict", h.handlePredict)
	mux.HandleFunc("GET /api/labels", h.handleLabels)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/predictions", h.handlePredictions)

	if h.feed != nil {
		mux.Handle("GET /api/ws/predictions", h.feed)
	}
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

// formPage 表单页面数据
type formPage struct {
	HomePlanets  []string
	Destinations []string
	Amounts      []string
	Values       url.Values
	Errors       pipeline.ValidationErrors
	Message      string
}

func newFormPage(values url.Values) formPage {
	// Age leads NumericFields and has its own control.
	return formPage{
		HomePlanets:  pipeline.HomePlanetOptions(),
		Destinations: pipeline.DestinationOptions(),
		Amounts:      ml.NumericFields()[1:],
		Values:       values,
	}
}

func (h *Handlers) handleForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, http.StatusOK, newFormPage(nil))
}

func (h *Handlers) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}
	page := newFormPage(r.PostForm)

	raw, err := pipeline.ParseForm(r.PostForm)
	if err != nil {
		var verrs pipeline.ValidationErrors
		if errors.As(err, &verrs) {
			page.Errors = verrs
			h.renderForm(w, http.StatusUnprocessableEntity, page)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.predictor.Predict(r.Context(), raw)
	if err != nil {
		h.logger.Error("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		http.Error(w, "prediction failed", http.StatusInternalServerError)
		return
	}
	page.Message = result.Message
	h.renderForm(w, http.StatusOK, page)
}

func (h *Handlers) renderForm(w http.ResponseWriter, status int, page formPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := formTemplate.Execute(w, page); err != nil {
		h.logger.Error("render form", zap.Error(err))
	}
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	var input map[string]any
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	raw, err := pipeline.NormalizeRecord(input)
	if err != nil {
		var verrs pipeline.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":  pipeline.ErrInvalidInput.Error(),
				"fields": verrs,
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := h.predictor.Predict(r.Context(), raw)
	if err != nil {
		h.logger.Error("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "prediction failed"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleLabels(w http.ResponseWriter, r *http.Request) {
	tables := h.predictor.Tables()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":  tables.Version(),
		"fallback": tables.Fallback(),
		"tables":   tables.Snapshot(),
	})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "ok",
		"labels_version": h.predictor.Tables().Version(),
	})
}

func (h *Handlers) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "prediction journal is disabled"})
		return
	}

	limit := defaultPredictionLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(l, maxPredictionLimit)
	}

	records, err := h.journal.RecentPredictions(r.Context(), limit)
	if err != nil {
		h.logger.Error("list predictions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read journal"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": records,
		"count":       len(records),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
