// Package pipeline 连接输入、编码与模型推理
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"spacepredict/db"
	"spacepredict/ml"
	"spacepredict/monitoring"
)

const (
	MessageTransported    = "✅ The Passenger was TRANSPORTED!"
	MessageNotTransported = "❌ The Passenger was NOT transported."
)

// Message renders the verdict shown to the user.
func Message(transported bool) string {
	if transported {
		return MessageTransported
	}
	return MessageNotTransported
}

// Journal 持久化预测结果
type Journal interface {
	SavePrediction(ctx context.Context, rec db.PredictionRecord) error
}

// Publisher 推送预测结果
type Publisher interface {
	Publish(msgType monitoring.MessageType, payload interface{}) error
}

// Result 单次预测结果
type Result struct {
	ID            string           `json:"id"`
	Transported   bool             `json:"transported"`
	Label         int              `json:"label"`
	Probability   float64          `json:"probability"`
	Message       string           `json:"message"`
	Encoded       ml.EncodedRecord `json:"encoded"`
	Fallbacks     []string         `json:"fallbacks,omitempty"`
	ModelType     string           `json:"model_type"`
	LabelsVersion string           `json:"labels_version"`
	Cached        bool             `json:"cached"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Predictor 预测流水线. Tables and model are injected at start-up and only
// read afterwards.
type Predictor struct {
	tables    *ml.LabelTables
	models    *ml.ModelHandle
	modelType string
	cache     *lru.Cache[string, ml.Prediction]
	journal   Journal
	publisher Publisher
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Predictor) error

func WithLogger(logger *zap.Logger) Option {
	return func(p *Predictor) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// WithCacheSize keeps the last size predictions; 0 disables the cache.
func WithCacheSize(size int) Option {
	return func(p *Predictor) error {
		if size <= 0 {
			p.cache = nil
			return nil
		}
		cache, err := lru.New[string, ml.Prediction](size)
		if err != nil {
			return err
		}
		p.cache = cache
		return nil
	}
}

func WithJournal(journal Journal) Option {
	return func(p *Predictor) error {
		p.journal = journal
		return nil
	}
}

func WithPublisher(publisher Publisher) Option {
	return func(p *Predictor) error {
		p.publisher = publisher
		return nil
	}
}

func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(p *Predictor) error {
		p.metrics = metrics
		return nil
	}
}

func WithModelType(modelType string) Option {
	return func(p *Predictor) error {
		p.modelType = modelType
		return nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Predictor) error {
		p.now = now
		return nil
	}
}

// NewPredictor 创建预测流水线
func NewPredictor(tables *ml.LabelTables, models *ml.ModelHandle, opts ...Option) (*Predictor, error) {
	if tables == nil {
		return nil, errors.New("label tables are required")
	}
	if models == nil {
		return nil, errors.New("model handle is required")
	}
	if model, _ := models.Current(); model == nil {
		return nil, errors.New("model handle is empty")
	}
	p := &Predictor{
		tables: tables,
		models: models,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Predictor) Tables() *ml.LabelTables {
	return p.tables
}

// Predict encodes raw, runs the model on the single-row frame and renders the
// verdict. Unknown categorical values never fail; a frame that does not fit
// the model's schema does.
func (p *Predictor) Predict(ctx context.Context, raw ml.RawRecord) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoded, fallbacks := p.tables.Encode(raw)
	if len(fallbacks) > 0 {
		p.metrics.ObserveFallbacks(fallbacks)
		p.logger.Debug("unseen categorical values encoded as fallback",
			zap.Strings("fields", fallbacks), zap.String("fallback", p.tables.Fallback()))
	}

	frame, err := ml.NewFrame(encoded, ml.FeatureNames())
	if err != nil {
		p.metrics.ObserveFailure("frame")
		return nil, fmt.Errorf("build frame: %w", err)
	}

	model, generation := p.models.Current()
	key := cacheKey(generation, frame.Row)

	prediction, cached := p.lookup(key)
	if cached {
		p.metrics.ObserveCacheHit()
		p.metrics.ObservePrediction(prediction.Transported(), 0)
	} else {
		start := time.Now()
		prediction, err = ml.PredictFrame(model, frame)
		if err != nil {
			p.metrics.ObserveFailure("model")
			return nil, err
		}
		elapsed := time.Since(start)
		p.metrics.ObservePrediction(prediction.Transported(), elapsed)
		if p.cache != nil {
			p.cache.Add(key, prediction)
		}
	}

	result := &Result{
		ID:            uuid.NewString(),
		Transported:   prediction.Transported(),
		Label:         prediction.Label,
		Probability:   prediction.Probability,
		Message:       Message(prediction.Transported()),
		Encoded:       encoded,
		Fallbacks:     fallbacks,
		ModelType:     p.modelType,
		LabelsVersion: p.tables.Version(),
		Cached:        cached,
		CreatedAt:     p.now().UTC(),
	}
	p.logger.Info("prediction",
		zap.String("id", result.ID),
		zap.Bool("transported", result.Transported),
		zap.Float64("probability", result.Probability),
		zap.Bool("cached", cached),
		zap.Uint64("model_generation", generation),
	)

	p.record(ctx, raw, result)
	return result, nil
}

func (p *Predictor) lookup(key string) (ml.Prediction, bool) {
	if p.cache == nil {
		return ml.Prediction{}, false
	}
	return p.cache.Get(key)
}

// record journals and publishes a result. Failures here never reach the user.
func (p *Predictor) record(ctx context.Context, raw ml.RawRecord, result *Result) {
	if p.journal != nil {
		err := p.journal.SavePrediction(ctx, db.PredictionRecord{
			ID:            result.ID,
			CreatedAt:     result.CreatedAt,
			Raw:           raw,
			Encoded:       result.Encoded,
			Label:         result.Label,
			Probability:   result.Probability,
			Transported:   result.Transported,
			Message:       result.Message,
			ModelType:     result.ModelType,
			LabelsVersion: result.LabelsVersion,
		})
		if err != nil {
			p.logger.Warn("journal prediction failed", zap.String("id", result.ID), zap.Error(err))
		}
	}
	if p.publisher != nil {
		if err := p.publisher.Publish(monitoring.PredictionEvent, result); err != nil {
			p.logger.Warn("publish prediction failed", zap.String("id", result.ID), zap.Error(err))
		}
	}
}

func cacheKey(generation uint64, row []float64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(generation, 10))
	for _, v := range row {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}
