// Package docintel is the gateway to the external document-understanding
// service. It owns prompt construction, response parsing, the process-wide
// in-flight cap, and rate-limit retry.
package docintel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/chartmill/chartmill/internal/core/domain"
	"github.com/chartmill/chartmill/internal/infrastructure/resilience"
)

// Metrics is the optional instrumentation hook; a nil Metrics disables it.
type Metrics interface {
	ObserveLimiterWait(d time.Duration)
	InferenceStarted()
	InferenceFinished(operation string, d time.Duration, err error)
}

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
	limiter    *semaphore.Weighted
	metrics    Metrics
}

type Options struct {
	// MaxInFlight caps concurrent inference calls process-wide; waiters are
	// served FIFO.
	MaxInFlight int64
	Executor    *resilience.Executor
	Metrics     Metrics
	Timeout     time.Duration
}

func New(baseURL, apiKey, model string, options Options) *Client {
	maxInFlight := options.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 4
	}
	executor := options.Executor
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
		limiter:    semaphore.NewWeighted(maxInFlight),
		metrics:    options.Metrics,
	}
}

func (c *Client) ClassifyHighLevel(ctx context.Context, doc *domain.Document) (*domain.HighLevelResult, error) {
	raw, err := c.infer(ctx, "classify_high_level", buildHighLevelPrompt(doc))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, domain.WrapError(domain.ErrMalformedOutput, "classify_high_level", err)
	}
	hlt, ok := domain.ParseHighLevelType(parsed.Type)
	if !ok {
		return nil, domain.WrapError(
			domain.ErrMalformedOutput,
			"classify_high_level",
			fmt.Errorf("type %q outside enumeration", parsed.Type),
		)
	}
	return &domain.HighLevelResult{Type: hlt, Confidence: clampConfidence(parsed.Confidence)}, nil
}

func (c *Client) ClassifyDetailed(ctx context.Context, doc *domain.Document) (*domain.DetailedTypeResult, error) {
	raw, err := c.infer(ctx, "classify_detailed", buildDetailedPrompt(doc))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		DocType    string  `json:"doc_type"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, domain.WrapError(domain.ErrMalformedOutput, "classify_detailed", err)
	}
	docType := strings.TrimSpace(strings.ToLower(parsed.DocType))
	if docType == "" {
		return nil, domain.WrapError(
			domain.ErrMalformedOutput,
			"classify_detailed",
			fmt.Errorf("empty doc_type"),
		)
	}
	return &domain.DetailedTypeResult{DocType: docType, Confidence: clampConfidence(parsed.Confidence)}, nil
}

// SelectModules filters the response against the module allow-list; unknown
// names are dropped silently, never propagated.
func (c *Client) SelectModules(ctx context.Context, doc *domain.Document, hint *domain.HighLevelType) ([]domain.ModuleName, error) {
	raw, err := c.infer(ctx, "select_modules", buildModuleSelectionPrompt(doc, hint))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Modules []string `json:"modules"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, domain.WrapError(domain.ErrMalformedOutput, "select_modules", err)
	}

	var modules []domain.ModuleName
	seen := make(map[domain.ModuleName]bool)
	for _, name := range parsed.Modules {
		m, ok := domain.KnownModule(name)
		if !ok || seen[m] {
			continue
		}
		seen[m] = true
		modules = append(modules, m)
	}
	return modules, nil
}

func (c *Client) ExtractModule(ctx context.Context, doc *domain.Document, module domain.ModuleName) (json.RawMessage, error) {
	operation := "extract_" + string(module)
	raw, err := c.infer(ctx, operation, buildModulePrompt(doc, module))
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) || !strings.HasPrefix(strings.TrimSpace(string(raw)), "{") {
		return nil, domain.WrapError(
			domain.ErrMalformedOutput,
			operation,
			fmt.Errorf("payload is not a JSON object"),
		)
	}
	return raw, nil
}

func (c *Client) MatchTaxonomy(
	ctx context.Context,
	doc *domain.Document,
	category domain.Category,
	keywords []domain.Keyword,
	subkeywords []domain.Subkeyword,
) (*domain.TaxonomyMatchResult, error) {
	operation := "taxonomy_" + category.ID
	raw, err := c.infer(ctx, operation, buildTaxonomyPrompt(doc, category, keywords, subkeywords))
	if err != nil {
		return nil, err
	}

	var result domain.TaxonomyMatchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, domain.WrapError(domain.ErrMalformedOutput, operation, err)
	}
	if result.Category != category.ID {
		return nil, domain.WrapError(
			domain.ErrMalformedOutput,
			operation,
			fmt.Errorf("response category %q does not match requested %q", result.Category, category.ID),
		)
	}
	return &result, nil
}

// infer runs one prompt through the retry executor; each attempt acquires a
// limiter slot for the duration of the HTTP call only, so backoff waits do
// not pin a slot.
func (c *Client) infer(ctx context.Context, operation, prompt string) (json.RawMessage, error) {
	var out json.RawMessage

	err := c.executor.Execute(ctx, operation, func(attemptCtx context.Context) error {
		waitStart := time.Now()
		if err := c.limiter.Acquire(attemptCtx, 1); err != nil {
			return err
		}
		defer c.limiter.Release(1)
		if c.metrics != nil {
			c.metrics.ObserveLimiterWait(time.Since(waitStart))
			c.metrics.InferenceStarted()
		}

		start := time.Now()
		raw, err := c.analyze(attemptCtx, operation, prompt)
		if c.metrics != nil {
			c.metrics.InferenceFinished(operation, time.Since(start), err)
		}
		if err != nil {
			return err
		}
		out = raw
		return nil
	}, classifyInferenceError)

	if err != nil {
		return nil, wrapTemporaryIfNeeded(operation, err)
	}
	return out, nil
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
