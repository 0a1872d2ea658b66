// Package service orchestrates sandboxed execution and deterministic grading.
package service

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"proctorhub/internal/metrics"
	"proctorhub/internal/sandbox/engine"
	"proctorhub/internal/sandbox/model"
	"proctorhub/internal/sandbox/profile"
	appErr "proctorhub/pkg/errors"
	"proctorhub/pkg/utils/logger"

	"go.uber.org/zap"
)

// Config tunes the execution service.
type Config struct {
	// MaxConcurrent bounds simultaneous executions.
	MaxConcurrent int `yaml:"maxConcurrent"`

	// AllowFallback permits the restricted subprocess path when no container
	// runtime is reachable. Meant for development environments only.
	AllowFallback bool `yaml:"allowFallback"`

	Limits engine.Limits `yaml:"limits"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 8,
		AllowFallback: true,
		Limits:        engine.DefaultLimits(),
	}
}

// QuestionSource resolves exam questions for grading.
type QuestionSource interface {
	Question(ctx context.Context, questionID string) (*model.Question, error)
}

// StaticQuestions is an in-memory QuestionSource loaded at startup.
type StaticQuestions struct {
	mu        sync.RWMutex
	questions map[string]*model.Question
}

// NewStaticQuestions builds a source from a fixed question list.
func NewStaticQuestions(questions []*model.Question) *StaticQuestions {
	src := &StaticQuestions{questions: make(map[string]*model.Question, len(questions))}
	for _, q := range questions {
		src.questions[q.ID] = q
	}
	return src
}

// Question resolves one question by ID.
func (s *StaticQuestions) Question(_ context.Context, questionID string) (*model.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[questionID]
	if !ok {
		return nil, appErr.New(appErr.QuestionNotFound)
	}
	return q, nil
}

// Add registers a question. Used by tests and the admin loader.
func (s *StaticQuestions) Add(q *model.Question) {
	s.mu.Lock()
	s.questions[q.ID] = q
	s.mu.Unlock()
}

// ExecService validates, schedules and grades executions.
type ExecService struct {
	cfg       Config
	registry  *profile.Registry
	isolated  engine.Engine
	fallback  engine.Engine
	questions QuestionSource
	slots     chan struct{}
}

// NewExecService wires the execution pipeline. fallback may be nil when no
// unisolated path should ever run.
func NewExecService(cfg Config, registry *profile.Registry, isolated, fallback engine.Engine, questions QuestionSource) *ExecService {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.Limits.Timeout <= 0 {
		cfg.Limits = engine.DefaultLimits()
	}
	return &ExecService{
		cfg:       cfg,
		registry:  registry,
		isolated:  isolated,
		fallback:  fallback,
		questions: questions,
		slots:     make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Execute validates a run request, picks the execution backend and runs the
// code behind the concurrency bound.
func (s *ExecService) Execute(ctx context.Context, language, code, stdin string) (*model.RunResult, error) {
	lang, err := s.validate(language, code, stdin)
	if err != nil {
		return nil, err
	}

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		return nil, appErr.Wrap(ctx.Err(), appErr.Timeout)
	}

	eng, err := s.pickEngine(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := eng.Run(ctx, lang, code, stdin, s.cfg.Limits)
	metrics.ExecutionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Executions.WithLabelValues(eng.Name(), "error").Inc()
		logger.Error(ctx, "execution backend failed",
			zap.String("backend", eng.Name()),
			zap.String("language", language),
			zap.Error(err))
		return nil, appErr.Wrap(err, appErr.SandboxSystemError)
	}

	outcome := "ok"
	if result.TimedOut {
		outcome = "timeout"
	} else if result.ExitCode != 0 {
		outcome = "nonzero_exit"
	}
	metrics.Executions.WithLabelValues(eng.Name(), outcome).Inc()
	return &result, nil
}

// RunTestCases grades code against a question's cases, one independent
// execution per case. With zero cases the single raw run is attached and the
// score is 0.
func (s *ExecService) RunTestCases(ctx context.Context, language, code string, cases []model.TestCase) (*model.GradeReport, error) {
	if len(cases) == 0 {
		raw, err := s.Execute(ctx, language, code, "")
		if err != nil {
			return nil, err
		}
		return &model.GradeReport{Score: 0, Raw: raw}, nil
	}

	report := &model.GradeReport{Total: len(cases), Results: make([]model.TestCaseResult, 0, len(cases))}
	for i, tc := range cases {
		result, err := s.Execute(ctx, language, code, tc.Input)
		if err != nil {
			// A backend failure fails this case, not the submission.
			report.Results = append(report.Results, model.TestCaseResult{
				Index:    i,
				Expected: tc.ExpectedOutput,
			})
			continue
		}

		passed := !result.TimedOut &&
			result.ExitCode == 0 &&
			strings.TrimSpace(result.Stdout) == strings.TrimSpace(tc.ExpectedOutput)
		if passed {
			report.Passed++
		}
		report.Results = append(report.Results, model.TestCaseResult{
			Index:      i,
			Passed:     passed,
			TimedOut:   result.TimedOut,
			ExitCode:   result.ExitCode,
			Stdout:     result.Stdout,
			Expected:   tc.ExpectedOutput,
			DurationMS: result.DurationMS,
		})
	}

	report.Score = math.Round(float64(report.Passed)/float64(report.Total)*1000) / 10
	return report, nil
}

// Grade resolves a question and grades the submission against it.
func (s *ExecService) Grade(ctx context.Context, questionID, language, code string) (*model.GradeReport, error) {
	question, err := s.questions.Question(ctx, questionID)
	if err != nil {
		return nil, err
	}
	return s.RunTestCases(ctx, language, code, question.TestCases)
}

func (s *ExecService) validate(language, code, stdin string) (profile.Language, error) {
	if strings.TrimSpace(code) == "" {
		return profile.Language{}, appErr.New(appErr.CodeEmpty)
	}
	if len(code) > model.MaxCodeBytes {
		return profile.Language{}, appErr.New(appErr.CodeTooLarge)
	}
	if len(stdin) > model.MaxStdinBytes {
		return profile.Language{}, appErr.New(appErr.CustomInputTooLarge)
	}
	lang, ok := s.registry.Lookup(language)
	if !ok {
		return profile.Language{}, appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", language)
	}
	return lang, nil
}

// pickEngine probes isolation per call and falls back only when permitted.
func (s *ExecService) pickEngine(ctx context.Context) (engine.Engine, error) {
	if s.isolated != nil && s.isolated.Available(ctx) {
		return s.isolated, nil
	}
	if s.cfg.AllowFallback && s.fallback != nil {
		return s.fallback, nil
	}
	return nil, appErr.New(appErr.SandboxUnavailable)
}
