package core

import (
	"context"
	"errors"
	"fmt"

	"giftmatch/internal/infra/persistence/memory"
	"giftmatch/internal/match"
	"giftmatch/pkg/domain"
)

// ErrMatchAlreadyValid is returned by MakeMatch when the stored match is
// valid and the request does not force a new one.
var ErrMatchAlreadyValid = errors.New("the current match is valid; force a new match to throw it out")

// Service exposes the matching engine over a record store with logging,
// auditing, metrics, and tracing around every operation.
type Service struct {
	store   domain.PersistentStore
	records *RecordSource
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	genOpts []match.Option
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		store:   store,
		records: NewRecordSource(store),
		clock:   o.clock,
		logger:  o.logger,
		audit:   o.audit,
		metrics: o.metrics,
		tracer:  o.tracer,
		genOpts: o.generator,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// Records returns the participant adapter over the store.
func (s *Service) Records() *RecordSource {
	return s.records
}

// MatchRequest parameterises one MakeMatch call. Zero values keep the
// service defaults.
type MatchRequest struct {
	Settings domain.Settings
	// Force discards a currently valid match.
	Force    bool
	Seed     *uint64
	Strategy string
	Attempts int
}

// MatchResult is the generator outcome plus a fresh validation of what the
// store holds afterwards.
type MatchResult struct {
	Outcome match.Outcome `json:"outcome"`
	Report  domain.Report `json:"report"`
}

func (s *Service) run(ctx context.Context, op, tableID string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		Operation: op,
		TableID:   tableID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: start,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Error("operation failed", "operation", op, "table", tableID, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", op, "table", tableID, "duration", duration)
	}
	s.audit.Record(ctx, entry)
	return err
}

// CheckSettings validates the settings against the stored table.
func (s *Service) CheckSettings(ctx context.Context, settings domain.Settings) error {
	return s.run(ctx, "check_settings", settings.TableID, func(ctx context.Context) error {
		return s.store.View(ctx, func(view domain.TransactionView) error {
			_, _, err := resolve(view, settings)
			return err
		})
	})
}

// Participants lists the participants in scope.
func (s *Service) Participants(ctx context.Context, settings domain.Settings) ([]domain.Participant, error) {
	var out []domain.Participant
	err := s.run(ctx, "list_participants", settings.TableID, func(ctx context.Context) error {
		var err error
		out, err = s.records.ListParticipants(ctx, settings)
		return err
	})
	return out, err
}

// Validate classifies the stored assignment relation.
func (s *Service) Validate(ctx context.Context, settings domain.Settings) (domain.Report, error) {
	var report domain.Report
	err := s.run(ctx, "validate", settings.TableID, func(ctx context.Context) error {
		var err error
		report, err = match.ValidateSource(ctx, s.records, settings)
		return err
	})
	return report, err
}

// MakeMatch generates and stores a new matching. It refuses to replace a
// valid match unless req.Force is set. Failing to find a valid matching is
// not an error: the result's Outcome.Valid is false and Report describes the
// persisted attempt.
func (s *Service) MakeMatch(ctx context.Context, req MatchRequest) (MatchResult, error) {
	var result MatchResult
	err := s.run(ctx, "make_match", req.Settings.TableID, func(ctx context.Context) error {
		gen, err := s.generator(req)
		if err != nil {
			return err
		}
		if !req.Force {
			current, err := match.ValidateSource(ctx, s.records, req.Settings)
			if err != nil {
				return err
			}
			if current.Valid {
				return ErrMatchAlreadyValid
			}
		}
		outcome, err := gen.Generate(ctx, s.records, s.records, req.Settings)
		for _, a := range outcome.Attempts {
			s.logger.Debug("match attempt", "attempt", a.Number, "strategy", a.Strategy, "success", a.Success, "reason", a.Reason, "edges", a.Edges, "cleared", a.Cleared, "batches", a.Batches)
		}
		if err != nil {
			return err
		}
		if !outcome.Valid {
			s.logger.Warn("no valid match found", "attempts", len(outcome.Attempts))
		}
		report, err := match.ValidateSource(ctx, s.records, req.Settings)
		if err != nil {
			return err
		}
		result = MatchResult{Outcome: outcome, Report: report}
		return nil
	})
	return result, err
}

func (s *Service) generator(req MatchRequest) (*match.Generator, error) {
	opts := append([]match.Option(nil), s.genOpts...)
	if req.Strategy != "" {
		strategy, err := match.ParseStrategy(req.Strategy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, match.WithStrategy(strategy))
	}
	if req.Attempts > 0 {
		opts = append(opts, match.WithAttempts(req.Attempts))
	}
	if req.Seed != nil {
		opts = append(opts, match.WithSeed(*req.Seed))
	}
	return match.NewGenerator(opts...), nil
}

// Graph returns the renderer feed for the participants in scope.
func (s *Service) Graph(ctx context.Context, settings domain.Settings) (Graph, error) {
	var graph Graph
	err := s.run(ctx, "graph", settings.TableID, func(ctx context.Context) error {
		participants, err := s.records.ListParticipants(ctx, settings)
		if err != nil {
			return err
		}
		var groups []domain.Choice
		if settings.GroupsEnabled() {
			table, ok := s.store.GetTable(settings.TableID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityTable, ID: settings.TableID}
			}
			field, _ := table.FindField(settings.GroupFieldID)
			groups = field.Choices
		}
		graph = BuildGraph(participants, groups)
		return nil
	})
	if err != nil {
		return Graph{}, fmt.Errorf("build graph: %w", err)
	}
	return graph, nil
}
