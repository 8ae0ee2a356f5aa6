package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"giftmatch/internal/match"
	"giftmatch/pkg/domain"
)

func seedPtr(v uint64) *uint64 { return &v }

func TestMakeMatchProducesValidCycle(t *testing.T) {
	svc := NewInMemoryService()
	settings, ids := seedPeople(t, svc.Store(), "north", "north", "south", "south", "east", "east")

	res, err := svc.MakeMatch(context.Background(), MatchRequest{Settings: settings, Strategy: "interleave", Seed: seedPtr(7)})
	if err != nil {
		t.Fatalf("make match: %v", err)
	}
	if !res.Outcome.Valid || !res.Report.Valid {
		t.Fatalf("expected valid match, got outcome=%+v report=%+v", res.Outcome, res.Report)
	}
	participants, err := svc.Participants(context.Background(), settings)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	next := map[string]string{}
	for _, p := range participants {
		if len(p.Assignment) != 1 {
			t.Fatalf("expected one recipient for %s, got %v", p.ID, p.Assignment)
		}
		next[p.ID] = p.Assignment[0]
	}
	seen := map[string]bool{}
	cur := ids[0]
	for range ids {
		seen[cur] = true
		cur = next[cur]
	}
	if cur != ids[0] || len(seen) != len(ids) {
		t.Fatalf("expected a single cycle through all participants, got %v", next)
	}
}

func TestMakeMatchRefusesValidMatchUnlessForced(t *testing.T) {
	svc := NewInMemoryService()
	settings, _ := seedPeople(t, svc.Store(), "", "", "", "")
	ctx := context.Background()
	if _, err := svc.MakeMatch(ctx, MatchRequest{Settings: settings, Strategy: "interleave", Seed: seedPtr(1)}); err != nil {
		t.Fatalf("first match: %v", err)
	}
	if _, err := svc.MakeMatch(ctx, MatchRequest{Settings: settings}); !errors.Is(err, ErrMatchAlreadyValid) {
		t.Fatalf("expected ErrMatchAlreadyValid, got %v", err)
	}
	res, err := svc.MakeMatch(ctx, MatchRequest{Settings: settings, Force: true, Seed: seedPtr(2)})
	if err != nil {
		t.Fatalf("forced match: %v", err)
	}
	if !res.Report.Valid {
		t.Fatalf("expected forced match to be valid for ungrouped participants: %+v", res.Report)
	}
}

func TestMakeMatchImbalancedGroupsPersistsLastAttempt(t *testing.T) {
	// Three of five share a house: no single cycle can separate them.
	for seed := uint64(1); seed <= 20; seed++ {
		svc := NewInMemoryService()
		settings, _ := seedPeople(t, svc.Store(), "north", "north", "north", "south", "south")
		res, err := svc.MakeMatch(context.Background(), MatchRequest{Settings: settings, Seed: seedPtr(seed)})
		if err != nil {
			t.Fatalf("seed %d: make match: %v", seed, err)
		}
		if res.Outcome.Valid || res.Report.Valid {
			t.Fatalf("seed %d: expected invalid outcome", seed)
		}
		if len(res.Outcome.Attempts) != match.DefaultAttempts {
			t.Fatalf("seed %d: expected %d attempts, got %d", seed, match.DefaultAttempts, len(res.Outcome.Attempts))
		}
		last, _ := res.Outcome.Last()
		switch last.Reason {
		case match.ReasonClosingCollision:
			if res.Report.Count(domain.WarningSameGroupAssignment) == 0 {
				t.Fatalf("seed %d: expected same-group warning after closing collision: %+v", seed, res.Report)
			}
		case match.ReasonDeadEnd:
			if res.Report.Count(domain.WarningNoAssignment) == 0 {
				t.Fatalf("seed %d: expected cleared givers after dead end: %+v", seed, res.Report)
			}
		default:
			t.Fatalf("seed %d: unexpected reason %q", seed, last.Reason)
		}
		for _, r := range svc.Store().ListRecords(settings.TableID) {
			if _, ok := r.Links[settings.AssignmentFieldID]; !ok {
				t.Fatalf("seed %d: record %s was not overwritten", seed, r.ID)
			}
		}
	}
}

func TestMakeMatchErrors(t *testing.T) {
	svc := NewInMemoryService()
	settings, _ := seedPeople(t, svc.Store(), "north")
	ctx := context.Background()

	if _, err := svc.MakeMatch(ctx, MatchRequest{Settings: settings}); !errors.Is(err, match.ErrTooFewParticipants) {
		t.Fatalf("expected too few participants, got %v", err)
	}

	bad := settings
	bad.AssignmentFieldID = fieldName
	var settingsErr *domain.SettingsError
	if _, err := svc.MakeMatch(ctx, MatchRequest{Settings: bad}); !errors.As(err, &settingsErr) || settingsErr.Reason != domain.SettingsAssignmentNotLink {
		t.Fatalf("expected assignment field error, got %v", err)
	}

	missing := settings
	missing.TableID = "nope"
	if err := svc.CheckSettings(ctx, missing); !errors.As(err, &settingsErr) || settingsErr.Reason != domain.SettingsMissingTable {
		t.Fatalf("expected missing table error, got %v", err)
	}

	if _, err := svc.MakeMatch(ctx, MatchRequest{Settings: settings, Strategy: "greedy"}); err == nil {
		t.Fatalf("expected unknown strategy error")
	}
	if err := svc.CheckSettings(ctx, settings); err != nil {
		t.Fatalf("expected settings to check out: %v", err)
	}
}

func TestValidateReadsStoredAssignments(t *testing.T) {
	svc := NewInMemoryService()
	settings, ids := seedPeople(t, svc.Store(), "north", "north", "south", "south")
	link(t, svc.Store(), settings, ids[0], ids[1])

	report, err := svc.Validate(context.Background(), settings)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.Valid {
		t.Fatalf("expected invalid report")
	}
	if !report.Has(domain.Warning{Kind: domain.WarningSameGroupAssignment, GiverID: ids[0], RecipientID: ids[1]}) {
		t.Fatalf("expected same-group warning, got %+v", report.Warnings)
	}
	if !report.Has(domain.Warning{Kind: domain.WarningNoGivers, RecipientID: ids[0]}) {
		t.Fatalf("expected no-givers warning for %s, got %+v", ids[0], report.Warnings)
	}
	if got := report.Count(domain.WarningNoAssignment); got != 3 {
		t.Fatalf("expected 3 missing assignments, got %d", got)
	}
}

func TestParticipantsRespectView(t *testing.T) {
	svc := NewInMemoryService()
	settings, ids := seedPeople(t, svc.Store(), "north", "south", "north", "")
	settings.ViewID = viewNorth
	participants, err := svc.Participants(context.Background(), settings)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(participants) != 2 || participants[0].ID != ids[0] || participants[1].ID != ids[2] {
		t.Fatalf("unexpected view contents: %+v", participants)
	}
	if participants[0].Group != "north" || participants[0].Name != "P0" {
		t.Fatalf("unexpected projection: %+v", participants[0])
	}
}

func TestGraphIncludesEveryStoredLink(t *testing.T) {
	svc := NewInMemoryService()
	settings, ids := seedPeople(t, svc.Store(), "north", "south", "")
	link(t, svc.Store(), settings, ids[0], ids[1], ids[2])
	link(t, svc.Store(), settings, ids[1], "gone")

	graph, err := svc.Graph(context.Background(), settings)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if len(graph.Nodes) != 3 || graph.Nodes[1].Group != "south" || graph.Nodes[2].Group != "" {
		t.Fatalf("unexpected nodes: %+v", graph.Nodes)
	}
	want := []GraphEdge{
		{Source: ids[0], Target: ids[1]},
		{Source: ids[0], Target: ids[2]},
		{Source: ids[1], Target: "gone"},
	}
	if len(graph.Edges) != len(want) {
		t.Fatalf("unexpected edges: %+v", graph.Edges)
	}
	for i, e := range want {
		if graph.Edges[i] != e {
			t.Fatalf("edge %d: want %+v got %+v", i, e, graph.Edges[i])
		}
	}
	if len(graph.Groups) != 3 || graph.Groups[0].Color != "blueBright" {
		t.Fatalf("expected group choices, got %+v", graph.Groups)
	}

	settings.GroupFieldID = ""
	graph, err = svc.Graph(context.Background(), settings)
	if err != nil {
		t.Fatalf("graph without groups: %v", err)
	}
	if graph.Groups != nil || graph.Nodes[0].Group != "" {
		t.Fatalf("expected no group data when groups are off: %+v", graph)
	}
}

func TestServiceObservability(t *testing.T) {
	fixed := time.Date(2026, 12, 24, 18, 0, 0, 0, time.UTC)
	logger := &captureLogger{}
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	svc := NewInMemoryService(
		WithClock(stubClock{t: fixed}),
		WithLogger(logger),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
	)
	settings, _ := seedPeople(t, svc.Store(), "north", "north", "north", "south", "south")
	ctx := context.Background()

	if _, err := svc.MakeMatch(ctx, MatchRequest{Settings: settings, Seed: seedPtr(3)}); err != nil {
		t.Fatalf("make match: %v", err)
	}
	bad := settings
	bad.ViewID = "missing"
	if err := svc.CheckSettings(ctx, bad); err == nil {
		t.Fatalf("expected settings error")
	}

	if !metrics.has("make_match", true) || !metrics.has("check_settings", false) {
		t.Fatalf("unexpected metrics: %+v", metrics.calls)
	}
	if len(tracer.started) != 2 || len(tracer.ended) != 2 || tracer.ended[1].err == nil {
		t.Fatalf("unexpected spans: started=%v ended=%v", tracer.started, tracer.ended)
	}
	if len(audit.entries) != 2 {
		t.Fatalf("expected two audit entries, got %d", len(audit.entries))
	}
	first := audit.entries[0]
	if first.Operation != "make_match" || first.Status != AuditStatusSuccess || first.TableID != settings.TableID || !first.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected audit entry: %+v", first)
	}
	if audit.entries[1].Status != AuditStatusError || audit.entries[1].Error == "" {
		t.Fatalf("expected failed audit entry, got %+v", audit.entries[1])
	}
	for _, call := range []string{"d:match attempt", "w:no valid match found", "d:operation completed", "e:operation failed"} {
		if !logger.has(call) {
			t.Fatalf("expected log call %q in %v", call, logger.calls)
		}
	}
}

func TestWithGeneratorOptionsAppliesDefaults(t *testing.T) {
	svc := NewInMemoryService(WithGeneratorOptions(match.WithAttempts(2), match.WithSeed(9)))
	settings, _ := seedPeople(t, svc.Store(), "north", "north", "north", "south", "south")
	res, err := svc.MakeMatch(context.Background(), MatchRequest{Settings: settings})
	if err != nil {
		t.Fatalf("make match: %v", err)
	}
	if len(res.Outcome.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(res.Outcome.Attempts))
	}
	res, err = svc.MakeMatch(context.Background(), MatchRequest{Settings: settings, Attempts: 3})
	if err != nil {
		t.Fatalf("make match: %v", err)
	}
	if len(res.Outcome.Attempts) != 3 {
		t.Fatalf("expected request override of 3 attempts, got %d", len(res.Outcome.Attempts))
	}
}

func TestDefaultServiceOptions(t *testing.T) {
	opts := defaultServiceOptions()
	if opts.clock == nil || opts.logger == nil || opts.audit == nil || opts.metrics == nil || opts.tracer == nil {
		t.Fatalf("expected defaults populated")
	}
	_ = opts.clock.Now()
	opts.audit.Record(context.Background(), AuditEntry{})
	opts.metrics.Observe(context.Background(), "noop", true, 0)
	_, span := opts.tracer.Start(context.Background(), "noop")
	span.End(nil)
	var l noopLogger
	l.Debug("d", "k", 1)
	l.Info("i", "k", 2)
	l.Warn("w", "k", 3)
	l.Error("e", "k", 4)

	WithClock(nil)(&opts)
	WithLogger(nil)(&opts)
	WithAuditRecorder(nil)(&opts)
	WithMetricsRecorder(nil)(&opts)
	WithTracer(nil)(&opts)
	if opts.clock == nil || opts.logger == nil || opts.audit == nil || opts.metrics == nil || opts.tracer == nil {
		t.Fatalf("nil options must keep defaults")
	}
}
