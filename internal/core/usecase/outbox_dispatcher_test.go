package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/core/domain"
)

type outboxRepoStub struct {
	events []domain.OutboxEvent

	fetchLimits []int
	failed      []failedMark
	dead        []deadMark
	dispatched  []int64
}

type failedMark struct {
	id           int64
	attempts     int
	nextAttempt  string
	errorMessage string
}

type deadMark struct {
	id           int64
	attempts     int
	errorMessage string
}

func (r *outboxRepoStub) FetchPending(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	r.fetchLimits = append(r.fetchLimits, limit)
	out := make([]domain.OutboxEvent, 0, limit)
	now := time.Now().UTC()
	for _, e := range r.events {
		if e.Status != "pending" {
			continue
		}
		if e.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *outboxRepoStub) MarkDispatched(_ context.Context, id int64) error {
	r.dispatched = append(r.dispatched, id)
	for i := range r.events {
		if r.events[i].ID == id {
			r.events[i].Status = "dispatched"
			now := time.Now().UTC()
			r.events[i].DispatchedAt = &now
			return nil
		}
	}
	return errors.New("unknown outbox id")
}

func (r *outboxRepoStub) MarkFailed(_ context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error {
	r.failed = append(r.failed, failedMark{id: id, attempts: attempts, nextAttempt: nextAttemptAt, errorMessage: errMsg})
	parsed, err := time.Parse(time.RFC3339Nano, nextAttemptAt)
	if err != nil {
		return err
	}
	for i := range r.events {
		if r.events[i].ID == id {
			r.events[i].Attempts = attempts
			r.events[i].NextAttemptAt = parsed
			r.events[i].LastError = errMsg
			return nil
		}
	}
	return errors.New("unknown outbox id")
}

func (r *outboxRepoStub) MarkDead(_ context.Context, id int64, attempts int, errMsg string) error {
	r.dead = append(r.dead, deadMark{id: id, attempts: attempts, errorMessage: errMsg})
	for i := range r.events {
		if r.events[i].ID == id {
			r.events[i].Status = "dead"
			r.events[i].Attempts = attempts
			r.events[i].LastError = errMsg
			return nil
		}
	}
	return errors.New("unknown outbox id")
}

type publisherStub struct {
	errByID   map[string]error
	topics    []string
	published []domain.EventEnvelope
}

func (p *publisherStub) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.topics = append(p.topics, topic)
	p.published = append(p.published, event)
	if err, ok := p.errByID[event.EventID]; ok {
		return err
	}
	return nil
}

// pendingRow stores env the way OutboxWriter does, due for delivery now.
func pendingRow(t *testing.T, id int64, attempts int, env domain.EventEnvelope) domain.OutboxEvent {
	t.Helper()
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return domain.OutboxEvent{
		ID:            id,
		EventID:       env.EventID,
		Topic:         "uri." + env.EventType,
		PayloadJSON:   body,
		Status:        "pending",
		Attempts:      attempts,
		NextAttemptAt: time.Now().UTC().Add(-time.Second),
	}
}

func ruleEnvelope(eventID, eventType string, ruleID int64) domain.EventEnvelope {
	body, _ := json.Marshal(domain.RulePayload{
		RuleID:   ruleID,
		Owner:    domain.OwnerContentModel,
		OwnerID:  1,
		Register: "usgin",
		Label:    "Active Fault",
		Pattern:  "^dataschema/activefault/(\\.[a-zA-Z]{3,4}|/)?$",
	})
	return domain.EventEnvelope{
		EventID:       eventID,
		EventType:     eventType,
		SchemaVersion: domain.CurrentEventSchemaVersion,
		AggregateType: string(domain.OwnerContentModel),
		AggregateID:   "1",
		Payload:       body,
	}
}

func TestOutboxDeliversRuleEventsFromCatalogSaves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.catalog.SaveModel(ctx, domain.ContentModel{Title: "Active Fault", Label: "activefault"})
	require.NoError(t, err)
	_, err = f.catalog.SaveVersion(ctx, domain.ModelVersion{ContentModelID: m.ID, Version: "1.0"}, versionFiles())
	require.NoError(t, err)
	require.NotEmpty(t, f.store.events)

	repo := &outboxRepoStub{}
	for i, env := range f.store.events {
		repo.events = append(repo.events, pendingRow(t, int64(i+1), 0, env))
	}
	pub := &publisherStub{}
	d := NewOutboxDispatcher(repo, pub, time.Second, 100, zap.NewNop())

	require.NoError(t, d.dispatchBatch(ctx))
	require.Len(t, pub.published, len(f.store.events))
	assert.Len(t, repo.dispatched, len(f.store.events))

	var versionRule *domain.RulePayload
	for i, env := range pub.published {
		assert.Equal(t, domain.EventRuleUpserted, env.EventType)
		assert.Equal(t, "uri."+domain.EventRuleUpserted, pub.topics[i])

		var payload domain.RulePayload
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
		assert.Equal(t, "usgin", payload.Register)
		assert.Equal(t, string(payload.Owner), env.AggregateType)
		assert.Equal(t, strconv.FormatInt(payload.OwnerID, 10), env.AggregateID)
		if payload.Owner == domain.OwnerModelVersion {
			versionRule = &payload
		}
	}
	require.NotNil(t, versionRule)
	assert.Equal(t, m.VersionRegexPattern("1.0"), versionRule.Pattern)
	assert.NotEmpty(t, versionRule.Mappings)
}

func TestOutboxDispatcherDispatchBatchSuccess(t *testing.T) {
	repo := &outboxRepoStub{events: []domain.OutboxEvent{
		pendingRow(t, 1, 0, ruleEnvelope("e1", domain.EventRuleUpserted, 7)),
	}}
	pub := &publisherStub{}
	d := NewOutboxDispatcher(repo, pub, time.Second, 10, zap.NewNop())

	require.NoError(t, d.dispatchBatch(context.Background()))

	assert.Equal(t, []int{10}, repo.fetchLimits)
	require.Len(t, pub.published, 1)
	assert.JSONEq(t, string(ruleEnvelope("e1", domain.EventRuleUpserted, 7).Payload), string(pub.published[0].Payload))
	assert.Equal(t, []int64{1}, repo.dispatched)
	assert.Empty(t, repo.failed)
	assert.Empty(t, repo.dead)
	assert.Equal(t, int64(1), d.Metrics().DispatchSuccessTotal)
}

func TestOutboxDispatcherPublishFailureSchedulesRetry(t *testing.T) {
	repo := &outboxRepoStub{events: []domain.OutboxEvent{
		pendingRow(t, 2, 0, ruleEnvelope("e2", domain.EventRuleDeleted, 7)),
	}}
	pub := &publisherStub{errByID: map[string]error{"e2": errors.New("webhook down")}}
	d := NewOutboxDispatcher(repo, pub, time.Second, 10, zap.NewNop())

	require.NoError(t, d.dispatchBatch(context.Background()))

	require.Len(t, repo.failed, 1)
	assert.Equal(t, 1, repo.failed[0].attempts)
	assert.Equal(t, "webhook down", repo.failed[0].errorMessage)
	next, err := time.Parse(time.RFC3339Nano, repo.failed[0].nextAttempt)
	require.NoError(t, err)
	assert.True(t, next.After(time.Now().UTC()))
	assert.Empty(t, repo.dispatched)
	assert.Empty(t, repo.dead)
}

func TestOutboxDispatcherUndecodableRowCountsAsFailure(t *testing.T) {
	row := pendingRow(t, 6, 0, ruleEnvelope("e6", domain.EventRuleUpserted, 7))
	row.PayloadJSON = []byte("{not json")
	repo := &outboxRepoStub{events: []domain.OutboxEvent{row}}
	pub := &publisherStub{}
	d := NewOutboxDispatcher(repo, pub, time.Second, 10, zap.NewNop())

	require.NoError(t, d.dispatchBatch(context.Background()))

	assert.Empty(t, pub.published)
	require.Len(t, repo.failed, 1)
	assert.Contains(t, repo.failed[0].errorMessage, "decode payload")
}

func TestOutboxDispatcherRetryLimitMarksDead(t *testing.T) {
	repo := &outboxRepoStub{events: []domain.OutboxEvent{
		pendingRow(t, 3, 4, ruleEnvelope("e3", domain.EventRuleDeleted, 7)),
	}}
	pub := &publisherStub{errByID: map[string]error{"e3": errors.New("still failing")}}
	d := NewOutboxDispatcher(repo, pub, time.Second, 10, zap.NewNop())

	require.NoError(t, d.dispatchBatch(context.Background()))

	require.Len(t, repo.dead, 1)
	assert.Equal(t, 5, repo.dead[0].attempts)
	assert.Empty(t, repo.failed)
	assert.Equal(t, int64(1), d.Metrics().DispatchDeadTotal)
}

func TestOutboxDispatcherResumesPendingRowsOnRestart(t *testing.T) {
	repo := &outboxRepoStub{events: []domain.OutboxEvent{
		pendingRow(t, 4, 0, ruleEnvelope("e4", domain.EventRuleUpserted, 8)),
		pendingRow(t, 5, 0, ruleEnvelope("e5", domain.EventRuleDeleted, 9)),
	}}
	pub := &publisherStub{errByID: map[string]error{"e4": errors.New("transient")}}

	require.NoError(t, NewOutboxDispatcher(repo, pub, time.Second, 10, zap.NewNop()).dispatchBatch(context.Background()))
	assert.Equal(t, []int64{5}, repo.dispatched)

	repo.events[0].NextAttemptAt = time.Now().UTC().Add(-time.Second)
	pub.errByID = nil
	require.NoError(t, NewOutboxDispatcher(repo, pub, time.Second, 10, zap.NewNop()).dispatchBatch(context.Background()))
	assert.Equal(t, []int64{5, 4}, repo.dispatched)
}

func TestBackoffDurationIsCapped(t *testing.T) {
	assert.Equal(t, time.Second, backoffDuration(1))
	assert.Equal(t, 4*time.Second, backoffDuration(2))
	assert.Equal(t, 5*time.Minute, backoffDuration(100))
}
