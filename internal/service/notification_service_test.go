package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/shopping-request-api/internal/models"
	"github.com/noah-isme/shopping-request-api/internal/workflow"
	"github.com/noah-isme/shopping-request-api/pkg/jobs"
	"github.com/noah-isme/shopping-request-api/pkg/notify"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, msg := range m.sent {
		out = append(out, msg.To...)
	}
	sort.Strings(out)
	return out
}

type enqueueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *enqueueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func mailDirectory() *memoryProfiles {
	return newMemoryProfiles(
		&models.Profile{ID: requesterID, Email: "rita@example.com", DisplayName: "Rita", Role: models.RoleUser, ManagerID: strPtr(managerID), Active: true},
		&models.Profile{ID: managerID, Email: "max@example.com", DisplayName: "Max", Role: models.RoleManager, Active: true},
		&models.Profile{ID: procurementID, Email: "pia@example.com", Role: models.RoleProcurement, Active: true},
		&models.Profile{ID: "retired-buyer", Email: "old@example.com", Role: models.RoleProcurement, Active: false},
	)
}

func notificationEvent(action workflow.Action, actor string) RequestEvent {
	approver := managerID
	return RequestEvent{
		Action:  action,
		ActorID: actor,
		Request: models.ShoppingRequest{
			ID:              "r-1",
			Number:          "SC20250007",
			RequesterID:     requesterID,
			RequestType:     "office",
			Status:          models.StatusPendingApproval,
			ApproverID:      &approver,
			TotalAmount:     decimal.RequireFromString("1234567.5"),
			RejectionReason: strPtr("over budget <again>"),
		},
	}
}

func TestNotifyRecipientsPerAction(t *testing.T) {
	cases := []struct {
		action workflow.Action
		actor  string
		want   []string
	}{
		{workflow.ActionSubmit, requesterID, []string{"max@example.com"}},
		{workflow.ActionApprove, managerID, []string{"pia@example.com", "rita@example.com"}},
		{workflow.ActionReject, managerID, []string{"rita@example.com"}},
		{workflow.ActionComplete, procurementID, []string{"rita@example.com"}},
		{workflow.ActionCancel, procurementID, []string{"rita@example.com"}},
		{workflow.ActionCancel, requesterID, []string{}},
		{workflow.ActionEdit, requesterID, []string{}},
	}
	for _, tc := range cases {
		t.Run(string(tc.action)+"/"+tc.actor, func(t *testing.T) {
			mailer := &recordingMailer{}
			svc := NewNotificationService(mailDirectory(), mailer, nil, nil, NotificationConfig{})
			svc.Notify(context.Background(), notificationEvent(tc.action, tc.actor))
			assert.Equal(t, tc.want, mailer.recipients())
		})
	}
}

func TestNotifyRendersEscapedBody(t *testing.T) {
	mailer := &recordingMailer{}
	svc := NewNotificationService(mailDirectory(), mailer, nil, nil, NotificationConfig{AppURL: "https://shop.example.com/requests/"})
	svc.Notify(context.Background(), notificationEvent(workflow.ActionReject, managerID))

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "Request SC20250007 rejected", msg.Subject)
	assert.Contains(t, msg.HTML, "Hello Rita")
	assert.Contains(t, msg.HTML, "1,234,567.50")
	assert.Contains(t, msg.HTML, "over budget &lt;again&gt;")
	assert.Contains(t, msg.HTML, `href="https://shop.example.com/requests/r-1"`)
	assert.Contains(t, msg.Text, "Reason: over budget <again>")
	assert.Contains(t, msg.Text, "pending approval")
}

func TestNotifyQueuesAndHandles(t *testing.T) {
	mailer := &recordingMailer{}
	metrics := NewMetricsService()
	svc := NewNotificationService(mailDirectory(), mailer, metrics, nil, NotificationConfig{})
	queue := &enqueueStub{}
	svc.SetQueue(queue)

	svc.Notify(context.Background(), notificationEvent(workflow.ActionSubmit, requesterID))
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, notificationJobType, queue.jobs[0].Type)
	assert.Empty(t, mailer.sent, "delivery happens on the worker")

	require.NoError(t, svc.Handle(context.Background(), queue.jobs[0]))
	assert.Equal(t, []string{"max@example.com"}, mailer.recipients())

	mailer.err = errors.New("relay down")
	require.Error(t, svc.Handle(context.Background(), queue.jobs[0]), "errors are returned so the queue retries")
	require.NoError(t, svc.Handle(context.Background(), jobs.Job{Payload: "garbage"}))
}

func TestNotifyDropsWhenQueueFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	svc := NewNotificationService(mailDirectory(), &recordingMailer{}, nil, zap.New(core), NotificationConfig{})
	svc.SetQueue(&enqueueStub{err: jobs.ErrQueueFull})

	svc.Notify(context.Background(), notificationEvent(workflow.ActionSubmit, requesterID))
	require.Equal(t, 1, logs.FilterMessage("notification queue full, message dropped").Len())
}

func TestNotifyNilServiceIsNoop(t *testing.T) {
	var svc *NotificationService
	svc.Notify(context.Background(), notificationEvent(workflow.ActionSubmit, requesterID))
}
