package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/noah-isme/shopping-request-api/internal/models"
	"github.com/noah-isme/shopping-request-api/internal/workflow"
	"github.com/noah-isme/shopping-request-api/pkg/export"
	"github.com/noah-isme/shopping-request-api/pkg/jobs"
	"github.com/noah-isme/shopping-request-api/pkg/notify"
)

const notificationJobType = "request_notification"

const notificationHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; font-size: 14px;">
<p>Hello {{.Name}},</p>
<p>{{.Headline}}</p>
<table cellpadding="4">
<tr><td>Number</td><td><strong>{{.Number}}</strong></td></tr>
<tr><td>Type</td><td>{{.Type}}</td></tr>
<tr><td>Status</td><td>{{.Status}}</td></tr>
<tr><td>Total</td><td>{{.Total}}</td></tr>
{{if .Note}}<tr><td>{{.NoteLabel}}</td><td>{{.Note}}</td></tr>{{end}}
</table>
{{if .Link}}<p><a href="{{.Link}}">Open request</a></p>{{end}}
</body>
</html>`

var notificationTemplate = template.Must(template.New("request").Parse(notificationHTML))

type notificationProfiles interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	List(ctx context.Context, filter models.ProfileFilter) ([]models.Profile, int, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// NotificationConfig tunes message content.
type NotificationConfig struct {
	// AppURL prefixes links to requests, e.g. https://shop.example.com/requests/.
	AppURL string
}

type notificationView struct {
	Name      string
	Headline  string
	Number    string
	Type      string
	Status    string
	Total     string
	NoteLabel string
	Note      string
	Link      string
}

// NotificationService turns lifecycle changes into e-mails delivered by a background queue.
type NotificationService struct {
	profiles notificationProfiles
	mailer   notify.Mailer
	queue    jobEnqueuer
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      NotificationConfig
}

// NewNotificationService constructs a NotificationService. Attach a queue with SetQueue before Notify is used.
func NewNotificationService(profiles notificationProfiles, mailer notify.Mailer, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = notify.NewLogMailer(logger)
	}
	return &NotificationService{
		profiles: profiles,
		mailer:   mailer,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// SetQueue wires the queue whose handler is Handle.
func (s *NotificationService) SetQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Notify queues delivery of the event. A full queue drops the message.
func (s *NotificationService) Notify(ctx context.Context, event RequestEvent) {
	if s == nil {
		return
	}
	if s.queue == nil {
		if err := s.deliver(ctx, event); err != nil {
			s.metrics.RecordNotification("failed")
			s.logger.Warn("notification delivery failed", zap.String("number", event.Request.Number), zap.Error(err))
		}
		return
	}
	err := s.queue.Enqueue(jobs.Job{Type: notificationJobType, Payload: event})
	if err == nil {
		s.metrics.RecordNotification("queued")
		return
	}
	s.metrics.RecordNotification("dropped")
	fields := []zap.Field{
		zap.String("number", event.Request.Number),
		zap.String("action", string(event.Action)),
		zap.Error(err),
	}
	if errors.Is(err, jobs.ErrQueueFull) {
		s.logger.Warn("notification queue full, message dropped", fields...)
		return
	}
	s.logger.Error("failed to queue notification", fields...)
}

// Handle is the jobs.Handler delivering queued notifications.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(RequestEvent)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	return s.deliver(ctx, event)
}

// DeadLetter records a notification that exhausted its retries.
func (s *NotificationService) DeadLetter(job jobs.Job, err error) {
	s.metrics.RecordNotification("failed")
	if event, ok := job.Payload.(RequestEvent); ok {
		s.logger.Error("notification abandoned",
			zap.String("number", event.Request.Number), zap.String("action", string(event.Action)),
			zap.Int("attempts", job.Attempt), zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, event RequestEvent) error {
	recipients, err := s.recipients(ctx, event)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		s.metrics.RecordNotification("skipped")
		return nil
	}
	for _, profile := range recipients {
		msg, err := s.render(event, profile)
		if err != nil {
			return err
		}
		if err := s.mailer.Send(ctx, msg); err != nil {
			return err
		}
		s.metrics.RecordNotification("sent")
	}
	return nil
}

// recipients resolves who hears about an action. The actor is never mailed about their own action.
func (s *NotificationService) recipients(ctx context.Context, event RequestEvent) ([]models.Profile, error) {
	ids := make([]string, 0, 2)
	req := event.Request
	switch event.Action {
	case workflow.ActionSubmit:
		if req.ApproverID != nil {
			ids = append(ids, *req.ApproverID)
		}
	case workflow.ActionApprove, workflow.ActionReject, workflow.ActionComplete, workflow.ActionCancel:
		ids = append(ids, req.RequesterID)
	default:
		return nil, nil
	}

	seen := map[string]bool{event.ActorID: true}
	out := make([]models.Profile, 0, len(ids))
	add := func(p models.Profile) {
		if seen[p.ID] || !p.Active || strings.TrimSpace(p.Email) == "" {
			return
		}
		seen[p.ID] = true
		out = append(out, p)
	}

	for _, id := range ids {
		profile, err := s.profiles.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load recipient %s: %w", id, err)
		}
		add(*profile)
	}

	if event.Action == workflow.ActionApprove {
		role := models.RoleProcurement
		active := true
		officers, _, err := s.profiles.List(ctx, models.ProfileFilter{Role: &role, Active: &active, Page: 1, PageSize: 100})
		if err != nil {
			return nil, fmt.Errorf("list procurement officers: %w", err)
		}
		for _, officer := range officers {
			add(officer)
		}
	}
	return out, nil
}

func (s *NotificationService) render(event RequestEvent, to models.Profile) (notify.Message, error) {
	req := event.Request
	view := notificationView{
		Name:   displayName(to),
		Number: req.Number,
		Type:   req.RequestType,
		Status: humanStatus(req.Status),
		Total:  export.Amount(req.TotalAmount),
	}
	var subject string
	switch event.Action {
	case workflow.ActionSubmit:
		subject = fmt.Sprintf("Approval needed: %s", req.Number)
		view.Headline = fmt.Sprintf("A shopping request worth %s is waiting for your decision.", view.Total)
	case workflow.ActionApprove:
		subject = fmt.Sprintf("Request %s approved", req.Number)
		view.Headline = "The shopping request below has been approved."
		view.NoteLabel, view.Note = "Comment", deref(req.ApprovalComment)
	case workflow.ActionReject:
		subject = fmt.Sprintf("Request %s rejected", req.Number)
		view.Headline = "Your shopping request has been rejected."
		view.NoteLabel, view.Note = "Reason", deref(req.RejectionReason)
	case workflow.ActionComplete:
		subject = fmt.Sprintf("Request %s completed", req.Number)
		view.Headline = "Procurement has completed your shopping request."
		view.NoteLabel, view.Note = "Notes", deref(req.ProcurementNotes)
	case workflow.ActionCancel:
		subject = fmt.Sprintf("Request %s returned for editing", req.Number)
		view.Headline = "Your shopping request was cancelled and can be edited again."
		view.NoteLabel, view.Note = "Note", deref(req.CancellationNote)
	}
	if s.cfg.AppURL != "" {
		view.Link = strings.TrimRight(s.cfg.AppURL, "/") + "/" + req.ID
	}

	var body bytes.Buffer
	if err := notificationTemplate.Execute(&body, view); err != nil {
		return notify.Message{}, fmt.Errorf("render notification: %w", err)
	}

	text := fmt.Sprintf("Hello %s,\n\n%s\n\nNumber: %s\nStatus: %s\nTotal: %s\n", view.Name, view.Headline, view.Number, view.Status, view.Total)
	if view.Note != "" {
		text += fmt.Sprintf("%s: %s\n", view.NoteLabel, view.Note)
	}
	if !req.UpdatedAt.IsZero() {
		text += fmt.Sprintf("\nUpdated %s\n", humanize.Time(req.UpdatedAt))
	}

	return notify.Message{To: []string{to.Email}, Subject: subject, HTML: body.String(), Text: text}, nil
}

func displayName(p models.Profile) string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	return p.Email
}

func humanStatus(status models.RequestStatus) string {
	return strings.ReplaceAll(string(status), "_", " ")
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
