package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// EmailNotifier отправляет уведомления письмом через SendGrid
type EmailNotifier struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	send       func(ctx context.Context, req rest.Request) (*rest.Response, error)
	now        func() time.Time
	logger     *zap.Logger
}

func NewEmailNotifier(apiKey, fromAddress string, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{
		key:        apiKey,
		from:       sgmail.NewEmail("Study Scheduler", fromAddress),
		subjPrefix: "[Study Scheduler] ",
		send:       sendgrid.MakeRequestWithContext,
		now:        time.Now,
		logger:     logger,
	}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Reaches(u model.User) bool {
	return strings.TrimSpace(u.Email) != ""
}

func (e *EmailNotifier) Notify(ctx context.Context, n model.Notification) error {
	if !e.Reaches(n.Recipient) {
		return ErrUnreachable
	}

	req := sendgrid.GetRequest(e.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(e.prepare(n))

	res, err := e.send(ctx, req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send email: status %d: %s", res.StatusCode, res.Body)
	}

	e.logger.Debug("Email sent",
		zap.Int64("user_id", n.Recipient.ID),
		zap.String("event", string(n.Event)),
	)
	return nil
}

func (e *EmailNotifier) prepare(n model.Notification) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = e.subjPrefix + Subject(n)
	p.AddTos(sgmail.NewEmail(n.Recipient.DisplayName(), n.Recipient.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(e.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", PlainText(n)),
		sgmail.NewContent("text/html", strings.ReplaceAll(Message(n), "\n", "<br>")),
	)

	if hasCalendar(n) {
		ics := CalendarFile(n.Payload.Session, n.Payload.Occurrences, e.now())
		a := sgmail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(ics))
		a.SetType("text/calendar")
		a.SetFilename("session.ics")
		a.SetDisposition("attachment")
		m.AddAttachment(a)
	}
	return m
}
