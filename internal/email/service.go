package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/clinicaonline/turnos-api/pkg/metrics"
)

const (
	TemplateVerification = "verification"
	TemplateTurnoStatus  = "turno_status"
	TemplateTurnoNuevo   = "turno_nuevo"
)

type Service interface {
	SendVerification(ctx context.Context, to, nombre, token string) error
	SendTurnoStatus(ctx context.Context, to string, data TurnoStatusData) error
	SendTurnoNuevo(ctx context.Context, to string, data TurnoStatusData) error
}

// TurnoStatusData is what the turno templates render
type TurnoStatusData struct {
	Destinatario string
	Contraparte  string
	FechaInicio  time.Time
	Estado       string
	Comentario   string
}

// Sender delivers built messages; *gomail.Dialer satisfies it
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	BaseURL  string
	Location *time.Location
}

type mailer struct {
	sender   Sender
	from     string
	baseURL  string
	loc      *time.Location
	metrics  *metrics.Metrics
	template *template.Template
}

// NewSMTPService sends through an SMTP server
func NewSMTPService(cfg Config, m *metrics.Metrics) Service {
	return NewService(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg, m)
}

func NewService(sender Sender, cfg Config, m *metrics.Metrics) Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &mailer{
		sender:   sender,
		from:     cfg.From,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		loc:      loc,
		metrics:  m,
		template: templates,
	}
}

func (s *mailer) SendVerification(ctx context.Context, to, nombre, token string) error {
	link := s.baseURL + "/verificar-email?token=" + url.QueryEscape(token)
	return s.send(ctx, TemplateVerification, to, "Confirmá tu email", map[string]interface{}{
		"Nombre": nombre,
		"Link":   link,
	})
}

func (s *mailer) SendTurnoStatus(ctx context.Context, to string, data TurnoStatusData) error {
	subject := "Tu turno fue " + strings.ToLower(estadoLabel(data.Estado))
	return s.send(ctx, TemplateTurnoStatus, to, subject, s.turnoView(data))
}

func (s *mailer) SendTurnoNuevo(ctx context.Context, to string, data TurnoStatusData) error {
	return s.send(ctx, TemplateTurnoNuevo, to, "Nuevo turno solicitado", s.turnoView(data))
}

func (s *mailer) turnoView(data TurnoStatusData) map[string]interface{} {
	return map[string]interface{}{
		"Destinatario": data.Destinatario,
		"Contraparte":  data.Contraparte,
		"Fecha":        data.FechaInicio.In(s.loc).Format("02/01/2006 15:04"),
		"Estado":       estadoLabel(data.Estado),
		"Comentario":   data.Comentario,
		"Link":         s.baseURL + "/mis-turnos",
	}
}

func (s *mailer) send(ctx context.Context, name, to, subject string, data interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := s.template.ExecuteTemplate(&body, name, data); err != nil {
		return fmt.Errorf("failed to render %s email: %w", name, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body.String())

	err := s.sender.DialAndSend(m)
	s.observe(name, err)
	if err != nil {
		return fmt.Errorf("failed to send %s email to %s: %w", name, to, err)
	}
	return nil
}

func (s *mailer) observe(name string, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.EmailsSent.WithLabelValues(name, status).Inc()
}

func estadoLabel(estado string) string {
	switch estado {
	case "PENDIENTE":
		return "Pendiente"
	case "ACEPTADO":
		return "Aceptado"
	case "RECHAZADO":
		return "Rechazado"
	case "CANCELADO":
		return "Cancelado"
	case "FINALIZADO":
		return "Finalizado"
	}
	return estado
}
