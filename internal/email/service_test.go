package email

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/quotedprintable"
	"net/mail"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/clinicaonline/turnos-api/pkg/metrics"
)

type sent struct {
	to      string
	subject string
	body    string
}

type fakeSender struct {
	t    *testing.T
	err  error
	sent []sent
}

func (f *fakeSender) DialAndSend(msgs ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	for _, m := range msgs {
		var raw bytes.Buffer
		_, err := m.WriteTo(&raw)
		require.NoError(f.t, err)

		parsed, err := mail.ReadMessage(&raw)
		require.NoError(f.t, err)
		body, err := io.ReadAll(quotedprintable.NewReader(parsed.Body))
		require.NoError(f.t, err)

		f.sent = append(f.sent, sent{
			to:      m.GetHeader("To")[0],
			subject: m.GetHeader("Subject")[0],
			body:    string(body),
		})
	}
	return nil
}

func newTestService(t *testing.T) (Service, *fakeSender, *metrics.Metrics) {
	sender := &fakeSender{t: t}
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	require.NoError(t, err)
	svc := NewService(sender, Config{From: "turnos@clinica.com", BaseURL: "https://clinica.example/", Location: loc}, m)
	return svc, sender, m
}

func TestSendVerification(t *testing.T) {
	svc, sender, m := newTestService(t)

	require.NoError(t, svc.SendVerification(context.Background(), "ana@example.com", "Ana Pérez", "tok-1"))

	require.Len(t, sender.sent, 1)
	got := sender.sent[0]
	assert.Equal(t, "ana@example.com", got.to)
	assert.Contains(t, got.body, "Hola Ana Pérez")
	assert.Contains(t, got.body, "https://clinica.example/verificar-email?token=tok-1")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues(TemplateVerification, "success")))
}

func TestSendTurnoStatus(t *testing.T) {
	svc, sender, _ := newTestService(t)

	err := svc.SendTurnoStatus(context.Background(), "ana@example.com", TurnoStatusData{
		Destinatario: "Ana Pérez",
		Contraparte:  "Dr. Juan López",
		FechaInicio:  time.Date(2026, 3, 10, 13, 30, 0, 0, time.UTC),
		Estado:       "RECHAZADO",
		Comentario:   "no atiendo ese día",
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	got := sender.sent[0]
	assert.Equal(t, "Tu turno fue rechazado", got.subject)
	assert.Contains(t, got.body, "10/03/2026 10:30")
	assert.Contains(t, got.body, "Rechazado")
	assert.Contains(t, got.body, "no atiendo ese día")
}

func TestSend_EscapesUserInput(t *testing.T) {
	svc, sender, _ := newTestService(t)

	require.NoError(t, svc.SendTurnoNuevo(context.Background(), "doc@example.com", TurnoStatusData{
		Destinatario: "Juan",
		Contraparte:  "<script>alert(1)</script>",
		FechaInicio:  time.Now(),
	}))

	require.Len(t, sender.sent, 1)
	assert.NotContains(t, sender.sent[0].body, "<script>")
}

func TestSend_Failure(t *testing.T) {
	svc, sender, m := newTestService(t)
	sender.err = errors.New("connection refused")

	err := svc.SendVerification(context.Background(), "ana@example.com", "Ana", "tok")
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues(TemplateVerification, "error")))
}

func TestSend_CancelledContext(t *testing.T) {
	svc, sender, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, svc.SendVerification(ctx, "ana@example.com", "Ana", "tok"), context.Canceled)
	assert.Empty(t, sender.sent)
}
