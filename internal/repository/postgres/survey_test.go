package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

func TestSurveyRepository_Create(t *testing.T) {
	tests := []struct {
		name     string
		dbErr    error
		wantCode errors.ErrorCode
	}{
		{name: "stored"},
		{name: "second survey for same turno", dbErr: &pq.Error{Code: "23505"}, wantCode: errors.CodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, mock := newTestBase(t)
			repo := NewSurveyRepository(base)

			exp := mock.ExpectExec("INSERT INTO encuestas_atencion")
			if tt.dbErr != nil {
				exp.WillReturnError(tt.dbErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(1, 1))
			}

			survey := &model.Survey{TurnoID: uuid.New(), PacienteID: uuid.New(), Calificacion: 5, Recomendaria: true}
			err := repo.Create(context.Background(), survey)
			if tt.wantCode != "" {
				assert.True(t, errors.IsCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, survey.ID)
		})
	}
}

func TestSurveyRepository_GetByTurno(t *testing.T) {
	base, mock := newTestBase(t)
	repo := NewSurveyRepository(base)

	turnoID := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM encuestas_atencion").
		WithArgs(turnoID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "turno_id", "paciente_id", "calificacion", "comentario", "recomendaria", "created_at"}).
			AddRow(uuid.NewString(), turnoID.String(), uuid.NewString(), 4, "muy amable", true, time.Now()))

	survey, err := repo.GetByTurno(context.Background(), turnoID)
	require.NoError(t, err)
	assert.Equal(t, 4, survey.Calificacion)
	assert.Equal(t, turnoID, survey.TurnoID)
}
