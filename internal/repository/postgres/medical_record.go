package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
)

const recordColumns = `id, turno_id, paciente_id, especialista_id, altura, peso, temperatura, presion, created_at`

type medicalRecordRepository struct {
	BaseRepository
}

func NewMedicalRecordRepository(base BaseRepository) repository.MedicalRecordRepository {
	return &medicalRecordRepository{base}
}

func (r *medicalRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ClinicalRecord, error) {
	return r.getOne(ctx, `SELECT `+recordColumns+` FROM historias_clinicas WHERE id = $1`, id)
}

func (r *medicalRecordRepository) GetByTurno(ctx context.Context, turnoID uuid.UUID) (*model.ClinicalRecord, error) {
	return r.getOne(ctx, `SELECT `+recordColumns+` FROM historias_clinicas WHERE turno_id = $1`, turnoID)
}

func (r *medicalRecordRepository) getOne(ctx context.Context, query string, arg interface{}) (*model.ClinicalRecord, error) {
	var record model.ClinicalRecord
	if err := r.db.GetContext(ctx, &record, query, arg); err != nil {
		return nil, notFound(err, "clinical record")
	}
	if err := r.attachEntries(ctx, []*model.ClinicalRecord{&record}); err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *medicalRecordRepository) List(ctx context.Context, filter model.ClinicalRecordFilter) ([]*model.ClinicalRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM historias_clinicas
		WHERE ($1::uuid IS NULL OR paciente_id = $1::uuid)
		AND ($2::uuid IS NULL OR especialista_id = $2::uuid)
		ORDER BY created_at DESC
	`
	records := []*model.ClinicalRecord{}
	if err := r.db.SelectContext(ctx, &records, query, filter.PacienteID, filter.EspecialistaID); err != nil {
		return nil, fmt.Errorf("failed to list clinical records: %w", err)
	}
	if err := r.attachEntries(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// attachEntries loads the dynamic entries of all records with one query
func (r *medicalRecordRepository) attachEntries(ctx context.Context, records []*model.ClinicalRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, 0, len(records))
	byID := make(map[uuid.UUID]*model.ClinicalRecord, len(records))
	for _, rec := range records {
		rec.Datos = []model.DynamicEntry{}
		ids = append(ids, rec.ID.String())
		byID[rec.ID] = rec
	}

	rows, err := r.db.QueryxContext(ctx, `
		SELECT historia_id, clave, valor
		FROM historia_datos_dinamicos
		WHERE historia_id = ANY($1::uuid[])
		ORDER BY clave
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load dynamic entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row struct {
			HistoriaID uuid.UUID `db:"historia_id"`
			model.DynamicEntry
		}
		if err := rows.StructScan(&row); err != nil {
			return fmt.Errorf("failed to scan dynamic entry: %w", err)
		}
		if rec, ok := byID[row.HistoriaID]; ok {
			rec.Datos = append(rec.Datos, row.DynamicEntry)
		}
	}
	return rows.Err()
}
