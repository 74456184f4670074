package handler

import (
	stderrors "errors"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicaonline/turnos-api/internal/middleware"
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/pkg/errors"
	"github.com/clinicaonline/turnos-api/pkg/validator"
)

// dateLayout is accepted besides RFC3339 in query parameters
const dateLayout = "2006-01-02"

// Actor returns the authenticated caller. Routes behind Authenticate always have one.
func Actor(c *gin.Context) (model.Actor, error) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return model.Actor{}, errors.Unauthorized("authentication required", nil)
	}
	return actor, nil
}

// BindJSON decodes the body into req and turns binding failures into
// VALIDATION or BAD_REQUEST errors.
func BindJSON(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		if stderrors.Is(err, io.EOF) {
			return errors.BadRequest("request body is required", err)
		}
		translated := validator.Translate(err)
		if errors.IsCode(translated, errors.CodeValidation) {
			return translated
		}
		return errors.BadRequest("malformed request body", err)
	}
	return nil
}

func UUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, errors.BadRequest("invalid "+name, err)
	}
	return id, nil
}

// OptionalUUIDQuery returns nil when the parameter is absent
func OptionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, errors.BadRequest("invalid "+name, err)
	}
	return &id, nil
}

// TimeQuery accepts RFC3339 or a plain date interpreted in loc
func TimeQuery(c *gin.Context, name string, loc *time.Location) (*time.Time, error) {
	t, _, err := parseTime(c, name, loc)
	return t, err
}

func parseTime(c *gin.Context, name string, loc *time.Location) (*time.Time, bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, false, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, false, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return nil, false, errors.BadRequest("invalid "+name+", use YYYY-MM-DD or RFC3339", err)
	}
	return &t, true, nil
}

// DateRangeQuery reads desde/hasta. A plain hasta date includes that whole day.
func DateRangeQuery(c *gin.Context, loc *time.Location) (model.DateRange, error) {
	desde, _, err := parseTime(c, "desde", loc)
	if err != nil {
		return model.DateRange{}, err
	}
	hasta, dateOnly, err := parseTime(c, "hasta", loc)
	if err != nil {
		return model.DateRange{}, err
	}
	if hasta != nil && dateOnly {
		end := hasta.AddDate(0, 0, 1)
		hasta = &end
	}
	return model.DateRange{Desde: desde, Hasta: hasta}, nil
}

func PaginationQuery(c *gin.Context) (model.Pagination, error) {
	var p model.Pagination
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, errors.BadRequest("invalid page", err)
		}
		p.Page = n
	}
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, errors.BadRequest("invalid page_size", err)
		}
		p.PageSize = n
	}
	p.Normalize()
	return p, nil
}
