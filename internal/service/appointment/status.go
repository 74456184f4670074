package appointment

import (
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

// transitions is the only place that decides which status changes exist
var transitions = map[model.TurnoStatus][]model.TurnoStatus{
	model.TurnoPendiente: {model.TurnoAceptado, model.TurnoRechazado, model.TurnoCancelado},
	model.TurnoAceptado:  {model.TurnoFinalizado, model.TurnoCancelado},
}

// IsTerminal reports statuses with no outgoing transition
func IsTerminal(s model.TurnoStatus) bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is allowed for anyone
func CanTransition(from, to model.TurnoStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns INVALID_TRANSITION when from -> to is not in the table
func CheckTransition(from, to model.TurnoStatus) error {
	if !CanTransition(from, to) {
		return errors.InvalidTransition(string(from), string(to))
	}
	return nil
}

// actionTarget maps a state changing action to the status it produces
var actionTarget = map[model.Action]model.TurnoStatus{
	model.ActionAccept:   model.TurnoAceptado,
	model.ActionReject:   model.TurnoRechazado,
	model.ActionCancel:   model.TurnoCancelado,
	model.ActionFinalize: model.TurnoFinalizado,
}

// mayPerform reports whether actor plays a role that can trigger action on t,
// ignoring the current status.
func mayPerform(t *model.Turno, actor model.Actor, action model.Action) bool {
	isSpecialist := actor.Role == model.RoleEspecialista && actor.ID == t.EspecialistaID
	isPatient := actor.Role == model.RolePaciente && actor.ID == t.PacienteID

	switch action {
	case model.ActionAccept, model.ActionReject, model.ActionFinalize:
		return isSpecialist
	case model.ActionCancel:
		return isSpecialist || isPatient || actor.IsAdmin()
	}
	return false
}

// CanView reports whether actor may read t at all
func CanView(t *model.Turno, actor model.Actor) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return true
	case model.RoleEspecialista:
		return actor.ID == t.EspecialistaID
	case model.RolePaciente:
		return actor.ID == t.PacienteID
	}
	return false
}

// Authorize checks both the actor rule and the transition table for action
func Authorize(t *model.Turno, actor model.Actor, action model.Action) error {
	target, ok := actionTarget[action]
	if !ok {
		return errors.BadRequest("unknown action "+string(action), nil)
	}
	if !mayPerform(t, actor, action) {
		return errors.Forbidden("you cannot " + actionVerb(action) + " this turno")
	}
	return CheckTransition(t.Estado, target)
}

// AvailableActions lists what actor can do with t in its current status.
// It drives the buttons a client shows, so it must agree with Authorize.
func AvailableActions(t *model.Turno, actor model.Actor) []model.Action {
	actions := []model.Action{}
	if !CanView(t, actor) {
		return actions
	}

	for _, action := range []model.Action{model.ActionAccept, model.ActionReject, model.ActionCancel, model.ActionFinalize} {
		if mayPerform(t, actor, action) && CanTransition(t.Estado, actionTarget[action]) {
			actions = append(actions, action)
		}
	}

	if t.Comentario != nil && *t.Comentario != "" {
		actions = append(actions, model.ActionViewComment)
	}

	if t.Estado == model.TurnoFinalizado {
		if t.TieneHistoria {
			actions = append(actions, model.ActionViewRecord)
		}
		switch {
		case t.TieneEncuesta:
			actions = append(actions, model.ActionViewSurvey)
		case actor.Role == model.RolePaciente && actor.ID == t.PacienteID:
			actions = append(actions, model.ActionRateSurvey)
		}
	}
	return actions
}

func actionVerb(action model.Action) string {
	switch action {
	case model.ActionAccept:
		return "accept"
	case model.ActionReject:
		return "reject"
	case model.ActionCancel:
		return "cancel"
	case model.ActionFinalize:
		return "finalize"
	}
	return string(action)
}
