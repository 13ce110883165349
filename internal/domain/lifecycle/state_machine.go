// Пакет lifecycle — конечный автомат жизненного цикла встречи.
//
// Переходы: active → cancelled → deleted (терминальное).
// Обратных переходов нет: отмена необратима, из deleted переходов нет.
// Автомат не хранит состояние: текущее состояние читается из записи,
// а атомарность перехода обеспечивается условным UPDATE в репозитории.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
)

// Event — событие, переводящее встречу в другое состояние.
type Event string

const (
	// EventCancel — мягкая отмена встречи
	EventCancel Event = "cancel"
	// EventHardDelete — окончательное удаление отменённой встречи
	EventHardDelete Event = "hard_delete"
)

// Operation — операция над встречей, не меняющая состояние.
type Operation string

const (
	OpUpdate Operation = "update"
	OpRead   Operation = "read"
)

// Коды ошибок переходов.
const (
	CodeAlreadyCancelled = "ALREADY_CANCELLED"
	CodeNotCancelled     = "NOT_CANCELLED"
	CodeImmutable        = "IMMUTABLE"
	CodeTerminal         = "TERMINAL_STATE"
	CodeInvalidState     = "INVALID_STATE"
)

// validTransitions — матрица допустимых переходов.
// Ключ — текущее состояние, значение — событие и целевое состояние.
var validTransitions = map[model.LifecycleState]map[Event]model.LifecycleState{
	model.StateActive:    {EventCancel: model.StateCancelled},
	model.StateCancelled: {EventHardDelete: model.StateDeleted},
	model.StateDeleted:   {}, // Терминальное состояние
}

// allowedOperations — операции, допустимые в каждом состоянии.
var allowedOperations = map[model.LifecycleState]map[Operation]bool{
	model.StateActive:    {OpUpdate: true, OpRead: true},
	model.StateCancelled: {OpRead: true},
	model.StateDeleted:   {},
}

// TransitionError — ошибка недопустимого перехода или операции.
type TransitionError struct {
	Code    string
	Message string
}

func (e *TransitionError) Error() string {
	return e.Message
}

// Transition проверяет событие ev для состояния from и возвращает целевое состояние.
func Transition(from model.LifecycleState, ev Event) (model.LifecycleState, error) {
	transitions, ok := validTransitions[from]
	if !ok {
		return "", &TransitionError{
			Code:    CodeInvalidState,
			Message: fmt.Sprintf("неизвестное состояние: %q", from),
		}
	}

	if to, ok := transitions[ev]; ok {
		return to, nil
	}

	switch {
	case from == model.StateDeleted:
		return "", &TransitionError{
			Code:    CodeTerminal,
			Message: "встреча удалена, переходы невозможны",
		}
	case ev == EventCancel:
		return "", &TransitionError{
			Code:    CodeAlreadyCancelled,
			Message: "встреча уже отменена",
		}
	case ev == EventHardDelete:
		return "", &TransitionError{
			Code:    CodeNotCancelled,
			Message: "окончательно удалить можно только отменённую встречу",
		}
	default:
		return "", &TransitionError{
			Code:    CodeInvalidState,
			Message: fmt.Sprintf("событие %s недопустимо в состоянии %s", ev, from),
		}
	}
}

// CanTransition сообщает, допустимо ли событие в состоянии from.
func CanTransition(from model.LifecycleState, ev Event) bool {
	_, err := Transition(from, ev)
	return err == nil
}

// CheckOperation проверяет, допустима ли операция в состоянии state.
// Изменение отменённой встречи возвращает ошибку IMMUTABLE.
func CheckOperation(state model.LifecycleState, op Operation) error {
	if allowedOperations[state][op] {
		return nil
	}
	if op == OpUpdate && state == model.StateCancelled {
		return &TransitionError{
			Code:    CodeImmutable,
			Message: "отменённую встречу нельзя изменить",
		}
	}
	return &TransitionError{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("операция %s недопустима в состоянии %s", op, state),
	}
}

// ErrorCode возвращает код TransitionError или пустую строку.
func ErrorCode(err error) string {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}
