package service

import (
	"errors"
	"fmt"
)

// Kind классифицирует ошибки оформления заказа для вызывающей стороны
type Kind string

const (
	KindUnknown            Kind = ""
	KindValidation         Kind = "validation_error"
	KindNotFound           Kind = "not_found"
	KindInsufficientStock  Kind = "insufficient_stock"
	KindUnavailable        Kind = "service_unavailable"
	KindPersistence        Kind = "persistence_failure"
	KindIntegrity          Kind = "integrity_error"
	KindCompensationFailed Kind = "compensation_failed"
	KindConflict           Kind = "conflict"
)

// Error типизированная ошибка service слоя.
// ProductID/SizeID заполнены для InsufficientStock и NotFound по позиции склада
type Error struct {
	Kind      Kind
	Op        string
	ProductID int64
	SizeID    int64
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.ProductID != 0 || e.SizeID != 0 {
		msg += fmt.Sprintf(" (product %d, size %d)", e.ProductID, e.SizeID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf возвращает Kind самой внешней *Error в цепочке
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// E создаёт *Error заданного вида
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// as переупаковывает уже типизированную ошибку клиента, подставляя fallback для нетипизированных
func as(op string, err error, fallback Kind) error {
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Op: op, ProductID: e.ProductID, SizeID: e.SizeID, Err: err}
	}
	return &Error{Kind: fallback, Op: op, Err: err}
}
