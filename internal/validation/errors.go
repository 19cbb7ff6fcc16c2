package validation

import "github.com/gfgkiit/trapped/internal/apperr"

// Errors lists failed field rules in evaluation order.
type Errors []apperr.FieldError

func (e *Errors) add(field, message string) {
	*e = append(*e, apperr.FieldError{Field: field, Message: message})
}

// First returns the failure a fail-fast validator would have stopped at.
func (e Errors) First() (apperr.FieldError, bool) {
	if len(e) == 0 {
		return apperr.FieldError{}, false
	}
	return e[0], true
}

// Err converts the failures into a validation error, or nil when there are
// none. With ReportAll the error also carries every failure.
func (e Errors) Err(reporting Reporting) error {
	first, ok := e.First()
	if !ok {
		return nil
	}
	err := apperr.Validation(first.Field, first.Message)
	if reporting == ReportAll {
		err.Fields = append([]apperr.FieldError(nil), e...)
	}
	return err
}
