package exchange

import (
	"errors"

	"github.com/ggoodman/portalsession-go/apierr"
	"github.com/ggoodman/portalsession-go/session"
)

// Result is a settled exchange outcome in a shape every ResultCache can
// serialize: either a user record or a failure, never both.
type Result struct {
	User    *session.WireUser `json:"user,omitempty"`
	Failure *Failure          `json:"failure,omitempty"`
}

// Failure is the serializable projection of a normalized exchange error.
type Failure struct {
	Status  int    `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Err reconstructs the failure as an error, or nil for a success result.
func (r *Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return &apierr.Error{
		Status:  r.Failure.Status,
		Code:    r.Failure.Code,
		Message: r.Failure.Message,
	}
}

func resultOf(u *session.WireUser, err error) *Result {
	if err == nil {
		return &Result{User: u}
	}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return &Result{Failure: &Failure{Status: ae.Status, Code: ae.Code, Message: ae.Message}}
	}
	return &Result{Failure: &Failure{Message: err.Error()}}
}
