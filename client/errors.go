package client

import "errors"

// Kind classifies a failed exchange with the service. Callers branch on
// the kind; the message is for display.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindAuth       Kind = "auth"
)

// ErrCardBusy is returned when a mutation is attempted on a card that
// already has one in flight.
var ErrCardBusy = errors.New("a mutation for this card is already in flight")

type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// KindOf returns the kind of a client error, or KindNetwork for anything
// the SDK did not produce.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNetwork
}
