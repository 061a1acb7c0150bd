package txmanager

import (
	"errors"
	"fmt"

	"msgtx/tranid"
)

// Kind classifies an Error so callers can pick retry, abandon or escalate
// without looking at the text.
type Kind int

const (
	// KindProtocol is caller misuse: nil work, wrong state, terminal transaction.
	KindProtocol Kind = iota + 1
	// KindIllegalState is a conflicting call while another operation owns the transaction.
	KindIllegalState
	// KindRollback means the transaction was rolled back instead of prepared or committed.
	KindRollback
	// KindTransaction is a retryable failure that left the transaction where it was.
	KindTransaction
	// KindSevere is an unrecoverable persistence failure; no further transition was tried.
	KindSevere
	KindXidUnknown
	KindXidStillAssociated
	KindXidInvalid
	// KindResourceExhausted is the maximum transaction size being reached.
	KindResourceExhausted
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol error"
	case KindIllegalState:
		return "illegal state"
	case KindRollback:
		return "rolled back"
	case KindTransaction:
		return "transaction error"
	case KindSevere:
		return "severe persistence error"
	case KindXidUnknown:
		return "xid unknown"
	case KindXidStillAssociated:
		return "xid still associated"
	case KindXidInvalid:
		return "xid invalid"
	case KindResourceExhausted:
		return "resource exhausted"
	}
	return "unknown error"
}

// Error is returned by every coordinator operation.
type Error struct {
	Kind   Kind
	Op     string
	TranID tranid.PersistentTranID
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	s := "txmanager: "
	if e.Op != "" {
		s += e.Op + " "
	}
	if !e.TranID.IsZero() {
		s += e.TranID.String() + " "
	}
	s += e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the bare sentinels below by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil && t.TranID.IsZero()
}

// Sentinels for errors.Is.
var (
	ErrProtocol           = &Error{Kind: KindProtocol}
	ErrIllegalState       = &Error{Kind: KindIllegalState}
	ErrRollback           = &Error{Kind: KindRollback}
	ErrTransaction        = &Error{Kind: KindTransaction}
	ErrSevere             = &Error{Kind: KindSevere}
	ErrXidUnknown         = &Error{Kind: KindXidUnknown}
	ErrXidStillAssociated = &Error{Kind: KindXidStillAssociated}
	ErrXidInvalid         = &Error{Kind: KindXidInvalid}
	ErrResourceExhausted  = &Error{Kind: KindResourceExhausted}
)

func newError(kind Kind, op string, id tranid.PersistentTranID, err error, format string, args ...interface{}) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Op: op, TranID: id, Msg: msg, Err: err}
}

// Severe marks err as unrecoverable. Persistence managers wrap failures with it
// when a local rollback cannot be trusted to clean up.
func Severe(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindSevere, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsSevere(err error) bool   { return errors.Is(err, ErrSevere) }
func IsRollback(err error) bool { return errors.Is(err, ErrRollback) }
func IsProtocol(err error) bool { return errors.Is(err, ErrProtocol) }
