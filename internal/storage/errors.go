package storage

import (
	"errors"
	"fmt"
	"strings"
)

// Entity kinds used by the structured errors.
const (
	KindUser        = "user"
	KindProject     = "project"
	KindCredential  = "credential"
	KindConnector   = "connector"
	KindProxy       = "proxy"
	KindFreeproxy   = "freeproxy"
	KindSource      = "source"
	KindTask        = "task"
	KindParam       = "param"
	KindCertificate = "certificate"
)

// Pull-scheduling queries with nothing due return these. They are expected,
// frequent outcomes for pollers and deliberately carry no extra state.
var (
	ErrNoConnectorToRefresh = errors.New("no connector to refresh")
	ErrNoProxyToRefresh     = errors.New("no proxy to refresh")
	ErrNoFreeproxyToRefresh = errors.New("no freeproxy to refresh")
	ErrNoSourceToRefresh    = errors.New("no source to refresh")
	ErrNoTaskToRefresh      = errors.New("no task to refresh")

	// ErrNoProjectProxy means the project has no online proxy to route to.
	ErrNoProjectProxy = errors.New("no proxy available in project")
)

// NoWorkAvailable reports whether err is one of the nothing-due sentinels.
func NoWorkAvailable(err error) bool {
	return errors.Is(err, ErrNoConnectorToRefresh) ||
		errors.Is(err, ErrNoProxyToRefresh) ||
		errors.Is(err, ErrNoFreeproxyToRefresh) ||
		errors.Is(err, ErrNoSourceToRefresh) ||
		errors.Is(err, ErrNoTaskToRefresh)
}

// NotFoundError reports one or more absent entities of a single kind.
type NotFoundError struct {
	Kind string
	IDs  []string
}

func NewNotFoundError(kind string, ids ...string) *NotFoundError {
	return &NotFoundError{Kind: kind, IDs: ids}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, strings.Join(e.IDs, ", "))
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// AlreadyExistsError reports a name or email collision.
type AlreadyExistsError struct {
	Kind string
	Name string
}

func NewAlreadyExistsError(kind, name string) *AlreadyExistsError {
	return &AlreadyExistsError{Kind: kind, Name: name}
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

func IsAlreadyExists(err error) bool {
	var ae *AlreadyExistsError
	return errors.As(err, &ae)
}

// InUseError reports a mutation blocked by a dependent row: an active
// connector, a credential still referenced, a connector with live proxies.
type InUseError struct {
	Kind   string
	ID     string
	Detail string
}

func NewInUseError(kind, id, detail string) *InUseError {
	return &InUseError{Kind: kind, ID: id, Detail: detail}
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s %s is in use: %s", e.Kind, e.ID, e.Detail)
}

func IsInUse(err error) bool {
	var iu *InUseError
	return errors.As(err, &iu)
}

// WrongTypeError reports an operation applied to an incompatible connector or
// credential type.
type WrongTypeError struct {
	Kind     string
	ID       string
	Expected string
	Actual   string
}

func (e *WrongTypeError) Error() string {
	return fmt.Sprintf("%s %s has type %q, expected %q", e.Kind, e.ID, e.Actual, e.Expected)
}

// InconsistencyDataError flags a violated invariant the store itself should
// have prevented. It is always fatal to the operation and must be logged
// loudly: it indicates a bug, not a normal race.
type InconsistencyDataError struct {
	Message string
}

func NewInconsistencyDataError(format string, args ...any) *InconsistencyDataError {
	return &InconsistencyDataError{Message: fmt.Sprintf(format, args...)}
}

func (e *InconsistencyDataError) Error() string {
	return "data inconsistency: " + e.Message
}

func IsInconsistencyData(err error) bool {
	var id *InconsistencyDataError
	return errors.As(err, &id)
}
