package expand

// ExpansionError aborts the statement list whose word failed to expand:
// bad arithmetic, ${x:?} on an unset name, a failed glob under the fail
// policy or an unbound variable under set -u.
type ExpansionError struct {
	Msg string
	Err error
}

func (e *ExpansionError) Error() string {
	switch {
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *ExpansionError) Unwrap() error {
	return e.Err
}
