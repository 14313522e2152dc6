package retrieval

import "fmt"

// InvalidQueryError reports a query that cannot be built.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "invalid query: " + e.Reason
}

// UnsupportedGranularityError reports a time granularity a scope cannot serve.
type UnsupportedGranularityError struct {
	Scope       Scope
	Granularity Granularity
}

func (e *UnsupportedGranularityError) Error() string {
	return fmt.Sprintf("scope %s does not support granularity %q", e.Scope, e.Granularity)
}

// InvalidDateError reports a date filter that is not ISO-8601.
type InvalidDateError struct {
	Field string
	Value string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date for %s: %q (want YYYY-MM-DD or RFC 3339)", e.Field, e.Value)
}

func invalid(format string, args ...any) error {
	return &InvalidQueryError{Reason: fmt.Sprintf(format, args...)}
}
