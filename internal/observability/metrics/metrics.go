package metrics

import (
	"fmt"

	obserrors "github.com/plateworks/paymaster/internal/observability/errors"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// withErrorClass tags failed results with a normalised error class so
// dashboards can break failures down without unbounded cardinality.
func withErrorClass(tags map[string]string, result string, err error) map[string]string {
	if err == nil || result != ResultError {
		return tags
	}
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
	return tags
}

// statusClass collapses an HTTP status code into its class ("2xx", "5xx").
// Zero means no response was received and yields an empty class.
func statusClass(code int) string {
	if code == 0 {
		return ""
	}
	if code < 100 || code >= 600 {
		return "unknown"
	}
	return fmt.Sprintf("%dxx", code/100)
}
