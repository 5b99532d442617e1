package config

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
)

// IssueSeverity grades a configuration finding.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is one finding. Path is the dotted koanf key, e.g. "storage.dsn".
type Issue struct {
	Severity IssueSeverity `json:"severity"`
	Path     string        `json:"path"`
	Message  string        `json:"message"`
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Validate checks struct rules first, then rules that span sections.
func Validate(c Config) []Issue {
	var issues []Issue

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []Issue{{Severity: SeverityError, Path: "", Message: err.Error()}}
		}
		for _, fe := range verrs {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fieldPath(fe),
				Message:  ruleMessage(fe),
			})
		}
	}

	if c.Storage.Backend != "" && strings.TrimSpace(c.Storage.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.dsn",
			fmt.Sprintf("backend %q requires a dsn", c.Storage.Backend)})
	}
	switch c.Metrics.Backend {
	case "prometheus":
		if c.Metrics.PushURL == "" {
			issues = append(issues, Issue{SeverityError, "metrics.push_url", "prometheus backend requires a pushgateway URL"})
		}
	case "datadog":
		if c.Metrics.StatsdAddr == "" {
			issues = append(issues, Issue{SeverityError, "metrics.statsd_addr", "datadog backend requires an agent address"})
		}
	}
	if c.Inference.Threshold > 0 && c.Inference.Threshold < 0.5 {
		issues = append(issues, Issue{SeverityWarning, "inference.threshold",
			"threshold below 0.5 lets a minority of values decide a column type"})
	}
	if n := runtime.NumCPU() * 4; c.Runtime.Workers > n {
		issues = append(issues, Issue{SeverityWarning, "runtime.workers",
			fmt.Sprintf("%d workers exceeds 4x the %d available CPUs", c.Runtime.Workers, runtime.NumCPU())})
	}
	if c.Storage.Backend == "" && c.Storage.DSN != "" {
		issues = append(issues, Issue{SeverityWarning, "storage.backend", "dsn is set but no backend is selected; tables will not be materialized"})
	}
	return issues
}

// fieldPath drops the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "min", "gte":
		return fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
	case "max", "lte":
		return fmt.Sprintf("must be <= %s, got %v", fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("must be > %s, got %v", fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("must be a URL, got %q", fe.Value())
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}
