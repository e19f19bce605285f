package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"

	"staretl/internal/etlerr"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "destination.dsn"). Message is
// human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Known kinds. Unknown kinds are errors: nothing else is registered.
var (
	sourceKinds      = []string{"mongo", "file", "http"}
	destinationKinds = []string{"postgres", "sqlite", "mysql", "mssql", "memory"}
)

// ValidateConfig performs static validation of c. It does not mutate c.
// Callers treat any SeverityError issue as fatal.
func ValidateConfig(c Config) []Issue {
	issues := structIssues(c)
	issues = append(issues, validateSource(c.Source)...)
	issues = append(issues, validateDestination(c.Destination)...)
	issues = append(issues, validateRuntime(c.Runtime)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	return issues
}

// Err folds the error issues into one *etlerr.ConfigurationError naming the
// first offending path, or nil when there are none.
func Err(issues []Issue) error {
	var msgs []string
	field := ""
	for _, iss := range issues {
		if iss.Severity != SeverityError {
			continue
		}
		if field == "" {
			field = iss.Path
		}
		msgs = append(msgs, iss.Path+": "+iss.Message)
	}
	if len(msgs) == 0 {
		return nil
	}
	return etlerr.Configuration(field, "%s", strings.Join(msgs, "; "))
}

func structIssues(c Config) []Issue {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Issue{{Severity: SeverityError, Path: "", Message: err.Error()}}
	}
	issues := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		path := strings.TrimPrefix(fe.Namespace(), "Config.")
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fieldMessage(path, fe)})
	}
	return issues
}

func fieldMessage(path string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return path + " must not be empty"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", path, fe.Param())
	case "url":
		return path + " must be a valid URL"
	case "gte":
		return fmt.Sprintf("%s must be >= %s", path, fe.Param())
	default:
		return path + " is invalid"
	}
}

func validateSource(s Source) []Issue {
	var issues []Issue
	if s.Kind == "" {
		return nil // reported by the struct tags
	}
	if !lo.Contains(sourceKinds, s.Kind) {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; expected one of %s", s.Kind, strings.Join(sourceKinds, ", ")),
		})
	}

	switch s.Kind {
	case "mongo":
		if strings.TrimSpace(s.URI) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.uri",
				Message:  "mongo source requires a connection URI (MONGO_URI)",
			})
		}
		if strings.TrimSpace(s.Database) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "source.database",
				Message:  fmt.Sprintf("no database configured; %q is used", DefaultDatabase),
			})
		}
	case "file":
		if strings.TrimSpace(s.Dir) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.dir",
				Message:  "file source requires a directory of <collection>.json exports",
			})
		}
	case "http":
		if u, err := url.Parse(s.URI); err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.uri",
				Message:  fmt.Sprintf("http source requires an absolute base URL, got %q", s.URI),
			})
		}
	}
	if _, err := duration("source.timeout", s.Timeout); err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "source.timeout", Message: err.Error()})
	}
	return issues
}

func validateDestination(d Destination) []Issue {
	var issues []Issue
	if d.Kind == "" {
		return nil
	}
	if !lo.Contains(destinationKinds, d.Kind) {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "destination.kind",
			Message:  fmt.Sprintf("unknown destination kind %q; expected one of %s", d.Kind, strings.Join(destinationKinds, ", ")),
		})
	}
	if d.Kind != "memory" && strings.TrimSpace(d.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "destination.dsn",
			Message:  d.Kind + " destination requires a DSN (POSTGRES_URI)",
		})
	}
	if d.Kind == "memory" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "destination.kind",
			Message:  "memory destination keeps nothing after the process exits",
		})
	}
	if d.BatchSize == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "destination.batch_size",
			Message:  "batch_size=0; the backend default is used",
		})
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue
	if s := strings.TrimSpace(r.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "runtime.schedule",
				Message:  fmt.Sprintf("invalid cron spec %q: %v", s, err),
			})
		}
	}
	if _, err := duration("runtime.timeout", r.Timeout); err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "runtime.timeout", Message: err.Error()})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	if m.Backend == "prometheus" && m.PushgatewayURL == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.pushgateway_url",
			Message:  "prometheus backend requires a Pushgateway URL (PUSHGATEWAY_URL)",
		})
	}
	if m.Backend == "datadog" && m.DatadogAddr == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.datadog_addr",
			Message:  "datadog backend requires an agent address (DD_AGENT_ADDR)",
		})
	}
	return issues
}
