// Package etlerr defines the error kinds shared across the pipeline.
//
// Every kind is a concrete type (match with errors.As) that also reports
// itself as one of the sentinel kinds below (match with errors.Is), so callers
// can branch on the category without caring about the detail fields.
package etlerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Use errors.Is(err, etlerr.ErrConnectivity) and friends.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrConnectivity   = errors.New("connectivity error")
	ErrDataQuality    = errors.New("data quality error")
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// ConfigurationError reports a missing endpoint, an unknown table or any
// other setting that prevents a component from doing its job.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Msg
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Msg)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Configuration is shorthand for &ConfigurationError{Field: field, Msg: msg}.
func Configuration(field, format string, a ...any) error {
	return &ConfigurationError{Field: field, Msg: fmt.Sprintf(format, a...)}
}

// ConnectivityError wraps a failure to reach the source or the destination.
type ConnectivityError struct {
	Endpoint string // "source" or "destination"
	Op       string
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s unreachable during %s: %v", e.Endpoint, e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

// Connectivity wraps err as a ConnectivityError. A nil err stays nil.
func Connectivity(endpoint, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ConnectivityError{Endpoint: endpoint, Op: op, Err: err}
}

// DataQualityError describes rows dropped while shaping. It is soft: the
// pipeline logs it and keeps going.
type DataQualityError struct {
	Table  string
	Reason string
	Rows   int
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality: %s: dropped %d rows: %s", e.Table, e.Rows, e.Reason)
}

func (e *DataQualityError) Is(target error) bool { return target == ErrDataQuality }

// SchemaMismatchError is returned when a batch names columns the destination
// table does not have, or lacks its primary key column.
type SchemaMismatchError struct {
	Table   string
	Columns []string
	Msg     string
}

func (e *SchemaMismatchError) Error() string {
	if len(e.Columns) == 0 {
		return fmt.Sprintf("schema mismatch on %s: %s", e.Table, e.Msg)
	}
	return fmt.Sprintf("schema mismatch on %s: %s %v", e.Table, e.Msg, e.Columns)
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }
