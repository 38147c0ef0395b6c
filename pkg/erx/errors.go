// SPDX-License-Identifier: Apache-2.0

// Package erx declares the error kinds surfaced by the store migration engine.
//
// Every failure returned to a caller is an *errorx.Error whose type is one of the kinds below. Component level
// failures are decorated with the step and version pair they occurred in, so the kind survives all the way up to
// the caller and can be checked with errorx.IsOfType.
package erx

import (
	"fmt"

	"github.com/joomcode/errorx"
)

var (
	ErrNamespace = errorx.NewNamespace("storemig")

	// NotRecognized is returned when a store's embedded metadata matches no known schema descriptor.
	NotRecognized = ErrNamespace.NewType("not_recognized", errorx.NotFound())
	// UnknownVersion is returned when a schema version is not published in the catalog.
	UnknownVersion = ErrNamespace.NewType("unknown_version", errorx.NotFound())
	// NoPath is returned when no chain of mappings connects the store version with the final version.
	NoPath = ErrNamespace.NewType("no_path")
	// MappingNotFound is returned when an adjacent version pair has neither an explicit nor an inferable mapping.
	MappingNotFound = ErrNamespace.NewType("mapping_not_found", errorx.NotFound())
	// InvalidMapping is returned when an explicit mapping is partially defined or references unknown schema items.
	InvalidMapping = ErrNamespace.NewType("invalid_mapping")
	// TransformationFailed is returned when a record cannot be transformed into the destination schema.
	TransformationFailed = ErrNamespace.NewType("transformation_failed")
	// IOFailure is returned for read, write or rename failures at any stage.
	IOFailure = ErrNamespace.NewType("io_failure")
	// SwapFailed is returned when the migrated store could not replace the original.
	SwapFailed = ErrNamespace.NewType("swap_failed")
	// Cancelled is returned when the caller cancels a running migration.
	Cancelled = ErrNamespace.NewType("cancelled")
	// Locked is returned when another process holds the store migration lock.
	Locked = ErrNamespace.NewType("locked", errorx.Timeout())

	PropertyStep         = errorx.RegisterPrintableProperty("step")
	PropertyFrom         = errorx.RegisterPrintableProperty("from")
	PropertyTo           = errorx.RegisterPrintableProperty("to")
	PropertyEntity       = errorx.RegisterPrintableProperty("entity")
	PropertyAttribute    = errorx.RegisterPrintableProperty("attribute")
	PropertyRelationship = errorx.RegisterPrintableProperty("relationship")
	PropertyRecord       = errorx.RegisterPrintableProperty("record")
	PropertyPath         = errorx.RegisterPrintableProperty("path")
)

// Kinds lists every migration error kind, in the order they are documented.
func Kinds() []*errorx.Type {
	return []*errorx.Type{
		NotRecognized,
		UnknownVersion,
		NoPath,
		MappingNotFound,
		InvalidMapping,
		TransformationFailed,
		IOFailure,
		SwapFailed,
		Cancelled,
		Locked,
	}
}

// KindOf returns the migration kind of err, or nil if err is not a migration error.
func KindOf(err error) *errorx.Type {
	for _, kind := range Kinds() {
		if errorx.IsOfType(err, kind) {
			return kind
		}
	}

	return nil
}

// WithStep decorates err with the step index and version pair it happened in while keeping its kind.
// A nil err stays nil.
func WithStep(err error, step int, from string, to string) error {
	if err == nil {
		return nil
	}

	return errorx.Decorate(err, "step %d (%s -> %s)", step, from, to).
		WithProperty(PropertyStep, step).
		WithProperty(PropertyFrom, from).
		WithProperty(PropertyTo, to)
}

// WithVersions decorates err with the version pair it happened in while keeping its kind.
// A nil err stays nil.
func WithVersions(err error, from string, to string) error {
	if err == nil {
		return nil
	}

	return errorx.Decorate(err, "%s -> %s", from, to).
		WithProperty(PropertyFrom, from).
		WithProperty(PropertyTo, to)
}

// Transformation creates a TransformationFailed error carrying the entity and record that could not be migrated.
func Transformation(entity string, record string, format string, args ...interface{}) *errorx.Error {
	return TransformationFailed.New(format, args...).
		WithProperty(PropertyEntity, entity).
		WithProperty(PropertyRecord, record)
}

// IO wraps a filesystem or database error as IOFailure and records the path it relates to.
func IO(cause error, path string, format string, args ...interface{}) *errorx.Error {
	return IOFailure.Wrap(cause, format, args...).
		WithProperty(PropertyPath, path)
}

// SafeErrorDetails emits the printable context attached to a migration error.
func SafeErrorDetails(err error) map[string]string {
	details := map[string]string{}
	if err == nil {
		return details
	}

	props := map[string]errorx.Property{
		"step":         PropertyStep,
		"from":         PropertyFrom,
		"to":           PropertyTo,
		"entity":       PropertyEntity,
		"attribute":    PropertyAttribute,
		"relationship": PropertyRelationship,
		"record":       PropertyRecord,
		"path":         PropertyPath,
	}
	for name, prop := range props {
		if val, ok := errorx.ExtractProperty(err, prop); ok {
			details[name] = fmt.Sprintf("%v", val)
		}
	}

	return details
}
