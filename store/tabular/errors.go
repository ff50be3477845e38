// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package tabular

import goerrors "gopkg.in/src-d/go-errors.v1"

// Error kinds shared by all TableStore backends and the pipeline layer.
// Lookup misses (ErrKeyNotFound, ErrColumnNotFound) are recoverable by the
// caller; the rest are fatal for the operation that raised them.
var (
	// ErrKeyNotFound is returned when a key is absent from a store.
	ErrKeyNotFound = goerrors.NewKind("key '%s' not found in store")

	// ErrColumnNotFound is returned when a projection names a column the
	// table does not have.
	ErrColumnNotFound = goerrors.NewKind("column '%s' not found in table at key '%s'")

	// ErrEmptyResult is returned when a multi-key merge has an empty row
	// intersection.
	ErrEmptyResult = goerrors.NewKind("merge of keys %v produced no rows")

	// ErrTypeMismatch is returned on metadata or table shape contract
	// violations.
	ErrTypeMismatch = goerrors.NewKind("type mismatch: %s")

	// ErrAlreadyOpen is returned when a second live handle is requested for
	// a store path, or open is called on a live handle.
	ErrAlreadyOpen = goerrors.NewKind("store at '%s' is already open")

	// ErrNotOpen is returned when an operation requires an open store.
	ErrNotOpen = goerrors.NewKind("store at '%s' is not open")

	// ErrConfig is returned on malformed or missing configuration, including
	// unknown backend discriminants.
	ErrConfig = goerrors.NewKind("configuration error: %s")

	// ErrIO wraps filesystem failures with the offending path.
	ErrIO = goerrors.NewKind("i/o failure at '%s': %s")
)
