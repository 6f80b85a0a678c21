// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tasks

import (
	"errors"

	"github.com/taskmate/taskmate/services/tasks/store"
)

var (
	// ErrTaskNotFound indicates the requested task does not exist
	// locally. Aliased from the store so handlers only import this
	// package.
	ErrTaskNotFound = store.ErrTaskNotFound

	// ErrInvalidInput indicates the request failed validation.
	ErrInvalidInput = errors.New("invalid input")
)
