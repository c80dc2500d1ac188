// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package vendoring

import "fmt"

// UnmanagedTreeError reports a sync against a non-empty destination
// that carries no management marker. The tree may hold hand-written
// work, so the sync refuses to clean it; adopting the tree writes the
// marker and takes ownership.
type UnmanagedTreeError struct {
	// Dir is the destination directory that refused the sync.
	Dir string
}

func (err *UnmanagedTreeError) Error() string {
	return fmt.Sprintf("%s is not empty and has no %s marker; it was not created by a sync",
		err.Dir, MarkerName)
}
