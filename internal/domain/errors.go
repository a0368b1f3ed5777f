// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrConflict indicates an entity with the same identity already exists.
var ErrConflict = errors.New("conflict: entity already exists")
