//go:build !linux && !(darwin && cgo)

package display

import (
	"context"

	"wordfill/internal/geometry"
)

type unsupported struct{}

// NewEnumerator returns an enumerator that always fails.
func NewEnumerator() Enumerator { return unsupported{} }

func (unsupported) Displays(context.Context) ([]geometry.DisplayInfo, error) {
	return nil, ErrUnsupported
}

// ReconcilerFor returns the primary-anchored reconciler.
func ReconcilerFor(displays []geometry.DisplayInfo) geometry.Reconciler {
	return geometry.NewReconciler(displays)
}

// NewAuthorizer denies introspection.
func NewAuthorizer() Authorizer { return Fixed(false) }
