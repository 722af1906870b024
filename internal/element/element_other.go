//go:build !linux && !(darwin && cgo)

package element

import "context"

type unsupportedLocator struct{}

func newPlatformLocator(Options) Locator {
	return unsupportedLocator{}
}

func (unsupportedLocator) LocateFocusedElement(context.Context) (Handle, error) {
	return nil, newError("locate", ErrPermissionDenied, ErrUnsupported)
}
