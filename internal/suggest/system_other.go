//go:build !(darwin && cgo)

package suggest

// System returns ErrNoSystemService; only macOS ships a completion service.
func System() (Service, error) {
	return nil, ErrNoSystemService
}
