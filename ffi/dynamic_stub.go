//go:build !(libffi && linux && cgo)

package ffi

const dynamicAvailable = false

// Open always fails: this build has no libffi backend.
func (l *DynamicLoader) Open(name string) (Library, error) {
	return nil, &ResolveError{Module: name, Err: ErrUnavailable}
}
