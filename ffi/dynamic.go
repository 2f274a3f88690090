package ffi

// DynamicLoader opens shared objects by name or path. Relative names are
// tried in each Search directory before the system search path.
type DynamicLoader struct {
	Search []string
}

// NewDynamicLoader returns a loader searching dirs.
func NewDynamicLoader(dirs ...string) *DynamicLoader {
	return &DynamicLoader{Search: dirs}
}

// DynamicAvailable reports whether this build can open shared objects.
func DynamicAvailable() bool { return dynamicAvailable }
