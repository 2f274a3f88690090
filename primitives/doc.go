// Package primitives implements the named primitives the object space
// calls into: foreign callouts, the event loop bridge and a handful of
// object-model helpers.
//
// A Plugin owns the state primitives share and exposes every primitive as
// a method taking the calling interpreter implicitly through the plugin.
// Install publishes one Plugin process-wide; the exported Primitive*
// functions are the ABI-shaped entry points that read it. ExportTable
// encodes the registered entry points in the named-primitive table layout
// the VM walks at startup.
package primitives
