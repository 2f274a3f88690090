// Package objmem implements the Spur object model.
//
// This package contains:
//   - Tagged words: SmallInteger, Character and SmallFloat64 immediates
//   - The bit-packed 64-bit object header and object formats
//   - Space, a word-addressed memory region holding heap objects
//   - Object, a validated view over one heap object
//   - The class table and special objects array of a Spur image
package objmem
