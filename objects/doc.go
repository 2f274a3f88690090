// Package objects provides typed views over Spur heap objects.
//
// Every view wraps an objmem.Object and is checked when it is built, by
// format and, for the fixed-layout collection classes, by slot count. A
// word of the wrong shape is rejected with *objmem.TypeError or
// *objmem.SlotCountError instead of being reinterpreted.
//
// The package also boxes Go integers and floats into SmallIntegers,
// LargePositive/NegativeIntegers, SmallFloat64 immediates and BoxedFloat64
// objects, and reads them back.
package objects
