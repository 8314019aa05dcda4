package units

import "github.com/olofson/a2core/unit"

// RegisterBuiltins registers every built-in unit descriptor with reg.
// Call once per process before any engine state is created (spec §5
// "Registration of new unit descriptors is serialized by a registry
// mutex and must happen before any substate is created").
func RegisterBuiltins(reg *unit.Registry) {
	for _, d := range []*unit.Descriptor{
		WtoscDescriptor,
		PanmixDescriptor,
		XInsertDescriptor,
		EnvelopeDescriptor,
		Filter12Descriptor,
		WaveshaperDescriptor,
		DelayDescriptor,
		DbgunitDescriptor,
		FMDescriptor,
	} {
		reg.Register(d)
	}
}
