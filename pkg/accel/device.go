package accel

import (
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Device describes the execution device chosen by an accelerator. The
// caller-supplied device is advisory; the value the accelerator reports
// back is the one actually used.
type Device struct {
	Kind string // "cpu", "cuda", "npu", ...
	Name string // human readable, e.g. the CPU brand string
}

func (d Device) String() string {
	if d.Name == "" {
		return d.Kind
	}
	return d.Kind + " (" + d.Name + ")"
}

// DetectCPU returns the host CPU as a Device.
func DetectCPU() Device {
	name := strings.TrimSpace(cpuid.CPU.BrandName)
	if name == "" {
		name = "unknown cpu"
	}
	return Device{Kind: "cpu", Name: name}
}
