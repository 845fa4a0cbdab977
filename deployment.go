package firegex

import (
	"runtime"
	"strings"
)

// Exposure is how the service reaches the network.
type Exposure int

const (
	// ExposureBridged publishes the service port through the docker bridge.
	ExposureBridged Exposure = iota
	// ExposureHost shares the host network namespace.
	ExposureHost
)

// String returns the exposure name.
func (e Exposure) String() string {
	switch e {
	case ExposureBridged:
		return "bridged"
	case ExposureHost:
		return "host"
	default:
		return "unknown"
	}
}

// ImageSource says where the service image comes from.
type ImageSource struct {
	// Local builds the image from the working directory.
	Local bool
	// Tag is the remote image tag. Ignored when Local is set.
	Tag string
}

// Deployment is the resolved configuration of one deployment.
type Deployment struct {
	Exposure Exposure
	Port     uint16
	Threads  uint32
	Image    ImageSource
	// SecretHex is the hex encoded startup password. It is only set when a
	// password was just provisioned.
	SecretHex string
}

// Topology describes the host platform.
type Topology struct {
	OS            string
	KernelRelease string
}

// DetectTopology inspects the running host.
func DetectTopology() Topology {
	return Topology{
		OS:            runtime.GOOS,
		KernelRelease: kernelRelease(),
	}
}

// wslMarker appears in the kernel release of WSL2 hosts.
const wslMarker = "microsoft-standard"

// Native reports whether the host is a real Linux machine. WSL reports a
// Linux kernel but runs it in a VM that does not own the host network.
func (t Topology) Native() bool {
	return t.OS == "linux" && !strings.Contains(t.KernelRelease, wslMarker)
}

// Exposure returns the exposure mode suited to the host.
func (t Topology) Exposure() Exposure {
	if t.Native() {
		return ExposureHost
	}
	return ExposureBridged
}
