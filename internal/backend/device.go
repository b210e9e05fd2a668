package backend

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadDevice = errors.New("unrecognized device token")

// Device identifies where a graph places parameters and math. The
// reference executor is CPU only; CUDA devices are parsed and recorded so
// configurations written for GPU runtimes keep working.
type Device string

const DeviceCPU Device = "cpu"

func DefaultDevice() Device { return DeviceCPU }

// ParseDevice normalizes device spellings. Accepted: "cpu", "cuda",
// "cuda:<n>", and the legacy forms "/cpu:0" and "/gpu:<n>" (mapped to
// "cuda:<n>"). An empty token selects the default device.
func ParseDevice(token string) (Device, error) {
	switch token {
	case "":
		return DefaultDevice(), nil
	case "cpu", "/cpu:0":
		return DeviceCPU, nil
	case "cuda":
		return Device("cuda"), nil
	}
	if rest, ok := strings.CutPrefix(token, "cuda:"); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 {
			return Device(fmt.Sprintf("cuda:%d", n)), nil
		}
	}
	if rest, ok := strings.CutPrefix(token, "/gpu:"); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 {
			return Device(fmt.Sprintf("cuda:%d", n)), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrBadDevice, token)
}
