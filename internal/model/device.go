package model

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Device selectors accepted in configuration.
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
	DeviceMPS  = "mps"
)

// cudaAvailable is swapped in tests.
var cudaAvailable = func() bool {
	_, err := os.Stat("/dev/nvidiactl")
	return err == nil
}

// ResolveDevice turns a selector and device id into a torch device string.
// "auto" picks CPU on macOS, CUDA when an NVIDIA driver is present and CPU
// otherwise. Explicit strings such as "cuda:1" pass through unchanged.
func ResolveDevice(selector string, id int) (string, error) {
	selector = strings.ToLower(strings.TrimSpace(selector))

	switch {
	case selector == "" || selector == DeviceAuto:
		if runtime.GOOS == "darwin" {
			return DeviceCPU, nil
		}
		if cudaAvailable() {
			return fmt.Sprintf("%s:%d", DeviceCUDA, id), nil
		}
		return DeviceCPU, nil
	case selector == DeviceCPU:
		return DeviceCPU, nil
	case selector == DeviceCUDA, selector == DeviceMPS:
		return fmt.Sprintf("%s:%d", selector, id), nil
	case strings.HasPrefix(selector, DeviceCUDA+":"), strings.HasPrefix(selector, DeviceMPS+":"):
		return selector, nil
	default:
		return "", fmt.Errorf("unsupported device %q", selector)
	}
}
