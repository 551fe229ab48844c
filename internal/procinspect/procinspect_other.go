//go:build !linux

package procinspect

import (
	"fmt"
	"runtime"
)

func checkRunning(pid int) bool {
	return false
}

func comm(pid int) (string, error) {
	return "", fmt.Errorf("procinspect: /proc inspection is not supported on %s", runtime.GOOS)
}

func exe(pid int) (string, error) {
	return "", fmt.Errorf("procinspect: /proc inspection is not supported on %s", runtime.GOOS)
}

func cpuTimeTicks(pid int) (uint64, error) {
	return 0, fmt.Errorf("procinspect: /proc inspection is not supported on %s", runtime.GOOS)
}

func residentMemoryBytes(pid int) (uint64, error) {
	return 0, fmt.Errorf("procinspect: /proc inspection is not supported on %s", runtime.GOOS)
}
