//go:build !linux

package web

func diskUsage(path string) *DiskSnapshot {
	return &DiskSnapshot{Path: path, LastError: "disk usage not supported on this platform"}
}

func localInterfaceAddrs() []string { return nil }
