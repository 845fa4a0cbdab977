//go:build !linux

package firegex

func kernelRelease() string { return "" }
