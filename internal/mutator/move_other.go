//go:build !unix

package mutator

func isCrossDevice(error) bool { return false }
