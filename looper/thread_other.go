//go:build !linux

package looper

func currentThreadID() int64 {
	return -1
}
