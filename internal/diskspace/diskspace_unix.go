//go:build !windows

package diskspace

import "syscall"

func availableBytes(path string) (int64, error) {
	_, free, err := statTotals(path)
	return free, err
}

func statTotals(path string) (free int64, total int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	free = int64(stat.Bavail) * int64(stat.Bsize)
	total = int64(stat.Blocks) * int64(stat.Bsize)
	return free, total, nil
}
