package service

// DiskUsage describes the filesystem holding a directory.
type DiskUsage struct {
	TotalBytes int64
	FreeBytes  int64
	UsedBytes  int64
	UsedPct    float64
}

// Usage reports disk usage for the current download directory. Fields are
// zero when the filesystem cannot be queried.
func (d *DownloadDir) Usage() DiskUsage {
	total, free := diskSpace(d.Get())
	u := DiskUsage{TotalBytes: total, FreeBytes: free}
	if total > 0 {
		u.UsedBytes = total - free
		u.UsedPct = float64(u.UsedBytes) / float64(total) * 100
	}
	return u
}
