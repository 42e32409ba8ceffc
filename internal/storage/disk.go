package storage

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Usage is the on-disk footprint of the library's local data.
type Usage struct {
	Total int64            `json:"total_bytes"`
	Paths map[string]int64 `json:"paths"`
}

// DiskUsage sums the size of each labelled path. A path may be a file or a
// directory; missing paths count as zero and empty paths are ignored.
func DiskUsage(paths map[string]string) (Usage, error) {
	u := Usage{Paths: make(map[string]int64, len(paths))}
	labels := make([]string, 0, len(paths))
	for label := range paths {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		p := paths[label]
		if p == "" {
			continue
		}
		n, err := pathSize(p)
		if err != nil {
			return Usage{}, err
		}
		u.Paths[label] = n
		u.Total += n
	}
	return u, nil
}

func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
