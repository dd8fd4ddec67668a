package repo

import (
	"io/fs"

	"github.com/odvcencio/splice/pkg/manifest"
)

func flagFromFileInfo(info fs.FileInfo) manifest.Flag {
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		return manifest.FlagSymlink
	case info.Mode()&0o111 != 0:
		return manifest.FlagExec
	}
	return manifest.FlagNone
}

func filePermFromFlag(flag manifest.Flag) fs.FileMode {
	if flag == manifest.FlagExec {
		return 0o755
	}
	return 0o644
}

// isFileOrLink is true for anything a manifest can hold at a path.
func isFileOrLink(info fs.FileInfo) bool {
	return info.Mode().IsRegular() || info.Mode()&fs.ModeSymlink != 0
}
