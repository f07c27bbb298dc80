package main

import (
	"fmt"
	"io"
	"runtime/debug"
)

// buildInfo is what the Go toolchain embedded in the binary.
type buildInfo struct {
	Version   string
	GoVersion string
	Revision  string
	Modified  bool
}

func readBuildInfo() buildInfo {
	b := buildInfo{Version: "dev", GoVersion: "unknown", Revision: "unknown"}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		b.Version = v
	}
	b.GoVersion = info.GoVersion
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			b.Revision = s.Value
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

func (b buildInfo) print(w io.Writer) {
	_, _ = fmt.Fprintf(w, "pantry %s\n  Go version: %s\n  Revision:   %s\n", b.Version, b.GoVersion, b.Revision)
	if b.Modified {
		_, _ = fmt.Fprintln(w, "  Modified:   true")
	}
}
