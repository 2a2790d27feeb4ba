package discover

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ManifestInfo holds the descriptive fields of a resource manifest.
type ManifestInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
}

// ReadManifestInfo reads the manifest of the resource at dir. Name falls back
// to the directory name; a missing or unreadable manifest is not an error.
func ReadManifestInfo(dir string) ManifestInfo {
	info := ManifestInfo{Name: filepath.Base(dir)}
	for _, name := range []string{Manifest, LegacyManifest} {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		defer f.Close()
		parseManifest(f, &info)
		break
	}
	return info
}

func parseManifest(r io.Reader, info *ManifestInfo) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		var dst *string
		switch {
		case strings.HasPrefix(line, "name"):
			dst = &info.Name
		case strings.HasPrefix(line, "version"):
			dst = &info.Version
		case strings.HasPrefix(line, "author"):
			dst = &info.Author
		case strings.HasPrefix(line, "description"):
			dst = &info.Description
		default:
			continue
		}
		if v := quotedValue(line); v != "" {
			*dst = v
		}
	}
}

// quotedValue returns the text between the first and last quote of line,
// trying single quotes before double quotes.
func quotedValue(line string) string {
	for _, q := range []string{"'", `"`} {
		start := strings.Index(line, q)
		end := strings.LastIndex(line, q)
		if start >= 0 && end > start+1 {
			return line[start+1 : end]
		}
	}
	return ""
}
