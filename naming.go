// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const dirSuffix = "_dir.vpk"

// languageToken matches the locale prefix of localized directory files
// ("englishclient_mp_common..."). Archives are shared across locales.
var languageToken = regexp.MustCompile(`english|french|german|italian|japanese|korean|polish|portugese|russian|spanish|tchinese`)

// stripLanguage removes the first language token from a file name.
func stripLanguage(name string) string {
	if loc := languageToken.FindStringIndex(name); loc != nil {
		return name[:loc[0]] + name[loc[1]:]
	}
	return name
}

// isDirFileName reports whether path names a directory file.
func isDirFileName(path string) bool {
	return strings.HasSuffix(filepath.Base(path), dirSuffix)
}

// archivePath derives the path of numbered archive index from a directory
// file path: the language token is stripped and the trailing "_dir" becomes
// the zero-padded index.
func archivePath(dirPath string, index uint16) string {
	dir, base := filepath.Split(dirPath)
	base = stripLanguage(base)
	suffix := fmt.Sprintf("_%03d", index)
	if i := strings.LastIndex(base, "_dir"); i >= 0 {
		base = base[:i] + suffix + base[i+len("_dir"):]
	} else {
		ext := filepath.Ext(base)
		base = strings.TrimSuffix(base, ext) + suffix + ext
	}
	return filepath.Join(dir, base)
}

// camPath is the sidecar path of an archive file.
func camPath(archive string) string {
	return archive + ".cam"
}
