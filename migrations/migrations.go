// Package migrations embeds the schema migrations and renders them for a table prefix.
package migrations

import (
	"bytes"
	"embed"
	"io"
	"io/fs"
	"strings"
)

// PrefixMarker is replaced by the configured table prefix in every migration file.
const PrefixMarker = "{{prefix}}"

//go:embed postgresql/*.sql mysql/*.sql
var files embed.FS

// Render replaces PrefixMarker in sql with prefix.
func Render(sql, prefix string) string {
	return strings.ReplaceAll(sql, PrefixMarker, prefix)
}

// FS returns the embedded migrations with every file rendered for prefix.
// Directories are "postgresql" and "mysql".
func FS(prefix string) fs.FS {
	return renderedFS{fsys: files, prefix: prefix}
}

type renderedFS struct {
	fsys   fs.FS
	prefix string
}

func (r renderedFS) Open(name string) (fs.File, error) {
	f, err := r.fsys.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		return f, nil
	}

	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}

	rendered := []byte(Render(string(data), r.prefix))
	return &renderedFile{
		Reader: bytes.NewReader(rendered),
		info:   renderedInfo{FileInfo: info, size: int64(len(rendered))},
	}, nil
}

type renderedFile struct {
	*bytes.Reader
	info renderedInfo
}

func (f *renderedFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *renderedFile) Close() error               { return nil }

type renderedInfo struct {
	fs.FileInfo
	size int64
}

func (i renderedInfo) Size() int64 { return i.size }
