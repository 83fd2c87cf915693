package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"time"
)

// Entry is one file in an archive.
type Entry struct {
	Name string
	Data []byte
}

// Write streams entries to w as a zip archive. Names are flattened to their
// base element; a duplicate name is an error.
func Write(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		name := path.Base(path.Clean("/" + e.Name))
		if name == "/" || name == "." {
			return fmt.Errorf("zip: invalid entry name %q", e.Name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("zip: duplicate entry %q", name)
		}
		seen[name] = struct{}{}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			return err
		}
		if _, err := fw.Write(e.Data); err != nil {
			return err
		}
	}
	return zw.Close()
}
