package upload

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
)

// FileFromPath describes a local file for selection. The content type comes
// from the extension, falling back to sniffing the first bytes.
func FileFromPath(path string) (tracker.File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return tracker.File{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return tracker.File{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if info.IsDir() {
		return tracker.File{}, &ValidationError{File: filepath.Base(abs), Reason: "is a directory"}
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(abs)))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if contentType == "" {
		contentType, err = sniff(abs)
		if err != nil {
			return tracker.File{}, err
		}
	}

	return tracker.File{
		Name:        filepath.Base(abs),
		ContentType: contentType,
		Size:        info.Size(),
		Path:        abs,
	}, nil
}

func sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("sniffing %s: %w", path, err)
	}
	ct := http.DetectContentType(buf[:n])
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct, nil
}
