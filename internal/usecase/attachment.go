package usecase

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"scriptoria/internal/domain"
)

// maxAttachmentSize bounds a single inline attachment.
const maxAttachmentSize = 20 << 20

// LoadAttachment reads path into an inline attachment. The MIME type comes
// from the file extension, or from the content when the extension is unknown.
func LoadAttachment(path string) (domain.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("%w: attachment: %v", domain.ErrInvalidInput, err)
	}
	if info.IsDir() {
		return domain.Attachment{}, fmt.Errorf("%w: attachment %s is a directory", domain.ErrInvalidInput, path)
	}
	if info.Size() > maxAttachmentSize {
		return domain.Attachment{}, fmt.Errorf("%w: attachment %s exceeds %d bytes", domain.ErrInvalidInput, path, maxAttachmentSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("%w: attachment: %v", domain.ErrInvalidInput, err)
	}

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	// Drop parameters such as "; charset=utf-8".
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}

	return domain.Attachment{MIMEType: mimeType, Data: data}, nil
}

// LoadAttachments loads every path in order.
func LoadAttachments(paths []string) ([]domain.Attachment, error) {
	out := make([]domain.Attachment, 0, len(paths))
	for _, p := range paths {
		a, err := LoadAttachment(p)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
