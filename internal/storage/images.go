package storage

import (
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
)

const (
	// FolderEventImages is the key prefix for event banners.
	FolderEventImages = "event_images"
	// FolderProfilePictures is the key prefix for user avatars.
	FolderProfilePictures = "profile_pictures"
)

// imageExtensions maps the accepted image content types to file extensions.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DetectImage sniffs the leading bytes of an upload and returns its content
// type and extension. ok is false for anything other than jpeg, png, gif or webp.
func DetectImage(head []byte) (contentType, ext string, ok bool) {
	contentType = http.DetectContentType(head)
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	ext, ok = imageExtensions[contentType]
	return contentType, ext, ok
}

// ContentTypeForKey returns the image content type implied by a key's extension.
func ContentTypeForKey(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	for ct, e := range imageExtensions {
		if e == ext {
			return ct
		}
	}
	return "application/octet-stream"
}

// NewImageKey returns a fresh object key under folder, e.g. event_images/<uuid>.png.
func NewImageKey(folder, ext string) string {
	return path.Join(folder, uuid.NewString()+ext)
}

// IsDefaultImage reports whether key is one of the shared placeholder images,
// which must never be deleted.
func IsDefaultImage(key string) bool {
	return path.Base(key) == "default.jpg"
}
