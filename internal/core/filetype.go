package core

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/drivepool/drivepool/internal/model"
)

// extensionTypes maps lowercased file extensions to their derived category.
var extensionTypes = map[string]model.FileType{
	"jpg": model.FileTypeImage, "jpeg": model.FileTypeImage, "png": model.FileTypeImage,
	"gif": model.FileTypeImage, "webp": model.FileTypeImage, "svg": model.FileTypeImage,
	"bmp": model.FileTypeImage, "heic": model.FileTypeImage,

	"mp4": model.FileTypeVideo, "mov": model.FileTypeVideo, "avi": model.FileTypeVideo,
	"mkv": model.FileTypeVideo, "webm": model.FileTypeVideo,

	"mp3": model.FileTypeAudio, "wav": model.FileTypeAudio, "flac": model.FileTypeAudio,
	"ogg": model.FileTypeAudio, "m4a": model.FileTypeAudio,

	"pdf": model.FileTypeDocument, "doc": model.FileTypeDocument, "docx": model.FileTypeDocument,
	"xls": model.FileTypeDocument, "xlsx": model.FileTypeDocument, "ppt": model.FileTypeDocument,
	"pptx": model.FileTypeDocument, "txt": model.FileTypeDocument, "md": model.FileTypeDocument,
	"csv": model.FileTypeDocument,

	"zip": model.FileTypeArchive, "tar": model.FileTypeArchive, "gz": model.FileTypeArchive,
	"rar": model.FileTypeArchive, "7z": model.FileTypeArchive,

	"go": model.FileTypeCode, "js": model.FileTypeCode, "ts": model.FileTypeCode,
	"py": model.FileTypeCode, "rs": model.FileTypeCode, "java": model.FileTypeCode,
	"c": model.FileTypeCode, "cpp": model.FileTypeCode, "html": model.FileTypeCode,
	"css": model.FileTypeCode, "json": model.FileTypeCode, "yaml": model.FileTypeCode,
	"yml": model.FileTypeCode, "sql": model.FileTypeCode, "sh": model.FileTypeCode,
}

// estimatedSizes holds the fixed per-type averages used when an upload
// arrives without a measured size. These are guesses by design, not
// measurements.
var estimatedSizes = map[model.FileType]int64{
	model.FileTypeImage:    2 * 1024 * 1024,
	model.FileTypeVideo:    50 * 1024 * 1024,
	model.FileTypeAudio:    5 * 1024 * 1024,
	model.FileTypeDocument: 512 * 1024,
	model.FileTypeArchive:  10 * 1024 * 1024,
	model.FileTypeCode:     16 * 1024,
	model.FileTypeBinary:   1024 * 1024,
}

// typeTags maps a derived category to its default search tags.
var typeTags = map[model.FileType][]string{
	model.FileTypeImage:    {"image", "media"},
	model.FileTypeVideo:    {"video", "media"},
	model.FileTypeAudio:    {"audio", "media"},
	model.FileTypeDocument: {"document", "text"},
	model.FileTypeArchive:  {"archive"},
	model.FileTypeCode:     {"code", "text"},
	model.FileTypeBinary:   {"binary"},
}

// fileExtension returns the lowercased extension of name without the dot.
func fileExtension(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	return strings.ToLower(ext)
}

// deriveType maps a file name to its category; unknown extensions are
// classified as binary.
func deriveType(name string) model.FileType {
	if t, ok := extensionTypes[fileExtension(name)]; ok {
		return t
	}
	return model.FileTypeBinary
}

// estimateSize returns the fixed per-type average for t.
func estimateSize(t model.FileType) int64 {
	if s, ok := estimatedSizes[t]; ok {
		return s
	}
	return estimatedSizes[model.FileTypeBinary]
}

// tagsForType returns a fresh copy of the default tags for t.
func tagsForType(t model.FileType) []string {
	tags := typeTags[t]
	if tags == nil {
		tags = typeTags[model.FileTypeBinary]
	}
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}

// hashContent returns the hex SHA-256 of data, or empty when no bytes
// were provided with the upload.
func hashContent(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
