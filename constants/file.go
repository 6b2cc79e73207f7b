package constants

import "strings"

// Source formats understood by the OCR stage.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

const (
	MimePDF  = "application/pdf"
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeTIFF = "image/tiff"
	MimeWEBP = "image/webp"
	MimeHEIC = "image/heic"
	MimeHEIF = "image/heif"
)

// DefaultAcceptedMimeTypes applies when a document type does not list its own.
var DefaultAcceptedMimeTypes = []string{MimePDF, MimePNG, MimeJPEG}

// NormalizeMime lowercases and strips parameters ("image/png; charset=x" -> "image/png").
func NormalizeMime(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

// MapMimeToFormat maps a MIME type to PDF, IMAGE or "" when unsupported.
func MapMimeToFormat(m string) string {
	switch NormalizeMime(m) {
	case MimePDF:
		return PDF
	case MimePNG, MimeJPEG, "image/jpg", MimeTIFF, MimeWEBP, MimeHEIC, MimeHEIF, "image/bmp":
		return IMAGE
	default:
		return ""
	}
}

// IsHEICMime reports whether the image needs conversion before tesseract can read it.
func IsHEICMime(m string) bool {
	m = NormalizeMime(m)
	return m == MimeHEIC || m == MimeHEIF
}

// ExtForMime returns a file extension tools like tesseract recognise.
func ExtForMime(m string) string {
	switch NormalizeMime(m) {
	case MimePDF:
		return ".pdf"
	case MimePNG:
		return ".png"
	case MimeJPEG, "image/jpg":
		return ".jpg"
	case MimeTIFF:
		return ".tiff"
	case MimeWEBP:
		return ".webp"
	case MimeHEIC:
		return ".heic"
	case MimeHEIF:
		return ".heif"
	case "image/bmp":
		return ".bmp"
	default:
		return ".bin"
	}
}
