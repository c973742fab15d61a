package render

import (
	"log/slog"
	"net/url"
	"path"
	"strings"
)

// ResourceKind classifies a page-load request.
type ResourceKind string

const (
	KindDocument   ResourceKind = "document"
	KindStylesheet ResourceKind = "stylesheet"
	KindScript     ResourceKind = "script"
	KindImage      ResourceKind = "image"
	KindFont       ResourceKind = "font"
	KindMedia      ResourceKind = "media"
	KindXHR        ResourceKind = "xhr"
	KindOther      ResourceKind = "other"
)

// Filter reports whether a request of the given kind must be aborted.
type Filter func(kind ResourceKind) bool

// Blocks evaluates the filter. A nil or panicking filter lets the request
// through.
func (f Filter) Blocks(kind ResourceKind) (blocked bool) {
	if f == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("resource filter panicked, allowing request",
				slog.String("kind", string(kind)),
				slog.Any("panic", r),
			)
			blocked = false
		}
	}()
	return f(kind)
}

// BlockHeavy drops images, fonts and media.
func BlockHeavy(kind ResourceKind) bool {
	switch kind {
	case KindImage, KindFont, KindMedia:
		return true
	default:
		return false
	}
}

var extensionKinds = map[string]ResourceKind{
	".html":  KindDocument,
	".htm":   KindDocument,
	".css":   KindStylesheet,
	".js":    KindScript,
	".mjs":   KindScript,
	".json":  KindXHR,
	".png":   KindImage,
	".jpg":   KindImage,
	".jpeg":  KindImage,
	".gif":   KindImage,
	".webp":  KindImage,
	".avif":  KindImage,
	".svg":   KindImage,
	".ico":   KindImage,
	".woff":  KindFont,
	".woff2": KindFont,
	".ttf":   KindFont,
	".otf":   KindFont,
	".eot":   KindFont,
	".mp4":   KindMedia,
	".webm":  KindMedia,
	".mp3":   KindMedia,
	".ogg":   KindMedia,
	".wav":   KindMedia,
	".m3u8":  KindMedia,
}

// ClassifyURL guesses the resource kind of a request from its path when
// the transport does not report one. Extension-less paths are documents;
// anything unparseable or unknown is KindOther.
func ClassifyURL(raw string) ResourceKind {
	u, err := url.Parse(raw)
	if err != nil {
		return KindOther
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return KindDocument
	}
	if kind, ok := extensionKinds[ext]; ok {
		return kind
	}
	return KindOther
}
