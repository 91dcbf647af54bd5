package fingerprint

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

// transformMarker CDN 图片处理参数的分隔符，之后的内容是缩放/转码指令
const transformMarker = "~"

// ErrEmptyReference 缩略图地址为空
var ErrEmptyReference = errors.New("empty thumbnail reference")

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Derive 从缩略图地址中提取稳定的标识
//
//	"//cdn.example/a/b/1060536x354blur2.jpg~tplv-xyz/wst/3:480:1000:gif.avif" -> "1060536x354blur2.jpg"
func Derive(thumbnailRef string) (string, error) {
	ref := strings.TrimSpace(thumbnailRef)
	if ref == "" {
		return "", ErrEmptyReference
	}

	// 处理指令里也可能出现 "/"，必须先截掉
	if idx := strings.Index(ref, transformMarker); idx >= 0 {
		ref = ref[:idx]
	}
	if idx := strings.IndexAny(ref, "?#"); idx >= 0 {
		ref = ref[:idx]
	}

	name := path.Base(strings.TrimRight(ref, "/"))
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("no file segment in reference %q", thumbnailRef)
	}
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return name, nil
}

// Fallback 无法提取标识时的兜底值，包含时间戳和序号
func Fallback(ordinal int) string {
	return fmt.Sprintf("unknown_%d_%d", time.Now().UnixMilli(), ordinal)
}

// DeriveOrFallback 提取标识，失败时返回兜底值，从不报错
func DeriveOrFallback(thumbnailRef string, ordinal int) (fp string, fellBack bool) {
	fp, err := Derive(thumbnailRef)
	if err != nil {
		return Fallback(ordinal), true
	}
	return fp, false
}

// NormalizeURL 把页面里读到的资源地址转换成可直接请求的绝对地址
// 协议相对地址补 https，相对路径基于 pageURL 解析
func NormalizeURL(ref, pageURL string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty resource reference")
	}
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid resource reference %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}

	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return "", fmt.Errorf("cannot resolve relative reference %q", ref)
	}
	return base.ResolveReference(u).String(), nil
}

// Filename 根据资源地址生成可安全写入存储的文件名
func Filename(resourceURL string) string {
	name, err := Derive(resourceURL)
	if err != nil {
		return fmt.Sprintf("photo_%d.jpg", time.Now().UnixMilli())
	}

	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return fmt.Sprintf("photo_%d.jpg", time.Now().UnixMilli())
	}
	if path.Ext(name) == "" {
		name += ".jpg"
	}
	return name
}
