package utils

import (
	"io"
	"regexp"
)

var htmlTagRegex = regexp.MustCompile("<[^>]*>")

func StripHTMLTags(htmlStr string) string {
	return htmlTagRegex.ReplaceAllString(htmlStr, "")
}

// SafeClose 关闭时忽略错误
func SafeClose(c io.Closer) {
	if c == nil {
		return
	}
	_ = c.Close()
}
