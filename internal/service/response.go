package service

import (
	"fmt"
	"strings"

	"toolkit-proxy-go/internal/model"
)

// AdjustResponse renders an upstream response as the text written back to
// the client: status line, content headers, general headers, a blank line,
// then the body followed by CRLF. Content-Length and Transfer-Encoding are
// passed through untouched, so the framing is not guaranteed to be valid.
func AdjustResponse(r *model.UpstreamResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/%s %d %s\r\n", r.Version, r.StatusCode, r.Reason)
	writeHeaders(&b, r.ContentHeaders)
	writeHeaders(&b, r.GeneralHeaders)
	b.WriteString("\r\n")
	b.WriteString(r.Body)
	b.WriteString("\r\n")
	return b.String()
}

func writeHeaders(b *strings.Builder, headers []model.Header) {
	for _, h := range headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
}
