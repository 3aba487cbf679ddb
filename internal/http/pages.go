package http

import (
	"html"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// The callback pages close the authorization popup and notify the
// opening window. All interpolated values are HTML-escaped; the error
// text in particular echoes platform-supplied input.

const successPage = `<!DOCTYPE html>
<html>
<head><title>Connected</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h2>Account connected</h2>
<p>%USERNAME% is now connected via %PLATFORM%. You can close this window.</p>
<script>
if (window.opener) {
	window.opener.postMessage({type: "oauth_result", status: "success", platform: "%PLATFORM%"}, "*");
}
setTimeout(function () { window.close(); }, 1500);
</script>
</body>
</html>`

const failurePage = `<!DOCTYPE html>
<html>
<head><title>Connection failed</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h2>Connection failed</h2>
<p>%REASON%</p>
<script>
if (window.opener) {
	window.opener.postMessage({type: "oauth_result", status: "error", platform: "%PLATFORM%"}, "*");
}
setTimeout(function () { window.close(); }, 3000);
</script>
</body>
</html>`

func (h *Handler) renderSuccess(c *gin.Context, platform, username string) {
	page := replaceAll(successPage, map[string]string{
		"%PLATFORM%": html.EscapeString(platform),
		"%USERNAME%": html.EscapeString(username),
	})
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

func (h *Handler) renderFailure(c *gin.Context, platform, reason string) {
	page := replaceAll(failurePage, map[string]string{
		"%PLATFORM%": html.EscapeString(platform),
		"%REASON%":   html.EscapeString(reason),
	})
	c.Data(http.StatusBadRequest, "text/html; charset=utf-8", []byte(page))
}

func replaceAll(page string, repl map[string]string) string {
	for from, to := range repl {
		page = strings.ReplaceAll(page, from, to)
	}
	return page
}
