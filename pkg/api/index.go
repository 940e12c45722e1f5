package api

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
html, body { margin: 0; height: 100%; background: #111; color: #ddd; font-family: sans-serif; }
#view { width: 100%; height: calc(100% - 2em); display: flex; align-items: center; justify-content: center; }
#status { height: 2em; line-height: 2em; padding: 0 1em; }
</style>
</head>
<body>
<div id="view"><img id="frame" alt=""></div>
<div id="status">Starting...</div>
<script>
const view = document.getElementById("view");
const img = document.getElementById("frame");
const status = document.getElementById("status");

async function next() {
  const url = "/api/viewer/frame?width=" + view.clientWidth + "&height=" + view.clientHeight;
  try {
    const res = await fetch(url, {cache: "no-store"});
    if (res.ok) {
      const blob = await res.blob();
      const old = img.src;
      img.src = URL.createObjectURL(blob);
      if (old) URL.revokeObjectURL(old);
    } else {
      img.removeAttribute("src");
      const body = await res.json();
      status.textContent = body.message || body.data || res.statusText;
      setTimeout(next, 500);
      return;
    }
  } catch (e) {
    status.textContent = "viewer unreachable";
    setTimeout(next, 1000);
    return;
  }
  requestAnimationFrame(next);
}

async function poll() {
  try {
    const res = await fetch("/api/viewer/status", {cache: "no-store"});
    const body = await res.json();
    if (body.data) status.textContent = body.data.status;
  } catch (e) {}
  setTimeout(poll, 1000);
}

next();
poll();
</script>
</body>
</html>
`))

func (h *handler) index(c *gin.Context) {
	title := h.opts.Title
	if title == "" {
		title = "cam-viewer"
	}
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(c.Writer, struct{ Title string }{title}); err != nil {
		_ = c.Error(err)
	}
}
