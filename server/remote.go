package server

import (
	"net/http"
	"strings"
)

// remoteAddr extracts the client's address from proxy headers, falling
// back to the raw connection address, following the teacher's
// helpers.GetRemoteFromReq (app/realy/helpers/helpers.go / pkg
// equivalent), since a relay normally sits behind a reverse proxy and
// r.RemoteAddr alone would only ever show the proxy.
func remoteAddr(r *http.Request) string {
	forwardedFor := r.Header.Get("X-Forwarded-For")
	if forwardedFor == "" {
		forwarded := r.Header.Get("Forwarded")
		if forwarded == "" {
			return r.RemoteAddr
		}
		first := strings.SplitN(forwarded, ", ", 2)[0]
		if kv := strings.SplitN(first, "=", 2); len(kv) == 2 {
			return kv[1]
		}
		return r.RemoteAddr
	}
	parts := strings.Split(forwardedFor, ",")
	return strings.TrimSpace(parts[0])
}
