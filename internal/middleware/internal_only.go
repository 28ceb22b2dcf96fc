package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"os"
	"strings"
)

const ControlTokenHeader = "X-Control-Token"

// InternalOnly пускает только запросы с loopback-адреса. Если задан CONTROL_TOKEN,
// заголовок X-Control-Token должен ему совпадать: loopback открыт всем процессам машины.
// X-Forwarded-For не учитывается, прокси перед control API не бывает.
func InternalOnly(next http.Handler) http.Handler {
	token := strings.TrimSpace(os.Getenv("CONTROL_TOKEN"))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !isLoopback(host) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(ControlTokenHeader)), []byte(token)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopback(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.IsLoopback()
}
