package catalog

import (
	"net/url"
	"strings"
)

// connParts splits a mongodb:// or mongodb+srv:// URI without resolving
// hosts. Multi-host seed lists are not valid url.URL hosts, so the split is
// done by hand.
type connParts struct {
	scheme   string // including "://"
	userinfo string
	hosts    string
	path     string // leading "/" and database, may be empty
	query    string // without "?"
}

func splitConnectionString(s string) (connParts, bool) {
	var p connParts
	idx := strings.Index(s, "://")
	if idx < 0 {
		return p, false
	}
	p.scheme = s[:idx+3]
	rest := s[idx+3:]

	if q := strings.IndexByte(rest, '?'); q >= 0 {
		p.query = rest[q+1:]
		rest = rest[:q]
	}
	authority := rest
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		authority = rest[:slash]
		p.path = rest[slash:]
	}
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		p.userinfo = authority[:at]
		authority = authority[at+1:]
	}
	p.hosts = authority
	return p, true
}

func (p connParts) String() string {
	var b strings.Builder
	b.WriteString(p.scheme)
	if p.userinfo != "" {
		b.WriteString(p.userinfo)
		b.WriteByte('@')
	}
	b.WriteString(p.hosts)
	b.WriteString(p.path)
	if p.query != "" {
		b.WriteByte('?')
		b.WriteString(p.query)
	}
	return b.String()
}

// extractCredentials removes the userinfo section from the connection string
// and returns the decoded username and password.
func extractCredentials(connStr string) (stripped, username, password string) {
	p, ok := splitConnectionString(connStr)
	if !ok || p.userinfo == "" {
		return connStr, "", ""
	}
	user, pass, _ := strings.Cut(p.userinfo, ":")
	if u, err := url.PathUnescape(user); err == nil {
		user = u
	}
	if pw, err := url.PathUnescape(pass); err == nil {
		pass = pw
	}
	p.userinfo = ""
	return p.String(), user, pass
}

func withCredentials(connStr, username, password string) string {
	p, ok := splitConnectionString(connStr)
	if !ok {
		return connStr
	}
	p.userinfo = escapeUserinfo(username)
	if password != "" {
		p.userinfo += ":" + escapeUserinfo(password)
	}
	return p.String()
}

func escapeUserinfo(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// NormalizeConnectionString drops empty query segments and repeated
// key=value pairs. Keys compare case-insensitively and the first occurrence
// wins. Repeated keys with different values are kept since options such as
// readPreferenceTags may legitimately appear more than once.
func NormalizeConnectionString(connStr string) string {
	p, ok := splitConnectionString(connStr)
	if !ok || p.query == "" {
		return connStr
	}

	seen := make(map[string]bool)
	var kept []string
	for _, segment := range strings.Split(p.query, "&") {
		if segment == "" {
			continue
		}
		key, value, _ := strings.Cut(segment, "=")
		dedupKey := strings.ToLower(key) + "=" + value
		if seen[dedupKey] {
			continue
		}
		seen[dedupKey] = true
		kept = append(kept, segment)
	}
	p.query = strings.Join(kept, "&")
	return p.String()
}
