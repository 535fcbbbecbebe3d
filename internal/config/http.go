package config

const (
	HCType        = "Content-Type"
	HETag         = "ETag"
	HCacheControl = "Cache-Control"
	HHxRedirect   = "Hx-Redirect"

	CTypeJSON     = "application/json"
	CTypeHTML     = "text/html"
	CTypeEpub     = "application/epub+zip"
	CTypeMarkdown = "text/markdown"
	CTypeZip      = "application/zip"
)

const (
	HTTPErrMethodNotAllowed = "Method not allowed"
)

const (
	CookieAuthToken = "auth_token"
)
