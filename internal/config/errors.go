package config

const (
	// Database errors
	ErrInitializeDatabaseFmt = "Failed to initialize database: %v"
	ErrGetChaptersFmt        = "Failed to get chapters: %v"

	// Auth errors
	ErrCreateProviderFmt      = "Failed to create provider: %v"
	ErrAuthHeaderRequired     = "Authorization header required"
	ErrInvalidSignatureFormat = "Invalid signature format"
	ErrInvalidSignature       = "Invalid signature"
	ErrInternalServerError    = "Internal server error"

	// Chapter processing errors
	ErrInitializingChapters = "Error initializing chapters"
	ErrReloadingChapters    = "Error reloading chapters"

	// Challenge errors
	ErrRefreshChallengeFmt = "Failed to refresh challenge"
)
