package cache

// RenderedContent represents cached rendered markdown with HTML and extra data.
type RenderedContent struct {
	HTML  []byte
	Extra interface{}
}

// RenderCache caches rendered markdown keyed by content hash. It is an
// explicitly constructed instance, not a package-level singleton, so each
// server (and each test) owns its own cache.
type RenderCache struct {
	inner *Cache[string, *RenderedContent]
}

func NewRenderCache() *RenderCache {
	return &RenderCache{
		inner: NewCache[string, *RenderedContent](),
	}
}

func (r *RenderCache) Get(contentHash string) (*RenderedContent, bool) {
	return r.inner.Get(contentHash)
}

func (r *RenderCache) Set(contentHash string, html []byte, extra interface{}) {
	r.inner.Set(contentHash, &RenderedContent{
		HTML:  html,
		Extra: extra,
	})
}

func (r *RenderCache) Clear() {
	r.inner.Clear()
}
