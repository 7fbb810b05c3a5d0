// Package cache keeps raw search page bodies in Redis so that repeated runs
// over the same page range within a short window do not hit the classifieds
// API again.
//
// Each page is one Redis hash (body, page, cached_at) under a key derived
// from the request URL, written together with its expiry in a single
// transaction. Only 200 OK bodies are stored.
//
//	manager := cache.NewManager(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//	key, _ := cache.KeyForURL("https://bama.ir/cad/api/search?pageIndex=3")
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then:
//		_ = manager.Set(ctx, key, cache.NewPageEntry(3, body), 10*time.Minute)
//	}
//
// Purge drops every cached page, e.g. before a forced refresh.
package cache
