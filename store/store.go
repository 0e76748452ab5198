package store

// Store is durable client-side state: tokens, cached profiles, and the
// session identifier, each under a fixed key.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
}
