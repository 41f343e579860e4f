package embedded

import (
	"github.com/leafsii/redis-demo/pkg/kv"
)

func init() {
	kv.RegisterBackend(kv.BackendEmbedded, func(cfg kv.Config) (kv.Template, error) {
		return New(cfg)
	})
}

// NewTemplate starts an embedded server with default settings
func NewTemplate() (kv.Template, error) {
	return New(kv.Config{Backend: kv.BackendEmbedded})
}
