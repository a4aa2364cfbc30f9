package memory_test

import (
	"testing"

	"github.com/aretw0/rentsync/pkg/adapters/memory"
	"github.com/aretw0/rentsync/pkg/ports"
)

func TestMemoryCache_Contract(t *testing.T) {
	cache := memory.NewCache()
	ports.RunUserCacheContract(t, cache)
}

func TestMemoryDocuments_Contract(t *testing.T) {
	store := memory.NewDocumentStore()
	ports.RunDocumentStoreContract(t, store)
}
