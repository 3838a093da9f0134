package usecase

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rbroggi/recyclo/internal/core/model"
)

const defaultViewCacheSize = 1024

// viewCache keeps the last successfully read views so reads can degrade when the store is down.
type viewCache struct {
	conversationLists *lru.Cache[string, []model.Conversation]
	conversations     *lru.Cache[string, model.Conversation]
	messages          *lru.Cache[string, []model.Message]
}

func newViewCache(size int) *viewCache {
	if size <= 0 {
		size = defaultViewCacheSize
	}
	// lru.New only fails for a non-positive size.
	lists, _ := lru.New[string, []model.Conversation](size)
	convs, _ := lru.New[string, model.Conversation](size)
	msgs, _ := lru.New[string, []model.Message](size)
	return &viewCache{conversationLists: lists, conversations: convs, messages: msgs}
}
