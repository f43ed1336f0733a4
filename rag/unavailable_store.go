package rag

import (
	"context"

	"github.com/BaSui01/supportrag/types"
)

// UnavailableStore 是未配置或连接失败时的知识库变体。
// 检索返回空的回退结果与 PROVIDER_UNAVAILABLE，管理操作直接失败。
type UnavailableStore struct {
	Reason string
}

func (u UnavailableStore) err() error {
	return types.NewProviderUnavailable("mongodb", u.Reason)
}

func (u UnavailableStore) VectorSearch(context.Context, []float64, SearchOptions) (*SearchResult, error) {
	return &SearchResult{Fallback: true, Error: u.Reason}, u.err()
}

func (u UnavailableStore) TextSearch(context.Context, string, SearchOptions) (*SearchResult, error) {
	return &SearchResult{Fallback: true, Error: u.Reason}, u.err()
}

func (u UnavailableStore) Insert(context.Context, Document) (Document, error) {
	return Document{}, u.err()
}

func (u UnavailableStore) InsertMany(context.Context, []Document) (int, error) {
	return 0, u.err()
}

func (u UnavailableStore) Get(context.Context, string) (*Document, error) {
	return nil, u.err()
}

func (u UnavailableStore) Update(context.Context, string, DocumentUpdate) error {
	return u.err()
}

func (u UnavailableStore) Delete(context.Context, string) error {
	return u.err()
}

// Categories 不可用时返回空列表
func (u UnavailableStore) Categories(context.Context) ([]string, error) {
	return []string{}, nil
}

func (u UnavailableStore) Stats(context.Context) (*StoreStats, error) {
	return &StoreStats{Backend: "unavailable", Categories: []string{}}, nil
}

func (u UnavailableStore) Available() bool             { return false }
func (u UnavailableStore) Ping(context.Context) error  { return u.err() }
func (u UnavailableStore) Close(context.Context) error { return nil }
