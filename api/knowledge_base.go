package api

import (
	"context"
	"net/http"
	"net/url"
)

type KnowledgeBase struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	DocumentCount int    `json:"document_count"`
	CreatedAt     string `json:"created_at,omitempty"`
}

type KnowledgeBaseInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type KnowledgeBaseList struct {
	Data       []KnowledgeBase `json:"data"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Document is a source ingested into a knowledge base.
type Document struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	SourceURL string `json:"source_url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// DocumentInput adds either inline text or a URL to crawl.
type DocumentInput struct {
	Name      string `json:"name"`
	Content   string `json:"content,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
}

// KnowledgeBasesService manages retrieval sources attached to agents.
type KnowledgeBasesService struct {
	client *Client
}

func (s *KnowledgeBasesService) List(ctx context.Context, params ListParams) (*KnowledgeBaseList, error) {
	var out KnowledgeBaseList
	if err := s.client.do(ctx, request{method: http.MethodGet, path: "/knowledge-bases", query: params.values()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *KnowledgeBasesService) Get(ctx context.Context, id string) (*KnowledgeBase, error) {
	var out KnowledgeBase
	if err := s.client.do(ctx, request{method: http.MethodGet, path: "/knowledge-bases/" + url.PathEscape(id), metricPath: "/knowledge-bases/{id}"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *KnowledgeBasesService) Create(ctx context.Context, in KnowledgeBaseInput) (*KnowledgeBase, error) {
	var out KnowledgeBase
	if err := s.client.do(ctx, request{method: http.MethodPost, path: "/knowledge-bases", body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *KnowledgeBasesService) Delete(ctx context.Context, id string) error {
	return s.client.do(ctx, request{method: http.MethodDelete, path: "/knowledge-bases/" + url.PathEscape(id), metricPath: "/knowledge-bases/{id}"}, nil)
}

func (s *KnowledgeBasesService) AddDocument(ctx context.Context, kbID string, in DocumentInput) (*Document, error) {
	var out Document
	err := s.client.do(ctx, request{
		method:     http.MethodPost,
		path:       "/knowledge-bases/" + url.PathEscape(kbID) + "/documents",
		body:       in,
		metricPath: "/knowledge-bases/{id}/documents",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *KnowledgeBasesService) DeleteDocument(ctx context.Context, kbID, docID string) error {
	return s.client.do(ctx, request{
		method:     http.MethodDelete,
		path:       "/knowledge-bases/" + url.PathEscape(kbID) + "/documents/" + url.PathEscape(docID),
		metricPath: "/knowledge-bases/{id}/documents/{doc_id}",
	}, nil)
}
