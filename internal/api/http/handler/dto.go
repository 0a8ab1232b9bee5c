package handler

import (
	"time"

	"github.com/dtroode/ttldump/internal/model"
)

type item struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	FileName   *string   `json:"fileName"`
	MimeType   *string   `json:"mimeType"`
	ContentURL string    `json:"contentUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type itemResponse struct {
	Item item `json:"item"`
}

type itemsResponse struct {
	Items []item `json:"items"`
}

type decodeRequest struct {
	HashKey string `json:"hashKey"`
	ItemID  string `json:"itemId"`
}

type decodeResponse struct {
	DecodedText string `json:"decodedText"`
	Message     string `json:"message"`
}

type cleanupResponse struct {
	Success      bool `json:"success"`
	DeletedCount int  `json:"deletedCount"`
}

func toItem(d model.Dump) item {
	it := item{
		ID:        d.ID.String(),
		Type:      string(d.Kind),
		Content:   d.Content,
		FileName:  optional(d.FileName),
		MimeType:  optional(d.MimeType),
		CreatedAt: d.CreatedAt,
		ExpiresAt: d.ExpiresAt,
	}
	if d.Kind.IsFile() {
		it.ContentURL = "/api/dump/" + it.ID + "/content"
	}
	return it
}

func toItems(dumps []model.Dump) []item {
	items := make([]item, 0, len(dumps))
	for _, d := range dumps {
		items = append(items, toItem(d))
	}
	return items
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
