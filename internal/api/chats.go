package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// ChatHistory fetches the most recent messages of a chat. A limit <= 0 uses
// the server default.
func (c *Client) ChatHistory(ctx context.Context, chatID int64, limit int) ([]ChatMessage, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var msgs []ChatMessage
	path := "/chats/" + strconv.FormatInt(chatID, 10) + "/messages"
	if err := c.get(ctx, path, query, &msgs); err != nil {
		return nil, fmt.Errorf("get chat %d history: %w", chatID, err)
	}
	return msgs, nil
}
