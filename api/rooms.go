package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ciesa/portal-client/model"
)

func (c *Client) Rooms(ctx context.Context) ([]model.Room, error) {
	var out struct {
		Rooms []model.Room `json:"rooms"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/rooms", nil, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

func (c *Client) CreateRoom(ctx context.Context, name, roomType, departmentName string) (*model.Room, error) {
	body := map[string]string{"name": name, "type": roomType}
	if departmentName != "" {
		body["department_name"] = departmentName
	}
	var out struct {
		Room model.Room `json:"room"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/rooms", body, &out); err != nil {
		return nil, err
	}
	return &out.Room, nil
}

func (c *Client) DeleteRoom(ctx context.Context, roomID int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/rooms/"+strconv.FormatInt(roomID, 10), nil, nil)
}
