// Package memory is an in-process push.Directory used for local runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

type Directory struct {
	mu    sync.RWMutex
	users map[string]push.User
}

func NewDirectory(users ...push.User) *Directory {
	d := &Directory{users: make(map[string]push.User, len(users))}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

// Put inserts or replaces a user record as-is.
func (d *Directory) Put(u push.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *Directory) GetUser(_ context.Context, id string) (push.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return push.User{}, push.ErrUserNotFound
	}
	return u, nil
}

func (d *Directory) GetUsers(_ context.Context, ids []string) ([]push.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]push.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *Directory) UsersWithTokenByRole(_ context.Context, role push.Role) ([]push.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []push.User
	for _, u := range d.users {
		if u.Role == role && u.DeviceToken != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *Directory) SetDeviceToken(_ context.Context, id, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return push.ErrUserNotFound
	}
	for otherID, other := range d.users {
		if otherID != id && other.DeviceToken == token {
			other.DeviceToken = ""
			d.users[otherID] = other
		}
	}
	u.DeviceToken = token
	d.users[id] = u
	return nil
}

func (d *Directory) UnsetDeviceToken(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[id]; ok {
		u.DeviceToken = ""
		d.users[id] = u
	}
	return nil
}

func (d *Directory) UnsetDeviceTokenEverywhere(_ context.Context, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, u := range d.users {
		if u.DeviceToken == token {
			u.DeviceToken = ""
			d.users[id] = u
		}
	}
	return nil
}
