package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

const (
	fieldRole  = "role"
	fieldToken = "token"
)

var allRoles = []push.Role{push.RoleSender, push.RoleRecipient, push.RoleAdministrator}

// The token scripts touch the user hash and the reverse index together so the
// two can never disagree.

// KEYS[1] user hash, KEYS[2] token key. ARGV[1] id, ARGV[2] token, ARGV[3] prefix.
var setTokenScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
local prev = redis.call('GET', KEYS[2])
if prev and prev ~= ARGV[1] then
	redis.call('HDEL', ARGV[3] .. 'user:' .. prev, 'token')
end
local old = redis.call('HGET', KEYS[1], 'token')
if old and old ~= ARGV[2] then
	redis.call('DEL', ARGV[3] .. 'token:' .. old)
end
redis.call('HSET', KEYS[1], 'token', ARGV[2])
redis.call('SET', KEYS[2], ARGV[1])
return 1
`)

// KEYS[1] user hash. ARGV[1] prefix, ARGV[2] id.
var unsetTokenScript = redis.NewScript(`
local old = redis.call('HGET', KEYS[1], 'token')
if old then
	redis.call('HDEL', KEYS[1], 'token')
	local idx = ARGV[1] .. 'token:' .. old
	if redis.call('GET', idx) == ARGV[2] then
		redis.call('DEL', idx)
	end
end
return 1
`)

// KEYS[1] token key. ARGV[1] prefix, ARGV[2] token.
var pruneTokenScript = redis.NewScript(`
local owner = redis.call('GET', KEYS[1])
if owner then
	local user = ARGV[1] .. 'user:' .. owner
	if redis.call('HGET', user, 'token') == ARGV[2] then
		redis.call('HDEL', user, 'token')
	end
	redis.call('DEL', KEYS[1])
end
return 1
`)

// Directory needs a single-node client: the token scripts derive the previous
// owner's key at run time, so the keys they touch cannot all be declared up
// front and would cross hash slots on Redis Cluster.
type Directory struct {
	rdb    *redis.Client
	prefix string
}

func NewDirectory(rdb *redis.Client, prefix string) *Directory {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Directory{rdb: rdb, prefix: prefix}
}

func (d *Directory) userKey(id string) string   { return d.prefix + "user:" + id }
func (d *Directory) tokenKey(t string) string   { return d.prefix + "token:" + t }
func (d *Directory) roleKey(r push.Role) string { return d.prefix + "role:" + string(r) }

// PutUser writes a user record, moving it between role sets if needed.
func (d *Directory) PutUser(ctx context.Context, u push.User) error {
	_, err := d.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, r := range allRoles {
			p.SRem(ctx, d.roleKey(r), u.ID)
		}
		p.HSet(ctx, d.userKey(u.ID), fieldRole, string(u.Role))
		p.SAdd(ctx, d.roleKey(u.Role), u.ID)
		if u.DeviceToken == "" {
			p.HDel(ctx, d.userKey(u.ID), fieldToken)
			return nil
		}
		p.HSet(ctx, d.userKey(u.ID), fieldToken, u.DeviceToken)
		p.Set(ctx, d.tokenKey(u.DeviceToken), u.ID, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put user failed: %w", err)
	}
	return nil
}

func (d *Directory) GetUser(ctx context.Context, id string) (push.User, error) {
	fields, err := d.rdb.HGetAll(ctx, d.userKey(id)).Result()
	if err != nil {
		return push.User{}, fmt.Errorf("redis get user failed: %w", err)
	}
	if len(fields) == 0 {
		return push.User{}, push.ErrUserNotFound
	}
	return toUser(id, fields), nil
}

func (d *Directory) GetUsers(ctx context.Context, ids []string) ([]push.User, error) {
	return d.fetch(ctx, ids, false)
}

func (d *Directory) UsersWithTokenByRole(ctx context.Context, role push.Role) ([]push.User, error) {
	ids, err := d.rdb.SMembers(ctx, d.roleKey(role)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis role lookup failed: %w", err)
	}
	users, err := d.fetch(ctx, ids, true)
	if err != nil {
		return nil, err
	}
	// The set may lag a role change made through PutUser on another node.
	out := users[:0]
	for _, u := range users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *Directory) SetDeviceToken(ctx context.Context, id, token string) error {
	n, err := setTokenScript.Run(ctx, d.rdb,
		[]string{d.userKey(id), d.tokenKey(token)},
		id, token, d.prefix,
	).Int()
	if err != nil {
		return fmt.Errorf("redis set token failed: %w", err)
	}
	if n == 0 {
		return push.ErrUserNotFound
	}
	return nil
}

func (d *Directory) UnsetDeviceToken(ctx context.Context, id string) error {
	if err := unsetTokenScript.Run(ctx, d.rdb, []string{d.userKey(id)}, d.prefix, id).Err(); err != nil {
		return fmt.Errorf("redis unset token failed: %w", err)
	}
	return nil
}

func (d *Directory) UnsetDeviceTokenEverywhere(ctx context.Context, token string) error {
	if err := pruneTokenScript.Run(ctx, d.rdb, []string{d.tokenKey(token)}, d.prefix, token).Err(); err != nil {
		return fmt.Errorf("redis prune token failed: %w", err)
	}
	return nil
}

// fetch loads many user hashes in one round trip, skipping ids with no record.
func (d *Directory) fetch(ctx context.Context, ids []string, withTokenOnly bool) ([]push.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := d.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, d.userKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis bulk get failed: %w", err)
	}

	users := make([]push.User, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		u := toUser(ids[i], fields)
		if withTokenOnly && u.DeviceToken == "" {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func toUser(id string, fields map[string]string) push.User {
	return push.User{
		ID:          id,
		Role:        push.Role(fields[fieldRole]),
		DeviceToken: fields[fieldToken],
	}
}
