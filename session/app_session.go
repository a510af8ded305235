package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

type AppSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAppSessionStore(rdb *redis.Client, ttl time.Duration) *AppSessionStore {
	return &AppSessionStore{rdb: rdb, ttl: ttl}
}

type AppSession struct {
	UserID    string `json:"uid"`
	CSRF      string `json:"csrf"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string `json:"kind"` // success / error / info
	Message string `json:"msg"`
}

func key(id string) string         { return fmt.Sprintf("vo:sess:%s", id) }
func flashKey(id string) string    { return fmt.Sprintf("vo:flash:%s", id) }
func userSetKey(uid string) string { return fmt.Sprintf("vo:user_sessions:%s", uid) }
func seenKey(uid string) string    { return fmt.Sprintf("vo:lastseen:%s", uid) }

func NewToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func (s *AppSessionStore) TTL() time.Duration { return s.ttl }

func (s *AppSessionStore) Create(ctx context.Context, id, userID string) (*AppSession, error) {
	now := time.Now()
	as := &AppSession{
		UserID:    userID,
		CSRF:      NewToken(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}
	b, err := sonic.Marshal(as)
	if err != nil {
		return nil, err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key(id), b, s.ttl)
	pipe.SAdd(ctx, userSetKey(userID), id)
	pipe.Expire(ctx, userSetKey(userID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return as, nil
}

func (s *AppSessionStore) Get(ctx context.Context, id string) (*AppSession, error) {
	b, err := s.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var as AppSession
	if err := sonic.Unmarshal(b, &as); err != nil {
		return nil, err
	}
	return &as, nil
}

func (s *AppSessionStore) Delete(ctx context.Context, id string) error {
	as, _ := s.Get(ctx, id) // 忽略失败
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key(id), flashKey(id))
	if as != nil {
		pipe.SRem(ctx, userSetKey(as.UserID), id)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RevokeAllForUser 删除/停用用户时，撤销该用户的所有会话
func (s *AppSessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	ids, err := s.rdb.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	for _, sid := range ids {
		pipe.Del(ctx, key(sid), flashKey(sid))
	}
	pipe.Del(ctx, userSetKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *AppSessionStore) PushFlash(ctx context.Context, id string, f Flash) error {
	b, err := sonic.Marshal(f)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, flashKey(id), b)
	pipe.Expire(ctx, flashKey(id), 10*time.Minute)
	_, err = pipe.Exec(ctx)
	return err
}

// PopFlashes returns and clears the queued messages.
func (s *AppSessionStore) PopFlashes(ctx context.Context, id string) ([]Flash, error) {
	pipe := s.rdb.TxPipeline()
	rng := pipe.LRange(ctx, flashKey(id), 0, -1)
	pipe.Del(ctx, flashKey(id))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}
	var out []Flash
	for _, raw := range rng.Val() {
		var f Flash
		if err := sonic.UnmarshalString(raw, &f); err == nil {
			out = append(out, f)
		}
	}
	return out, nil
}

// MarkSeen reports true at most once per window for a user.
func (s *AppSessionStore) MarkSeen(ctx context.Context, userID string, window time.Duration) bool {
	ok, _ := s.rdb.SetNX(ctx, seenKey(userID), "1", window).Result()
	return ok
}
