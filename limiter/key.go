package limiter

import (
	"encoding/hex"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/crypto/blake2b"
)

// DefaultKeyPrefix storage key prefix shared with existing deployments
const DefaultKeyPrefix = "safety_chat:rate_limiter"

// 超过该长度的 key 用 blake2b 摘要替代身份部分
const maxStorageKeyLength = 200

// Key identifies one independent quota
type Key struct {
	UniqueID   string `json:"unique_id"`
	UserID     string `json:"user_id"`
	ActionType string `json:"action_type"`
}

// Validate all three parts are required
func (k Key) Validate() error {
	return validation.ValidateStruct(&k,
		validation.Field(&k.UniqueID, validation.Required),
		validation.Field(&k.UserID, validation.Required),
		validation.Field(&k.ActionType, validation.Required),
	)
}

func (k Key) String() string {
	return k.UniqueID + ":" + k.UserID + ":" + k.ActionType
}

// keyspace builds storage keys under one prefix
type keyspace struct {
	prefix string
}

// state <prefix>:state:<algorithm>:<user_id>:<action_type>:<unique_id>
func (s keyspace) state(algo AlgorithmType, k Key) string {
	return s.compose("state:"+string(algo), k.UserID, k.ActionType, k.UniqueID)
}

// config <prefix>:config:<unique_id>:<user_id>:<action_type>
func (s keyspace) config(k Key) string {
	return s.compose("config", k.UniqueID, k.UserID, k.ActionType)
}

// actions <prefix>:actions:<unique_id>:<user_id>
func (s keyspace) actions(uniqueID, userID string) string {
	return s.compose("actions", uniqueID, userID)
}

// compose escapes every part, so ':' inside an id cannot shift the boundaries
func (s keyspace) compose(kind string, parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.QueryEscape(p)
	}
	identity := strings.Join(escaped, ":")
	key := s.prefix + ":" + kind + ":" + identity
	if len(key) <= maxStorageKeyLength {
		return key
	}
	sum := blake2b.Sum256([]byte(identity))
	return s.prefix + ":" + kind + ":" + hex.EncodeToString(sum[:])
}
