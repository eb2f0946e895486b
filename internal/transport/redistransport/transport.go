package redistransport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/hivemind/config"
	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
)

const (
	sessionKeyPrefix    = "session:"
	sessionChanPrefix   = "hivemind:session:"
	membersKeySuffix    = ":members"
	defaultSessionTTL   = 24 * time.Hour
	eventSessionCreated = "session_created"
	eventSessionClosed  = "session_closed"
)

// Conn opens and pings a redis client.
func Conn(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	if pong != "PONG" {
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

// Transport fans session messages out over redis pub/sub and tracks
// membership in a per-session set. It implements core.Transport.
type Transport struct {
	client *redis.Client
	logger *log.Logger
}

func New(client *redis.Client) *Transport {
	return &Transport{
		client: client,
		logger: log.New(log.Writer(), "[TRANSPORT] ", log.LstdFlags),
	}
}

func membersKey(sessionID string) string { return sessionKeyPrefix + sessionID + membersKeySuffix }
func channel(sessionID string) string    { return sessionChanPrefix + sessionID }

func (t *Transport) CreateSession(ctx context.Context, sessionID string, participantIDs []string) error {
	if sessionID == "" {
		return fmt.Errorf("create session: empty session id")
	}
	key := membersKey(sessionID)
	if len(participantIDs) > 0 {
		members := make([]interface{}, len(participantIDs))
		for i, id := range participantIDs {
			members[i] = id
		}
		if err := t.client.SAdd(ctx, key, members...).Err(); err != nil {
			return fmt.Errorf("registering session %s members: %w", sessionID, err)
		}
	}
	if err := t.client.Expire(ctx, key, defaultSessionTTL).Err(); err != nil {
		return fmt.Errorf("setting session %s ttl: %w", sessionID, err)
	}
	return t.publish(ctx, sessionID, core.Message{
		ID:        sessionID,
		Type:      eventSessionCreated,
		Payload:   map[string]interface{}{"participants": participantIDs},
		Timestamp: time.Now().UTC(),
	})
}

func (t *Transport) JoinSession(ctx context.Context, sessionID, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("join session: empty agent id")
	}
	n, err := t.client.Exists(ctx, membersKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("checking session %s: %w", sessionID, err)
	}
	if n == 0 {
		return core.ErrSessionNotFound
	}
	if err := t.client.SAdd(ctx, membersKey(sessionID), agentID).Err(); err != nil {
		return fmt.Errorf("joining session %s: %w", sessionID, err)
	}
	return nil
}

func (t *Transport) Broadcast(ctx context.Context, sessionID string, msg core.Message) error {
	if err := ValidateMessage(msg); err != nil {
		return err
	}
	return t.publish(ctx, sessionID, msg)
}

func (t *Transport) CloseSession(ctx context.Context, sessionID string) error {
	if err := t.publish(ctx, sessionID, core.Message{
		ID:        sessionID,
		Type:      eventSessionClosed,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		t.logger.Printf("session %s: close event failed: %v", sessionID, err)
	}
	if err := t.client.Del(ctx, membersKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("removing session %s members: %w", sessionID, err)
	}
	return nil
}

// Members returns the current participant set of a session.
func (t *Transport) Members(ctx context.Context, sessionID string) ([]string, error) {
	return t.client.SMembers(ctx, membersKey(sessionID)).Result()
}

// Subscribe delivers session messages until the context is cancelled.
// Messages that fail to decode are logged and dropped.
func (t *Transport) Subscribe(ctx context.Context, sessionID string) (<-chan core.Message, error) {
	sub := t.client.Subscribe(ctx, channel(sessionID))
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribing to session %s: %w", sessionID, err)
	}

	out := make(chan core.Message)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub.Channel():
				if !ok {
					return
				}
				var msg core.Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					t.logger.Printf("session %s: dropping undecodable message: %v", sessionID, err)
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *Transport) publish(ctx context.Context, sessionID string, msg core.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message %s: %w", msg.ID, err)
	}
	if err := t.client.Publish(ctx, channel(sessionID), data).Err(); err != nil {
		return fmt.Errorf("publishing to session %s: %w", sessionID, err)
	}
	return nil
}

// ValidateMessage checks the minimal wire envelope before publishing.
func ValidateMessage(msg core.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message id is required")
	}
	if msg.Type == "" {
		return fmt.Errorf("message type is required")
	}
	if msg.Timestamp.IsZero() {
		return fmt.Errorf("message timestamp is required")
	}
	return nil
}
