package store

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	redis "github.com/redis/go-redis/v9"
)

// StreamerSource yields the tracked streamer ids in processing order.
type StreamerSource interface {
	List(ctx context.Context) ([]string, error)
}

// FileStreamerSource reads one streamer id per line.
type FileStreamerSource struct {
	path string
}

func NewFileStreamerSource(path string) *FileStreamerSource {
	return &FileStreamerSource{path: path}
}

// List returns the trimmed, non-blank lines of the file in file order.
// Repeated ids are kept once.
func (s *FileStreamerSource) List(_ context.Context) ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read streamers file %s: %w", s.path, err)
	}
	return parseStreamerLines(data)
}

func parseStreamerLines(data []byte) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		id := strings.TrimSpace(sc.Text())
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan streamers: %w", err)
	}
	return out, nil
}

// RedisStreamerSource reads the tracked streamers from a Redis set.
type RedisStreamerSource struct {
	client *redis.Client
	key    string
}

func NewRedisStreamerSource(client *redis.Client, key string) *RedisStreamerSource {
	return &RedisStreamerSource{client: client, key: key}
}

// List loads the set members. Sets carry no order, so ids are sorted.
func (s *RedisStreamerSource) List(ctx context.Context) ([]string, error) {
	if s.key == "" {
		return nil, fmt.Errorf("streamer set key is not configured")
	}
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS %s: %w", s.key, err)
	}
	res := make([]string, 0, len(members))
	for _, m := range members {
		if id := strings.TrimSpace(m); id != "" {
			res = append(res, id)
		}
	}
	sort.Strings(res)
	return res, nil
}
