// Package publish fans out weight readings via Redis Pub/Sub, keeping a
// bounded history of recent readings in a Redis list
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fako1024/nciscale/pkg/scale"
	"github.com/redis/go-redis/v9"
)

const (
	defaultChannel = "nciscale:weight"
	defaultHistory = 1000
	dialTimeout    = 2 * time.Second
)

// Options denotes the Redis connection / publishing settings
type Options struct {
	Addr     string
	Password string
	DB       int

	// Channel is the Pub/Sub channel readings are published to. The history
	// list is stored under "<Channel>:history"
	Channel string

	// History limits the number of readings kept in the history list (0
	// disables the history)
	History int
}

// Payload denotes the JSON representation of a published reading
type Payload struct {
	TimeStamp time.Time  `json:"timestamp"`
	Weight    float64    `json:"weight"`
	Unit      scale.Unit `json:"unit"`
	Stable    bool       `json:"stable"`
	AtZero    bool       `json:"at_zero"`
	Net       bool       `json:"net"`
	Faulted   bool       `json:"faulted"`
	Status    string     `json:"status"`
}

// Publisher denotes a Redis publisher of data points
type Publisher struct {
	client     *redis.Client
	channel    string
	historyKey string
	history    int

	logger scale.Logger
}

// New connects to Redis, verifying the connection
func New(ctx context.Context, opts Options, logger scale.Logger) (*Publisher, error) {
	if opts.Channel == "" {
		opts.Channel = defaultChannel
	}
	if opts.History < 0 {
		opts.History = defaultHistory
	}
	if logger == nil {
		logger = &scale.NullLogger{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: dialTimeout,
		MaxRetries:  1,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}
	logger.Infof("connected to Redis at %s, publishing to `%s`", opts.Addr, opts.Channel)

	return &Publisher{
		client:     client,
		channel:    opts.Channel,
		historyKey: HistoryKey(opts.Channel),
		history:    opts.History,
		logger:     logger,
	}, nil
}

// HistoryKey returns the key of the history list belonging to a channel
func HistoryKey(channel string) string {
	return channel + ":history"
}

// NewPayload converts a data point into its published representation
func NewPayload(dp scale.DataPoint) Payload {
	return Payload{
		TimeStamp: dp.TimeStamp,
		Weight:    dp.Weight,
		Unit:      dp.Unit,
		Stable:    dp.Stable,
		AtZero:    dp.Status.AtZero(),
		Net:       dp.Status.NetWeight(),
		Faulted:   dp.Status.Faulted(),
		Status:    dp.Status.String(),
	}
}

// Encode serializes a data point for publishing
func Encode(dp scale.DataPoint) ([]byte, error) {
	data, err := json.Marshal(NewPayload(dp))
	if err != nil {
		return nil, fmt.Errorf("failed to encode data point: %w", err)
	}
	return data, nil
}

// Publish publishes a data point and appends it to the history list
func (p *Publisher) Publish(ctx context.Context, dp scale.DataPoint) error {
	data, err := Encode(dp)
	if err != nil {
		return err
	}

	pipe := p.client.Pipeline()
	pipe.Publish(ctx, p.channel, data)
	if p.history > 0 {
		pipe.LPush(ctx, p.historyKey, data)
		pipe.LTrim(ctx, p.historyKey, 0, int64(p.history-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish data point: %w", err)
	}

	return nil
}

// Handler returns a data handler (see scale.Basic.SetDataHandler) publishing
// every data point, logging failures
func (p *Publisher) Handler(ctx context.Context) func(scale.DataPoint) {
	return func(dp scale.DataPoint) {
		if err := p.Publish(ctx, dp); err != nil {
			p.logger.Warnf("%s", err)
		}
	}
}

// History returns up to n of the most recent data points (newest first)
func (p *Publisher) History(ctx context.Context, n int) ([]Payload, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of history entries requested: %d", n)
	}

	raw, err := p.client.LRange(ctx, p.historyKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve history: %w", err)
	}

	payloads := make([]Payload, 0, len(raw))
	for _, item := range raw {
		var pl Payload
		if err := json.Unmarshal([]byte(item), &pl); err != nil {
			p.logger.Warnf("skipping undecodable history entry: %s", err)
			continue
		}
		payloads = append(payloads, pl)
	}

	return payloads, nil
}

// Close terminates the Redis connection
func (p *Publisher) Close() error {
	return p.client.Close()
}
