package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

// ValkeyConfig holds the connection settings.
type ValkeyConfig struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// Valkey stores each bucket as a hash under <prefix>:<bucket>.
type Valkey struct {
	inner  valkeylib.Client
	prefix string
}

// OpenValkey connects and pings the server.
func OpenValkey(cfg ValkeyConfig) (*Valkey, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey (timeout: %v): %w", timeout, err)
	}
	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &Valkey{inner: inner, prefix: prefix}, nil
}

func (v *Valkey) key(bucket string) string { return v.prefix + bucket }

func (v *Valkey) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	cmd := v.inner.B().Hget().Key(v.key(bucket)).Field(key).Build()
	data, err := v.inner.Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (v *Valkey) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := validName("bucket", bucket); err != nil {
		return err
	}
	if err := validName("key", key); err != nil {
		return err
	}
	cmd := v.inner.B().Hset().Key(v.key(bucket)).FieldValue().FieldValue(key, string(value)).Build()
	if err := v.inner.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (v *Valkey) Delete(ctx context.Context, bucket, key string) error {
	cmd := v.inner.B().Hdel().Key(v.key(bucket)).Field(key).Build()
	if err := v.inner.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (v *Valkey) All(ctx context.Context, bucket string) (map[string][]byte, error) {
	cmd := v.inner.B().Hgetall().Key(v.key(bucket)).Build()
	m, err := v.inner.Do(ctx, cmd).AsStrMap()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return map[string][]byte{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", bucket, err)
	}
	out := make(map[string][]byte, len(m))
	for k, s := range m {
		out[k] = []byte(s)
	}
	return out, nil
}

func (v *Valkey) ReplaceAll(ctx context.Context, bucket string, items map[string][]byte) error {
	if err := validName("bucket", bucket); err != nil {
		return err
	}
	cmds := valkeylib.Commands{v.inner.B().Del().Key(v.key(bucket)).Build()}
	if len(items) > 0 {
		fv := v.inner.B().Hset().Key(v.key(bucket)).FieldValue()
		for k, val := range items {
			fv = fv.FieldValue(k, string(val))
		}
		cmds = append(cmds, fv.Build())
	}
	for _, resp := range v.inner.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("failed to replace %s: %w", bucket, err)
		}
	}
	return nil
}

func (v *Valkey) Close() error {
	if v.inner != nil {
		v.inner.Close()
	}
	return nil
}
