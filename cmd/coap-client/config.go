package main

import (
	"fmt"
	"math/bits"
	"reflect"
	"strings"
	"time"

	"github.com/alecthomas/units"
	"github.com/caarlos0/env/v11"
	"github.com/plgd-dev/coap-engine/message/codes"
	"github.com/plgd-dev/coap-engine/net/blockwise"
)

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"console"`
	// File enables a rotated file sink next to stderr.
	File       string `env:"FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"10"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"3"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS" envDefault:"7"`
	Compress   bool   `env:"COMPRESS"`
}

type Config struct {
	Method         string           `env:"METHOD" envDefault:"GET"`
	Timeout        time.Duration    `env:"TIMEOUT" envDefault:"30s"`
	AckTimeout     time.Duration    `env:"ACK_TIMEOUT" envDefault:"2s"`
	MaxRetransmit  uint32           `env:"MAX_RETRANSMIT" envDefault:"3"`
	NStart         int64            `env:"NSTART" envDefault:"1"`
	MaxMessageSize units.Base2Bytes `env:"MAX_MESSAGE_SIZE" envDefault:"64KiB"`
	BlockSize      units.Base2Bytes `env:"BLOCK_SIZE" envDefault:"1KiB"`
	// PSK and PSKIdentity secure coaps:// requests.
	PSK         string    `env:"PSK"`
	PSKIdentity string    `env:"PSK_IDENTITY"`
	Log         LogConfig `envPrefix:"LOG_"`
}

const envPrefix = "COAP_CLIENT_"

var funcMap = map[reflect.Type]env.ParserFunc{
	reflect.TypeOf(units.Base2Bytes(0)): func(v string) (interface{}, error) {
		return units.ParseBase2Bytes(v)
	},
}

// LoadConfig reads the configuration from environ, nil means the process environment.
func LoadConfig(environ map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{
		Prefix:      envPrefix,
		Environment: environ,
		FuncMap:     funcMap,
	})
	if err != nil {
		return Config{}, fmt.Errorf("cannot parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if _, err := c.Code(); err != nil {
		return err
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid max message size %v", c.MaxMessageSize)
	}
	if _, err := c.SZX(); err != nil {
		return err
	}
	return nil
}

// Code maps the method name to its request code.
func (c Config) Code() (codes.Code, error) {
	switch strings.ToUpper(c.Method) {
	case "GET":
		return codes.GET, nil
	case "POST":
		return codes.POST, nil
	case "PUT":
		return codes.PUT, nil
	case "DELETE":
		return codes.DELETE, nil
	}
	return 0, fmt.Errorf("invalid method %q", c.Method)
}

// SZX converts the block size, a power of two from 16 to 1024 bytes.
func (c Config) SZX() (blockwise.SZX, error) {
	size := uint64(c.BlockSize)
	if size < 16 || size > 1024 || bits.OnesCount64(size) != 1 {
		return 0, fmt.Errorf("%w: block size %v", blockwise.ErrInvalidSZX, c.BlockSize)
	}
	return blockwise.SZX(bits.TrailingZeros64(size) - 4), nil
}
