package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pion/dtls/v2"
	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/status"
	"github.com/plgd-dev/coap-engine/net/blockwise"
	"github.com/plgd-dev/coap-engine/options"
	"github.com/plgd-dev/coap-engine/pkg/metrics"
	"github.com/plgd-dev/coap-engine/udp"
	"github.com/plgd-dev/coap-engine/udp/client"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	method := flag.String("method", "", "request method, overrides "+envPrefix+"METHOD")
	payload := flag.String("payload", "", "file sent as the request body, - reads stdin")
	contentFormat := flag.Int("content-format", -1, "content format of the request body")
	envFile := flag.String("env", ".env", "file with environment variables")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] coap://host[:port]/path\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "cannot load %v: %v\n", *envFile, err)
		os.Exit(1)
	}
	cfg, err := LoadConfig(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *method != "" {
		cfg.Method = *method
		if err = cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	logger, err := NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	r := request{
		uri:           flag.Arg(0),
		payload:       *payload,
		contentFormat: *contentFormat,
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.do(ctx, cfg, logger, os.Stdout)
	})
	if err = g.Wait(); err != nil {
		if s, ok := status.FromError(err); ok && s.Message() != nil {
			fmt.Fprintln(os.Stdout, s.Code())
			fmt.Fprintln(os.Stdout, FormatPayload(s.Message(), s.Message().Payload))
		}
		logger.Error("request failed", zap.String("uri", r.uri), zap.Error(err))
		os.Exit(1)
	}
}

type request struct {
	uri           string
	payload       string
	contentFormat int
}

func (r request) dial(ctx context.Context, cfg Config, opts []udp.Option) (*client.Conn, error) {
	if !strings.HasPrefix(r.uri, "coaps://") {
		return udp.Dial(ctx, r.uri, opts...)
	}
	if cfg.PSK == "" {
		return nil, errors.New("coaps requires " + envPrefix + "PSK")
	}
	return udp.DialDTLS(ctx, r.uri, &dtls.Config{
		PSK: func([]byte) ([]byte, error) {
			return []byte(cfg.PSK), nil
		},
		PSKIdentityHint: []byte(cfg.PSKIdentity),
		CipherSuites:    []dtls.CipherSuiteID{dtls.TLS_PSK_WITH_AES_128_CCM_8},
	}, opts...)
}

func (r request) message(cfg Config) (*message.Message, error) {
	u, err := url.Parse(r.uri)
	if err != nil {
		return nil, err
	}
	code, err := cfg.Code()
	if err != nil {
		return nil, err
	}
	req := &message.Message{Type: message.Confirmable, Code: code}
	if req.Options, err = req.Options.SetPath(u.Path); err != nil {
		return nil, fmt.Errorf("invalid path %v: %w", u.Path, err)
	}
	if u.RawQuery != "" {
		for _, q := range strings.Split(u.RawQuery, "&") {
			req.Options = req.Options.AddQuery(q)
		}
	}
	if r.contentFormat >= 0 {
		req.Options = req.Options.SetContentFormat(message.MediaType(r.contentFormat))
	}
	return req, nil
}

func (r request) body() (io.ReadCloser, error) {
	switch r.payload {
	case "":
		return nil, nil
	case "-":
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(r.payload)
}

// do sends the request, the body is transferred with Block1 and the response
// body is fetched with Block2.
func (r request) do(ctx context.Context, cfg Config, logger *zap.Logger, out io.Writer) error {
	reg := prometheus.NewRegistry()
	szx, err := cfg.SZX()
	if err != nil {
		return err
	}
	cc, err := r.dial(ctx, cfg, []udp.Option{
		options.WithLogger(logger),
		options.WithMaxMessageSize(int(cfg.MaxMessageSize)),
		options.WithTransmission(cfg.NStart, cfg.AckTimeout, cfg.MaxRetransmit),
		options.WithMetrics(metrics.New(reg, prometheus.Labels{"uri": r.uri})),
	})
	if err != nil {
		return err
	}
	defer func() {
		if errC := cc.Close(); errC != nil {
			logger.Debug("cannot close connection", zap.Error(errC))
		}
		logMetrics(logger, reg)
	}()

	req, err := r.message(cfg)
	if err != nil {
		return err
	}
	s, err := blockwise.NewStream(ctx, cc, req, options.WithBlockwiseSZX(szx), options.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		_ = s.Close()
	}()

	body, err := r.body()
	if err != nil {
		return err
	}
	if body != nil {
		_, err = io.Copy(s, body)
		_ = body.Close()
		if err != nil {
			return fmt.Errorf("cannot send body: %w", err)
		}
	}
	data, err := s.ReadAll()
	if err != nil {
		return err
	}
	resp := s.Response()
	fmt.Fprintln(out, resp.Code)
	if len(data) > 0 {
		fmt.Fprintln(out, FormatPayload(resp, data))
	}
	return nil
}

func logMetrics(logger *zap.Logger, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		return
	}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			v := m.GetCounter().GetValue()
			if m.GetGauge() != nil {
				v = m.GetGauge().GetValue()
			}
			logger.Debug("metric", zap.String("name", f.GetName()), zap.Float64("value", v))
		}
	}
}
