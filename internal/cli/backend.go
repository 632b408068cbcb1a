package cli

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/config"
	"github.com/roach88/msggate/internal/metrics"
	"github.com/roach88/msggate/internal/redisstore"
	"github.com/roach88/msggate/internal/store"
	"github.com/roach88/msggate/internal/wire"
)

// Backend is a durable store the CLI can both admit through and inspect.
type Backend interface {
	admission.Store
	store.AuditSource
	Record(ctx context.Context, chain wire.ChainID, seq wire.SequenceID) (admission.AdmissionRecord, error)
	Close() error
}

// openBackend opens Redis when an address is configured and the SQLite
// database otherwise.
func (o *RootOptions) openBackend(ctx context.Context, f *OutputFormatter) (Backend, error) {
	if o.RedisAddr != "" {
		f.VerboseLog("Using Redis at %s", o.RedisAddr)
		s, err := redisstore.Dial(ctx, o.RedisAddr)
		if err != nil {
			return nil, f.Fail(ExitCommandError, ErrCodeBackend, err)
		}
		return s, nil
	}
	if o.DB == "" {
		return nil, f.Fail(ExitCommandError, ErrCodeInvalidArg, errors.New("no database: pass --db or --redis"))
	}
	f.VerboseLog("Using SQLite database %s", o.DB)
	s, err := store.Open(o.DB)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeBackend, err)
	}
	return s, nil
}

// loadGateway reads the gateway file and applies the environment override.
func (o *RootOptions) loadGateway(f *OutputFormatter) (config.Gateway, error) {
	if o.ConfigPath == "" {
		return config.Gateway{}, f.Fail(ExitCommandError, ErrCodeInvalidArg, errors.New("no gateway configuration: pass --config"))
	}
	g, err := config.LoadFile(o.ConfigPath)
	if err != nil {
		return config.Gateway{}, f.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	g, err = config.Settings{Environment: o.Environment}.Apply(g)
	if err != nil {
		return config.Gateway{}, f.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	f.VerboseLog("Loaded gateway %q (environment %q)", g.GatewayRef, g.Environment)
	return g, nil
}

// newPolicy builds the signature policy a gateway describes.
func (o *RootOptions) newPolicy(g config.Gateway) (*admission.Policy, error) {
	cfg, err := g.PolicyConfig()
	if err != nil {
		return nil, err
	}
	return admission.NewPolicy(cfg, admission.Ed25519Verifier{}, o.logger())
}

// flushMetrics writes collector to the metrics file, if one is configured.
func (o *RootOptions) flushMetrics(f *OutputFormatter, collector *metrics.Collector) {
	if o.MetricsFile == "" {
		return
	}
	if err := collector.WriteTextfile(o.MetricsFile); err != nil {
		o.logger().Warn("writing metrics textfile failed", zap.String("path", o.MetricsFile), zap.Error(err))
		return
	}
	f.VerboseLog("Wrote metrics to %s", o.MetricsFile)
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, store.ErrRecordNotFound) || errors.Is(err, redisstore.ErrRecordNotFound)
}

// eventSink logs every emitted event and, with --verbose, echoes it to
// stderr as canonical JSON.
func (o *RootOptions) eventSink(f *OutputFormatter) admission.EventSink {
	sinks := admission.MultiSink{admission.LogSink{Logger: o.logger()}}
	if f.Verbose {
		sinks = append(sinks, verboseSink{f: f})
	}
	return sinks
}

type verboseSink struct {
	f *OutputFormatter
}

func (s verboseSink) Emit(_ context.Context, ev admission.Event) {
	payload, err := wire.MarshalCanonical(ev.Payload())
	if err != nil {
		s.f.VerboseLog("Event %s", ev.Kind())
		return
	}
	s.f.VerboseLog("Event %s %s", ev.Kind(), payload)
}
