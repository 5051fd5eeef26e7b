package kv

import (
	"context"
	"time"

	"github.com/osa030/dp1feed/internal/infra/metrics"
)

// Instrumented wraps a Store and records Prometheus metrics per operation.
type Instrumented struct {
	next      Store
	namespace string
}

// Instrument wraps s for namespace.
func Instrument(s Store, namespace string) *Instrumented {
	return &Instrumented{next: s, namespace: namespace}
}

// InstrumentNamespaces wraps every store of ns.
func InstrumentNamespaces(ns *Namespaces) *Namespaces {
	return &Namespaces{
		Playlists:      Instrument(ns.Playlists, NamespacePlaylists),
		PlaylistGroups: Instrument(ns.PlaylistGroups, NamespacePlaylistGroups),
		PlaylistItems:  Instrument(ns.PlaylistItems, NamespacePlaylistItems),
	}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.KVOpsTotal.WithLabelValues(s.namespace, op, status).Inc()
	metrics.KVOpDuration.WithLabelValues(s.namespace, op).Observe(time.Since(start).Seconds())
}

func (s *Instrumented) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	v, ok, err := s.next.Get(ctx, key)
	s.observe("get", start, err)
	return v, ok, err
}

func (s *Instrumented) Put(ctx context.Context, key, value string) error {
	start := time.Now()
	err := s.next.Put(ctx, key, value)
	s.observe("put", start, err)
	return err
}

func (s *Instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.next.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}

func (s *Instrumented) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	start := time.Now()
	res, err := s.next.List(ctx, opts)
	s.observe("list", start, err)
	return res, err
}
