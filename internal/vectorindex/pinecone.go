// Package vectorindex provides similarity index backends.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cloo-solutions/policyqa/internal/domain"
)

const (
	DefaultPineconeAPIURL = "https://api.pinecone.io"
	upsertBatchSize       = 100
	metadataTextKey       = "text"
	defaultNamespaceKey   = "__default__"
)

// ErrIndexNotReady is returned when a created index never reports ready.
var ErrIndexNotReady = errors.New("pinecone: index did not become ready")

var errHostUnknown = errors.New("pinecone: index host unknown, call EnsureIndex first")

// PineconeConfig holds configuration for the Pinecone backend.
type PineconeConfig struct {
	APIKey    string
	IndexName string
	Dimension int
	// Metric defaults to cosine.
	Metric string
	Cloud  string
	Region string
	// APIURL is the control plane root.
	APIURL       string
	HTTPClient   *http.Client
	ReadyTimeout time.Duration
	PollInterval time.Duration
}

// dataPlane is the part of *pinecone.IndexConnection the index uses. The
// SDK serves it over gRPC, one connection per namespace.
type dataPlane interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	DescribeIndexStats(ctx context.Context) (*pinecone.DescribeIndexStatsResponse, error)
	Close() error
}

// Pinecone is a serverless Pinecone index accessed through the official SDK.
type Pinecone struct {
	cfg     PineconeConfig
	client  *pinecone.Client
	connect func(host, namespace string) (dataPlane, error)

	mu    sync.Mutex
	host  string
	conns map[string]dataPlane
}

func NewPinecone(cfg PineconeConfig) (*Pinecone, error) {
	if cfg.Metric == "" {
		cfg.Metric = string(pinecone.Cosine)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultPineconeAPIURL
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey:     cfg.APIKey,
		Host:       cfg.APIURL,
		RestClient: cfg.HTTPClient,
		SourceTag:  "policyqa",
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone client: %w", err)
	}

	p := &Pinecone{cfg: cfg, client: client, conns: map[string]dataPlane{}}
	p.connect = func(host, namespace string) (dataPlane, error) {
		conn, err := client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	return p, nil
}

// EnsureIndex creates the index when it is not listed and waits until it
// is ready. The data plane host is cached after the first success.
func (p *Pinecone) EnsureIndex(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.host != "" {
		return nil
	}

	indexes, err := p.client.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}

	var found *pinecone.Index
	for _, idx := range indexes {
		if idx != nil && idx.Name == p.cfg.IndexName {
			found = idx
			break
		}
	}

	if found == nil {
		if found, err = p.create(ctx); err != nil {
			return err
		}
	}

	found, err = p.waitReady(ctx, found)
	if err != nil {
		return err
	}

	p.host = found.Host
	return nil
}

func (p *Pinecone) create(ctx context.Context) (*pinecone.Index, error) {
	dimension := int32(p.cfg.Dimension)
	metric := pinecone.IndexMetric(p.cfg.Metric)

	created, err := p.client.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      p.cfg.IndexName,
		Dimension: &dimension,
		Metric:    &metric,
		Cloud:     pinecone.Cloud(p.cfg.Cloud),
		Region:    p.cfg.Region,
	})
	if err == nil {
		return created, nil
	}

	// Another replica may have created it concurrently.
	if existing, describeErr := p.client.DescribeIndex(ctx, p.cfg.IndexName); describeErr == nil {
		return existing, nil
	}
	return nil, fmt.Errorf("create index: %w", err)
}

func (p *Pinecone) waitReady(ctx context.Context, idx *pinecone.Index) (*pinecone.Index, error) {
	deadline := time.Now().Add(p.cfg.ReadyTimeout)
	for !ready(idx) {
		if time.Now().After(deadline) {
			return nil, ErrIndexNotReady
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.cfg.PollInterval):
		}

		described, err := p.client.DescribeIndex(ctx, p.cfg.IndexName)
		if err != nil {
			return nil, fmt.Errorf("describe index: %w", err)
		}
		idx = described
	}
	return idx, nil
}

func ready(idx *pinecone.Index) bool {
	return idx != nil && idx.Status != nil && idx.Status.Ready && idx.Host != ""
}

// conn returns the cached data plane connection for namespace.
func (p *Pinecone) conn(namespace string) (dataPlane, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.host == "" {
		return nil, errHostUnknown
	}
	if c, ok := p.conns[namespace]; ok {
		return c, nil
	}

	c, err := p.connect(p.host, namespace)
	if err != nil {
		return nil, fmt.Errorf("connect to index host: %w", err)
	}
	p.conns[namespace] = c
	return c, nil
}

func (p *Pinecone) Upsert(ctx context.Context, namespace string, vectors []domain.Vector) error {
	c, err := p.conn(namespace)
	if err != nil {
		return err
	}

	for start := 0; start < len(vectors); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(vectors))

		batch := make([]*pinecone.Vector, 0, end-start)
		for _, v := range vectors[start:end] {
			metadata, err := structpb.NewStruct(map[string]any{metadataTextKey: v.Content})
			if err != nil {
				return fmt.Errorf("metadata for %s: %w", v.ID, err)
			}
			values := v.Values
			batch = append(batch, &pinecone.Vector{Id: v.ID, Values: &values, Metadata: metadata})
		}

		if _, err := c.UpsertVectors(ctx, batch); err != nil {
			return fmt.Errorf("upsert batch at %d: %w", start, err)
		}
	}
	return nil
}

func (p *Pinecone) Query(ctx context.Context, namespace string, vector []float32, k int) ([]domain.Clause, error) {
	c, err := p.conn(namespace)
	if err != nil {
		return nil, err
	}

	resp, err := c.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(k),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	clauses := make([]domain.Clause, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		var text string
		if m.Vector.Metadata != nil {
			text = m.Vector.Metadata.GetFields()[metadataTextKey].GetStringValue()
		}
		clauses = append(clauses, domain.Clause{ID: m.Vector.Id, Content: text, Score: m.Score})
	}
	return clauses, nil
}

func (p *Pinecone) Count(ctx context.Context, namespace string) (int, error) {
	c, err := p.conn(namespace)
	if err != nil {
		return 0, err
	}

	stats, err := c.DescribeIndexStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("describe index stats: %w", err)
	}

	if ns, ok := stats.Namespaces[namespace]; ok && ns != nil {
		return int(ns.VectorCount), nil
	}
	if namespace == "" {
		if ns, ok := stats.Namespaces[defaultNamespaceKey]; ok && ns != nil {
			return int(ns.VectorCount), nil
		}
	}
	return 0, nil
}

// Close releases every open data plane connection.
func (p *Pinecone) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for ns, c := range p.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.conns, ns)
	}
	return errors.Join(errs...)
}
