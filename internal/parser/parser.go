// Package parser fetches remote documents and extracts their text.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/cloo-solutions/policyqa/internal/domain"
	"github.com/cloo-solutions/policyqa/internal/telemetry"
)

// Extractor turns raw document bytes into plain text.
type Extractor func(data []byte) (string, error)

// Archiver keeps a copy of fetched document bytes.
type Archiver interface {
	Archive(ctx context.Context, sourceURL string, body []byte) (string, error)
}

// Parser downloads PDF documents over HTTP and extracts their text
type Parser struct {
	client   *http.Client
	extract  Extractor
	archiver Archiver
}

// Option configures a Parser.
type Option func(*Parser)

// WithHTTPClient replaces the client used for fetching documents.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Parser) {
		if c != nil {
			p.client = c
		}
	}
}

// WithExtractor replaces the PDF text extractor.
func WithExtractor(e Extractor) Option {
	return func(p *Parser) {
		if e != nil {
			p.extract = e
		}
	}
}

// WithArchiver stores each fetched document before extraction.
func WithArchiver(a Archiver) Option {
	return func(p *Parser) {
		p.archiver = a
	}
}

func New(opts ...Option) *Parser {
	p := &Parser{
		client:  http.DefaultClient,
		extract: ExtractPDFText,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsPDFURL reports whether the URL path, ignoring the query, ends in .pdf.
func IsPDFURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

// Parse fetches the document at rawURL and returns its text.
func (p *Parser) Parse(ctx context.Context, rawURL string) (string, error) {
	if !IsPDFURL(rawURL) {
		return "", domain.ErrUnsupportedDocumentType
	}

	ctx, span := telemetry.StartSpan(ctx, "parser.Parse", telemetry.SpanAttributes{
		DocumentURL: rawURL,
		Operation:   "parse",
	})
	defer span.End()

	body, err := p.fetch(ctx, rawURL)
	if err != nil {
		span.SetError(err)
		return "", err
	}

	if p.archiver != nil {
		if key, err := p.archiver.Archive(ctx, rawURL, body); err != nil {
			log.Printf("parser: archive %s failed: %v", rawURL, err)
		} else {
			log.Printf("parser: archived %s as %s", rawURL, key)
		}
	}

	text, err := p.extract(body)
	if err != nil {
		err = domain.ErrDocumentExtract.WithCause(err)
		span.SetError(err)
		return "", err
	}

	return text, nil
}

func (p *Parser) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.ErrInvalidDocumentURL.WithCause(err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.ErrDocumentFetch.WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.ErrDocumentFetch.WithCause(fmt.Errorf("GET %s: unexpected status %d", rawURL, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrDocumentFetch.WithCause(fmt.Errorf("read body: %w", err))
	}
	return body, nil
}

// ExtractPDFText concatenates the plain text of every page in order.
func ExtractPDFText(data []byte) (text string, err error) {
	// The reader panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		buf.WriteString(content)
	}

	return buf.String(), nil
}
