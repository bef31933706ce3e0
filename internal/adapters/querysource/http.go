package querysource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/target/opsdesk/internal/core"
	apperrors "github.com/target/opsdesk/internal/errors"
)

const (
	defaultRowsExpression = "rows"
	maxResponseBytes      = 16 << 20
)

// ErrUnexpectedShape is returned when the rows expression does not select a list of objects.
var ErrUnexpectedShape = errors.New("query response rows are not a list of objects")

// HTTPSourceConfig configures a remote query endpoint.
type HTTPSourceConfig struct {
	Endpoint string
	// RowsExpression is a JMESPath expression selecting the row list from the response body.
	RowsExpression string
	Timeout        time.Duration

	// Client credentials; when TokenURL is empty requests are sent unauthenticated.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// HTTPClient overrides the transport used for both token and query requests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HTTPSource posts query text to a REST endpoint and extracts rows with JMESPath.
type HTTPSource struct {
	endpoint string
	rowsExpr string
	client   *http.Client
	logger   *slog.Logger
}

var _ core.QuerySource = (*HTTPSource)(nil)

type queryRequest struct {
	Query string `json:"query"`
	Args  []any  `json:"args,omitempty"`
}

// NewHTTPSource validates cfg and builds the client.
func NewHTTPSource(cfg HTTPSourceConfig) (*HTTPSource, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("query source endpoint is required")
	}
	expr := strings.TrimSpace(cfg.RowsExpression)
	if expr == "" {
		expr = defaultRowsExpression
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid rows expression %q: %w", expr, err)
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	client := base
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = cc.Client(ctx)
	}
	if cfg.Timeout > 0 {
		withTimeout := *client
		withTimeout.Timeout = cfg.Timeout
		client = &withTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		endpoint: endpoint,
		rowsExpr: expr,
		client:   client,
		logger:   logger.With("component", "http_query_source"),
	}, nil
}

// Query implements core.QuerySource.
func (s *HTTPSource) Query(ctx context.Context, q core.Query) ([]core.Row, error) {
	body, err := json.Marshal(queryRequest{Query: q.Text, Args: q.Args})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("post query: %w", ctxErr)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "query source unavailable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("query endpoint returned %s: %s", resp.Status, snippet(raw))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperrors.Wrap(statusErr, apperrors.ErrCodeUnavailable, "query source unavailable")
		}
		return nil, statusErr
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	selected, err := jmespath.Search(s.rowsExpr, doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate rows expression: %w", err)
	}
	return toRows(selected)
}

func toRows(v any) ([]core.Row, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, ErrUnexpectedShape
	}
	out := make([]core.Row, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, ErrUnexpectedShape
		}
		out = append(out, core.Row(obj))
	}
	return out, nil
}

func snippet(b []byte) string {
	const n = 256
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
