package tool

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tidwall/gjson"

	"github.com/zapagent/zapagent/internal/log"
)

// Auth schemes a RestTool may use.
const (
	AuthNone   = "none"
	AuthBearer = "bearer"
	AuthAPIKey = "api_key"
	AuthBasic  = "basic"
)

const (
	restDefaultTimeout  = 30 * time.Second
	restMaxResponseSize = 1 << 20
)

// RestConfig declares a templated HTTP tool.
//
// URL, Body and header values may contain {placeholder} references resolved
// from call arguments, plus the context variables {_connection},
// {_counterpart} and {_timestamp}.
type RestConfig struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema

	Method  string
	URL     string
	Headers map[string]string
	Body    string

	// AuthScheme is one of none, bearer, api_key, basic.
	AuthScheme string
	// Token is the bearer token or api_key value.
	Token string
	// APIKeyHeader names the header carrying the key (api_key scheme).
	APIKeyHeader string
	// Username and Password serve the basic scheme.
	Username string
	Password string

	// ResponsePath is a gjson expression projecting the reply field the
	// model receives. Empty returns the whole body.
	ResponsePath string

	// BlockPrivateHosts refuses requests to loopback, private and
	// link-local targets, checked again at dial time after DNS
	// resolution. Off by default since many tools call internal APIs.
	BlockPrivateHosts bool

	Timeout time.Duration
}

// Rest executes templated HTTP calls.
type Rest struct {
	cfg    RestConfig
	hc     *http.Client
	guard  *egressGuard
	logger log.Logger
}

// NewRest creates a REST tool.
func NewRest(cfg RestConfig, logger log.Logger) *Rest {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = restDefaultTimeout
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	hc := &http.Client{Timeout: timeout}
	var guard *egressGuard
	if cfg.BlockPrivateHosts {
		guard = newEgressGuard()
		hc.Transport = guard.transport()
	}
	return &Rest{
		cfg:    cfg,
		hc:     hc,
		guard:  guard,
		logger: logger.With("tool", cfg.Name),
	}
}

func (r *Rest) Definition() Definition {
	return Definition{Name: r.cfg.Name, Description: r.cfg.Description, Schema: r.cfg.Schema}
}

func (r *Rest) Invoke(ctx context.Context, call Call, rc RunContext) Result {
	vars := templateVars(call.Args, rc)

	reqURL := expandTemplate(r.cfg.URL, vars, url.QueryEscape)
	if r.guard != nil {
		if err := r.guard.validate(reqURL); err != nil {
			return Failure("blocked request: %v", err)
		}
	}
	body := expandTemplate(r.cfg.Body, vars, nil)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.cfg.Method, reqURL, reader)
	if err != nil {
		return Failure("build request: %v", err)
	}

	for k, v := range r.cfg.Headers {
		req.Header.Set(k, expandTemplate(v, vars, nil))
	}
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.applyAuth(req)

	resp, err := r.hc.Do(req)
	if err != nil {
		return Failure("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, restMaxResponseSize))
	if err != nil {
		return Failure("read response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Failure("endpoint returned status %d", resp.StatusCode)
	}

	if r.cfg.ResponsePath == "" {
		return Success(string(data))
	}
	value := gjson.GetBytes(data, r.cfg.ResponsePath)
	if !value.Exists() {
		return Failure("response path %q not found in reply", r.cfg.ResponsePath)
	}
	return Success(value.String())
}

func (r *Rest) applyAuth(req *http.Request) {
	switch r.cfg.AuthScheme {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	case AuthAPIKey:
		header := r.cfg.APIKeyHeader
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, r.cfg.Token)
	case AuthBasic:
		creds := base64.StdEncoding.EncodeToString([]byte(r.cfg.Username + ":" + r.cfg.Password))
		req.Header.Set("Authorization", "Basic "+creds)
	}
}

// templateVars merges call arguments with the reserved context variables.
// Context variables win on collision; an argument cannot spoof them.
func templateVars(args map[string]any, rc RunContext) map[string]string {
	vars := make(map[string]string, len(args)+3)
	for k, v := range args {
		vars[k] = fmt.Sprintf("%v", v)
	}
	vars["_connection"] = rc.ConnectionID
	vars["_counterpart"] = rc.Counterpart
	vars["_timestamp"] = rc.Timestamp.UTC().Format(time.RFC3339)
	return vars
}

// expandTemplate substitutes {name} references. Unknown references are left
// intact so a misconfigured template shows up verbatim in logs and replies.
// escape, when non-nil, is applied to substituted values (URL contexts).
func expandTemplate(tmpl string, vars map[string]string, escape func(string) string) string {
	if tmpl == "" {
		return ""
	}
	var b strings.Builder
	for {
		start := strings.IndexByte(tmpl, '{')
		if start < 0 {
			b.WriteString(tmpl)
			break
		}
		end := strings.IndexByte(tmpl[start:], '}')
		if end < 0 {
			b.WriteString(tmpl)
			break
		}
		end += start

		b.WriteString(tmpl[:start])
		name := tmpl[start+1 : end]
		if val, ok := vars[name]; ok {
			if escape != nil {
				val = escape(val)
			}
			b.WriteString(val)
		} else {
			b.WriteString(tmpl[start : end+1])
		}
		tmpl = tmpl[end+1:]
	}
	return b.String()
}
