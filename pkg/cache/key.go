package cache

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// keyDelimiter joins the cache key segments. It never appears in HTTP
// methods and is safe to anchor invalidation patterns on.
const keyDelimiter = "|"

// DeriveKey computes the deterministic cache key for a request under cfg.
//
// The built-in derivation composes, in order: method, path, a canonical
// JSON object of the selected query parameters, a canonical JSON object of
// the selected body parameters (POST/PUT only), and a canonical JSON object
// of the VaryByHeaders values. Canonical means sorted keys, which
// encoding/json guarantees for map types. Two requests that agree on every
// selected field produce byte-identical keys.
//
// When cfg.KeyGenerator is set it fully replaces the built-in derivation.
func DeriveKey(r *http.Request, cfg Config) string {
	if cfg.KeyGenerator != nil {
		return cfg.KeyGenerator(r)
	}

	parts := []string{
		r.Method,
		r.URL.Path,
		canonicalJSON(selectParams(queryParams(r), cfg)),
		canonicalJSON(selectParams(bodyParams(r), cfg)),
		canonicalJSON(headerParams(r, cfg)),
	}

	return strings.Join(parts, keyDelimiter)
}

// queryParams collects the query string. Repeated names keep their full
// value list so requests differing in any repeated value derive distinct
// keys.
func queryParams(r *http.Request) map[string]any {
	values := r.URL.Query()
	params := make(map[string]any, len(values))
	for name, vals := range values {
		if len(vals) == 1 {
			params[name] = vals[0]
			continue
		}
		params[name] = vals
	}
	return params
}

// bodyParams extracts the JSON body object for POST/PUT requests.
// The body is restored so the downstream handler can read it again.
// Non-JSON or unreadable bodies contribute an empty parameter set.
func bodyParams(r *http.Request) map[string]any {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return nil
	}
	if r.Body == nil {
		return nil
	}

	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var params map[string]any
	if err := json.Unmarshal(body, &params); err != nil {
		return nil
	}
	return params
}

// headerParams collects the VaryByHeaders values.
func headerParams(r *http.Request, cfg Config) map[string]any {
	if len(cfg.VaryByHeaders) == 0 {
		return nil
	}

	params := make(map[string]any, len(cfg.VaryByHeaders))
	for _, name := range cfg.VaryByHeaders {
		params[strings.ToLower(name)] = r.Header.Get(name)
	}
	return params
}

// selectParams applies the KeyParams allow-list and then the IgnoreParams
// deny-list.
func selectParams(params map[string]any, cfg Config) map[string]any {
	if len(params) == 0 {
		return nil
	}

	if len(cfg.KeyParams) > 0 {
		allowed := make(map[string]any, len(cfg.KeyParams))
		for _, name := range cfg.KeyParams {
			if value, ok := params[name]; ok {
				allowed[name] = value
			}
		}
		params = allowed
	}

	for _, name := range cfg.IgnoreParams {
		delete(params, name)
	}

	return params
}

// canonicalJSON marshals a parameter map with deterministic key order.
func canonicalJSON(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}

	data, err := json.Marshal(params)
	if err != nil {
		// Values came from url.Values or a decoded JSON body, both of
		// which marshal cleanly; this path guards custom mutations only.
		return "{}"
	}
	return string(data)
}
