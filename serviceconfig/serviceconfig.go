// Package serviceconfig parses and validates the client-side service
// config: per-method timeouts, retry/hedging policy, load-balancing
// hints, and the shared retry throttle. The raw JSON document is
// validated against an embedded JSON Schema before unmarshaling, the
// same compile-once-validate-many pattern used elsewhere for schema
// validation, with duration-string parsing and method matching
// following the familiar service_config.json conventions.
package serviceconfig

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/internal/grpclog"
)

//go:embed schema.json
var rawSchema string

const schemaResourceID = "corerpc://serviceconfig/schema.json"

func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(rawSchema))
	if err != nil {
		return nil, fmt.Errorf("serviceconfig: unmarshal embedded schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaResourceID, doc); err != nil {
		return nil, fmt.Errorf("serviceconfig: add schema resource: %w", err)
	}
	return c.Compile(schemaResourceID)
}

// RetryPolicy is the per-method retry tuning.
type RetryPolicy struct {
	MaxAttempts          int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	BackoffMultiplier    float64
	RetryableStatusCodes []codes.Code
}

// HedgingPolicy is the per-method hedging tuning.
type HedgingPolicy struct {
	MaxAttempts         int
	HedgingDelay        time.Duration
	NonFatalStatusCodes []codes.Code
}

// MethodConfig is the resolved policy for a single method (or a whole
// service's default, keyed "/service/").
type MethodConfig struct {
	Timeout          *time.Duration
	WaitForReady     *bool
	MaxReqSize       *int
	MaxRespSize      *int
	RetryPolicy      *RetryPolicy
	HedgingPolicy    *HedgingPolicy
}

// RetryThrottle is the shared global failure-budget configuration.
type RetryThrottle struct {
	MaxTokens  int
	TokenRatio float64
}

// ServiceConfig is the fully parsed and validated client-side policy
// document.
type ServiceConfig struct {
	Methods             map[string]MethodConfig
	LoadBalancingPolicy string
	RetryThrottling     *RetryThrottle
}

// Lookup returns the MethodConfig for "/service/method", falling back to
// the service-level default "/service/" and finally to (MethodConfig{},
// false) if neither is configured.
func (sc ServiceConfig) Lookup(service, method string) (MethodConfig, bool) {
	if mc, ok := sc.Methods["/"+service+"/"+method]; ok {
		return mc, true
	}
	if mc, ok := sc.Methods["/"+service+"/"]; ok {
		return mc, true
	}
	return MethodConfig{}, false
}

type jsonName struct {
	Service string `json:"service"`
	Method  string `json:"method"`
}

type jsonRetryPolicy struct {
	MaxAttempts          int           `json:"maxAttempts"`
	InitialBackoff       string        `json:"initialBackoff"`
	MaxBackoff           string        `json:"maxBackoff"`
	BackoffMultiplier    float64       `json:"backoffMultiplier"`
	RetryableStatusCodes []interface{} `json:"retryableStatusCodes"`
}

type jsonHedgingPolicy struct {
	MaxAttempts         int           `json:"maxAttempts"`
	HedgingDelay        string        `json:"hedgingDelay"`
	NonFatalStatusCodes []interface{} `json:"nonFatalStatusCodes"`
}

type jsonMethodConfig struct {
	Name                    []jsonName         `json:"name"`
	Timeout                 *string            `json:"timeout"`
	WaitForReady            *bool              `json:"waitForReady"`
	MaxRequestMessageBytes  *int               `json:"maxRequestMessageBytes"`
	MaxResponseMessageBytes *int               `json:"maxResponseMessageBytes"`
	RetryPolicy             *jsonRetryPolicy   `json:"retryPolicy"`
	HedgingPolicy           *jsonHedgingPolicy `json:"hedgingPolicy"`
}

type jsonRetryThrottling struct {
	MaxTokens  int     `json:"maxTokens"`
	TokenRatio float64 `json:"tokenRatio"`
}

type jsonServiceConfig struct {
	MethodConfig        []jsonMethodConfig       `json:"methodConfig"`
	LoadBalancingConfig []map[string]interface{} `json:"loadBalancingConfig"`
	RetryThrottling     *jsonRetryThrottling      `json:"retryThrottling"`
}

// parseDuration parses a gRPC-style duration string ("10s", "0.25s").
func parseDuration(s string) (time.Duration, error) {
	if !strings.HasSuffix(s, "s") {
		return 0, fmt.Errorf("malformed duration %q: missing trailing 's'", s)
	}
	parts := strings.SplitN(s[:len(s)-1], ".", 2)
	if len(parts) > 2 {
		return 0, fmt.Errorf("malformed duration %q", s)
	}
	var d time.Duration
	hasDigits := false
	if len(parts[0]) > 0 {
		whole, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed duration %q: %w", s, err)
		}
		d = time.Duration(whole) * time.Second
		hasDigits = true
	}
	if len(parts) == 2 && len(parts[1]) > 0 {
		if len(parts[1]) > 9 {
			return 0, fmt.Errorf("malformed duration %q: too many fractional digits", s)
		}
		frac, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed duration %q: %w", s, err)
		}
		for i := 9; i > len(parts[1]); i-- {
			frac *= 10
		}
		d += time.Duration(frac)
		hasDigits = true
	}
	if !hasDigits {
		return 0, fmt.Errorf("malformed duration %q", s)
	}
	return d, nil
}

// parseStatusCode accepts either a canonical name ("UNAVAILABLE") or an
// integer code.
func parseStatusCode(v interface{}) (codes.Code, error) {
	switch t := v.(type) {
	case string:
		c, ok := codes.ParseName(t)
		if !ok {
			return 0, fmt.Errorf("unknown status code name %q", t)
		}
		return c, nil
	case float64:
		return codes.Code(uint32(t)), nil
	default:
		return 0, fmt.Errorf("status code must be a string or integer, got %T", v)
	}
}

func parseStatusCodes(vs []interface{}) ([]codes.Code, error) {
	out := make([]codes.Code, 0, len(vs))
	for _, v := range vs {
		c, err := parseStatusCode(v)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// clampMaxAttempts applies boundary rule: maxAttempts > 5 is
// clamped to 5; maxAttempts <= 1 is rejected.
func clampMaxAttempts(n int) (int, error) {
	if n <= 1 {
		return 0, fmt.Errorf("maxAttempts must be > 1, got %d", n)
	}
	if n > 5 {
		return 5, nil
	}
	return n, nil
}

// Parse validates raw against the embedded JSON Schema, then unmarshals
// and semantically validates it into a ServiceConfig.
func Parse(raw string) (ServiceConfig, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return ServiceConfig{}, fmt.Errorf("serviceconfig: invalid JSON: %w", err)
	}
	schema, err := compileSchema()
	if err != nil {
		return ServiceConfig{}, err
	}
	if err := schema.Validate(doc); err != nil {
		return ServiceConfig{}, fmt.Errorf("serviceconfig: schema validation failed: %w", err)
	}

	var jsc jsonServiceConfig
	if err := json.Unmarshal([]byte(raw), &jsc); err != nil {
		return ServiceConfig{}, fmt.Errorf("serviceconfig: unmarshal: %w", err)
	}

	sc := ServiceConfig{Methods: make(map[string]MethodConfig)}

	if jsc.RetryThrottling != nil {
		if jsc.RetryThrottling.MaxTokens <= 0 {
			return ServiceConfig{}, fmt.Errorf("serviceconfig: retryThrottling.maxTokens must be > 0")
		}
		if jsc.RetryThrottling.TokenRatio <= 0 {
			return ServiceConfig{}, fmt.Errorf("serviceconfig: retryThrottling.tokenRatio must be > 0")
		}
		sc.RetryThrottling = &RetryThrottle{
			MaxTokens:  jsc.RetryThrottling.MaxTokens,
			TokenRatio: jsc.RetryThrottling.TokenRatio,
		}
	}

	for _, lb := range jsc.LoadBalancingConfig {
		for name := range lb {
			sc.LoadBalancingPolicy = name
			break
		}
		if sc.LoadBalancingPolicy != "" {
			break
		}
	}

	for _, jm := range jsc.MethodConfig {
		mc := MethodConfig{
			WaitForReady: jm.WaitForReady,
			MaxReqSize:   jm.MaxRequestMessageBytes,
			MaxRespSize:  jm.MaxResponseMessageBytes,
		}
		if jm.Timeout != nil {
			d, err := parseDuration(*jm.Timeout)
			if err != nil {
				return ServiceConfig{}, fmt.Errorf("serviceconfig: %w", err)
			}
			mc.Timeout = &d
		}
		if jm.RetryPolicy != nil {
			rp := jm.RetryPolicy
			if rp.InitialBackoff == "" || rp.MaxBackoff == "" {
				return ServiceConfig{}, fmt.Errorf("serviceconfig: retryPolicy requires initialBackoff and maxBackoff")
			}
			initial, err := parseDuration(rp.InitialBackoff)
			if err != nil {
				return ServiceConfig{}, fmt.Errorf("serviceconfig: %w", err)
			}
			max, err := parseDuration(rp.MaxBackoff)
			if err != nil {
				return ServiceConfig{}, fmt.Errorf("serviceconfig: %w", err)
			}
			if initial <= 0 {
				return ServiceConfig{}, fmt.Errorf("serviceconfig: retryPolicy.initialBackoff must be > 0")
			}
			if max <= 0 {
				return ServiceConfig{}, fmt.Errorf("serviceconfig: retryPolicy.maxBackoff must be > 0")
			}
			if rp.BackoffMultiplier <= 0 {
				return ServiceConfig{}, fmt.Errorf("serviceconfig: retryPolicy.backoffMultiplier must be > 0")
			}
			if len(rp.RetryableStatusCodes) == 0 {
				return ServiceConfig{}, fmt.Errorf("serviceconfig: retryPolicy.retryableStatusCodes must be non-empty")
			}
			statusCodes, err := parseStatusCodes(rp.RetryableStatusCodes)
			if err != nil {
				return ServiceConfig{}, fmt.Errorf("serviceconfig: %w", err)
			}
			maxAttempts, err := clampMaxAttempts(rp.MaxAttempts)
			if err != nil {
				return ServiceConfig{}, fmt.Errorf("serviceconfig: retryPolicy.%w", err)
			}
			mc.RetryPolicy = &RetryPolicy{
				MaxAttempts:          maxAttempts,
				InitialBackoff:       initial,
				MaxBackoff:           max,
				BackoffMultiplier:    rp.BackoffMultiplier,
				RetryableStatusCodes: statusCodes,
			}
		}
		if jm.HedgingPolicy != nil {
			hp := jm.HedgingPolicy
			var delay time.Duration
			if hp.HedgingDelay != "" {
				d, err := parseDuration(hp.HedgingDelay)
				if err != nil {
					return ServiceConfig{}, fmt.Errorf("serviceconfig: %w", err)
				}
				delay = d
			}
			statusCodes, err := parseStatusCodes(hp.NonFatalStatusCodes)
			if err != nil {
				return ServiceConfig{}, fmt.Errorf("serviceconfig: %w", err)
			}
			maxAttempts, err := clampMaxAttempts(hp.MaxAttempts)
			if err != nil {
				return ServiceConfig{}, fmt.Errorf("serviceconfig: hedgingPolicy.%w", err)
			}
			mc.HedgingPolicy = &HedgingPolicy{
				MaxAttempts:         maxAttempts,
				HedgingDelay:        delay,
				NonFatalStatusCodes: statusCodes,
			}
		}

		for _, n := range jm.Name {
			if n.Service == "" {
				continue
			}
			path := "/" + n.Service + "/" + n.Method
			if n.Method == "" {
				path = "/" + n.Service + "/"
			}
			sc.Methods[path] = mc
		}
	}

	grpclog.Infof("serviceconfig: parsed %d method config entries", len(sc.Methods))
	return sc, nil
}
