// Package metadata implements the ordered, case-insensitive multi-map of
// header strings and binary values corerpc uses for request/response
// headers, trailers, and error metadata.
package metadata

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// binHdrSuffix marks a key as carrying opaque bytes rather than text; its
// values are not interpreted by this package, only transports base64-code
// them on the wire.
const binHdrSuffix = "-bin"

// MD is an ordered, case-insensitive multi-map from header key to the
// ordered list of values set under that key. Keys are stored lower-cased;
// MD preserves insertion order across distinct keys and preserves
// duplicate values for the same key in the order they were added.
type MD struct {
	keys   []string // lower-cased keys, in first-seen order
	values map[string][]string
}

// New returns an empty MD.
func New() MD {
	return MD{values: make(map[string][]string)}
}

// Pairs returns an MD built from alternating key, value, key, value, ...
// arguments. It panics if len(kv) is odd.
func Pairs(kv ...string) MD {
	if len(kv)%2 == 1 {
		panic(fmt.Sprintf("metadata: Pairs got the odd number of input pairs for metadata: %d", len(kv)))
	}
	md := New()
	for i := 0; i < len(kv); i += 2 {
		md.Add(kv[i], kv[i+1])
	}
	return md
}

func lower(key string) string {
	return strings.ToLower(key)
}

// Add appends value to the list of values for key, preserving any values
// already set under that key.
func (md *MD) Add(key, value string) {
	if md.values == nil {
		md.values = make(map[string][]string)
	}
	k := lower(key)
	if _, ok := md.values[k]; !ok {
		md.keys = append(md.keys, k)
	}
	md.values[k] = append(md.values[k], value)
}

// Set replaces any values under key with the single value v.
func (md *MD) Set(key, value string) {
	if md.values == nil {
		md.values = make(map[string][]string)
	}
	k := lower(key)
	if _, ok := md.values[k]; !ok {
		md.keys = append(md.keys, k)
	}
	md.values[k] = []string{value}
}

// Values returns the list of values set under key, or nil if none are set.
// The returned slice must not be mutated by the caller.
func (md MD) Values(key string) []string {
	return md.values[lower(key)]
}

// Get returns the first value set under key and true, or ("", false) if
// key has no values.
func (md MD) Get(key string) (string, bool) {
	vs := md.values[lower(key)]
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// Delete removes all values set under key.
func (md *MD) Delete(key string) {
	k := lower(key)
	if _, ok := md.values[k]; !ok {
		return
	}
	delete(md.values, k)
	for i, existing := range md.keys {
		if existing == k {
			md.keys = append(md.keys[:i], md.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of distinct keys set.
func (md MD) Len() int {
	return len(md.keys)
}

// Range calls fn once per distinct key, in insertion order, with the full
// ordered list of values set under that key. Range stops early if fn
// returns false.
func (md MD) Range(fn func(key string, values []string) bool) {
	for _, k := range md.keys {
		if !fn(k, md.values[k]) {
			return
		}
	}
}

// Clone returns a deep copy of md.
func (md MD) Clone() MD {
	out := New()
	md.Range(func(key string, values []string) bool {
		cp := make([]string, len(values))
		copy(cp, values)
		out.keys = append(out.keys, key)
		out.values[key] = cp
		return true
	})
	return out
}

// Merge adds every key/value pair in other to md, preserving duplicates.
func (md *MD) Merge(other MD) {
	other.Range(func(key string, values []string) bool {
		for _, v := range values {
			md.Add(key, v)
		}
		return true
	})
}

// IsBinary reports whether key carries opaque bytes (i.e. ends in "-bin").
func IsBinary(key string) bool {
	return strings.HasSuffix(lower(key), binHdrSuffix)
}

// Reserved protocol keys that the runtime may set; user attempts to set
// them are accepted but carry undefined semantics.
var reservedKeys = map[string]bool{
	":method":              true,
	":path":                true,
	":scheme":              true,
	":authority":           true,
	"content-type":         true,
	"te":                   true,
	"user-agent":           true,
	"grpc-timeout":         true,
	"grpc-encoding":        true,
	"grpc-accept-encoding": true,
	"grpc-status":          true,
	"grpc-message":         true,
}

// IsReserved reports whether key is one of the protocol-reserved keys, or
// carries the "grpc-" prefix reserved for runtime use.
func IsReserved(key string) bool {
	k := lower(key)
	if reservedKeys[k] {
		return true
	}
	return strings.HasPrefix(k, "grpc-")
}

const timeoutKey = "grpc-timeout"

// timeoutUnitDurations maps the single-character grpc-timeout unit suffix
// to its duration, smallest first.
var timeoutUnitDurations = []struct {
	suffix byte
	unit   time.Duration
}{
	{'n', time.Nanosecond},
	{'u', time.Microsecond},
	{'m', time.Millisecond},
	{'S', time.Second},
	{'M', time.Minute},
	{'H', time.Hour},
}

// SetTimeout writes d onto md as grpc-timeout, using the smallest unit
// that represents d in at most 8 digits.
func (md *MD) SetTimeout(d time.Duration) {
	for _, u := range timeoutUnitDurations {
		v := d / u.unit
		if d%u.unit != 0 {
			continue
		}
		if digits(v) <= 8 {
			md.Set(timeoutKey, strconv.FormatInt(int64(v), 10)+string(u.suffix))
			return
		}
	}
	// No unit represents d exactly within 8 digits; fall back to the
	// coarsest unit, truncating to the nearest whole hour count that fits.
	hours := d / time.Hour
	if digits(hours) > 8 {
		hours = 99999999
	}
	md.Set(timeoutKey, strconv.FormatInt(int64(hours), 10)+"H")
}

func digits(v time.Duration) int {
	n := int64(v)
	if n < 0 {
		n = -n
	}
	if n == 0 {
		return 1
	}
	count := 0
	for n > 0 {
		count++
		n /= 10
	}
	return count
}

// Timeout reads grpc-timeout from md, returning the decoded duration and
// true, or (0, false) if absent or unparseable.
func (md MD) Timeout() (time.Duration, bool) {
	v, ok := md.Get(timeoutKey)
	if !ok || v == "" {
		return 0, false
	}
	suffix := v[len(v)-1]
	numPart := v[:len(v)-1]
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, false
	}
	for _, u := range timeoutUnitDurations {
		if u.suffix == suffix {
			return time.Duration(n) * u.unit, true
		}
	}
	return 0, false
}

const previousAttemptsKey = "grpc-previous-rpc-attempts"

// SetPreviousRPCAttempts writes n onto md as grpc-previous-rpc-attempts.
func (md *MD) SetPreviousRPCAttempts(n int) {
	md.Set(previousAttemptsKey, strconv.Itoa(n))
}

// PreviousRPCAttempts reads grpc-previous-rpc-attempts from md.
func (md MD) PreviousRPCAttempts() (int, bool) {
	v, ok := md.Get(previousAttemptsKey)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

const pushbackKey = "grpc-retry-pushback-ms"

// Pushback is the decoded form of grpc-retry-pushback-ms.
type Pushback struct {
	// None is true if the header was absent.
	None bool
	// Stop is true if the server asked the client to stop retrying
	// (a negative or unparseable value).
	Stop bool
	// After is the server-requested delay before the next attempt, valid
	// only when None and Stop are both false.
	After time.Duration
}

// RetryPushback reads grpc-retry-pushback-ms from md :
// missing ⇒ None; non-negative integer ⇒ After; negative or unparseable ⇒
// Stop.
func (md MD) RetryPushback() Pushback {
	v, ok := md.Get(pushbackKey)
	if !ok {
		return Pushback{None: true}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return Pushback{Stop: true}
	}
	return Pushback{After: time.Duration(n) * time.Millisecond}
}
