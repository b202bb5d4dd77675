package semantic

import (
	"os"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

// DefaultScriptTimeout bounds a single scripted evaluation
const DefaultScriptTimeout = 100 * time.Millisecond

// ScriptMatcher evaluates a JavaScript match(service, rfp) function.
//
// Profiles are passed as plain objects keyed by their JSON field names. Only
// a boolean true result counts as a match; thrown errors, timeouts and
// non-boolean results fail closed.
type ScriptMatcher struct {
	vm      *goja.Runtime
	fn      goja.Callable
	timeout time.Duration
	mu      sync.Mutex
}

// NewScriptMatcher compiles source and resolves its global match function
func NewScriptMatcher(source string, timeout time.Duration) (*ScriptMatcher, error) {
	const op = "semantic.NewScriptMatcher"

	prog, err := goja.Compile("match.js", source, true)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, op, err, "failed to compile match script")
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(1024)
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return nil, fault.Wrap(fault.Configuration, op, err, "failed to clear global %s", name)
		}
	}
	if _, err := vm.RunProgram(prog); err != nil {
		return nil, fault.Wrap(fault.Configuration, op, err, "match script failed to load")
	}

	fn, ok := goja.AssertFunction(vm.Get("match"))
	if !ok {
		return nil, fault.New(fault.Configuration, op, "script must define a global match(service, rfp) function")
	}
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	return &ScriptMatcher{vm: vm, fn: fn, timeout: timeout}, nil
}

// LoadScriptMatcher reads a match script from disk
func LoadScriptMatcher(path string, timeout time.Duration) (*ScriptMatcher, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, "semantic.LoadScriptMatcher", err, "failed to read %s", path)
	}
	return NewScriptMatcher(string(src), timeout)
}

// Matches runs the script. Calls are serialized on the single runtime.
func (m *ScriptMatcher) Matches(service types.ServiceProfile, rfp types.RFPProfile) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	fired := make(chan struct{})
	timer := time.AfterFunc(m.timeout, func() {
		m.vm.Interrupt("match timeout exceeded")
		close(fired)
	})
	res, err := m.fn(goja.Undefined(), m.vm.ToValue(serviceObject(service)), m.vm.ToValue(rfpObject(rfp)))
	if !timer.Stop() {
		<-fired
	}
	m.vm.ClearInterrupt()
	if err != nil {
		return false
	}

	ok, isBool := res.Export().(bool)
	return isBool && ok
}

func serviceObject(p types.ServiceProfile) map[string]interface{} {
	return map[string]interface{}{
		"service_key":  p.ServiceKey,
		"provider_key": p.ProviderKey,
		"category_uri": p.CategoryURI,
		"input_uris":   uriList(p.InputURIs),
		"output_uris":  uriList(p.OutputURIs),
	}
}

func rfpObject(p types.RFPProfile) map[string]interface{} {
	return map[string]interface{}{
		"rfp_uri":              p.URI,
		"category_uri":         p.CategoryURI,
		"required_input_uris":  uriList(p.RequiredInputURIs),
		"required_output_uris": uriList(p.RequiredOutputURIs),
	}
}

func uriList(uris []string) []interface{} {
	out := make([]interface{}, len(uris))
	for i, u := range uris {
		out[i] = u
	}
	return out
}
