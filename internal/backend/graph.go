package backend

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is the explicit parameter-cache and naming context shared by the
// builders that cooperate on one weight-shared model family. Callers pass
// it to whatever needs it; there is no process-wide default graph. A Graph
// must not be shared by concurrent callers.
type Graph struct {
	scope  []string
	device Device
	params map[string]*Parameter
}

type GraphOption func(*Graph)

func WithDevice(d Device) GraphOption {
	return func(g *Graph) { g.device = d }
}

func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		device: DefaultDevice(),
		params: make(map[string]*Parameter),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Graph) Device() Device { return g.device }

// SetDevice reparses and installs a device token for subsequent work in
// this graph. Unknown tokens leave the device unchanged.
func (g *Graph) SetDevice(token string) error {
	d, err := ParseDevice(token)
	if err != nil {
		return err
	}
	g.device = d
	return nil
}

// AppendVarScope pushes one naming segment; parameters registered after
// the call live under it.
func (g *Graph) AppendVarScope(segment string) {
	g.scope = append(g.scope, segment)
}

// StripVarScope pops the innermost naming segment. Popping an empty scope
// is a no-op.
func (g *Graph) StripVarScope() {
	if len(g.scope) > 0 {
		g.scope = g.scope[:len(g.scope)-1]
	}
}

// Scope returns the current prefix, "/a/b" style. Empty when no segment is
// open.
func (g *Graph) Scope() string {
	if len(g.scope) == 0 {
		return ""
	}
	return "/" + strings.Join(g.scope, "/")
}

// AddParam registers p under the current scope and returns its full key.
// Keys take the form "<scope>/<name>:<n>" where n starts at zero and
// increments until the key is free, so registering the same name twice
// yields ":0" then ":1" rather than clobbering the first entry.
func (g *Graph) AddParam(name string, p *Parameter) string {
	base := g.Scope() + "/" + name
	for i := 0; ; i++ {
		key := fmt.Sprintf("%s:%d", base, i)
		if _, exists := g.params[key]; !exists {
			g.params[key] = p
			return key
		}
	}
}

func (g *Graph) Param(key string) (*Parameter, bool) {
	p, ok := g.params[key]
	return p, ok
}

func (g *Graph) ParamCount() int { return len(g.params) }

func (g *Graph) ParamKeys() []string {
	keys := make([]string, 0, len(g.params))
	for k := range g.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
