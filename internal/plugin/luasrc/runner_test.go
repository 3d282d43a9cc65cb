package luasrc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/plugstorm/internal/app"
	"github.com/dshills/plugstorm/internal/plugin/api"
	pstate "github.com/dshills/plugstorm/internal/plugin/state"
)

// scriptHost backs the capability context for runner tests.
type scriptHost struct {
	components map[string]any
	routes     []api.Route
	menuItems  []api.MenuItem
}

func newScriptHost() *scriptHost {
	return &scriptHost{components: make(map[string]any)}
}

func (h *scriptHost) RegisterComponent(name string, component any) error {
	h.components[name] = component
	return nil
}

func (h *scriptHost) AddRoute(route api.Route) error {
	h.routes = append(h.routes, route)
	return nil
}

func (h *scriptHost) RemoveRoute(name string) error { return nil }

func (h *scriptHost) RecordComponent(pluginID, name string) {}

func (h *scriptHost) RecordRoute(pluginID string, route api.Route) {}

func (h *scriptHost) RecordMenuItem(pluginID string, item api.MenuItem) {
	h.menuItems = append(h.menuItems, item)
}

// scriptFixture wires one runner to a script on disk.
type scriptFixture struct {
	runner *runner
	host   *scriptHost
	store  *pstate.Store
	pc     *api.Context
	dir    string
}

func newScriptFixture(t *testing.T, script string) *scriptFixture {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "init.lua"), []byte(script), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	host := newScriptHost()
	store := pstate.NewStore(app.NullLogger)
	providers := api.Providers{Components: host, Routes: host}
	m := NewManifestMinimal("alpha", dir)

	return &scriptFixture{
		runner: newRunner(m, app.NullLogger, DefaultCallTimeout),
		host:   host,
		store:  store,
		pc:     api.NewContext("alpha", providers, host, nil, store, app.NullLogger),
		dir:    dir,
	}
}

func (f *scriptFixture) rewrite(t *testing.T, script string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.dir, "init.lua"), []byte(script), 0o644); err != nil {
		t.Fatalf("rewrite script: %v", err)
	}
}

func TestRunnerSetupCallsScript(t *testing.T) {
	f := newScriptFixture(t, `
		function setup(settings)
			storm.register_component("greeter", settings.greeting)
		end
	`)
	f.runner.manifest.Settings = map[string]any{"greeting": "hello"}

	if err := f.runner.setup(context.Background(), f.pc); err != nil {
		t.Fatalf("setup() error = %v", err)
	}
	if f.host.components["greeter"] != "hello" {
		t.Errorf("components = %v, want greeter=hello", f.host.components)
	}
}

func TestRunnerSetupWithoutSetupFunction(t *testing.T) {
	f := newScriptFixture(t, `local loaded = true`)

	if err := f.runner.setup(context.Background(), f.pc); err != nil {
		t.Errorf("setup() error = %v, want nil for a script with no setup function", err)
	}
}

func TestRunnerLifecycleFunctions(t *testing.T) {
	f := newScriptFixture(t, `
		function setup(settings)
			storm.register_state("phase", "loaded")
		end
		function activate()
			storm.set_state("phase", "active")
		end
		function deactivate()
			storm.set_state("phase", "inactive")
		end
	`)

	if err := f.runner.setup(context.Background(), f.pc); err != nil {
		t.Fatalf("setup() error = %v", err)
	}
	if phase, _ := f.store.Get("alpha", "phase"); phase != "loaded" {
		t.Errorf("phase after setup = %v, want loaded", phase)
	}

	if err := f.runner.activate(context.Background()); err != nil {
		t.Fatalf("activate() error = %v", err)
	}
	if phase, _ := f.store.Get("alpha", "phase"); phase != "active" {
		t.Errorf("phase after activate = %v, want active", phase)
	}

	if err := f.runner.deactivate(context.Background()); err != nil {
		t.Fatalf("deactivate() error = %v", err)
	}
	if phase, _ := f.store.Get("alpha", "phase"); phase != "inactive" {
		t.Errorf("phase after deactivate = %v, want inactive", phase)
	}
}

func TestRunnerActivateBeforeSetup(t *testing.T) {
	f := newScriptFixture(t, ``)

	if err := f.runner.activate(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("activate() error = %v, want ErrNotLoaded", err)
	}
	if err := f.runner.deactivate(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("deactivate() error = %v, want ErrNotLoaded", err)
	}
}

func TestRunnerSetupFailureRetries(t *testing.T) {
	f := newScriptFixture(t, `this is not lua`)

	if err := f.runner.setup(context.Background(), f.pc); err == nil {
		t.Fatal("setup() error = nil, want parse error")
	}

	// The broken attempt tore the state down.
	if err := f.runner.activate(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("activate() error = %v, want ErrNotLoaded", err)
	}

	// A fixed script loads on the next attempt.
	f.rewrite(t, `
		function setup(settings)
			storm.register_component("fixed", true)
		end
	`)
	if err := f.runner.setup(context.Background(), f.pc); err != nil {
		t.Fatalf("setup() after fix error = %v", err)
	}
	if f.host.components["fixed"] != true {
		t.Error("fixed script did not run")
	}
}

func TestRunnerSetupFunctionError(t *testing.T) {
	f := newScriptFixture(t, `
		function setup(settings)
			error("boom")
		end
	`)

	err := f.runner.setup(context.Background(), f.pc)
	if err == nil {
		t.Fatal("setup() error = nil, want script error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error = %v, want it to mention boom", err)
	}
	if err := f.runner.activate(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("activate() after failed setup error = %v, want ErrNotLoaded", err)
	}
}

func TestRunnerDispose(t *testing.T) {
	f := newScriptFixture(t, `function setup(settings) end`)

	if err := f.runner.setup(context.Background(), f.pc); err != nil {
		t.Fatalf("setup() error = %v", err)
	}
	if err := f.runner.dispose(); err != nil {
		t.Fatalf("dispose() error = %v", err)
	}
	if err := f.runner.dispose(); err != nil {
		t.Errorf("second dispose() error = %v", err)
	}

	if err := f.runner.setup(context.Background(), f.pc); !errors.Is(err, ErrStateClosed) {
		t.Errorf("setup() after dispose error = %v, want ErrStateClosed", err)
	}
}

func TestRunnerCallTimeout(t *testing.T) {
	f := newScriptFixture(t, `
		function setup(settings)
			while true do end
		end
	`)
	f.runner.callTimeout = 50 * time.Millisecond

	start := time.Now()
	err := f.runner.setup(context.Background(), f.pc)
	if err == nil {
		t.Fatal("setup() error = nil, want deadline error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("setup() took %v, the timeout did not fire", elapsed)
	}
}

func TestRunnerSandbox(t *testing.T) {
	f := newScriptFixture(t, `
		function setup(settings)
			storm.register_component("has-io", io ~= nil)
			storm.register_component("has-os", os ~= nil)
			storm.register_component("has-math", math ~= nil)
		end
	`)

	if err := f.runner.setup(context.Background(), f.pc); err != nil {
		t.Fatalf("setup() error = %v", err)
	}
	if f.host.components["has-io"] != false {
		t.Error("io library is visible to scripts")
	}
	if f.host.components["has-os"] != false {
		t.Error("os library is visible to scripts")
	}
	if f.host.components["has-math"] != true {
		t.Error("math library is not visible to scripts")
	}
}

func TestRunnerRegisterRouteFromScript(t *testing.T) {
	f := newScriptFixture(t, `
		function setup(settings)
			storm.register_route({
				name = "alpha-home",
				path = "/alpha",
				component = "AlphaHome",
				meta = { title = "Alpha" },
			})
			storm.register_menu_item({ id = "alpha-menu", title = "Alpha", order = 3 })
		end
	`)

	if err := f.runner.setup(context.Background(), f.pc); err != nil {
		t.Fatalf("setup() error = %v", err)
	}

	if len(f.host.routes) != 1 {
		t.Fatalf("routes = %v, want 1", f.host.routes)
	}
	route := f.host.routes[0]
	if route.Name != "alpha-home" || route.Path != "/alpha" || route.Component != "AlphaHome" {
		t.Errorf("route = %+v", route)
	}
	if route.Meta["title"] != "Alpha" {
		t.Errorf("route meta = %v, want title=Alpha", route.Meta)
	}

	if len(f.host.menuItems) != 1 || f.host.menuItems[0].Order != 3 {
		t.Errorf("menu items = %v, want one with order 3", f.host.menuItems)
	}
}

func TestRunnerStateReadFromScript(t *testing.T) {
	f := newScriptFixture(t, `
		function setup(settings)
			local existing = storm.register_state("cache", { size = 4 })
			storm.register_component("initial-size", existing.size)
			local value, found = storm.get_state("alpha", "cache")
			storm.register_component("found", found)
		end
	`)

	if err := f.runner.setup(context.Background(), f.pc); err != nil {
		t.Fatalf("setup() error = %v", err)
	}
	if f.host.components["initial-size"] != float64(4) {
		t.Errorf("initial-size = %v, want 4", f.host.components["initial-size"])
	}
	if f.host.components["found"] != true {
		t.Errorf("found = %v, want true", f.host.components["found"])
	}
}

func TestRunnerImplementation(t *testing.T) {
	f := newScriptFixture(t, ``)

	impl := f.runner.implementation()
	if impl.Setup == nil || impl.Activate == nil || impl.Deactivate == nil || impl.Dispose == nil {
		t.Error("implementation() left callbacks nil")
	}
}
