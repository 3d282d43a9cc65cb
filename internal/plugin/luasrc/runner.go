package luasrc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/plugstorm/internal/app"
	"github.com/dshills/plugstorm/internal/plugin"
	"github.com/dshills/plugstorm/internal/plugin/api"
)

// DefaultCallTimeout bounds a single call into a plugin script. Scripts
// that block in native functions can overrun it; the limit is enforced
// through the Lua VM's context checks.
const DefaultCallTimeout = 5 * time.Second

// Runner errors.
var (
	ErrNotLoaded   = errors.New("luasrc: plugin not loaded")
	ErrStateClosed = errors.New("luasrc: lua state closed")
)

// runner executes one Lua plugin. It owns the plugin's Lua state and
// maps the registry's lifecycle callbacks onto the script's global
// setup, activate, and deactivate functions, all of which are optional.
//
// gopher-lua's LState is not goroutine-safe; the mutex serializes every
// call into the state.
type runner struct {
	mu sync.Mutex

	manifest    *Manifest
	log         *app.Logger
	callTimeout time.Duration

	L      *lua.LState
	closed bool
}

func newRunner(manifest *Manifest, log *app.Logger, callTimeout time.Duration) *runner {
	return &runner{
		manifest:    manifest,
		log:         log.WithField("plugin", manifest.ID),
		callTimeout: callTimeout,
	}
}

// implementation exposes the runner as lifecycle callbacks.
func (r *runner) implementation() plugin.Implementation {
	return plugin.Implementation{
		Setup:      r.setup,
		Activate:   r.activate,
		Deactivate: r.deactivate,
		Dispose:    r.dispose,
	}
}

// setup creates the Lua state, runs the plugin's main file, and calls
// its global setup(settings) function. On failure the state is torn
// down so a later attempt starts fresh.
func (r *runner) setup(ctx context.Context, pc *api.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStateClosed
	}

	if r.L == nil {
		L := lua.NewState(lua.Options{
			SkipOpenLibs: true, // Libraries are opened selectively
		})
		openSafeLibraries(L)
		r.L = L
		r.installModule(pc)

		if err := r.withDeadline(ctx, func() error {
			return r.L.DoFile(r.manifest.MainPath())
		}); err != nil {
			r.teardown()
			return fmt.Errorf("failed to load plugin: %w", err)
		}
	}

	settings := mapToTable(r.L, r.manifest.Settings)
	if err := r.callGlobal(ctx, "setup", settings); err != nil {
		r.teardown()
		return err
	}
	return nil
}

// activate calls the plugin's global activate function.
func (r *runner) activate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.L == nil {
		return ErrNotLoaded
	}
	return r.callGlobal(ctx, "activate")
}

// deactivate calls the plugin's global deactivate function.
func (r *runner) deactivate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.L == nil {
		return ErrNotLoaded
	}
	return r.callGlobal(ctx, "deactivate")
}

// dispose closes the Lua state and releases resources.
func (r *runner) dispose() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.teardown()
	r.closed = true
	return nil
}

// teardown closes and clears the Lua state. Caller must hold mu.
func (r *runner) teardown() {
	if r.L != nil {
		r.L.Close()
		r.L = nil
	}
}

// callGlobal calls a global Lua function if the script defines one.
// A missing global or a non-function value is not an error.
func (r *runner) callGlobal(ctx context.Context, name string, args ...lua.LValue) error {
	fn := r.L.GetGlobal(name)
	if fn == lua.LNil {
		return nil
	}
	if fn.Type() != lua.LTFunction {
		return nil
	}

	return r.withDeadline(ctx, func() error {
		r.L.Push(fn)
		for _, arg := range args {
			r.L.Push(arg)
		}
		return r.L.PCall(len(args), 0, nil)
	})
}

// withDeadline runs fn with the call timeout applied to the Lua state
// and panics converted to errors. Caller must hold mu.
func (r *runner) withDeadline(ctx context.Context, fn func() error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}
	r.L.SetContext(ctx)
	defer r.L.RemoveContext()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lua panic: %v", rec)
		}
	}()
	return fn()
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Note: io, os, debug, and package are intentionally not opened.
}

// installModule binds the plugin's capability context into the state as
// the global storm table.
func (r *runner) installModule(pc *api.Context) {
	tbl := r.L.NewTable()
	r.L.SetFuncs(tbl, map[string]lua.LGFunction{
		"register_component": func(L *lua.LState) int {
			name := L.CheckString(1)
			var def any
			if L.GetTop() >= 2 {
				def = luaToGo(L.Get(2))
			}
			if err := pc.RegisterComponent(name, def); err != nil {
				L.RaiseError("register_component: %v", err)
			}
			return 0
		},
		"register_route": func(L *lua.LState) int {
			route := routeFromTable(L.CheckTable(1))
			if err := pc.RegisterRoute(route); err != nil {
				L.RaiseError("register_route: %v", err)
			}
			return 0
		},
		"register_menu_item": func(L *lua.LState) int {
			item := menuItemFromTable(L.CheckTable(1))
			if err := pc.RegisterMenuItem(item); err != nil {
				L.RaiseError("register_menu_item: %v", err)
			}
			return 0
		},
		"register_locale": func(L *lua.LState) int {
			locale := L.CheckString(1)
			messages, _ := luaToGo(L.CheckTable(2)).(map[string]any)
			if err := pc.RegisterLocale(locale, messages); err != nil {
				L.RaiseError("register_locale: %v", err)
			}
			return 0
		},
		"register_permission": func(L *lua.LState) int {
			perm := api.Permission{
				ID:          L.CheckString(1),
				Description: L.OptString(2, ""),
			}
			if err := pc.RegisterPermission(perm); err != nil {
				L.RaiseError("register_permission: %v", err)
			}
			return 0
		},
		"register_state": func(L *lua.LState) int {
			namespace := L.CheckString(1)
			value := luaToGo(L.Get(2))
			current := pc.RegisterState(namespace, value)
			L.Push(goToLua(L, current))
			return 1
		},
		"get_state": func(L *lua.LState) int {
			pluginID := L.CheckString(1)
			namespace := L.CheckString(2)
			value, ok := pc.PluginState(pluginID, namespace)
			L.Push(goToLua(L, value))
			L.Push(lua.LBool(ok))
			return 2
		},
		"set_state": func(L *lua.LState) int {
			namespace := L.CheckString(1)
			value := luaToGo(L.Get(2))
			L.Push(lua.LBool(pc.SetState(namespace, value)))
			return 1
		},
		"get_config": func(L *lua.LState) int {
			key := L.CheckString(1)
			value, ok := pc.Config(key)
			L.Push(goToLua(L, value))
			L.Push(lua.LBool(ok))
			return 2
		},
		"set_config": func(L *lua.LState) int {
			key := L.CheckString(1)
			value := luaToGo(L.Get(2))
			if err := pc.SetConfig(key, value); err != nil {
				L.RaiseError("set_config: %v", err)
			}
			return 0
		},
		"log": func(L *lua.LState) int {
			msg := L.CheckString(1)
			level := L.OptString(2, "info")
			log := pc.Logger()
			switch level {
			case "debug":
				log.Debug("%s", msg)
			case "warn":
				log.Warn("%s", msg)
			case "error":
				log.Error("%s", msg)
			default:
				log.Info("%s", msg)
			}
			return 0
		},
	})
	r.L.SetGlobal("storm", tbl)
}

// routeFromTable builds a route from a Lua table with name, path,
// component, and meta fields.
func routeFromTable(tbl *lua.LTable) api.Route {
	route := api.Route{}
	if v, ok := luaToGo(tbl).(map[string]any); ok {
		route.Name, _ = v["name"].(string)
		route.Path, _ = v["path"].(string)
		route.Component, _ = v["component"].(string)
		if meta, ok := v["meta"].(map[string]any); ok {
			route.Meta = meta
		}
	}
	return route
}

// menuItemFromTable builds a menu item from a Lua table with id, title,
// icon, path, and order fields.
func menuItemFromTable(tbl *lua.LTable) api.MenuItem {
	item := api.MenuItem{}
	if v, ok := luaToGo(tbl).(map[string]any); ok {
		item.ID, _ = v["id"].(string)
		item.Title, _ = v["title"].(string)
		item.Icon, _ = v["icon"].(string)
		item.Path, _ = v["path"].(string)
		if order, ok := v["order"].(float64); ok {
			item.Order = int(order)
		}
	}
	return item
}
