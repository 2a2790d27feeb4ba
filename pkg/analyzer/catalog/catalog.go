// Package catalog holds the FiveM knowledge tables used by the analyzers:
// hot callbacks, cacheable globals, debug functions, nil-returning natives
// and expensive natives.
//
// A Catalog is immutable after construction and safe for concurrent use.
package catalog

import "sort"

// Expensive describes an expensive native whose repeated calls should be
// cached.
type Expensive struct {
	// CacheName is the local introduced when hoisting the call; empty means
	// the call is reported but never rewritten.
	CacheName  string
	Suggestion string
	Severity   string
}

// Catalog is the set of tables the analyzers consult.
type Catalog struct {
	HotCallbacks       map[string]bool
	CacheableGlobals   map[string]bool
	UnsafeToCache      map[string]bool
	CacheableModules   map[string]map[string]bool
	DebugFunctions     map[string]bool
	DirectReplacements map[string]bool
	NilReturning       map[string]string
	SafeCallbackParams map[string][]int
	ExpensiveCalls     map[string]Expensive
	// CacheableMethods are method names whose results are stable for a
	// receiver, so repeated obj:method() calls can be cached.
	CacheableMethods map[string]bool
	// RegistrationFuncs register a callback by name or function value.
	RegistrationFuncs map[string]bool
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{
		HotCallbacks: set(
			"onTick", "OnTick", "tick", "Tick",
			"mainLoop", "MainLoop", "gameLoop", "GameLoop",
			"onClientResourceStart", "onClientResourceStop",
			"onResourceStart", "onResourceStop",
		),
		CacheableGlobals: set(
			"pairs", "ipairs", "next", "type", "tostring", "tonumber",
			"unpack", "select", "rawget", "rawset",
		),
		UnsafeToCache: set("pcall", "xpcall", "error", "assert", "print"),
		CacheableModules: map[string]map[string]bool{
			"math": set(
				"floor", "ceil", "abs", "min", "max", "sqrt", "sin", "cos", "tan",
				"random", "pow", "log", "exp", "atan2", "atan", "asin", "acos",
				"deg", "rad", "fmod", "modf", "huge",
			),
			"string": set(
				"find", "sub", "gsub", "match", "gmatch", "format",
				"lower", "upper", "len", "rep", "byte", "char", "reverse",
			),
			"table": set("insert", "remove", "concat", "sort", "getn", "unpack"),
			"bit":   set("band", "bor", "bxor", "bnot", "lshift", "rshift", "arshift", "rol", "ror"),
		},
		DebugFunctions: set(
			"print", "printf", "printe", "printd", "log",
			"log1", "log2", "log3",
			"DebugLog", "debug_log", "trace", "dump",
		),
		DirectReplacements: set("table.insert", "table.getn", "string.len"),
		NilReturning: map[string]string{
			"GetPlayerPed":                   "player not loaded or invalid player ID",
			"PlayerPedId":                    "player ped not yet spawned (rare)",
			"GetVehiclePedIsIn":              "ped is not in a vehicle (returns 0)",
			"GetPedInVehicleSeat":            "seat is empty (returns 0)",
			"GetClosestVehicle":              "no vehicle nearby (returns 0)",
			"GetClosestPed":                  "no ped nearby (returns 0)",
			"GetClosestObjectOfType":         "no matching object found (returns 0)",
			"NetworkGetEntityFromNetworkId":  "network ID does not exist (returns 0)",
			"NetworkGetNetworkIdFromEntity":  "entity does not exist (returns 0)",
			"GetEntityAttachedTo":            "entity is not attached (returns 0)",
			"GetPedSourceOfDamage":           "no damage source (returns 0)",
			"GetPedCauseOfDeath":             "ped is alive (returns 0)",
			"GetPedKiller":                   "no killer or ped is alive (returns 0)",
			"GetEntityPlayerIsFreeAimingAt":  "not aiming at anything (returns false, 0)",
			"GetPedLastVehicle":              "ped never entered a vehicle (returns 0)",
			"GetVehicleTrailer":              "no trailer attached (returns false, 0)",
			"GetVehiclePedIsUsing":           "ped not using vehicle (returns 0)",
		},
		SafeCallbackParams: map[string][]int{
			"playerConnecting":           {0, 1, 2},
			"playerDropped":              {0},
			"onResourceStart":            {0},
			"onResourceStop":             {0},
			"onResourceStarting":         {0},
			"onClientResourceStart":      {0},
			"onClientResourceStop":       {0},
			"gameEventTriggered":         {0, 1},
			"baseevents:onPlayerDied":    {0, 1},
			"baseevents:onPlayerKilled":  {0, 1, 2},
			"baseevents:enteredVehicle":  {0, 1, 2},
			"baseevents:enteringVehicle": {0, 1, 2},
			"baseevents:leftVehicle":     {0, 1, 2},
		},
		ExpensiveCalls: map[string]Expensive{
			"PlayerPedId":       {CacheName: "ped", Suggestion: "local ped = PlayerPedId()", Severity: "GREEN"},
			"PlayerId":          {CacheName: "playerId", Suggestion: "local playerId = PlayerId()", Severity: "GREEN"},
			"GetPlayerServerId": {CacheName: "serverId", Suggestion: "local serverId = GetPlayerServerId(PlayerId())", Severity: "GREEN"},
			"GetEntityCoords":   {CacheName: "coords", Suggestion: "local coords = GetEntityCoords(ped)", Severity: "GREEN"},
			"GetEntityModel":    {CacheName: "model", Suggestion: "local model = GetEntityModel(entity)", Severity: "GREEN"},
			"GetHashKey":        {CacheName: "hash", Suggestion: "local hash = GetHashKey(str) -- or use `hash` literal", Severity: "GREEN"},
			"GetPlayerPed":      {CacheName: "ped", Suggestion: "local ped = GetPlayerPed(playerId)", Severity: "GREEN"},
			"GetVehiclePedIsIn": {CacheName: "vehicle", Suggestion: "local vehicle = GetVehiclePedIsIn(ped, false)", Severity: "GREEN"},
			"GetEntityHeading":  {CacheName: "heading", Suggestion: "local heading = GetEntityHeading(entity)", Severity: "GREEN"},
			"GetDistanceBetweenCoords": {
				Suggestion: "Use #(coords1 - coords2) for faster distance calculation",
				Severity:   "YELLOW",
			},
		},
		CacheableMethods:  map[string]bool{},
		RegistrationFuncs: set("AddEventHandler", "RegisterNetEvent", "RegisterCommand", "RegisterNUICallback"),
	}
}

// Extension adds entries to a catalog.
type Extension struct {
	HotCallbacks     []string
	DebugFunctions   []string
	NilReturning     map[string]string
	CacheableMethods []string
}

// Extend returns a copy of c with ext applied. The receiver is not changed.
func (c *Catalog) Extend(ext Extension) *Catalog {
	out := c.clone()
	for _, name := range ext.HotCallbacks {
		out.HotCallbacks[name] = true
	}
	for _, name := range ext.DebugFunctions {
		out.DebugFunctions[name] = true
	}
	for name, reason := range ext.NilReturning {
		if reason == "" {
			reason = "may return nil"
		}
		out.NilReturning[name] = reason
	}
	for _, name := range ext.CacheableMethods {
		out.CacheableMethods[name] = true
	}
	return out
}

// IsCacheableModuleFunc reports whether module.fn is worth caching.
func (c *Catalog) IsCacheableModuleFunc(module, fn string) bool {
	funcs, ok := c.CacheableModules[module]
	return ok && funcs[fn]
}

// IsCacheableModule reports whether module is a cacheable library table.
func (c *Catalog) IsCacheableModule(module string) bool {
	_, ok := c.CacheableModules[module]
	return ok
}

// NilReason returns why name may return nil, and whether it is catalogued.
func (c *Catalog) NilReason(name string) (string, bool) {
	reason, ok := c.NilReturning[name]
	return reason, ok
}

// ExpensiveNames returns the expensive call names in sorted order.
func (c *Catalog) ExpensiveNames() []string {
	names := make([]string, 0, len(c.ExpensiveCalls))
	for name := range c.ExpensiveCalls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) clone() *Catalog {
	modules := make(map[string]map[string]bool, len(c.CacheableModules))
	for m, funcs := range c.CacheableModules {
		modules[m] = copySet(funcs)
	}
	nilReturning := make(map[string]string, len(c.NilReturning))
	for k, v := range c.NilReturning {
		nilReturning[k] = v
	}
	params := make(map[string][]int, len(c.SafeCallbackParams))
	for k, v := range c.SafeCallbackParams {
		params[k] = append([]int(nil), v...)
	}
	expensive := make(map[string]Expensive, len(c.ExpensiveCalls))
	for k, v := range c.ExpensiveCalls {
		expensive[k] = v
	}
	return &Catalog{
		HotCallbacks:       copySet(c.HotCallbacks),
		CacheableGlobals:   copySet(c.CacheableGlobals),
		UnsafeToCache:      copySet(c.UnsafeToCache),
		CacheableModules:   modules,
		DebugFunctions:     copySet(c.DebugFunctions),
		DirectReplacements: copySet(c.DirectReplacements),
		NilReturning:       nilReturning,
		SafeCallbackParams: params,
		ExpensiveCalls:     expensive,
		CacheableMethods:   copySet(c.CacheableMethods),
		RegistrationFuncs:  copySet(c.RegistrationFuncs),
	}
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func copySet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
