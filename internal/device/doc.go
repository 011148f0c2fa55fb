// Package device provides the Module Registry for the Habitron daemon.
//
// The Module Registry is the central catalogue of all Habitron modules the
// daemon has enumerated from the bus. It manages module lifecycle, last
// known state, and health, and answers queries for the bridge and its
// MQTT consumers.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────────────┐
//	│                          Module Registry                                 │
//	│                                                                          │
//	│  ┌──────────────────┐    ┌──────────────────┐    ┌──────────────────┐   │
//	│  │     Registry     │    │    Repository    │    │    Validation    │   │
//	│  │   (registry.go)  │───▶│  (repository.go) │    │ (validation.go)  │   │
//	│  │                  │    │                  │    │                  │   │
//	│  │ • CRUD ops       │    │ • SQLite queries │    │ • Module checks  │   │
//	│  │ • In-memory cache│    │ • JSON marshal   │    │ • Address bounds │   │
//	│  │ • Thread safety  │    │ • Upserts        │    │ • Slug generation│   │
//	│  └──────────────────┘    └──────────────────┘    └──────────────────┘   │
//	│           │                       │                                      │
//	└───────────│───────────────────────│──────────────────────────────────────┘
//	            │                       │
//	            ▼                       ▼
//	┌──────────────────────┐   ┌──────────────────────┐
//	│   Habitron bridge    │   │   SQLite Database    │
//	│  • enumeration       │   │   (modules table)    │
//	│  • poll state writes │   └──────────────────────┘
//	└──────────────────────┘
//
// # Key Types
//
//   - Module: One Habitron module with its bus location and hardware type
//   - ModuleKind: Functional classification (controller, output, dimmer, etc.)
//   - State: Last decoded module state as a JSON map
//   - HealthStatus: Reachability state tracked by the poll loop
//
// # Usage
//
//	// Create repository and registry
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	// Load modules into cache on startup
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	// Reconcile a module found during bus enumeration
//	mod := &device.Module{
//	    Name:     "Hallway Shutters",
//	    RouterID: 1,
//	    Addr:     3,
//	    TypeCode: 0x0a02,
//	    TypeName: "Smart Shutter",
//	    Kind:     device.KindCover,
//	}
//	if _, err := registry.UpsertFromBus(ctx, mod); err != nil {
//	    return err
//	}
//
//	// Query modules
//	modules, _ := registry.GetModulesByRouter(ctx, 1)
//	mod, _ := registry.GetModuleByAddr(ctx, 1, 3)
//
//	// Update state (from the poll loop)
//	registry.SetModuleState(ctx, mod.ID, device.State{"covers": []any{...}})
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All operations are protected by
// a read-write mutex. The Repository implementation must also be thread-safe.
package device
