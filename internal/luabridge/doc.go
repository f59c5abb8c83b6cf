// Package luabridge lets Lua scripts subscribe to and publish typed bus
// payloads.
//
// Go code exposes a payload type under a name together with a Codec that
// converts it to and from a Lua table:
//
//	br := luabridge.New(bus)
//	luabridge.Expose(br, "dog", luabridge.JSONCodec[Dog]())
//	go br.Run(ctx)
//	err := br.DoString(`
//	    typebus.on("dog", function(d) print(d.name) end)
//	    typebus.emit("dog", { name = "rex" })
//	`)
//
// The Lua API is a global table named typebus:
//
//	typebus.on(name, fn) -> id       subscribe fn to the payload exposed as name
//	typebus.once(name, fn) -> id     like on, removed after the first delivery
//	typebus.off(id) -> bool          remove a subscription
//	typebus.emit(name, table)        decode table and publish it
//	typebus.types() -> table         the exposed names
//
// # Threading
//
// gopher-lua states are not safe for concurrent use. Every access to the
// state happens on the goroutine running Bridge.Run: scripts are sent to it
// and Lua callbacks are posted to it with the ContextAsync strategy, whatever
// goroutine published the payload.
package luabridge
