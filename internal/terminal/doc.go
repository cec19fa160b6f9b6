/*
Package terminal binds one interactive PTY session to a terminal display
and owns the lifecycle of that binding.

A Controller mounts a Surface: it opens a fresh Engine, waits for fonts
and layout, then either creates a session through the ProcessHost or
reattaches to an existing one. Once the session is confirmed it attaches,
in order, the renderer chain (gpu, canvas, engine default), the I/O
bridge, the resize coordinator and the health monitor. Unmount releases
them in reverse order and leaves the session running.

All state changes happen on one executor goroutine per Controller. Every
timer and blocking call posts back to it and is dropped if the mount that
scheduled it is no longer active.

Usage:

	ctrl := terminal.NewController(terminal.Config{
		Host:    host,
		Engines: vt.NewFactory(out),
		Logger:  log.Logger,
	})
	ctrl.SetCallbacks(terminal.Callbacks{
		OnSessionCreated: func(id string) { slots.Set("main", id) },
		OnSessionEnded:   func() { log.Info("session ended") },
	})
	_ = ctrl.Mount(existingID, surface)
	<-ctrl.Unmount()
*/
package terminal
