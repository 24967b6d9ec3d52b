/*
Package playground ties the editor buffers to the live preview.

A Playground owns the current buffer set and wires it through the rest of
the system:

	Edit ──► Store.Save ──► (auto-run) Notifier ──► Assemble ──► sandbox.Host
	                                                              │
	                                   Relay ◄── postMessage ◄────┘

Every edit is persisted immediately. With auto-run on, rebuilds are
debounced; Run, Replace(run=true) and LoadTemplate rebuild at once.
Persistence failures are published as save_failed events and never stop a
rebuild.

# Usage

	pg, err := playground.New(ctx, playground.Options{
		Store:   buffer.NewStore(kv),
		Host:    sandbox.NewHost(sandbox.DefaultConfig(), rel.Sink, logger),
		Relay:   rel,
		Gallery: gallery,
		AutoRun: true,
	})
	if err != nil {
		return err
	}
	defer pg.Close()

	_ = pg.Edit(buffer.PaneJS, "console.log('ok')")
*/
package playground
