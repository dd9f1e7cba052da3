// Package rhi is a thin rendering hardware interface over the gogpu hal
// backends. Its core is the resource state tracker, which turns high-level
// "this resource must now be in state S" requests into batched native
// barriers, and the fence-based frame protocol that bounds how far the CPU
// may run ahead of the GPU.
//
// # Quick Start
//
//	dev, err := rhi.NewDevice(rhi.WithMessageCallback(func(sev rhi.Severity, msg string) {
//	    log.Printf("%s: %s", sev, msg)
//	}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	sc, _ := dev.CreateSwapchain(rhi.SwapchainDesc{Window: win, WindowHandle: hwnd})
//	pool := sc.CreateCommandListPool(rhi.QueueGraphics)
//	cl, _ := pool.AllocateList()
//
// # Frame Loop
//
// Every frame follows the same order:
//
//	sc.AcquireNextImage()           // waits for the frame slot to retire
//	pool.Reset()
//	cl.Open()
//	cl.SetGraphicsState(...)        // requires states, commits barriers
//	cl.Draw(...)
//	cl.EndRenderpass()
//	cl.RequireState(sc.CurrentImage(), rhi.AllSubresources, rhi.StatePresent)
//	cl.Close()
//	cl.Submit(rhi.SubmitArgs{OnFinishMakeSwapchainPresentable: true})
//	sc.Present()
//	dev.ReleaseDeferred()
//
// AcquireNextImage is the only place frame pacing happens: it blocks until
// the GPU has finished the frame that last used the slot, so at most
// FramesInFlight frames are outstanding.
//
// # State Tracking
//
// Images and buffers are registered with the device's [StateTracker] when
// created. Recording operations call RequireState for every resource they
// touch and then CommitBarriers, which emits all pending transitions in one
// native batch. Image state starts monolithic and expands to per-subresource
// state the first time a partial range is required. Resources created with
// KeepResourceState return to their initial state after each operation.
//
// # Backends
//
// The backend is chosen at build time:
//
//	go build                  // dummy backend (hal noop)
//	go build -tags rhi_vulkan // Vulkan
//	go build -tags rhi_dx12   // Direct3D 12 (Windows)
//
// Contract violations such as recording into a closed command list or
// committing barriers inside a render pass panic with an [AssertionError].
// Building with the rhi_release tag compiles these checks out.
//
// # Logging
//
// The package logs through [Logger], which discards everything until
// [SetLogger] is called. Validation diagnostics go to the device's message
// callback instead.
package rhi
