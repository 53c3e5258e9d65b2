// fjarsyn shares a screen with one peer over WebRTC, negotiating through a
// bifrost signaling relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/sync/errgroup"

	"fjarsyn/internal/api"
	"fjarsyn/internal/buffer"
	"fjarsyn/internal/call"
	"fjarsyn/internal/capture"
	"fjarsyn/internal/codec"
	"fjarsyn/internal/logging"
	"fjarsyn/internal/preview"
	"fjarsyn/internal/signaling"
	"fjarsyn/internal/webrtc"
	"fjarsyn/models"
)

var log = logging.New("fjarsyn")

func init() {
	// OpenCV windows must stay on the main thread.
	runtime.LockOSThread()
}

// ============================================================
// MAIN
// ============================================================

func main() {
	opts, err := parseFlags(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if !logging.SetLevel(opts.cfg.LogLevel) {
		log.Warnf("⚠️  Unknown log level %q, keeping default", opts.cfg.LogLevel)
	}

	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║  fjarsyn - peer to peer screen share   ║")
	fmt.Println("╚════════════════════════════════════════╝")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("⚠️  Shutting down...")
		cancel()
	}()

	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("❌ %v", err)
		os.Exit(1)
	}
	log.Infof("✅ Done!")
}

// ============================================================
// RUN
// ============================================================

func run(ctx context.Context, opts options) error {
	cfg := opts.cfg

	backend := capture.NewScreenBackend()
	if opts.source == "pattern" {
		backend = capture.NewPatternBackend(1280, 720)
	}

	sources, err := capture.ListSources(backend)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	if opts.listSources {
		for i, src := range sources {
			fmt.Printf("%d\t%s\n", i, src)
		}
		return nil
	}
	if cfg.Display < 0 || cfg.Display >= len(sources) {
		return fmt.Errorf("display %d not found (%d available)", cfg.Display, len(sources))
	}

	format, _ := capture.ParsePixelFormat(cfg.PixelFormat)
	framerate, _ := capture.ParseFramerate(fmt.Sprint(cfg.Framerate))

	// Capture
	session := capture.NewSession(backend,
		capture.WithPixelFormat(format),
		capture.WithFramerate(framerate),
		capture.WithArena(buffer.NewArena(models.ArenaInitialSize)),
	)
	defer session.Close()

	if err := session.SetSource(sources[cfg.Display]); err != nil {
		return err
	}
	stream, err := session.CreateStream(framerate)
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	defer stream.Close()
	if err := session.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	// Codecs
	encoder := codec.NewEncoder(codec.EncoderConfig{
		Bitrate:    cfg.Bitrate,
		Framerate:  framerate,
		Format:     format,
		FFmpegPath: cfg.FFmpegPath,
	})
	defer encoder.Close()

	decoder, err := codec.NewDecoder(codec.DecoderConfig{
		Width:      cfg.RemoteWidth,
		Height:     cfg.RemoteHeight,
		FFmpegPath: cfg.FFmpegPath,
		Pool:       buffer.NewPool(models.PoolMaxBuffers),
	})
	if err != nil {
		return err
	}
	defer decoder.Close()

	var window *preview.Window
	if cfg.Preview {
		window = preview.NewWindow("fjarsyn")
		defer window.Close()
	}
	showRemote := func(f *capture.Frame) {
		if window == nil {
			f.Release()
			return
		}
		window.Submit(f)
	}

	// Signaling
	probe := api.NewAPIClient(models.HandshakeTimeout)
	if h, err := probe.RelayHealth(ctx, cfg.ServerURL); err != nil {
		log.Warnf("⚠️  Relay health probe failed: %v", err)
	} else {
		log.Infof("🌉 Relay up, %d peers online", h.Peers)
	}

	conn, err := signaling.DialWithRetry(ctx, cfg.ServerURL, signaling.DefaultRetryPolicy())
	if err != nil {
		return fmt.Errorf("connect to relay: %w", err)
	}
	defer conn.Close()

	transportCfg := webrtc.ConfigFrom(cfg)
	sender := call.NewSender(encoder)
	machine := call.NewMachine(conn,
		func(remote string) (call.Transport, error) {
			return webrtc.NewPeer(transportCfg, conn, remote)
		},
		call.WithSender(sender),
		call.WithReceiver(call.NewReceiver(decoder, showRemote)),
	)
	machine.HandleMessage(models.NewIdentity(conn.ID()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sender.PumpFrames(gctx, stream.Frames())
		return nil
	})

	g.Go(func() error {
		if err := machine.Run(gctx, conn.Incoming()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			conn.Close()
			return nil
		case <-conn.Done():
			if err := conn.Err(); err != nil {
				return fmt.Errorf("relay connection lost: %w", err)
			}
			return errors.New("relay connection closed")
		}
	})

	g.Go(func() error {
		logEvents(gctx, machine.Events())
		return nil
	})

	if opts.callTarget != "" {
		g.Go(func() error {
			if err := machine.Call(opts.callTarget); err != nil {
				log.Errorf("❌ Call to %s failed: %v", opts.callTarget, err)
			}
			return nil
		})
	} else {
		log.Infof("📞 Waiting for calls... share your id: %s", conn.ID())
	}

	if window != nil {
		if err := window.Run(gctx); errors.Is(err, preview.ErrClosed) {
			cancel()
		}
	}

	err = g.Wait()
	log.Infof("📊 Frames sent: %d, skipped: %d, dropped at capture: %d",
		sender.Sent(), sender.Skipped(), stream.Dropped())
	return err
}

func logEvents(ctx context.Context, events <-chan call.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case call.EventIncomingCall:
				log.Infof("📞 Incoming call from %s (auto-answered)", ev.Peer)
			case call.EventOutgoingCall:
				log.Infof("📞 Calling %s...", ev.Peer)
			case call.EventConnected:
				log.Infof("🎉 Sharing screen with %s", ev.Peer)
			case call.EventDisconnected:
				log.Infof("📴 Call with %s ended", ev.Peer)
			case call.EventFailed:
				log.Errorf("❌ Call with %s failed: %v", ev.Peer, ev.Err)
			}
		}
	}
}
