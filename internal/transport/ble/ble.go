// Package ble connects to a meter over Bluetooth Low Energy. The meter
// exposes one serial-style characteristic (0xFFE1 in service 0xFFE0)
// that takes writes and delivers notifications.
package ble

import (
	"context"
	"strings"
	"time"

	"codeberg.org/mutker/umctl/internal/errors"
	"codeberg.org/mutker/umctl/internal/logger"
	"codeberg.org/mutker/umctl/internal/meter"
	"codeberg.org/mutker/umctl/internal/transport"
	"tinygo.org/x/bluetooth"
)

const (
	ServiceUUID16        = 0xFFE0
	CharacteristicUUID16 = 0xFFE1

	DefaultConnectTimeout = 30 * time.Second
)

var (
	serviceUUID        = bluetooth.New16BitUUID(ServiceUUID16)
	characteristicUUID = bluetooth.New16BitUUID(CharacteristicUUID16)
)

type Config struct {
	// Device selects a meter by address or advertised name. Empty means
	// the first device advertising the meter service.
	Device         string
	ConnectTimeout time.Duration
}

type Transport struct {
	adapter *bluetooth.Adapter
	watcher connWatcher
	cfg     Config
	log     logger.Logger
}

// connWatcher reports connection state changes by peer address.
type connWatcher interface {
	OnConnectionChange(fn func(address string, connected bool))
}

type adapterWatcher struct {
	adapter *bluetooth.Adapter
}

// OnConnectionChange replaces the adapter's connect handler. The adapter
// has one handler, so only the latest link is watched.
func (w adapterWatcher) OnConnectionChange(fn func(string, bool)) {
	w.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		fn(device.Address.String(), connected)
	})
}

func New(cfg Config, log logger.Logger) *Transport {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	return &Transport{
		adapter: bluetooth.DefaultAdapter,
		watcher: adapterWatcher{adapter: bluetooth.DefaultAdapter},
		cfg:     cfg,
		log:     log.With("ble"),
	}
}

// Connect scans for the meter, connects and subscribes to notifications.
func (t *Transport) Connect(ctx context.Context) (meter.Conn, error) {
	errFactory := errors.New()

	ctx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()

	if err := t.adapter.Enable(); err != nil {
		return nil, errFactory.Wrap(transport.ErrAdapterUnavailable, err)
	}

	result, err := t.scan(ctx)
	if err != nil {
		return nil, err
	}

	t.log.Info().
		Str("address", result.Address.String()).
		Str("name", result.LocalName()).
		Int("rssi", int(result.RSSI)).
		Msg("Found meter")

	device, err := t.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, errFactory.Wrap(transport.ErrOpenFailed, err)
	}

	char, err := discoverCharacteristic(device)
	if err != nil {
		device.Disconnect()
		return nil, err
	}

	link := transport.NewLink(
		func(b []byte) error {
			_, err := char.WriteWithoutResponse(b)
			return err
		},
		device.Disconnect,
	)
	watchLink(t.watcher, link, result.Address.String(), t.log)

	if err := char.EnableNotifications(func(buf []byte) {
		link.Deliver(buf)
	}); err != nil {
		link.Close()
		return nil, errFactory.Wrap(transport.ErrSubscribeFailed, err)
	}

	t.log.Debug().Str("address", result.Address.String()).Msg("Notifications enabled")

	return link, nil
}

// watchLink fails and ends link when the peer at address drops. A
// disconnect caused by closing the link is ignored.
func watchLink(w connWatcher, link *transport.Link, address string, log logger.Logger) {
	w.OnConnectionChange(func(addr string, connected bool) {
		if connected || !strings.EqualFold(addr, address) {
			return
		}

		select {
		case <-link.Done():
			return
		default:
		}

		log.Warn().Str("address", address).Msg("Meter disconnected")
		link.Fail(errors.New().WithData(transport.ErrLinkClosed, address))
		link.End()
	})
}

func (t *Transport) scan(ctx context.Context) (bluetooth.ScanResult, error) {
	errFactory := errors.New()
	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	go func() {
		scanErr <- t.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if !r.HasServiceUUID(serviceUUID) {
				return
			}
			if !Matches(t.cfg.Device, r.Address.String(), r.LocalName()) {
				t.log.Debug().Str("address", r.Address.String()).Msg("Skipping non-matching meter")
				return
			}
			select {
			case found <- r:
				a.StopScan()
			default:
			}
		})
	}()

	select {
	case r := <-found:
		return r, nil
	case err := <-scanErr:
		if err != nil {
			return bluetooth.ScanResult{}, errFactory.Wrap(transport.ErrScanFailed, err)
		}
		return bluetooth.ScanResult{}, errFactory.WithData(transport.ErrDeviceNotFound, t.cfg.Device)
	case <-ctx.Done():
		if err := t.adapter.StopScan(); err != nil {
			t.log.Debug().Err(err).Msg("Failed to stop scan")
		}
		return bluetooth.ScanResult{}, errFactory.Wrap(transport.ErrDeviceNotFound, ctx.Err())
	}
}

func discoverCharacteristic(device bluetooth.Device) (bluetooth.DeviceCharacteristic, error) {
	errFactory := errors.New()

	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(services) == 0 {
		return bluetooth.DeviceCharacteristic{}, errFactory.Wrap(transport.ErrServiceNotFound, err).
			WithData(serviceUUID.String())
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{characteristicUUID})
	if err != nil || len(chars) == 0 {
		return bluetooth.DeviceCharacteristic{}, errFactory.Wrap(transport.ErrServiceNotFound, err).
			WithData(characteristicUUID.String())
	}

	return chars[0], nil
}

// Matches reports whether an advertisement fits the configured selector.
func Matches(selector, address, name string) bool {
	if selector == "" {
		return true
	}

	return strings.EqualFold(selector, address) || (name != "" && strings.EqualFold(selector, name))
}
