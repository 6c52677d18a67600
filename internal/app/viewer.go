package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_viewer/internal/bno055"
	"github.com/relabs-tech/imu_viewer/internal/bus"
	"github.com/relabs-tech/imu_viewer/internal/config"
	"github.com/relabs-tech/imu_viewer/internal/orientation"
	"github.com/relabs-tech/imu_viewer/internal/poll"
)

// ErrDeviceNotFound classifies startup failures: the bus could not be
// opened or the device at the configured address is missing or is not
// a BNO055. The viewer refuses to start polling in that case.
var ErrDeviceNotFound = errors.New("device not found")

// RunViewer is the process entry: open the bus, bring up the driver,
// start the acquisition loop and the sinks, block until cancellation.
// With mock=true the same loop and sinks run against the mock source,
// no hardware needed.
func RunViewer(mock bool) error {
	cfg := config.Get()

	var dev poll.Device
	if mock {
		log.Info("viewer: using mock orientation source (no hardware)")
		dev = poll.WrapSource(orientation.NewMockSource())
	} else {
		log.Infof("viewer: connecting to BNO055 on bus %q, address 0x%02X", cfg.I2CBus, cfg.I2CAddr)

		tr, err := bus.Open(cfg.I2CBus, cfg.I2CAddr)
		if err != nil {
			if errors.Is(err, os.ErrPermission) {
				return fmt.Errorf("%w: bus access denied (try running as root or adding the user to the i2c group): %v", ErrDeviceNotFound, err)
			}
			return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
		defer tr.Close()

		driver := bno055.New(tr)
		if err := driver.Identify(); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
		if err := driver.Initialize(); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
		log.Info("viewer: BNO055 identified and in NDOF fusion mode")
		dev = driver
	}

	slot := &orientation.Latest{}
	loop := poll.New(dev, slot, time.Duration(cfg.PollPeriodMS)*time.Millisecond, cfg.FailureThreshold)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(ctx)
	}()

	// Web sink (always on)
	webDone := make(chan error, 1)
	go func() {
		webDone <- RunWeb(slot, loop)
	}()

	// MQTT sink (optional)
	if cfg.MQTTBroker != "" {
		client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDViewer)
		if err != nil {
			log.Warnf("viewer: MQTT disabled, connect failed: %v", err)
		} else {
			defer client.Disconnect(250)
			go publishSamples(ctx, client, slot, cfg)
		}
	}

	// Block until a signal, the loop dying, or the web server dying.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("viewer: received %v, shutting down", sig)
		cancel()
		if err := <-loopDone; err != nil {
			return err
		}
		log.Infof("viewer: loop stats: %+v", loop.Stats())
		return nil
	case err := <-loopDone:
		// The loop only exits on its own when recovery is exhausted.
		return err
	case err := <-webDone:
		cancel()
		<-loopDone
		return fmt.Errorf("web server: %w", err)
	}
}

func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	log.Infof("viewer: connected to MQTT broker at %s", broker)
	return client, nil
}

// publishSamples mirrors the latest sample onto MQTT so the console and
// OLED subscribers can follow along. Retained, QoS 0: late joiners get
// the newest sample immediately, nothing queues.
func publishSamples(ctx context.Context, client mqtt.Client, slot *orientation.Latest, cfg *config.Config) {
	ticker := time.NewTicker(time.Duration(cfg.PollPeriodMS) * time.Millisecond)
	defer ticker.Stop()

	var lastPublish time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sample, ok := slot.Get()
		if !ok {
			continue
		}
		updated := slot.UpdatedAt()
		if !updated.After(lastPublish) {
			continue
		}
		lastPublish = updated

		payload, err := json.Marshal(sample)
		if err != nil {
			log.Errorf("viewer: sample marshal error: %v", err)
			continue
		}
		if token := client.Publish(cfg.TopicOrientation, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Warnf("viewer: MQTT publish error (%s): %v", cfg.TopicOrientation, token.Error())
			continue
		}

		calPayload, err := json.Marshal(sample.Calibration)
		if err != nil {
			log.Errorf("viewer: calibration marshal error: %v", err)
			continue
		}
		if token := client.Publish(cfg.TopicCalibration, 0, true, calPayload); token.Wait() && token.Error() != nil {
			log.Warnf("viewer: MQTT publish error (%s): %v", cfg.TopicCalibration, token.Error())
		}
	}
}
