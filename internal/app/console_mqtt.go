package app

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_viewer/internal/config"
	"github.com/relabs-tech/imu_viewer/internal/orientation"
)

// RunConsoleMQTT subscribes to the viewer's orientation topic and
// prints a readout line at the configured interval. Only the newest
// sample between ticks is shown; the console never builds a backlog.
func RunConsoleMQTT() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Infof("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	var (
		mu         sync.RWMutex
		lastSample orientation.Sample
		lastMsg    time.Time
		haveSample bool
	)

	token := client.Subscribe(cfg.TopicOrientation, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s orientation.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Warnf("console: sample unmarshal error: %v", err)
			return
		}
		mu.Lock()
		lastSample = s
		lastMsg = time.Now()
		haveSample = true
		mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Infof("console: subscribed to %s", cfg.TopicOrientation)

	ticker := time.NewTicker(time.Duration(cfg.ConsoleLogInterval) * time.Millisecond)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			log.Info("console: shutting down")
			client.Disconnect(250)
			return nil
		case <-ticker.C:
			mu.RLock()
			s, last, ok := lastSample, lastMsg, haveSample
			mu.RUnlock()
			if !ok {
				continue
			}

			fmt.Print(renderReadout(s, time.Since(last)))
		}
	}
}

// consoleStaleAfter matches the OLED's threshold for flagging a feed
// that stopped updating.
const consoleStaleAfter = 2 * time.Second

// renderReadout formats the readout lines for one sample. age is the
// time since the sample arrived; past consoleStaleAfter the readout
// says how old it is instead of silently repeating old numbers.
func renderReadout(s orientation.Sample, age time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b,
		"[ORI ] HDG=%6.1f  ROLL=%6.1f  PITCH=%6.1f  |q|=%.4f\n",
		s.Heading, s.Roll, s.Pitch, s.Quat.Norm(),
	)
	fmt.Fprintf(&b,
		"[CAL ] sys=%d gyro=%d accel=%d mag=%d calibrated=%v\n",
		s.Calibration.Sys, s.Calibration.Gyro, s.Calibration.Accel, s.Calibration.Mag,
		s.Calibration.IsCalibrated(),
	)
	if age > consoleStaleAfter {
		fmt.Fprintf(&b, "[WARN] feed stale, last sample %.1fs ago\n", age.Seconds())
	}
	return b.String()
}
