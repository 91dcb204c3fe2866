package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rafio1020/project-aeras/internal/logger"
	"github.com/rafio1020/project-aeras/internal/types"

	"github.com/redis/go-redis/v9"
)

// Redis keys used by the two node daemons. Kiosk signals arrive on a list so
// that bench tooling can LPUSH them; operator ride commands work the same way
// on the rickshaw side.
const (
	KioskSignalList     = "kiosk:signal"
	RickshawCommandList = "rickshaw:command"

	kioskHash    = "kiosk"
	rickshawHash = "rickshaw"
)

type Callbacks struct {
	PresenceCallback func(bool) error   // true for "presence:on", false for "presence:off"
	ConfirmCallback  func() error       // confirm button press
	LightCallback    func(int) error    // raw ambient light reading
	RideCallback     func(string) error // "accept", "reject", "pickup", "complete", "status"
}

type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(host string, port int, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		callbacks: callbacks,
		logger:    l.WithTag("redis"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetCallbacks replaces the signal callbacks. Must be called before
// StartListening.
func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts the list command listeners after system initialization
// is complete.
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	r.wg.Add(2)
	go r.listCommandListener(KioskSignalList, r.handleKioskSignal)
	go r.listCommandListener(RickshawCommandList, r.handleRideCommand)

	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// Use BRPOP with a short timeout to allow periodic context
			// cancellation checks
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if err == context.Canceled {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Infof("Error reading from %s list: %v", key, err)
				continue
			}

			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

func (r *RedisClient) handleKioskSignal(value string) error {
	switch {
	case value == "presence:on" || value == "presence:off":
		if r.callbacks.PresenceCallback == nil {
			return nil
		}
		return r.callbacks.PresenceCallback(value == "presence:on")

	case value == "confirm":
		if r.callbacks.ConfirmCallback == nil {
			return nil
		}
		return r.callbacks.ConfirmCallback()

	case strings.HasPrefix(value, "light:"):
		if r.callbacks.LightCallback == nil {
			return nil
		}
		level, err := strconv.Atoi(strings.TrimPrefix(value, "light:"))
		if err != nil {
			r.logger.Infof("Invalid light signal value: %s", value)
			return fmt.Errorf("invalid light signal: %s", value)
		}
		return r.callbacks.LightCallback(level)

	default:
		r.logger.Infof("Invalid kiosk signal value: %s", value)
		return fmt.Errorf("invalid kiosk signal: %s", value)
	}
}

func (r *RedisClient) handleRideCommand(value string) error {
	if r.callbacks.RideCallback == nil {
		return nil
	}
	switch value {
	case "accept", "reject", "pickup", "complete", "status":
		return r.callbacks.RideCallback(value)
	default:
		r.logger.Infof("Invalid ride command value: %s", value)
		return fmt.Errorf("invalid ride command: %s", value)
	}
}

// publishHashSet is a helper that atomically updates a hash field and
// publishes a notification
func (r *RedisClient) publishHashSet(hash, field string, value interface{}, channel, payload string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, hash, field, value)
	pipe.Publish(r.ctx, channel, payload)
	_, err := pipe.Exec(r.ctx)
	return err
}

func (r *RedisClient) PublishKioskPhase(phase types.RiderPhase) error {
	r.logger.Debugf("Publishing kiosk phase: %s", phase)
	timestamp := time.Now().Format(time.RFC3339)

	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, kioskHash, "phase", string(phase))
	pipe.HSet(r.ctx, kioskHash, "phase:timestamp", timestamp)
	pipe.Publish(r.ctx, kioskHash, "phase")
	_, err := pipe.Exec(r.ctx)

	if err != nil {
		r.logger.Warnf("Failed to publish kiosk phase: %v", err)
		return err
	}
	return nil
}

func (r *RedisClient) PublishRickshawPhase(phase types.VehiclePhase) error {
	r.logger.Debugf("Publishing rickshaw phase: %s", phase)
	timestamp := time.Now().Format(time.RFC3339)

	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, rickshawHash, "phase", string(phase))
	pipe.HSet(r.ctx, rickshawHash, "phase:timestamp", timestamp)
	pipe.Publish(r.ctx, rickshawHash, "phase")
	_, err := pipe.Exec(r.ctx)

	if err != nil {
		r.logger.Warnf("Failed to publish rickshaw phase: %v", err)
		return err
	}
	return nil
}

// DisplayIntent is a non-blocking request for whatever panel is attached to
// the node. HoldMs of 0 means show until replaced.
type DisplayIntent struct {
	Line1  string `json:"line1"`
	Line2  string `json:"line2,omitempty"`
	HoldMs int    `json:"holdMs,omitempty"`
}

func (r *RedisClient) PublishKioskDisplay(intent DisplayIntent) error {
	return r.publishDisplay(kioskHash, intent)
}

func (r *RedisClient) PublishRickshawDisplay(intent DisplayIntent) error {
	return r.publishDisplay(rickshawHash, intent)
}

func (r *RedisClient) publishDisplay(hash string, intent DisplayIntent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to encode display intent: %w", err)
	}
	r.logger.Debugf("Publishing %s display: %s", hash, payload)

	if err := r.publishHashSet(hash, "display", string(payload), hash, "display"); err != nil {
		r.logger.Warnf("Failed to publish display intent: %v", err)
		return err
	}
	return nil
}

// SetKioskLed publishes the desired kiosk lamp state. Color is one of
// "yellow", "red", "green".
func (r *RedisClient) SetKioskLed(color string, on bool) error {
	state := "off"
	if on {
		state = "on"
	}

	field := fmt.Sprintf("led:%s", color)
	if err := r.publishHashSet(kioskHash, field, state, kioskHash, field); err != nil {
		r.logger.Warnf("Failed to set kiosk LED state: %v", err)
		return err
	}
	return nil
}

// PublishKioskBeep requests count beeps of durationMs each from the kiosk
// buzzer.
func (r *RedisClient) PublishKioskBeep(count, durationMs int) error {
	payload := fmt.Sprintf("%d:%d", count, durationMs)
	if err := r.client.LPush(r.ctx, "kiosk:beep", payload).Err(); err != nil {
		r.logger.Warnf("Failed to publish beep request: %v", err)
		return err
	}
	r.logger.Debugf("Published beep request: %s", payload)
	return nil
}

// PublishRickshawPosition mirrors the last reported position so dashboards
// can follow the vehicle without talking to the backend.
func (r *RedisClient) PublishRickshawPosition(lat, lng float64, geohash string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, rickshawHash, "position:lat", strconv.FormatFloat(lat, 'f', 6, 64))
	pipe.HSet(r.ctx, rickshawHash, "position:lng", strconv.FormatFloat(lng, 'f', 6, 64))
	pipe.HSet(r.ctx, rickshawHash, "position:geohash", geohash)
	pipe.Publish(r.ctx, rickshawHash, "position")
	_, err := pipe.Exec(r.ctx)

	if err != nil {
		r.logger.Warnf("Failed to publish rickshaw position: %v", err)
		return err
	}
	return nil
}

// SetRideInfo records the active ride on the rickshaw hash.
func (r *RedisClient) SetRideInfo(rideID, pickup, destination string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, rickshawHash, "ride:id", rideID)
	pipe.HSet(r.ctx, rickshawHash, "ride:pickup", pickup)
	pipe.HSet(r.ctx, rickshawHash, "ride:destination", destination)
	pipe.Publish(r.ctx, rickshawHash, "ride")
	_, err := pipe.Exec(r.ctx)

	if err != nil {
		r.logger.Warnf("Failed to set ride info: %v", err)
		return err
	}
	return nil
}

// ClearRideInfo removes the active ride fields after completion.
func (r *RedisClient) ClearRideInfo() error {
	pipe := r.client.Pipeline()
	pipe.HDel(r.ctx, rickshawHash, "ride:id", "ride:pickup", "ride:destination")
	pipe.Publish(r.ctx, rickshawHash, "ride")
	_, err := pipe.Exec(r.ctx)

	if err != nil {
		r.logger.Warnf("Failed to clear ride info: %v", err)
		return err
	}
	return nil
}

// SetTotalPoints records the running point total on the rickshaw hash.
func (r *RedisClient) SetTotalPoints(points int) error {
	if err := r.publishHashSet(rickshawHash, "points:total", points, rickshawHash, "points:total"); err != nil {
		r.logger.Warnf("Failed to set total points: %v", err)
		return err
	}
	return nil
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	// Wait for all goroutines to finish with a timeout
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Infof("All Redis goroutines finished")
	case <-time.After(5 * time.Second):
		r.logger.Infof("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
