package hardware

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// KioskPanel drives the physical kiosk: three status lamps, a buzzer, a
// presence pad and a confirm button on GPIO lines, plus an LDR on the ADC.
type KioskPanel struct {
	logger *log.Logger
	chips  map[int]*gpiocdev.Chip
	lines  map[string]*gpiocdev.Line

	mu         sync.RWMutex
	presenceCb func(bool) error
	confirmCb  func() error
}

func NewKioskPanel() *KioskPanel {
	return &KioskPanel{
		logger: log.New(log.Writer(), "KioskPanel: ", log.LstdFlags),
		chips:  make(map[int]*gpiocdev.Chip),
		lines:  make(map[string]*gpiocdev.Line),
	}
}

func (p *KioskPanel) chip(num int) (*gpiocdev.Chip, error) {
	if chip, ok := p.chips[num]; ok {
		return chip, nil
	}
	chip, err := gpiocdev.NewChip(fmt.Sprintf("gpiochip%d", num))
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %d: %w", num, err)
	}
	p.chips[num] = chip
	return chip, nil
}

func (p *KioskPanel) Initialize() error {
	p.logger.Printf("Initializing kiosk panel")

	for name, mapping := range DoMappings {
		chip, err := p.chip(mapping.Chip)
		if err != nil {
			return err
		}

		line, err := chip.RequestLine(mapping.Line,
			gpiocdev.AsOutput(0),
			gpiocdev.WithConsumer("kiosk-node"))
		if err != nil {
			return fmt.Errorf("failed to request GPIO line %d: %w", mapping.Line, err)
		}

		p.lines[name] = line
		p.logger.Printf("Configured DO %s: chip=%d, line=%d", name, mapping.Chip, mapping.Line)
	}

	for name, mapping := range DiMappings {
		chip, err := p.chip(mapping.Chip)
		if err != nil {
			return err
		}

		handler := p.makeEventHandler(name)
		line, err := chip.RequestLine(mapping.Line,
			gpiocdev.AsInput,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(handler),
			gpiocdev.WithConsumer("kiosk-node"))
		if err != nil {
			return fmt.Errorf("failed to request GPIO line %d: %w", mapping.Line, err)
		}

		p.lines[name] = line
		p.logger.Printf("Configured DI %s: chip=%d, line=%d", name, mapping.Chip, mapping.Line)
	}

	return nil
}

func (p *KioskPanel) makeEventHandler(name string) func(gpiocdev.LineEvent) {
	return func(evt gpiocdev.LineEvent) {
		rising := evt.Type == gpiocdev.LineEventRisingEdge

		p.mu.RLock()
		presenceCb := p.presenceCb
		confirmCb := p.confirmCb
		p.mu.RUnlock()

		switch name {
		case "presence_sensor":
			if presenceCb != nil {
				if err := presenceCb(rising); err != nil {
					p.logger.Printf("Presence callback error: %v", err)
				}
			}
		case "confirm_button":
			// Only the press edge matters
			if rising && confirmCb != nil {
				if err := confirmCb(); err != nil {
					p.logger.Printf("Confirm callback error: %v", err)
				}
			}
		}
	}
}

func (p *KioskPanel) Cleanup() {
	p.logger.Printf("Cleaning up kiosk panel")
	for name, line := range p.lines {
		if err := line.Close(); err != nil {
			p.logger.Printf("Failed to close line %s: %v", name, err)
		}
	}
	for num, chip := range p.chips {
		if err := chip.Close(); err != nil {
			p.logger.Printf("Failed to close chip %d: %v", num, err)
		}
	}
}

func (p *KioskPanel) SetLed(color string, on bool) error {
	line, ok := p.lines["led_"+color]
	if !ok {
		return fmt.Errorf("unknown LED color: %s", color)
	}
	value := 0
	if on {
		value = 1
	}
	return line.SetValue(value)
}

// Beep pulses the buzzer count times, durationMs on and durationMs off each.
// Runs in the background so callers never block on the buzzer.
func (p *KioskPanel) Beep(count, durationMs int) error {
	line, ok := p.lines["buzzer"]
	if !ok {
		return fmt.Errorf("buzzer line not configured")
	}

	go func() {
		for i := 0; i < count; i++ {
			if err := line.SetValue(1); err != nil {
				p.logger.Printf("Failed to drive buzzer: %v", err)
				return
			}
			time.Sleep(time.Duration(durationMs) * time.Millisecond)
			if err := line.SetValue(0); err != nil {
				p.logger.Printf("Failed to release buzzer: %v", err)
				return
			}
			time.Sleep(time.Duration(durationMs) * time.Millisecond)
		}
	}()
	return nil
}

func (p *KioskPanel) ReadLightLevel() (int, error) {
	return ReadAdcValue(AdcDevice, LdrChannel)
}

func (p *KioskPanel) RegisterPresenceCallback(callback func(bool) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presenceCb = callback
}

func (p *KioskPanel) RegisterConfirmCallback(callback func() error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmCb = callback
}
